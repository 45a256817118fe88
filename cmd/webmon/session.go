package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a focus session",
	Long: `Starts a focus session. Only the given domains may be visited until
the time limit is reached. A leading "www." is ignored.

Example:
  webmon start -d github.com -d go.dev --minutes 25`,
	RunE: runStart,
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the current session early",
	Long:  `Stops the active session. It is recorded in history as not completed.`,
	RunE:  runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session",
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past sessions",
	RunE:  runHistory,
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks of the current session",
}

var taskAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a task",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runTaskAdd,
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <id>",
	Short: "Toggle a task's completion",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDone,
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Remove a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskRm,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks of the current session",
	RunE:  runTaskList,
}

var nameCmd = &cobra.Command{
	Use:   "name <display name>",
	Short: "Set the name shown on block notices",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runName,
}

var (
	startDomains []string
	startMinutes int
)

func init() {
	startCmd.Flags().StringArrayVarP(&startDomains, "domain", "d", nil, "Allowed domain (repeatable)")
	startCmd.Flags().IntVar(&startMinutes, "minutes", 25, "Session length in minutes")
	_ = startCmd.MarkFlagRequired("domain")

	taskCmd.AddCommand(taskAddCmd)
	taskCmd.AddCommand(taskDoneCmd)
	taskCmd.AddCommand(taskRmCmd)
	taskCmd.AddCommand(taskListCmd)

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(nameCmd)
}

// newClient builds a control API client from the effective config.
func newClient() (*server.Client, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return server.NewClient(cfg.BaseURL()), nil
}

// explain turns daemon errors into actionable CLI messages.
func explain(err error) error {
	var apiErr *server.APIError
	if errors.As(err, &apiErr) {
		return errors.New(apiErr.Message)
	}
	if strings.Contains(err.Error(), "not reachable") {
		return fmt.Errorf("%w\nRun 'webmon up' to start the daemon", err)
	}
	return err
}

func runStart(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	logger := cliLogger()
	defer func() { _ = logger.Sync() }()

	limit := time.Duration(startMinutes) * time.Minute
	logger.Debug("starting session", zap.Strings("domains", startDomains), zap.Duration("limit", limit))

	if _, err := client.Start(cmd.Context(), startDomains, limit); err != nil {
		return explain(err)
	}

	fmt.Printf("Focus session started: %d minutes on %s\n", startMinutes, strings.Join(startDomains, ", "))
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if _, err := client.Stop(cmd.Context()); err != nil {
		return explain(err)
	}
	fmt.Println("Focus session stopped")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}

	fmt.Println("\n=== webmon Status ===")

	snap, err := client.Status(cmd.Context())
	if err != nil {
		fmt.Println("Daemon: NOT RUNNING")
		fmt.Println("\nRun 'webmon up' to start it.")
		return nil
	}
	fmt.Printf("Daemon: %s\n", color.GreenString("RUNNING"))
	fmt.Printf("Badge:  %s\n", badgeString(snap.Badge))
	printBrowserStatus(infra.NewProcessManager())

	if snap.Status == domain.StatusIdle {
		fmt.Println("Session: none")
		fmt.Println("=====================")
		return nil
	}

	fmt.Printf("Session: %s\n", snap.SessionID)
	fmt.Printf("Allowed: %s\n", strings.Join(snap.AllowedDomains, ", "))
	fmt.Printf("Remaining: %s\n", color.CyanString(formatClock(time.Duration(snap.RemainingMs)*time.Millisecond)))
	fmt.Printf("Focused:   %s of %s\n",
		formatClock(time.Duration(snap.ElapsedMs)*time.Millisecond),
		formatClock(time.Duration(snap.TimeLimitMs)*time.Millisecond))
	fmt.Println("=====================")
	return nil
}

func badgeString(b domain.Badge) string {
	switch b {
	case domain.BadgeActive:
		return color.New(color.FgWhite, color.BgBlue).Sprint(" ON ")
	case domain.BadgeDone:
		return color.New(color.FgWhite, color.BgGreen).Sprint(" Done ")
	default:
		return color.HiBlackString("(none)")
	}
}

// formatClock renders d as MM:SS, rounding partial seconds up.
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}

func runHistory(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	data, err := client.SessionData(cmd.Context())
	if err != nil {
		return explain(err)
	}
	if len(data.Sessions) == 0 {
		fmt.Println("No sessions yet.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Started", "Allowed", "Planned", "Focused", "Result", "Tasks"})
	// Newest first.
	for i := len(data.Sessions) - 1; i >= 0; i-- {
		s := data.Sessions[i]
		t.AppendRow(table.Row{
			s.StartTime.Local().Format("2006-01-02 15:04"),
			strings.Join(s.AllowedDomains, ", "),
			fmt.Sprintf("%dm", s.Duration),
			fmt.Sprintf("%dm", s.ActualDuration),
			resultString(s.Completed),
			taskSummary(s.Tasks),
		})
	}
	t.Render()
	return nil
}

func resultString(completed bool) string {
	if completed {
		return color.GreenString("completed")
	}
	return color.YellowString("stopped")
}

func taskSummary(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "-"
	}
	done := 0
	for _, task := range tasks {
		if task.Completed {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(tasks))
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	task, err := client.AddTask(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return explain(err)
	}
	fmt.Printf("Added task %s\n", task.ID)
	return nil
}

func runTaskDone(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	task, err := client.ToggleTask(cmd.Context(), args[0])
	if err != nil {
		return explain(err)
	}
	if task.Completed {
		fmt.Printf("Task %s done\n", task.ID)
	} else {
		fmt.Printf("Task %s reopened\n", task.ID)
	}
	return nil
}

func runTaskRm(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	if err := client.RemoveTask(cmd.Context(), args[0]); err != nil {
		return explain(err)
	}
	fmt.Printf("Removed task %s\n", args[0])
	return nil
}

func runTaskList(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	data, err := client.SessionData(cmd.Context())
	if err != nil {
		return explain(err)
	}
	if data.CurrentSession == nil {
		return domain.ErrNoSession
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Done", "Task"})
	for _, task := range data.CurrentSession.Tasks {
		mark := ""
		if task.Completed {
			mark = color.GreenString("✓")
		}
		t.AppendRow(table.Row{task.ID, mark, task.Text})
	}
	t.Render()
	return nil
}

func runName(cmd *cobra.Command, args []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	name, err := client.SetDisplayName(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return explain(err)
	}
	fmt.Printf("Display name set to %q\n", name)
	return nil
}
