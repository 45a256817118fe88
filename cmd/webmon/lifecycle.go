package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/server"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the webmon daemon in the background",
	Long: `Starts the daemon that connects to your browser, enforces the
active session and serves the local control API.`,
	RunE: runUp,
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the webmon daemon",
	Long: `Stops the daemon. An active session is kept in the store and
resumes when the daemon starts again.`,
	RunE: runDown,
}

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Manage starting the daemon at login (macOS)",
}

var autostartEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Install a LaunchAgent that starts the daemon at login",
	RunE:  runAutostartEnable,
}

var autostartDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Remove the LaunchAgent",
	RunE:  runAutostartDisable,
}

// browserProcessNames are matched against running processes by "status".
var browserProcessNames = []string{"chrome", "chromium", "brave", "msedge"}

func init() {
	autostartCmd.AddCommand(autostartEnableCmd)
	autostartCmd.AddCommand(autostartDisableCmd)

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(downCmd)
	rootCmd.AddCommand(autostartCmd)
}

// daemonPID returns the PID of the registered, live daemon.
func daemonPID(ctx context.Context) (int, bool, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return 0, false, err
	}
	store, err := openStore(cfg)
	if err != nil {
		return 0, false, err
	}
	defer store.Close()

	pid, running := daemon.RunningDaemon(ctx, store, infra.NewProcessManager())
	return pid, running, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pid, running, err := daemonPID(ctx)
	if err != nil {
		return err
	}
	if running {
		fmt.Printf("webmon daemon is already running (PID %d)\n", pid)
		return nil
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	pid, err = daemon.StartDaemon("", daemonArgs()...)
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Wait for the control API to come up
	client := server.NewClient(cfg.BaseURL())
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := client.Health(ctx); err == nil {
			fmt.Printf("webmon daemon started (PID %d), control API on %s\n", pid, cfg.BaseURL())
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	fmt.Printf("webmon daemon spawned (PID %d) but is not answering yet\n", pid)
	fmt.Println("Check the log for browser connection errors.")
	return nil
}

// daemonArgs forwards the flags that shape the daemon's configuration.
func daemonArgs() []string {
	args := []string{"daemon", "--config", configPath}
	if listenAddr != "" {
		args = append(args, "--listen", listenAddr)
	}
	if dataDir != "" {
		args = append(args, "--data-dir", dataDir)
	}
	if browserURL != "" {
		args = append(args, "--browser-url", browserURL)
	}
	return args
}

func runDown(cmd *cobra.Command, args []string) error {
	pid, running, err := daemonPID(cmd.Context())
	if err != nil {
		return err
	}
	if !running {
		fmt.Println("webmon daemon is not running")
		return nil
	}
	if err := infra.NewProcessManager().Terminate(pid); err != nil {
		return fmt.Errorf("failed to stop daemon (PID %d): %w", pid, err)
	}
	fmt.Printf("webmon daemon stopped (PID %d)\n", pid)
	return nil
}

func runAutostartEnable(cmd *cobra.Command, args []string) error {
	paths := infra.DetectPaths()
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	agent := infra.NewLaunchAgent(infra.GetRealUserHome(), paths)
	if err := agent.Install(execPath, configPath); err != nil {
		return fmt.Errorf("failed to install LaunchAgent: %w", err)
	}
	fmt.Printf("Installed LaunchAgent: %s\n", agent.PlistPath())
	return nil
}

func runAutostartDisable(cmd *cobra.Command, args []string) error {
	agent := infra.NewLaunchAgent(infra.GetRealUserHome(), infra.DetectPaths())
	if !agent.IsInstalled() {
		fmt.Println("Auto-start is not enabled")
		return nil
	}
	if err := agent.Uninstall(); err != nil {
		return fmt.Errorf("failed to remove LaunchAgent: %w", err)
	}
	fmt.Println("Auto-start disabled")
	return nil
}

func printBrowserStatus(pm *infra.ProcessManagerImpl) {
	counts, err := pm.CountByName(browserProcessNames...)
	if err != nil {
		fmt.Printf("Browser: %s\n", color.YellowString("unknown"))
		return
	}
	for _, name := range browserProcessNames {
		if n := counts[name]; n > 0 {
			fmt.Printf("Browser: %s (%d processes)\n", color.GreenString(name), n)
			return
		}
	}
	fmt.Printf("Browser: %s\n", color.YellowString("none detected"))
}
