// Package main is the CLI entry point for webmon.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/utils/clock"

	"github.com/eliteGoblin/focusd/web_mon/internal/config"
	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
	"github.com/eliteGoblin/focusd/web_mon/internal/server"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "webmon",
	Short: "Web monitor - time-boxed focus sessions for your browser",
	Long: `webmon runs focus sessions: pick the sites you need and a duration,
and every other site is blocked in your browser until the time is up.

Time only counts while an allowed site is the focused tab.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// Hidden daemon command - used for self-exec by "up" and the LaunchAgent
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

var (
	configPath string
	listenAddr string
	dataDir    string
	browserURL string
	verbose    bool
	jsonOutput bool
)

func init() {
	paths := infra.DetectPaths()
	rootCmd.PersistentFlags().StringVar(&configPath, "config", paths.ConfigPath, "Path to config.yaml")
	rootCmd.PersistentFlags().StringVar(&listenAddr, "listen", "", "Control API address (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().StringVar(&browserURL, "browser-url", "", "DevTools URL of a running browser (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(daemonCmd)
}

// loadConfig reads the config file and applies flag overrides.
func loadConfig() (config.Config, *infra.Paths, error) {
	paths := infra.DetectPaths()
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, paths, err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if browserURL != "" {
		cfg.Browser.ControlURL = browserURL
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if cfg.DataDir == "" {
		cfg.DataDir = paths.DataDir
	}
	if err := cfg.Validate(); err != nil {
		return cfg, paths, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, paths, nil
}

// openStore opens the SessionStore selected by the config.
func openStore(cfg config.Config) (domain.SessionStore, error) {
	switch cfg.Store.Driver {
	case config.DriverFile:
		return infra.NewFileStore(cfg.DataDir)
	default:
		key, err := infra.EnsureKey(infra.NewFileKeyProvider(cfg.DataDir))
		if err != nil {
			return nil, fmt.Errorf("failed to get encryption key: %w", err)
		}
		return infra.NewEncryptedStore(cfg.DataDir, key)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, paths, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(logPath(cfg, paths))
	defer func() { _ = logger.Sync() }()

	store, err := openStore(cfg)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return err
	}
	defer store.Close()

	pm := infra.NewProcessManager()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if pid, running := daemon.RunningDaemon(ctx, store, pm); running {
		return fmt.Errorf("webmon daemon already running (PID %d)", pid)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	host := infra.NewRodHost(infra.BrowserConfig{
		ControlURL: cfg.Browser.ControlURL,
		Launch:     cfg.Browser.Launch,
		Bin:        cfg.Browser.Bin,
		Headless:   cfg.Browser.Headless,
	}, logger)
	if err := host.Connect(ctx); err != nil {
		logger.Error("failed to connect to browser", zap.Error(err))
		return err
	}
	defer host.Close()

	var gatherer prometheus.Gatherer
	var metrics domain.Metrics
	if cfg.Metrics {
		reg := prometheus.NewRegistry()
		metrics = infra.NewPrometheusMetrics(reg)
		gatherer = reg
	}

	clk := clock.RealClock{}
	scheduler := daemon.NewScheduler(daemon.SchedulerConfig{
		TickInterval: cfg.TickInterval,
		FocusTimeout: daemon.DefaultSchedulerConfig().FocusTimeout,
	}, host, clk, logger)
	archiver := usecase.NewArchiver(store, cfg.HistoryLimit, metrics, logger)
	controller := usecase.NewController(usecase.ControllerConfig{
		TickInterval:       cfg.TickInterval,
		BadgeDoneWindow:    cfg.BadgeDoneWindow,
		OpenCompletionPage: cfg.OpenCompletionPage,
		CompletionURL:      cfg.BaseURL() + server.CompletePath,
	}, store, scheduler, archiver, infra.NewStoreIndicator(store, logger), host, clk, metrics, logger)
	scheduler.Bind(controller)

	if cfg.DisplayName != "" && cfg.DisplayName != usecase.DefaultDisplayName {
		if err := controller.SetDisplayName(ctx, cfg.DisplayName); err != nil {
			logger.Warn("failed to apply display name", zap.Error(err))
		}
	}

	enforcer := usecase.NewEnforcer(
		host,
		controller,
		store,
		policy.NewMatcher(cfg.BaseURL()),
		cfg.BaseURL()+server.BlockedPath,
		metrics,
		logger,
	)

	api := server.New(controller, gatherer, logger)
	go func() {
		if err := api.ListenAndServe(ctx, cfg.Listen); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("control API stopped", zap.Error(err))
			cancel()
		}
	}()

	watcher := daemon.NewWatcher(
		daemon.WatcherConfig{HeartbeatInterval: cfg.HeartbeatInterval},
		controller,
		archiver,
		enforcer,
		host,
		store,
		pm,
		clk,
		logger,
	)
	err = watcher.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// logPath keeps the log next to the data unless the default data dir is in use.
func logPath(cfg config.Config, paths *infra.Paths) string {
	if cfg.DataDir == paths.DataDir {
		return paths.LogPath
	}
	return filepath.Join(cfg.DataDir, "webmon.log")
}

func createLogger(path string) *zap.Logger {
	logConfig := zap.NewProductionConfig()
	logConfig.OutputPaths = []string{path}
	logConfig.ErrorOutputPaths = []string{path}
	logConfig.EncoderConfig.TimeKey = "time"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := logConfig.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

// cliLogger is silent unless --verbose.
func cliLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	Mode      string `json:"mode"`
	DataDir   string `json:"data_dir"`
}

func runVersion(cmd *cobra.Command, args []string) {
	paths := infra.DetectPaths()
	info := versionInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		Mode:      string(paths.Mode),
		DataDir:   paths.DataDir,
	}
	if jsonOutput {
		data, _ := json.Marshal(info)
		fmt.Println(string(data))
		return
	}
	fmt.Printf("webmon %s (commit: %s, built: %s)\n", info.Version, info.Commit, info.BuildTime)
	fmt.Printf("Mode: %s, data: %s\n", paths.Mode, info.DataDir)
}
