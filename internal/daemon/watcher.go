// Package daemon implements the long-running enforcement daemon.
package daemon

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// SessionRestorer reloads a persisted session after a restart.
type SessionRestorer interface {
	Restore(ctx context.Context) error
}

// WatcherConfig holds watcher daemon configuration.
type WatcherConfig struct {
	HeartbeatInterval time.Duration // How often to update heartbeat
}

// DefaultWatcherConfig returns default watcher configuration.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		HeartbeatInterval: 30 * time.Second,
	}
}

// Watcher is the main enforcement daemon.
// It restores any interrupted session, trims history, then evaluates every
// navigation the browser reports until its context is canceled.
type Watcher struct {
	config         WatcherConfig
	restorer       SessionRestorer
	archiver       domain.Archiver
	enforcer       domain.Enforcer
	host           domain.BrowserHost
	store          domain.SessionStore
	processManager domain.ProcessManager
	clock          clock.WithTicker
	logger         *zap.Logger
}

// NewWatcher creates a new watcher daemon.
func NewWatcher(
	config WatcherConfig,
	restorer SessionRestorer,
	archiver domain.Archiver,
	enforcer domain.Enforcer,
	host domain.BrowserHost,
	store domain.SessionStore,
	pm domain.ProcessManager,
	clk clock.WithTicker,
	logger *zap.Logger,
) *Watcher {
	return &Watcher{
		config:         config,
		restorer:       restorer,
		archiver:       archiver,
		enforcer:       enforcer,
		host:           host,
		store:          store,
		processManager: pm,
		clock:          clk,
		logger:         logger,
	}
}

// Run starts the watcher daemon loop.
// This blocks until context is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	pid := w.processManager.GetCurrentPID()
	if err := w.store.Set(ctx, map[string]any{
		domain.KeyDaemonPID: pid,
		domain.KeyHeartbeat: w.clock.Now().Unix(),
	}); err != nil {
		w.logger.Error("failed to register daemon", zap.Error(err))
		return err
	}
	defer w.unregister()

	w.logger.Info("watcher daemon started", zap.Int("pid", pid))

	// History written by an older build may exceed the cap.
	if err := w.archiver.Trim(ctx); err != nil {
		w.logger.Warn("failed to trim history", zap.Error(err))
	}
	if err := w.restorer.Restore(ctx); err != nil {
		w.logger.Error("failed to restore session", zap.Error(err))
	}

	navigations, err := w.host.Navigations(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to navigations: %w", err)
	}

	heartbeatTicker := w.clock.NewTicker(w.config.HeartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher daemon stopping")
			return ctx.Err()

		case nav, ok := <-navigations:
			if !ok {
				w.logger.Warn("navigation stream closed, enforcement paused")
				navigations = nil
				continue
			}
			w.runEnforcement(ctx, nav)

		case <-heartbeatTicker.C():
			if err := w.store.Set(ctx, map[string]any{domain.KeyHeartbeat: w.clock.Now().Unix()}); err != nil {
				w.logger.Warn("failed to update heartbeat", zap.Error(err))
			}
		}
	}
}

// runEnforcement evaluates a single navigation.
func (w *Watcher) runEnforcement(ctx context.Context, nav domain.Navigation) {
	result, err := w.enforcer.Enforce(ctx, nav)
	if err != nil {
		w.logger.Error("enforcement failed",
			zap.String("tab", nav.TabID),
			zap.String("url", nav.URL),
			zap.Error(err))
		return
	}

	if result.Verdict == domain.VerdictBlocked {
		w.logger.Debug("enforcement completed",
			zap.String("domain", result.Domain),
			zap.String("tier", result.Tier.String()),
			zap.Int64("duration_ms", result.DurationMs))
	}
}

func (w *Watcher) unregister() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.store.Remove(ctx, domain.KeyDaemonPID); err != nil {
		w.logger.Warn("failed to unregister daemon", zap.Error(err))
	}
}

// RunningDaemon reports the PID of a live daemon registered in store.
func RunningDaemon(ctx context.Context, store domain.SessionStore, pm domain.ProcessManager) (int, bool) {
	var pid int
	found, err := store.Get(ctx, domain.KeyDaemonPID, &pid)
	if err != nil || !found || pid <= 0 {
		return 0, false
	}
	if pid == pm.GetCurrentPID() || !pm.IsRunning(pid) {
		return 0, false
	}
	return pid, true
}
