package daemon

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// SchedulerConfig holds tick scheduler configuration.
type SchedulerConfig struct {
	TickInterval time.Duration // Period of the repeating wake-up
	FocusTimeout time.Duration // Bound on the focused-tab query per tick
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TickInterval: time.Second,
		FocusTimeout: 500 * time.Millisecond,
	}
}

// Scheduler drives one session at a time with a repeating tick and a
// one-shot expiry. Each wake-up samples the focused tab from the host and
// hands it to the bound handler.
type Scheduler struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	handler domain.TickHandler

	config SchedulerConfig
	host   domain.BrowserHost
	clock  clock.WithTicker
	logger *zap.Logger
}

// NewScheduler creates a scheduler. Bind must be called before Arm.
func NewScheduler(config SchedulerConfig, host domain.BrowserHost, clk clock.WithTicker, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config: config,
		host:   host,
		clock:  clk,
		logger: logger,
	}
}

// Bind sets the receiver of tick and expire events.
func (s *Scheduler) Bind(handler domain.TickHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

// Arm clears any pending timers and starts new ones for sessionID.
// A non-positive remaining duration expires on the first wake-up.
func (s *Scheduler) Arm(sessionID string, remaining time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.disarmLocked()
	if s.handler == nil {
		s.logger.Error("scheduler armed without a handler", zap.String("session", sessionID))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	ticker := s.clock.NewTicker(s.config.TickInterval)
	expiry := s.clock.NewTimer(max(remaining, 0))

	go s.run(ctx, sessionID, s.handler, ticker, expiry)

	s.logger.Debug("scheduler armed",
		zap.String("session", sessionID),
		zap.Duration("remaining", remaining))
}

// Disarm stops pending timers. It does not wait for an in-flight wake-up;
// handlers reject events for sessions that are no longer active.
func (s *Scheduler) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disarmLocked()
}

func (s *Scheduler) disarmLocked() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Scheduler) run(ctx context.Context, sessionID string, handler domain.TickHandler, ticker clock.Ticker, expiry clock.Timer) {
	defer ticker.Stop()
	defer expiry.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-expiry.C():
			if ctx.Err() != nil {
				return
			}
			// Finalization disarms this scheduler, which cancels ctx.
			if err := handler.Expire(context.WithoutCancel(ctx), sessionID); err != nil {
				s.logger.Error("session expiry failed",
					zap.String("session", sessionID),
					zap.Error(err))
			}
			return

		case <-ticker.C():
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx, sessionID, handler)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, sessionID string, handler domain.TickHandler) {
	focusCtx, cancel := context.WithTimeout(ctx, s.config.FocusTimeout)
	focused, err := s.host.FocusedTarget(focusCtx)
	cancel()
	if err != nil {
		// An unreachable browser counts as nobody paying attention.
		s.logger.Debug("focused tab unavailable", zap.Error(err))
		focused = nil
	}

	if err := handler.Tick(ctx, sessionID, focused); err != nil {
		s.logger.Warn("tick failed",
			zap.String("session", sessionID),
			zap.Error(err))
	}
}

// Ensure Scheduler implements domain.Scheduler.
var _ domain.Scheduler = (*Scheduler)(nil)
