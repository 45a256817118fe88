package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// ControllerConfig holds session controller configuration.
type ControllerConfig struct {
	TickInterval       time.Duration // Elapsed time credited per attended tick
	BadgeDoneWindow    time.Duration // How long "Done" stays visible after a timeout
	OpenCompletionPage bool          // Open CompletionURL in a new tab on timeout
	CompletionURL      string
}

// DefaultControllerConfig returns default controller configuration.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		TickInterval:    time.Second,
		BadgeDoneWindow: 5 * time.Second,
	}
}

// Controller owns the session lifecycle: Idle -> Active -> Completing -> Idle.
// All state mutation happens under mu, which also makes every
// finalize-and-archive sequence run at most once per session.
// The store is a write-through copy of the in-memory state.
type Controller struct {
	mu     sync.Mutex
	state  domain.SessionState
	draft  *domain.SessionRecord
	allow  policy.AllowList
	badge  domain.Badge
	doneAt clock.Timer

	config    ControllerConfig
	store     domain.SessionStore
	scheduler domain.Scheduler
	archiver  domain.Archiver
	indicator domain.StatusIndicator
	host      domain.BrowserHost
	clock     clock.WithDelayedExecution
	metrics   domain.Metrics
	logger    *zap.Logger
}

// NewController creates a session controller. host may be nil when no
// completion page is opened.
func NewController(
	config ControllerConfig,
	store domain.SessionStore,
	scheduler domain.Scheduler,
	archiver domain.Archiver,
	indicator domain.StatusIndicator,
	host domain.BrowserHost,
	clk clock.WithDelayedExecution,
	metrics domain.Metrics,
	logger *zap.Logger,
) *Controller {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Controller{
		state:     domain.SessionState{Status: domain.StatusIdle},
		config:    config,
		store:     store,
		scheduler: scheduler,
		archiver:  archiver,
		indicator: indicator,
		host:      host,
		clock:     clk,
		metrics:   metrics,
		logger:    logger,
	}
}

// Start begins a session. Only valid from Idle.
func (c *Controller) Start(ctx context.Context, domains []string, timeLimit time.Duration) (domain.SessionRecord, error) {
	p, err := policy.New(domains, timeLimit)
	if err != nil {
		return domain.SessionRecord{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != domain.StatusIdle {
		return domain.SessionRecord{}, domain.ErrSessionActive
	}

	now := c.clock.Now()
	draft := &domain.SessionRecord{
		ID:             uuid.NewString(),
		AllowedDomains: append([]string(nil), p.AllowedDomains...),
		Duration:       ceilMinutes(p.TimeLimit),
		StartTime:      now,
		Tasks:          []domain.Task{},
	}
	state := domain.SessionState{
		Status:    domain.StatusActive,
		SessionID: draft.ID,
		Policy:    &p,
		StartTime: now,
	}

	// Nothing is armed until the store has accepted the session.
	if err := writeSession(ctx, c.store, state, draft); err != nil {
		return domain.SessionRecord{}, fmt.Errorf("persist session: %w", err)
	}

	c.state = state
	c.draft = draft
	c.allow = policy.NewAllowList(p.AllowedDomains)
	c.scheduler.Arm(draft.ID, p.TimeLimit)
	c.cancelDoneBadge()
	c.showBadge(ctx, domain.BadgeActive)

	c.logger.Info("session started",
		zap.String("session", draft.ID),
		zap.Strings("allowed", p.AllowedDomains),
		zap.Duration("limit", p.TimeLimit))

	return draft.Clone(), nil
}

// Stop ends the active session as not completed. Stopping while idle is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	return c.finalize(ctx, "", false)
}

// Expire ends the session as completed. Stale session IDs are ignored.
func (c *Controller) Expire(ctx context.Context, sessionID string) error {
	return c.finalize(ctx, sessionID, true)
}

// Tick credits one tick interval when the focused tab is on the allow-list.
func (c *Controller) Tick(ctx context.Context, sessionID string, focused *domain.Target) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != domain.StatusActive || sessionID != c.state.SessionID {
		return nil
	}
	if focused == nil || !c.allow.Allows(focused.URL) {
		c.metrics.TickSkipped()
		return nil
	}

	limit := c.state.Policy.TimeLimit
	if c.state.Elapsed >= limit {
		return nil
	}
	c.state.Elapsed = min(c.state.Elapsed+c.config.TickInterval, limit)
	c.metrics.TickCounted()

	if err := writeSession(ctx, c.store, c.state, c.draft); err != nil {
		// Memory stays authoritative; the next full snapshot repairs the store.
		return fmt.Errorf("persist elapsed time: %w", err)
	}
	return nil
}

// finalize closes the draft record and returns to Idle.
// sessionID "" targets whatever session is active.
func (c *Controller) finalize(ctx context.Context, sessionID string, completed bool) error {
	// A finalization that has begun must reach the store even if the caller
	// goes away, or a restart would resume a session already in history.
	ctx = context.WithoutCancel(ctx)

	finished, err := c.finishLocked(ctx, sessionID, completed)
	if finished && completed {
		c.openCompletionPage(ctx)
	}
	return err
}

// finishLocked performs the state transition under mu and reports whether
// a session was actually finished.
func (c *Controller) finishLocked(ctx context.Context, sessionID string, completed bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != domain.StatusActive {
		return false, nil
	}
	if sessionID != "" && sessionID != c.state.SessionID {
		c.logger.Debug("ignoring stale expiry", zap.String("session", sessionID))
		return false, nil
	}

	c.state.Status = domain.StatusCompleting
	c.scheduler.Disarm()

	now := c.clock.Now()
	record := c.draft.Clone()
	record.EndTime = &now
	record.Completed = completed
	record.ActualDuration = int(c.state.Elapsed / time.Minute)

	var merr *multierror.Error
	if err := c.archiver.Archive(ctx, record); err != nil {
		c.logger.Error("failed to archive session",
			zap.String("session", record.ID),
			zap.Error(err))
		merr = multierror.Append(merr, fmt.Errorf("archive session: %w", err))
	}
	if err := clearSession(ctx, c.store); err != nil {
		c.logger.Error("failed to clear persisted session",
			zap.String("session", record.ID),
			zap.Error(err))
		merr = multierror.Append(merr, fmt.Errorf("clear persisted session: %w", err))
	}

	c.state = domain.SessionState{Status: domain.StatusIdle}
	c.draft = nil
	c.allow = policy.AllowList{}

	if completed {
		c.flashDoneBadge(ctx)
	} else {
		c.showBadge(ctx, domain.BadgeIdle)
	}

	c.logger.Info("session finished",
		zap.String("session", record.ID),
		zap.Bool("completed", completed),
		zap.Int("actual_minutes", record.ActualDuration))

	return true, merr.ErrorOrNil()
}

// Restore reloads a persisted active session after a restart and re-arms
// its timers for the remaining wall-clock window.
func (c *Controller) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != domain.StatusIdle {
		return nil
	}

	saved, err := readSession(ctx, c.store)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !saved.IsTracking {
		c.showBadge(ctx, domain.BadgeIdle)
		return nil
	}

	p, err := policy.New(saved.TrackingURLs, millis(saved.TimeLimitMs))
	if err != nil || saved.Current == nil {
		c.logger.Warn("discarding inconsistent persisted session", zap.Error(err))
		return clearSession(ctx, c.store)
	}

	// The session was finalized but the store was never reset.
	history, err := c.archiver.History(ctx)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if containsSession(history, saved.Current.ID) {
		c.logger.Warn("discarding persisted session that is already archived",
			zap.String("session", saved.Current.ID))
		c.showBadge(ctx, domain.BadgeIdle)
		return clearSession(ctx, c.store)
	}

	start := time.UnixMilli(saved.StartTimeMs)
	elapsed := min(max(millis(saved.ElapsedMs), 0), p.TimeLimit)
	draft := saved.Current
	if draft.Tasks == nil {
		draft.Tasks = []domain.Task{}
	}

	c.state = domain.SessionState{
		Status:    domain.StatusActive,
		SessionID: draft.ID,
		Policy:    &p,
		StartTime: start,
		Elapsed:   elapsed,
	}
	c.draft = draft
	c.allow = policy.NewAllowList(p.AllowedDomains)

	remaining := max(start.Add(p.TimeLimit).Sub(c.clock.Now()), 0)
	c.scheduler.Arm(draft.ID, remaining)
	c.showBadge(ctx, domain.BadgeActive)

	c.logger.Info("session restored",
		zap.String("session", draft.ID),
		zap.Duration("elapsed", elapsed),
		zap.Duration("remaining", remaining))
	return nil
}

// ActivePolicy returns a copy of the active policy.
func (c *Controller) ActivePolicy() (domain.Policy, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != domain.StatusActive || c.state.Policy == nil {
		return domain.Policy{}, false
	}
	return domain.Policy{
		AllowedDomains: append([]string(nil), c.state.Policy.AllowedDomains...),
		TimeLimit:      c.state.Policy.TimeLimit,
	}, true
}

// Snapshot returns the current state for display.
func (c *Controller) Snapshot() domain.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := domain.SessionSnapshot{
		Status:         c.state.Status,
		SessionID:      c.state.SessionID,
		AllowedDomains: []string{},
		Badge:          c.badge,
	}
	if c.state.Policy != nil {
		start := c.state.StartTime
		snap.AllowedDomains = append(snap.AllowedDomains, c.state.Policy.AllowedDomains...)
		snap.TimeLimitMs = c.state.Policy.TimeLimit.Milliseconds()
		snap.ElapsedMs = c.state.Elapsed.Milliseconds()
		snap.RemainingMs = max(snap.TimeLimitMs-snap.ElapsedMs, 0)
		snap.StartTime = &start
	}
	return snap
}

// CurrentSession returns a copy of the in-progress record, or nil when idle.
func (c *Controller) CurrentSession() *domain.SessionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.draft == nil {
		return nil
	}
	rec := c.draft.Clone()
	return &rec
}

// SessionData returns the in-progress record and the archived history.
func (c *Controller) SessionData(ctx context.Context) (*domain.SessionRecord, []domain.SessionRecord, error) {
	current := c.CurrentSession()
	history, err := c.archiver.History(ctx)
	if err != nil {
		return current, nil, err
	}
	return current, history, nil
}

// AddTask appends a task to the active session.
func (c *Controller) AddTask(ctx context.Context, text string) (domain.Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Task{}, domain.ErrEmptyTask
	}

	var task domain.Task
	err := c.mutateDraft(ctx, func(rec *domain.SessionRecord, now time.Time) error {
		task = domain.Task{
			ID:        uuid.NewString(),
			Text:      text,
			CreatedAt: now,
		}
		rec.Tasks = append(rec.Tasks, task)
		return nil
	})
	return task, err
}

// ToggleTask flips a task's completion, stamping or clearing CompletedAt.
func (c *Controller) ToggleTask(ctx context.Context, id string) (domain.Task, error) {
	var task domain.Task
	err := c.mutateDraft(ctx, func(rec *domain.SessionRecord, now time.Time) error {
		for i := range rec.Tasks {
			if rec.Tasks[i].ID != id {
				continue
			}
			t := &rec.Tasks[i]
			t.Completed = !t.Completed
			if t.Completed {
				t.CompletedAt = &now
			} else {
				t.CompletedAt = nil
			}
			task = *t
			return nil
		}
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	})
	return task, err
}

// RemoveTask deletes a task from the active session.
func (c *Controller) RemoveTask(ctx context.Context, id string) error {
	return c.mutateDraft(ctx, func(rec *domain.SessionRecord, _ time.Time) error {
		for i := range rec.Tasks {
			if rec.Tasks[i].ID == id {
				rec.Tasks = append(rec.Tasks[:i], rec.Tasks[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	})
}

// mutateDraft applies fn to a copy of the draft and commits it only if
// both fn and the store write succeed.
func (c *Controller) mutateDraft(ctx context.Context, fn func(rec *domain.SessionRecord, now time.Time) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != domain.StatusActive || c.draft == nil {
		return domain.ErrNoSession
	}

	now := c.clock.Now()
	next := c.draft.Clone()
	if err := fn(&next, now); err != nil {
		return err
	}
	next.LastUpdated = &now

	if err := writeSession(ctx, c.store, c.state, &next); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	c.draft = &next
	return nil
}

// SetDisplayName stores the name shown on block notices.
func (c *Controller) SetDisplayName(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultDisplayName
	}
	if err := c.store.Set(ctx, map[string]any{domain.KeyUserName: name}); err != nil {
		return fmt.Errorf("persist display name: %w", err)
	}
	return nil
}

// DisplayName returns the stored display name.
func (c *Controller) DisplayName(ctx context.Context) string {
	return readDisplayName(ctx, c.store)
}

func (c *Controller) showBadge(ctx context.Context, badge domain.Badge) {
	c.badge = badge
	if err := c.indicator.Show(ctx, badge); err != nil {
		c.logger.Warn("failed to update status indicator",
			zap.String("badge", string(badge)),
			zap.Error(err))
	}
}

// flashDoneBadge shows "Done" and clears it after the display window
// unless a new session has started by then.
func (c *Controller) flashDoneBadge(ctx context.Context) {
	c.cancelDoneBadge()
	c.showBadge(ctx, domain.BadgeDone)
	c.doneAt = c.clock.AfterFunc(c.config.BadgeDoneWindow, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state.Status == domain.StatusIdle && c.badge == domain.BadgeDone {
			c.showBadge(context.Background(), domain.BadgeIdle)
		}
	})
}

func (c *Controller) cancelDoneBadge() {
	if c.doneAt != nil {
		c.doneAt.Stop()
		c.doneAt = nil
	}
}

func (c *Controller) openCompletionPage(ctx context.Context) {
	if !c.config.OpenCompletionPage || c.host == nil || c.config.CompletionURL == "" {
		return
	}
	if err := c.host.OpenTab(ctx, c.config.CompletionURL); err != nil {
		c.logger.Warn("failed to open completion page", zap.Error(err))
	}
}

func ceilMinutes(d time.Duration) int {
	return int((d + time.Minute - 1) / time.Minute)
}

// Ensure Controller implements the interfaces the daemon wires it into.
var (
	_ domain.TickHandler    = (*Controller)(nil)
	_ domain.PolicyProvider = (*Controller)(nil)
)
