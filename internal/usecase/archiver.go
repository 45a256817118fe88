package usecase

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// DefaultHistoryLimit is how many concluded sessions are kept.
const DefaultHistoryLimit = 50

// Archiver implements domain.Archiver over the session store.
type Archiver struct {
	mu      sync.Mutex
	store   domain.SessionStore
	limit   int
	metrics domain.Metrics
	logger  *zap.Logger
}

// NewArchiver creates a history archiver. A limit <= 0 uses DefaultHistoryLimit.
func NewArchiver(store domain.SessionStore, limit int, metrics domain.Metrics, logger *zap.Logger) *Archiver {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Archiver{
		store:   store,
		limit:   limit,
		metrics: metrics,
		logger:  logger,
	}
}

// Archive appends a finalized record, then trims the oldest entries.
// A record whose ID is already in the history is not appended again.
func (a *Archiver) Archive(ctx context.Context, record domain.SessionRecord) error {
	if !record.Finalized() {
		return fmt.Errorf("archive session %s: record is not finalized", record.ID)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	history, err := readHistory(ctx, a.store)
	if err != nil {
		return err
	}
	if containsSession(history, record.ID) {
		a.logger.Warn("session already archived", zap.String("session", record.ID))
		return nil
	}

	history = trimHistory(append(history, record.Clone()), a.limit)
	if err := a.store.Set(ctx, map[string]any{domain.KeySessions: history}); err != nil {
		return fmt.Errorf("write %s: %w", domain.KeySessions, err)
	}

	a.metrics.SessionArchived(record.Completed)
	a.logger.Info("session archived",
		zap.String("session", record.ID),
		zap.Bool("completed", record.Completed),
		zap.Int("actual_minutes", record.ActualDuration),
		zap.Int("history_len", len(history)))
	return nil
}

// Trim enforces the cap on whatever history is already stored.
func (a *Archiver) Trim(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	history, err := readHistory(ctx, a.store)
	if err != nil {
		return err
	}
	if len(history) <= a.limit {
		return nil
	}

	trimmed := trimHistory(history, a.limit)
	if err := a.store.Set(ctx, map[string]any{domain.KeySessions: trimmed}); err != nil {
		return fmt.Errorf("write %s: %w", domain.KeySessions, err)
	}
	a.logger.Info("history trimmed",
		zap.Int("from", len(history)),
		zap.Int("to", len(trimmed)))
	return nil
}

// History returns the archived sessions, oldest first.
func (a *Archiver) History(ctx context.Context) ([]domain.SessionRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	history, err := readHistory(ctx, a.store)
	if err != nil {
		return nil, err
	}
	if history == nil {
		history = []domain.SessionRecord{}
	}
	return history, nil
}

func containsSession(history []domain.SessionRecord, id string) bool {
	for _, rec := range history {
		if rec.ID == id {
			return true
		}
	}
	return false
}

// trimHistory keeps the newest limit entries.
func trimHistory(history []domain.SessionRecord, limit int) []domain.SessionRecord {
	if len(history) <= limit {
		return history
	}
	out := make([]domain.SessionRecord, limit)
	copy(out, history[len(history)-limit:])
	return out
}

// Ensure Archiver implements domain.Archiver.
var _ domain.Archiver = (*Archiver)(nil)
