package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// DefaultDisplayName is used in block notices when no name is set.
const DefaultDisplayName = "User"

// persistedSession mirrors the store layout for one session.
type persistedSession struct {
	TrackingURLs []string
	TimeLimitMs  int64
	StartTimeMs  int64
	IsTracking   bool
	ElapsedMs    int64
	Current      *domain.SessionRecord
}

// writeSession stores the full active state in one Set call.
// Every write is a total snapshot so a lost write can't leave a half-updated session.
func writeSession(ctx context.Context, store domain.SessionStore, state domain.SessionState, draft *domain.SessionRecord) error {
	if state.Policy == nil {
		return fmt.Errorf("write session: missing policy")
	}
	return store.Set(ctx, map[string]any{
		domain.KeyTrackingURLs:   state.Policy.AllowedDomains,
		domain.KeyTimeLimit:      state.Policy.TimeLimit.Milliseconds(),
		domain.KeyStartTime:      state.StartTime.UnixMilli(),
		domain.KeyIsTracking:     true,
		domain.KeyElapsedTime:    state.Elapsed.Milliseconds(),
		domain.KeyCurrentSession: draft,
	})
}

// clearSession resets the store to the idle layout.
func clearSession(ctx context.Context, store domain.SessionStore) error {
	if err := store.Set(ctx, map[string]any{
		domain.KeyTrackingURLs: nil,
		domain.KeyTimeLimit:    nil,
		domain.KeyStartTime:    nil,
		domain.KeyIsTracking:   false,
		domain.KeyElapsedTime:  int64(0),
	}); err != nil {
		return err
	}
	return store.Remove(ctx, domain.KeyCurrentSession)
}

// readSession loads whatever session layout is persisted.
func readSession(ctx context.Context, store domain.SessionStore) (*persistedSession, error) {
	p := &persistedSession{}
	reads := []struct {
		key string
		dst any
	}{
		{domain.KeyIsTracking, &p.IsTracking},
		{domain.KeyTrackingURLs, &p.TrackingURLs},
		{domain.KeyTimeLimit, &p.TimeLimitMs},
		{domain.KeyStartTime, &p.StartTimeMs},
		{domain.KeyElapsedTime, &p.ElapsedMs},
		{domain.KeyCurrentSession, &p.Current},
	}
	for _, r := range reads {
		if _, err := store.Get(ctx, r.key, r.dst); err != nil {
			return nil, fmt.Errorf("read %s: %w", r.key, err)
		}
	}
	return p, nil
}

// readHistory returns the stored history, empty if none.
func readHistory(ctx context.Context, store domain.SessionStore) ([]domain.SessionRecord, error) {
	var sessions []domain.SessionRecord
	if _, err := store.Get(ctx, domain.KeySessions, &sessions); err != nil {
		return nil, fmt.Errorf("read %s: %w", domain.KeySessions, err)
	}
	return sessions, nil
}

// readDisplayName returns the stored user name or the default.
func readDisplayName(ctx context.Context, store domain.SessionStore) string {
	var name string
	found, err := store.Get(ctx, domain.KeyUserName, &name)
	if err != nil || !found || name == "" {
		return DefaultDisplayName
	}
	return name
}

func millis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
