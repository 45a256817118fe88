package usecase

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

func finishedRecord(i int) domain.SessionRecord {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Hour)
	end := start.Add(25 * time.Minute)
	return domain.SessionRecord{
		ID:             fmt.Sprintf("s-%02d", i),
		AllowedDomains: []string{"example.com"},
		Duration:       25,
		StartTime:      start,
		EndTime:        &end,
		Completed:      i%2 == 0,
		ActualDuration: 20,
		Tasks:          []domain.Task{},
	}
}

func TestArchiver_CapsHistory(t *testing.T) {
	ctx := context.Background()
	a := NewArchiver(newMockStore(), 0, nil, zap.NewNop())

	for i := 0; i < DefaultHistoryLimit+5; i++ {
		require.NoError(t, a.Archive(ctx, finishedRecord(i)))
	}

	history, err := a.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, DefaultHistoryLimit)
	assert.Equal(t, "s-05", history[0].ID, "oldest entries are dropped first")
	assert.Equal(t, fmt.Sprintf("s-%02d", DefaultHistoryLimit+4), history[len(history)-1].ID)
}

func TestArchiver_RejectsDraft(t *testing.T) {
	a := NewArchiver(newMockStore(), 10, nil, zap.NewNop())

	rec := finishedRecord(1)
	rec.EndTime = nil
	assert.Error(t, a.Archive(context.Background(), rec))

	history, err := a.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestArchiver_TrimOversizedStore(t *testing.T) {
	ctx := context.Background()
	store := newMockStore()

	var seeded []domain.SessionRecord
	for i := 0; i < 60; i++ {
		seeded = append(seeded, finishedRecord(i))
	}
	require.NoError(t, store.Set(ctx, map[string]any{domain.KeySessions: seeded}))

	a := NewArchiver(store, DefaultHistoryLimit, nil, zap.NewNop())
	require.NoError(t, a.Trim(ctx))

	history, err := a.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 50)
	assert.Equal(t, "s-10", history[0].ID)
}

func TestArchiver_StoreFailure(t *testing.T) {
	store := newMockStore()
	store.failSets(fmt.Errorf("read-only"))
	a := NewArchiver(store, 5, nil, zap.NewNop())

	err := a.Archive(context.Background(), finishedRecord(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), domain.KeySessions)
}

func TestArchiver_SameSessionArchivedOnce(t *testing.T) {
	store := newMockStore()
	a := NewArchiver(store, 5, nil, zap.NewNop())
	ctx := context.Background()

	stopped := finishedRecord(1)
	stopped.Completed = false
	require.NoError(t, a.Archive(ctx, stopped))

	expired := finishedRecord(1)
	expired.Completed = true
	require.NoError(t, a.Archive(ctx, expired))

	history, err := a.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Completed, "the first finalization wins")
}
