package infra

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// StoreIndicator publishes the badge through the session store so the CLI
// and any other reader of the store can render it.
type StoreIndicator struct {
	store  domain.SessionStore
	logger *zap.Logger
}

// NewStoreIndicator creates a store-backed status indicator.
func NewStoreIndicator(store domain.SessionStore, logger *zap.Logger) *StoreIndicator {
	return &StoreIndicator{store: store, logger: logger}
}

// Show records badge as the current indicator text.
func (i *StoreIndicator) Show(ctx context.Context, badge domain.Badge) error {
	if err := i.store.Set(ctx, map[string]any{domain.KeyBadge: badge}); err != nil {
		return fmt.Errorf("write badge: %w", err)
	}
	i.logger.Debug("badge updated", zap.String("badge", string(badge)))
	return nil
}

// Ensure StoreIndicator implements domain.StatusIndicator.
var _ domain.StatusIndicator = (*StoreIndicator)(nil)
