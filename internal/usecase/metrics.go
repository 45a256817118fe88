package usecase

import "github.com/eliteGoblin/focusd/web_mon/internal/domain"

// nopMetrics is used when no recorder is wired.
type nopMetrics struct{}

func (nopMetrics) TickCounted()               {}
func (nopMetrics) TickSkipped()               {}
func (nopMetrics) BlockDelivered(domain.Tier) {}
func (nopMetrics) BlockFailed()               {}
func (nopMetrics) SessionArchived(bool)       {}
