// Package usecase contains application business logic.
package usecase

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

// EnforcerImpl implements domain.Enforcer with the cascading block protocol:
// message, then inject-and-retry, then redirect. Tiers run strictly in
// order and the first one that succeeds ends the cascade.
type EnforcerImpl struct {
	host           domain.BrowserHost
	policies       domain.PolicyProvider
	store          domain.SessionStore
	matcher        *policy.Matcher
	blockedPageURL string
	metrics        domain.Metrics
	logger         *zap.Logger
}

// NewEnforcer creates a new enforcement gate.
// blockedPageURL is the Tier 3 redirect target without a query string.
func NewEnforcer(
	host domain.BrowserHost,
	policies domain.PolicyProvider,
	store domain.SessionStore,
	matcher *policy.Matcher,
	blockedPageURL string,
	metrics domain.Metrics,
	logger *zap.Logger,
) domain.Enforcer {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &EnforcerImpl{
		host:           host,
		policies:       policies,
		store:          store,
		matcher:        matcher,
		blockedPageURL: blockedPageURL,
		metrics:        metrics,
		logger:         logger,
	}
}

// Enforce evaluates one navigation. The returned error is non-nil only
// when every tier failed; the result is always populated.
func (e *EnforcerImpl) Enforce(ctx context.Context, nav domain.Navigation) (*domain.EnforcementResult, error) {
	start := time.Now()

	result := &domain.EnforcementResult{
		TabID:      nav.TabID,
		URL:        nav.URL,
		Errors:     make([]error, 0),
		ExecutedAt: start,
	}
	defer func() {
		result.DurationMs = time.Since(start).Milliseconds()
	}()

	p, active := e.policies.ActivePolicy()
	if !active {
		result.Verdict = domain.VerdictIdle
		return result, nil
	}
	if e.matcher.IsExempt(nav.URL) {
		result.Verdict = domain.VerdictExempt
		return result, nil
	}

	result.Domain = policy.Normalize(nav.URL)
	if policy.IsAllowed(result.Domain, p.AllowedDomains) {
		result.Verdict = domain.VerdictAllowed
		e.logger.Debug("navigation allowed",
			zap.String("tab", nav.TabID),
			zap.String("domain", result.Domain))
		return result, nil
	}

	msg := domain.BlockMessage{
		Type:           domain.BlockMessageType,
		AllowedDomains: p.AllowedDomains,
		CurrentDomain:  result.Domain,
		DisplayName:    readDisplayName(ctx, e.store),
	}

	for _, tier := range domain.Tiers {
		err := e.attempt(ctx, tier, nav.TabID, msg)
		if err == nil {
			result.Verdict = domain.VerdictBlocked
			result.Tier = tier
			e.metrics.BlockDelivered(tier)
			e.logger.Info("navigation blocked",
				zap.String("tab", nav.TabID),
				zap.String("domain", result.Domain),
				zap.String("tier", tier.String()))
			return result, nil
		}

		result.Errors = append(result.Errors, err)
		e.logger.Warn("block tier failed",
			zap.String("tab", nav.TabID),
			zap.String("tier", tier.String()),
			zap.Error(err))

		if ctx.Err() != nil {
			break
		}
	}

	result.Verdict = domain.VerdictFailed
	e.metrics.BlockFailed()

	var merr *multierror.Error
	merr = multierror.Append(merr, result.Errors...)
	return result, fmt.Errorf("block %s in tab %s: %w", result.Domain, nav.TabID, merr.ErrorOrNil())
}

// attempt runs a single tier against a tab.
func (e *EnforcerImpl) attempt(ctx context.Context, tier domain.Tier, tabID string, msg domain.BlockMessage) error {
	switch tier {
	case domain.TierMessage:
		return e.host.SendBlock(ctx, tabID, msg)

	case domain.TierInject:
		if err := e.host.InjectInterceptor(ctx, tabID); err != nil {
			return fmt.Errorf("inject interceptor: %w", err)
		}
		// Exactly one retry after injection.
		return e.host.SendBlock(ctx, tabID, msg)

	case domain.TierRedirect:
		target := BlockedPageURL(e.blockedPageURL, msg.AllowedDomains, msg.CurrentDomain)
		return e.host.Redirect(ctx, tabID, target)

	default:
		return fmt.Errorf("unknown tier %d", tier)
	}
}

// BlockedPageURL builds the Tier 3 redirect target:
// base?current=<violating domain>&tracking=<comma-joined allowed domains>.
func BlockedPageURL(base string, allowed []string, current string) string {
	q := url.Values{}
	q.Set("tracking", strings.Join(allowed, ","))
	q.Set("current", current)
	return base + "?" + q.Encode()
}

// Ensure EnforcerImpl implements domain.Enforcer.
var _ domain.Enforcer = (*EnforcerImpl)(nil)
