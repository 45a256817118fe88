// Package policy decides which navigation targets a focus session permits.
// Domains on both sides of every comparison go through Normalize first.
package policy

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

const (
	defaultScheme = "https://"
	wwwLabel      = "www."
)

// Normalize canonicalizes a URL or bare host into a comparable domain token.
// It never fails: input that doesn't parse as a URL is returned lowercased
// with any leading "www." labels removed.
//
// Parsing decodes percent-escapes in the host, so a single pass over an
// escaped host can yield a token that decodes further. Normalize repeats
// until the token is stable, which makes it idempotent. Every pass that
// changes the token removes an escape or shortens it, so the loop ends.
func Normalize(input string) string {
	token := normalizeOnce(input)
	for {
		next := normalizeOnce(token)
		if next == token {
			return token
		}
		token = next
	}
}

func normalizeOnce(input string) string {
	raw := strings.TrimSpace(input)
	candidate := raw
	if !strings.Contains(candidate, "://") {
		candidate = defaultScheme + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Hostname() == "" {
		return stripWWW(strings.ToLower(raw))
	}

	host := stripWWW(strings.ToLower(u.Hostname()))
	if strings.Contains(host, ":") {
		// IPv6 literal; keep it parseable for the next round.
		host = "[" + host + "]"
	}
	return host
}

func stripWWW(s string) string {
	for strings.HasPrefix(s, wwwLabel) {
		s = s[len(wwwLabel):]
	}
	return s
}

// New validates and normalizes a session policy.
// Empty and duplicate domains are dropped; input order is kept.
func New(domains []string, limit time.Duration) (domain.Policy, error) {
	allowed := NewAllowList(domains).Domains()
	if len(allowed) == 0 {
		return domain.Policy{}, fmt.Errorf("%w: at least one allowed domain is required", domain.ErrInvalidPolicy)
	}
	if limit <= 0 {
		return domain.Policy{}, fmt.Errorf("%w: time limit must be positive, got %s", domain.ErrInvalidPolicy, limit)
	}
	return domain.Policy{AllowedDomains: allowed, TimeLimit: limit}, nil
}
