package policy

import "strings"

// browserInternalPrefixes are browser-owned addresses that are never blocked.
var browserInternalPrefixes = []string{
	"chrome://",
	"chrome-extension://",
	"chrome-untrusted://",
	"devtools://",
	"edge://",
	"moz-extension://",
	"about:",
}

// AllowList is a normalized set of permitted domains.
type AllowList struct {
	set     map[string]struct{}
	ordered []string
}

// NewAllowList normalizes domains into a set.
func NewAllowList(domains []string) AllowList {
	a := AllowList{set: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		n := Normalize(d)
		if n == "" {
			continue
		}
		if _, dup := a.set[n]; dup {
			continue
		}
		a.set[n] = struct{}{}
		a.ordered = append(a.ordered, n)
	}
	return a
}

// Allows reports whether target (a URL or domain) is on the list.
func (a AllowList) Allows(target string) bool {
	_, ok := a.set[Normalize(target)]
	return ok
}

// Domains returns the normalized domains in insertion order.
func (a AllowList) Domains() []string {
	return append([]string(nil), a.ordered...)
}

// IsAllowed is a one-shot membership test.
func IsAllowed(currentDomain string, allowedDomains []string) bool {
	return NewAllowList(allowedDomains).Allows(currentDomain)
}

// Matcher knows which addresses belong to the browser or to webmon itself.
// Those are exempt from enforcement so the blocked page and browser UI stay reachable.
type Matcher struct {
	internalOrigins []string
}

// NewMatcher creates a matcher. internalOrigins are webmon's own origins,
// e.g. "http://127.0.0.1:7717".
func NewMatcher(internalOrigins ...string) *Matcher {
	origins := make([]string, 0, len(internalOrigins))
	for _, o := range internalOrigins {
		o = strings.TrimRight(strings.ToLower(strings.TrimSpace(o)), "/")
		if o != "" {
			origins = append(origins, o)
		}
	}
	return &Matcher{internalOrigins: origins}
}

// IsExempt reports whether rawURL must never be blocked.
func (m *Matcher) IsExempt(rawURL string) bool {
	u := strings.ToLower(strings.TrimSpace(rawURL))
	for _, p := range browserInternalPrefixes {
		if strings.HasPrefix(u, p) {
			return true
		}
	}
	for _, o := range m.internalOrigins {
		if u == o || strings.HasPrefix(u, o+"/") || strings.HasPrefix(u, o+"?") {
			return true
		}
	}
	return false
}

// Permits combines the exemption and allow-list checks.
func (m *Matcher) Permits(rawURL string, allowed AllowList) bool {
	return m.IsExempt(rawURL) || allowed.Allows(rawURL)
}
