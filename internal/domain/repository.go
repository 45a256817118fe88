package domain

import (
	"context"
	"time"
)

// Persisted state layout. Values are JSON encoded by the store.
const (
	KeyTrackingURLs   = "trackingUrls"   // []string
	KeyTimeLimit      = "timeLimit"      // int64 ms
	KeyStartTime      = "startTime"      // int64 epoch ms
	KeyIsTracking     = "isTracking"     // bool
	KeyElapsedTime    = "elapsedTime"    // int64 ms
	KeyCurrentSession = "currentSession" // SessionRecord or null
	KeySessions       = "sessions"       // []SessionRecord, capped
	KeyUserName       = "userName"       // string
	KeyBadge          = "badge"          // Badge
	KeyDaemonPID      = "daemonPid"      // int
	KeyHeartbeat      = "heartbeat"      // int64 epoch seconds
)

// SessionStore is durable key/value persistence.
// Writes are last-writer-wins; there are no transactions.
// Implementations: SQLCipher database, JSON file.
type SessionStore interface {
	// Get decodes the value at key into dst. Returns false if the key is absent.
	Get(ctx context.Context, key string, dst any) (bool, error)

	// Set writes every entry. A nil value stores JSON null.
	Set(ctx context.Context, entries map[string]any) error

	// Remove deletes keys. Missing keys are ignored.
	Remove(ctx context.Context, keys ...string) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// BrowserHost is the browser the engine enforces against.
// Implementation: go-rod over the DevTools protocol.
type BrowserHost interface {
	// FocusedTarget returns the tab the user is attending, or nil if none.
	FocusedTarget(ctx context.Context) (*Target, error)

	// SendBlock delivers the interception message to a tab.
	// Returns ErrNoReceiver when the tab has no interceptor loaded.
	SendBlock(ctx context.Context, tabID string, msg BlockMessage) error

	// InjectInterceptor loads the interception capability into a tab.
	InjectInterceptor(ctx context.Context, tabID string) error

	// Redirect force-navigates a tab.
	Redirect(ctx context.Context, tabID, url string) error

	// OpenTab opens url in a new tab.
	OpenTab(ctx context.Context, url string) error

	// Navigations streams navigation-start events until ctx is done.
	Navigations(ctx context.Context) (<-chan Navigation, error)
}

// StatusIndicator is the visible badge surface.
type StatusIndicator interface {
	Show(ctx context.Context, badge Badge) error
}

// TickHandler receives scheduler wake-ups.
type TickHandler interface {
	// Tick is delivered on every repeating wake-up with the focused tab (nil if none).
	Tick(ctx context.Context, sessionID string, focused *Target) error

	// Expire is delivered once when the session deadline passes.
	Expire(ctx context.Context, sessionID string) error
}

// Scheduler arms the tick and expire timers for one session at a time.
// Arm and Disarm are idempotent: arming clears any timers already pending.
type Scheduler interface {
	Arm(sessionID string, remaining time.Duration)
	Disarm()
}

// Archiver appends finalized sessions to the bounded history.
type Archiver interface {
	Archive(ctx context.Context, record SessionRecord) error
	Trim(ctx context.Context) error
	History(ctx context.Context) ([]SessionRecord, error)
}

// PolicyProvider exposes the active policy to the enforcement gate.
type PolicyProvider interface {
	ActivePolicy() (Policy, bool)
}

// Enforcer evaluates a navigation and blocks it when it violates the policy.
type Enforcer interface {
	Enforce(ctx context.Context, nav Navigation) (*EnforcementResult, error)
}

// Metrics records engine counters. Implementation: Prometheus.
type Metrics interface {
	TickCounted()
	TickSkipped()
	BlockDelivered(tier Tier)
	BlockFailed()
	SessionArchived(completed bool)
}

// ProcessManager handles OS process lookups.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// FindByName returns PIDs of processes matching the pattern.
	FindByName(pattern string) ([]int, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// KeyProvider abstracts the source of the store encryption key.
type KeyProvider interface {
	// GetKey returns the encryption key bytes.
	GetKey() ([]byte, error)

	// StoreKey persists a new encryption key.
	StoreKey(key []byte) error

	// KeyExists checks if a key has been generated.
	KeyExists() bool
}
