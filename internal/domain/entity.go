// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"errors"
	"time"
)

// SessionStatus is the lifecycle position of the focus session.
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusActive     SessionStatus = "active"
	StatusCompleting SessionStatus = "completing"
)

// Sentinel errors shared across layers.
var (
	ErrSessionActive = errors.New("a focus session is already active")
	ErrNoSession     = errors.New("no active focus session")
	ErrInvalidPolicy = errors.New("invalid policy")
	ErrNoReceiver    = errors.New("no interception receiver in tab")
	ErrTaskNotFound  = errors.New("task not found")
	ErrEmptyTask     = errors.New("task text is empty")
)

// Policy is the allowed-domain set and time limit of a session.
// AllowedDomains are normalized, deduplicated and kept in input order.
type Policy struct {
	AllowedDomains []string
	TimeLimit      time.Duration
}

// SessionState is owned by the session controller.
// Elapsed never decreases while Active and never exceeds Policy.TimeLimit.
type SessionState struct {
	Status    SessionStatus
	SessionID string
	Policy    *Policy
	StartTime time.Time
	Elapsed   time.Duration
}

// Task is a to-do item attached to exactly one session.
type Task struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// SessionRecord is the durable account of one session.
// It starts as a draft when the session starts and becomes immutable
// once EndTime is set and it is appended to history.
type SessionRecord struct {
	ID             string     `json:"id"`
	AllowedDomains []string   `json:"allowedDomains"`
	Duration       int        `json:"duration"` // minutes
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Completed      bool       `json:"completed"`
	ActualDuration int        `json:"actualDuration"` // minutes
	Tasks          []Task     `json:"tasks"`
	LastUpdated    *time.Time `json:"lastUpdated,omitempty"`
}

// Finalized reports whether the record has been closed.
func (r SessionRecord) Finalized() bool {
	return r.EndTime != nil
}

// Clone returns a deep copy so callers can't mutate controller-owned slices.
func (r SessionRecord) Clone() SessionRecord {
	out := r
	out.AllowedDomains = append([]string(nil), r.AllowedDomains...)
	out.Tasks = make([]Task, len(r.Tasks))
	copy(out.Tasks, r.Tasks)
	return out
}

// Badge is the visible status indicator text.
type Badge string

const (
	BadgeIdle   Badge = ""
	BadgeActive Badge = "ON"
	BadgeDone   Badge = "Done"
)

// Target is a browser tab as seen by the host.
type Target struct {
	TabID string
	URL   string
}

// Navigation is a navigation-start event for a tab.
type Navigation struct {
	TabID string
	URL   string
}

// BlockMessageType is the in-page interception message type.
const BlockMessageType = "BLOCK_PAGE"

// BlockMessage is sent to a tab to replace its content with a block notice.
type BlockMessage struct {
	Type           string   `json:"type"`
	AllowedDomains []string `json:"allowedDomains"`
	CurrentDomain  string   `json:"currentDomain"`
	DisplayName    string   `json:"displayName"`
}

// Tier is one stage of the cascading block protocol.
type Tier int

const (
	TierNone     Tier = 0
	TierMessage  Tier = 1 // in-page interception message
	TierInject   Tier = 2 // inject interceptor, retry message once
	TierRedirect Tier = 3 // force-navigate to the blocked page
)

// Tiers is the escalation order.
var Tiers = []Tier{TierMessage, TierInject, TierRedirect}

func (t Tier) String() string {
	switch t {
	case TierMessage:
		return "message"
	case TierInject:
		return "inject"
	case TierRedirect:
		return "redirect"
	default:
		return "none"
	}
}

// Verdict is the outcome of evaluating one navigation.
type Verdict string

const (
	VerdictIdle    Verdict = "idle"    // no active session
	VerdictExempt  Verdict = "exempt"  // browser/internal address
	VerdictAllowed Verdict = "allowed" // on the allow-list
	VerdictBlocked Verdict = "blocked" // one tier succeeded
	VerdictFailed  Verdict = "failed"  // every tier failed
)

// EnforcementResult captures what happened for a single navigation.
type EnforcementResult struct {
	TabID      string
	URL        string
	Domain     string
	Verdict    Verdict
	Tier       Tier
	Errors     []error
	ExecutedAt time.Time
	DurationMs int64
}

// SessionSnapshot is a read-only view of the controller for UIs.
type SessionSnapshot struct {
	Status         SessionStatus `json:"status"`
	SessionID      string        `json:"sessionId,omitempty"`
	AllowedDomains []string      `json:"allowedDomains"`
	TimeLimitMs    int64         `json:"timeLimitMs"`
	ElapsedMs      int64         `json:"elapsedMs"`
	RemainingMs    int64         `json:"remainingMs"`
	StartTime      *time.Time    `json:"startTime,omitempty"`
	Badge          Badge         `json:"badge"`
}
