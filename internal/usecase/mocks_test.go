package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// mockStore implements domain.SessionStore in memory with JSON round-trips.
type mockStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	setErr  error
	setCall int
	failIf  func(entries map[string]any) error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string][]byte)}
}

func (m *mockStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *mockStore) Set(ctx context.Context, entries map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCall++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.setErr != nil {
		return m.setErr
	}
	if m.failIf != nil {
		if err := m.failIf(entries); err != nil {
			return err
		}
	}
	for k, v := range entries {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		m.data[k] = raw
	}
	return nil
}

func (m *mockStore) Remove(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *mockStore) Close() error { return nil }

func (m *mockStore) failSets(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setErr = err
}

// failWhen fails only the Set calls fn rejects; nil restores normal writes.
func (m *mockStore) failWhen(fn func(entries map[string]any) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failIf = fn
}

// mockScheduler implements domain.Scheduler and records arm/disarm calls.
type mockScheduler struct {
	mu        sync.Mutex
	armedID   string
	remaining time.Duration
	arms      int
	disarms   int
}

func (m *mockScheduler) Arm(sessionID string, remaining time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armedID = sessionID
	m.remaining = remaining
	m.arms++
}

func (m *mockScheduler) Disarm() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armedID = ""
	m.disarms++
}

func (m *mockScheduler) armed() (string, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armedID, m.remaining
}

// mockIndicator implements domain.StatusIndicator.
type mockIndicator struct {
	mu     sync.Mutex
	badges []domain.Badge
}

func (m *mockIndicator) Show(ctx context.Context, badge domain.Badge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.badges = append(m.badges, badge)
	return nil
}

func (m *mockIndicator) last() domain.Badge {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.badges) == 0 {
		return domain.BadgeIdle
	}
	return m.badges[len(m.badges)-1]
}

// mockHost implements domain.BrowserHost with scripted tier outcomes.
type mockHost struct {
	mu          sync.Mutex
	sendErrs    []error // consumed per SendBlock call
	injectErr   error
	redirectErr error
	calls       []string
	messages    []domain.BlockMessage
	redirectTo  string
	opened      []string
	onOpen      func()
}

var errDelivery = errors.New("delivery failed")

func (m *mockHost) FocusedTarget(ctx context.Context) (*domain.Target, error) {
	return nil, nil
}

func (m *mockHost) SendBlock(ctx context.Context, tabID string, msg domain.BlockMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "send")
	m.messages = append(m.messages, msg)
	if len(m.sendErrs) == 0 {
		return nil
	}
	err := m.sendErrs[0]
	m.sendErrs = m.sendErrs[1:]
	return err
}

func (m *mockHost) InjectInterceptor(ctx context.Context, tabID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "inject")
	return m.injectErr
}

func (m *mockHost) Redirect(ctx context.Context, tabID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "redirect")
	m.redirectTo = url
	return m.redirectErr
}

func (m *mockHost) OpenTab(ctx context.Context, url string) error {
	m.mu.Lock()
	m.opened = append(m.opened, url)
	onOpen := m.onOpen
	m.mu.Unlock()
	if onOpen != nil {
		onOpen()
	}
	return nil
}

func (m *mockHost) Navigations(ctx context.Context) (<-chan domain.Navigation, error) {
	ch := make(chan domain.Navigation)
	close(ch)
	return ch, nil
}

// staticPolicy implements domain.PolicyProvider.
type staticPolicy struct {
	policy domain.Policy
	active bool
}

func (s staticPolicy) ActivePolicy() (domain.Policy, bool) {
	return s.policy, s.active
}
