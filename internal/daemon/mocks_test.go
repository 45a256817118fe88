package daemon

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (m *memStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *memStore) Set(ctx context.Context, entries map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range entries {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		m.data[k] = raw
	}
	return nil
}

func (m *memStore) Remove(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// fakeHost reports a fixed focused tab and a caller-driven navigation stream.
type fakeHost struct {
	mu       sync.Mutex
	focused  *domain.Target
	focusErr error
	navs     chan domain.Navigation
}

func (h *fakeHost) setFocused(t *domain.Target) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.focused = t
}

func (h *fakeHost) FocusedTarget(ctx context.Context) (*domain.Target, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.focused, h.focusErr
}

func (h *fakeHost) SendBlock(ctx context.Context, tabID string, msg domain.BlockMessage) error {
	return nil
}

func (h *fakeHost) InjectInterceptor(ctx context.Context, tabID string) error { return nil }

func (h *fakeHost) Redirect(ctx context.Context, tabID, url string) error { return nil }

func (h *fakeHost) OpenTab(ctx context.Context, url string) error { return nil }

func (h *fakeHost) Navigations(ctx context.Context) (<-chan domain.Navigation, error) {
	return h.navs, nil
}

// recordingHandler implements domain.TickHandler.
type recordingHandler struct {
	mu      sync.Mutex
	ticks   []*domain.Target
	expired []string
	ctxErr  error
}

func (r *recordingHandler) Tick(ctx context.Context, sessionID string, focused *domain.Target) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticks = append(r.ticks, focused)
	return nil
}

func (r *recordingHandler) Expire(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.expired = append(r.expired, sessionID)
	r.ctxErr = ctx.Err()
	return nil
}

func (r *recordingHandler) tickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticks)
}

func (r *recordingHandler) expiredIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.expired...)
}

type recordingEnforcer struct {
	mu   sync.Mutex
	navs []domain.Navigation
}

func (e *recordingEnforcer) Enforce(ctx context.Context, nav domain.Navigation) (*domain.EnforcementResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.navs = append(e.navs, nav)
	return &domain.EnforcementResult{TabID: nav.TabID, URL: nav.URL, Verdict: domain.VerdictAllowed}, nil
}

func (e *recordingEnforcer) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.navs)
}

type countingRestorer struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRestorer) Restore(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil
}

type nopArchiver struct{}

func (nopArchiver) Archive(ctx context.Context, record domain.SessionRecord) error { return nil }
func (nopArchiver) Trim(ctx context.Context) error                                 { return nil }
func (nopArchiver) History(ctx context.Context) ([]domain.SessionRecord, error)    { return nil, nil }

type stubProcessManager struct {
	pid     int
	running map[int]bool
}

func (p stubProcessManager) FindByName(pattern string) ([]int, error) { return nil, nil }
func (p stubProcessManager) IsRunning(pid int) bool                   { return p.running[pid] }
func (p stubProcessManager) GetCurrentPID() int                       { return p.pid }
