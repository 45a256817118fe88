//go:build integration

package integration

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/eliteGoblin/focusd/web_mon/internal/config"
	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const completionURL = "http://127.0.0.1:7717/complete"

// fakeBrowser stands in for the DevTools host.
type fakeBrowser struct {
	mu           sync.Mutex
	focused      *domain.Target
	focusQueries int
	sendErrs     []error
	redirectErr  error
	calls        []string
	redirects    []string
	opened       []string
	navs         chan domain.Navigation
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{navs: make(chan domain.Navigation, 8)}
}

func (b *fakeBrowser) focus(url string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if url == "" {
		b.focused = nil
		return
	}
	b.focused = &domain.Target{TabID: "tab-1", URL: url}
}

func (b *fakeBrowser) queries() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.focusQueries
}

func (b *fakeBrowser) callLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBrowser) redirectLog() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.redirects...)
}

func (b *fakeBrowser) openedTabs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.opened...)
}

func (b *fakeBrowser) failSends(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErrs = append(b.sendErrs, errs...)
}

func (b *fakeBrowser) FocusedTarget(ctx context.Context) (*domain.Target, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.focusQueries++
	if b.focused == nil {
		return nil, nil
	}
	t := *b.focused
	return &t, nil
}

func (b *fakeBrowser) SendBlock(ctx context.Context, tabID string, msg domain.BlockMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "send:"+msg.CurrentDomain)
	if len(b.sendErrs) == 0 {
		return nil
	}
	err := b.sendErrs[0]
	b.sendErrs = b.sendErrs[1:]
	return err
}

func (b *fakeBrowser) InjectInterceptor(ctx context.Context, tabID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "inject")
	return nil
}

func (b *fakeBrowser) Redirect(ctx context.Context, tabID, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, "redirect")
	b.redirects = append(b.redirects, url)
	return b.redirectErr
}

func (b *fakeBrowser) OpenTab(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, url)
	return nil
}

func (b *fakeBrowser) Navigations(ctx context.Context) (<-chan domain.Navigation, error) {
	return b.navs, nil
}

// openStore creates a store of the given driver in dir.
func openStore(driver, dir string) domain.SessionStore {
	if driver == config.DriverFile {
		store, err := infra.NewFileStore(dir)
		Expect(err).NotTo(HaveOccurred())
		return store
	}
	key, err := infra.EnsureKey(infra.NewFileKeyProvider(dir))
	Expect(err).NotTo(HaveOccurred())
	store, err := infra.NewEncryptedStore(dir, key)
	Expect(err).NotTo(HaveOccurred())
	return store
}

// stack is the daemon's session engine without the browser connection.
type stack struct {
	store      domain.SessionStore
	scheduler  *daemon.Scheduler
	archiver   *usecase.Archiver
	controller *usecase.Controller
}

func newStack(store domain.SessionStore, browser *fakeBrowser, clk *testingclock.FakeClock) *stack {
	logger := zap.NewNop()
	scheduler := daemon.NewScheduler(daemon.SchedulerConfig{
		TickInterval: time.Second,
		FocusTimeout: time.Second,
	}, browser, clk, logger)
	archiver := usecase.NewArchiver(store, usecase.DefaultHistoryLimit, nil, logger)
	controller := usecase.NewController(usecase.ControllerConfig{
		TickInterval:       time.Second,
		BadgeDoneWindow:    5 * time.Second,
		OpenCompletionPage: true,
		CompletionURL:      completionURL,
	}, store, scheduler, archiver, infra.NewStoreIndicator(store, logger), browser, clk, nil, logger)
	scheduler.Bind(controller)

	return &stack{
		store:      store,
		scheduler:  scheduler,
		archiver:   archiver,
		controller: controller,
	}
}

// attend steps the clock n ticks with an allowed tab focused and waits
// until each tick has been credited.
func (s *stack) attend(clk *testingclock.FakeClock, n int) {
	for i := 0; i < n; i++ {
		want := s.controller.Snapshot().ElapsedMs + time.Second.Milliseconds()
		clk.Step(time.Second)
		Eventually(func() int64 {
			return s.controller.Snapshot().ElapsedMs
		}).Should(Equal(want))
	}
}

// step advances the clock once and waits for the tick to sample focus.
func step(clk *testingclock.FakeClock, browser *fakeBrowser, d time.Duration) {
	before := browser.queries()
	clk.Step(d)
	Eventually(browser.queries).Should(BeNumerically(">", before))
}

func storedBadge(store domain.SessionStore) domain.Badge {
	var badge domain.Badge
	_, err := store.Get(context.Background(), domain.KeyBadge, &badge)
	Expect(err).NotTo(HaveOccurred())
	return badge
}
