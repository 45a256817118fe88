//go:build integration

package integration

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/eliteGoblin/focusd/web_mon/internal/config"
	"github.com/eliteGoblin/focusd/web_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
	"github.com/eliteGoblin/focusd/web_mon/internal/infra"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
	"github.com/eliteGoblin/focusd/web_mon/internal/server"
	"github.com/eliteGoblin/focusd/web_mon/internal/usecase"
)

var _ = Describe("Daemon enforcement over the control API", func() {
	var (
		ctx     context.Context
		cancel  context.CancelFunc
		clk     *testingclock.FakeClock
		browser *fakeBrowser
		store   domain.SessionStore
		s       *stack
		ts      *httptest.Server
		client  *server.Client
		done    chan error
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		clk = testingclock.NewFakeClock(epoch)
		browser = newFakeBrowser()
		store = openStore(config.DriverSQLCipher, GinkgoT().TempDir())
		s = newStack(store, browser, clk)

		ts = httptest.NewServer(server.New(s.controller, nil, zap.NewNop()).Handler())
		client = server.NewClient(ts.URL)

		enforcer := usecase.NewEnforcer(
			browser,
			s.controller,
			store,
			policy.NewMatcher(ts.URL),
			ts.URL+server.BlockedPath,
			nil,
			zap.NewNop(),
		)
		watcher := daemon.NewWatcher(
			daemon.DefaultWatcherConfig(),
			s.controller,
			s.archiver,
			enforcer,
			browser,
			store,
			infra.NewProcessManager(),
			clk,
			zap.NewNop(),
		)

		done = make(chan error, 1)
		go func() { done <- watcher.Run(ctx) }()

		Eventually(func() bool {
			var pid int
			found, _ := store.Get(context.Background(), domain.KeyDaemonPID, &pid)
			return found
		}).Should(BeTrue())
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
		s.scheduler.Disarm()
		ts.Close()
		Expect(store.Close()).To(Succeed())
	})

	navigate := func(url string) {
		browser.navs <- domain.Navigation{TabID: "tab-7", URL: url}
	}

	It("should leave navigation alone while idle", func() {
		navigate("https://news.site/")
		navigate("https://example.com/")
		Consistently(browser.callLog, 100*time.Millisecond).Should(BeEmpty())
	})

	Context("with an active session", func() {
		BeforeEach(func() {
			resp, err := client.Start(ctx, []string{"example.com"}, 25*time.Minute)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal("started"))

			_, err = client.SetDisplayName(ctx, "Ada")
			Expect(err).NotTo(HaveOccurred())
		})

		It("should allow listed sites, browser pages and the blocked page itself", func() {
			navigate("https://www.example.com/a")
			navigate(ts.URL + server.BlockedPath + "?current=x.org")
			navigate("chrome://extensions")
			Consistently(browser.callLog, 100*time.Millisecond).Should(BeEmpty())
		})

		It("should escalate to injection when no receiver is present", func() {
			browser.failSends(domain.ErrNoReceiver)

			navigate("https://www.news.site/today")

			Eventually(browser.callLog).Should(Equal([]string{"send:news.site", "inject", "send:news.site"}))
		})

		It("should redirect to a blocked page that renders the session", func() {
			browser.failSends(domain.ErrNoReceiver, errors.New("tab crashed"))

			navigate("https://news.site/")

			Eventually(browser.redirectLog).Should(HaveLen(1))
			target := browser.redirectLog()[0]
			Expect(target).To(HavePrefix(ts.URL + server.BlockedPath + "?"))

			resp, err := http.Get(target)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())

			page := string(body)
			Expect(page).To(ContainSubstring("Stay focused, Ada"))
			Expect(page).To(ContainSubstring("<code>news.site</code>"))
			Expect(page).To(ContainSubstring("<li>example.com</li>"))
		})

		It("should report the session through GET_SESSION_DATA and archive it on STOP", func() {
			_, err := client.AddTask(ctx, "review PR")
			Expect(err).NotTo(HaveOccurred())

			data, err := client.SessionData(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(data.CurrentSession).NotTo(BeNil())
			Expect(data.CurrentSession.Tasks).To(HaveLen(1))
			Expect(data.Sessions).To(BeEmpty())

			snap, err := client.Status(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Status).To(Equal(domain.StatusActive))
			Expect(snap.Badge).To(Equal(domain.BadgeActive))

			resp, err := client.Stop(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.Status).To(Equal("stopped"))

			data, err = client.SessionData(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(data.CurrentSession).To(BeNil())
			Expect(data.Sessions).To(HaveLen(1))
			Expect(data.Sessions[0].Completed).To(BeFalse())
			Expect(data.Sessions[0].Tasks[0].Text).To(Equal("review PR"))

			navigate("https://news.site/")
			Consistently(browser.callLog, 100*time.Millisecond).Should(BeEmpty())
		})

		It("should refuse a second START_TRACKING with a conflict", func() {
			_, err := client.Start(ctx, []string{"go.dev"}, time.Minute)

			var apiErr *server.APIError
			Expect(errors.As(err, &apiErr)).To(BeTrue())
			Expect(apiErr.StatusCode).To(Equal(http.StatusConflict))
			Expect(strings.ToLower(apiErr.Message)).To(ContainSubstring("already active"))
		})
	})
})
