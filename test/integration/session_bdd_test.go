//go:build integration

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/eliteGoblin/focusd/web_mon/internal/config"
	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

var _ = Describe("Focus session lifecycle", func() {
	for _, driver := range []string{config.DriverSQLCipher, config.DriverFile} {
		driver := driver

		Describe("with the "+driver+" store", func() {
			var (
				ctx     context.Context
				clk     *testingclock.FakeClock
				browser *fakeBrowser
				store   domain.SessionStore
				s       *stack
			)

			BeforeEach(func() {
				ctx = context.Background()
				clk = testingclock.NewFakeClock(epoch)
				browser = newFakeBrowser()
				store = openStore(driver, GinkgoT().TempDir())
				DeferCleanup(store.Close)
				s = newStack(store, browser, clk)
			})

			AfterEach(func() {
				s.scheduler.Disarm()
			})

			Context("when a session is started", func() {
				It("should persist the tracking keys and show the ON badge", func() {
					rec, err := s.controller.Start(ctx, []string{"https://www.Example.com/path", "go.dev"}, 25*time.Minute)
					Expect(err).NotTo(HaveOccurred())
					Expect(rec.AllowedDomains).To(Equal([]string{"example.com", "go.dev"}))
					Expect(rec.Duration).To(Equal(25))

					var tracking bool
					found, err := store.Get(ctx, domain.KeyIsTracking, &tracking)
					Expect(err).NotTo(HaveOccurred())
					Expect(found).To(BeTrue())
					Expect(tracking).To(BeTrue())

					var urls []string
					_, err = store.Get(ctx, domain.KeyTrackingURLs, &urls)
					Expect(err).NotTo(HaveOccurred())
					Expect(urls).To(Equal([]string{"example.com", "go.dev"}))

					Expect(storedBadge(store)).To(Equal(domain.BadgeActive))
				})

				It("should reject a second start", func() {
					_, err := s.controller.Start(ctx, []string{"example.com"}, time.Minute)
					Expect(err).NotTo(HaveOccurred())

					_, err = s.controller.Start(ctx, []string{"go.dev"}, time.Minute)
					Expect(err).To(MatchError(domain.ErrSessionActive))
				})
			})

			Context("when ticks arrive", func() {
				It("should credit only time spent on an allowed tab", func() {
					_, err := s.controller.Start(ctx, []string{"example.com"}, 10*time.Minute)
					Expect(err).NotTo(HaveOccurred())

					browser.focus("https://www.example.com/guide")
					s.attend(clk, 3)

					browser.focus("https://news.site/")
					step(clk, browser, time.Second)
					step(clk, browser, time.Second)
					Consistently(func() int64 {
						return s.controller.Snapshot().ElapsedMs
					}, 100*time.Millisecond).Should(Equal(int64(3000)))

					browser.focus("")
					step(clk, browser, time.Second)
					Expect(s.controller.Snapshot().RemainingMs).To(Equal(int64(10*60*1000 - 3000)))

					var elapsed int64
					_, err = store.Get(ctx, domain.KeyElapsedTime, &elapsed)
					Expect(err).NotTo(HaveOccurred())
					Expect(elapsed).To(Equal(int64(3000)))
				})
			})

			Context("when the time limit is reached", func() {
				It("should archive exactly one completed record and flash Done", func() {
					_, err := s.controller.Start(ctx, []string{"example.com"}, 2*time.Minute)
					Expect(err).NotTo(HaveOccurred())
					_, err = s.controller.AddTask(ctx, "outline chapter")
					Expect(err).NotTo(HaveOccurred())

					browser.focus("https://example.com/")
					s.attend(clk, 61)

					browser.focus("https://elsewhere.org/")
					step(clk, browser, 58*time.Second)
					clk.Step(time.Second)

					Eventually(func() domain.SessionStatus {
						return s.controller.Snapshot().Status
					}).Should(Equal(domain.StatusIdle))

					history, err := s.archiver.History(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(history).To(HaveLen(1))
					Expect(history[0].Completed).To(BeTrue())
					Expect(history[0].Duration).To(Equal(2))
					Expect(history[0].ActualDuration).To(Equal(1))
					Expect(history[0].EndTime).NotTo(BeNil())
					Expect(history[0].Tasks).To(HaveLen(1))

					Expect(storedBadge(store)).To(Equal(domain.BadgeDone))
					Expect(browser.openedTabs()).To(Equal([]string{completionURL}))

					var tracking bool
					found, _ := store.Get(ctx, domain.KeyIsTracking, &tracking)
					Expect(found && tracking).To(BeFalse())

					clk.Step(5 * time.Second)
					Eventually(func() domain.Badge {
						return storedBadge(store)
					}).Should(Equal(domain.BadgeIdle))
				})
			})

			Context("when the user stops early", func() {
				It("should record an incomplete session and ignore the late expiry", func() {
					rec, err := s.controller.Start(ctx, []string{"example.com"}, time.Minute)
					Expect(err).NotTo(HaveOccurred())

					Expect(s.controller.Stop(ctx)).To(Succeed())
					Expect(s.controller.Expire(ctx, rec.ID)).To(Succeed())
					clk.Step(2 * time.Minute)

					Consistently(func() int {
						history, _ := s.archiver.History(ctx)
						return len(history)
					}, 100*time.Millisecond).Should(Equal(1))

					history, err := s.archiver.History(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(history[0].ID).To(Equal(rec.ID))
					Expect(history[0].Completed).To(BeFalse())
					Expect(storedBadge(store)).To(Equal(domain.BadgeIdle))
					Expect(browser.openedTabs()).To(BeEmpty())
				})
			})

			Context("when the daemon restarts mid-session", func() {
				It("should resume the session from the store", func() {
					rec, err := s.controller.Start(ctx, []string{"example.com"}, 10*time.Minute)
					Expect(err).NotTo(HaveOccurred())
					browser.focus("https://example.com/")
					s.attend(clk, 30)

					// The old process dies without finalizing.
					s.scheduler.Disarm()
					clk.Step(4 * time.Minute)

					restarted := newStack(store, browser, clk)
					DeferCleanup(restarted.scheduler.Disarm)
					Expect(restarted.controller.Restore(ctx)).To(Succeed())

					snap := restarted.controller.Snapshot()
					Expect(snap.Status).To(Equal(domain.StatusActive))
					Expect(snap.SessionID).To(Equal(rec.ID))
					Expect(snap.ElapsedMs).To(Equal(int64(30000)))

					restarted.attend(clk, 1)

					clk.Step(5*time.Minute + 30*time.Second)
					Eventually(func() domain.SessionStatus {
						return restarted.controller.Snapshot().Status
					}).Should(Equal(domain.StatusIdle))

					history, err := restarted.archiver.History(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(history).To(HaveLen(1))
					Expect(history[0].Completed).To(BeTrue())
				})
			})

			Context("when history exceeds the limit", func() {
				It("should keep only the newest records", func() {
					for i := 0; i < 52; i++ {
						_, err := s.controller.Start(ctx, []string{"example.com"}, time.Minute)
						Expect(err).NotTo(HaveOccurred())
						Expect(s.controller.Stop(ctx)).To(Succeed())
					}

					history, err := s.archiver.History(ctx)
					Expect(err).NotTo(HaveOccurred())
					Expect(history).To(HaveLen(50))
				})
			})
		})
	}
})
