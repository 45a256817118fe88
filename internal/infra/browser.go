package infra

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

//go:embed assets/interceptor.js
var interceptorJS string

const (
	focusProbeJS = `() => document.visibilityState === 'visible' && document.hasFocus()`

	sendBlockJS = `(msg) => {
		const fn = window.__webmonBlock;
		if (typeof fn !== 'function') return false;
		return fn(msg) === true;
	}`
)

// BrowserConfig selects how the host reaches the browser.
type BrowserConfig struct {
	ControlURL string // DevTools websocket URL of a running browser
	Launch     bool   // Launch a browser when ControlURL is empty
	Bin        string // Browser binary; empty lets the launcher find one
	Headless   bool
}

// RodHost implements domain.BrowserHost over the DevTools protocol.
type RodHost struct {
	mu      sync.Mutex
	browser *rod.Browser
	config  BrowserConfig
	logger  *zap.Logger
}

// NewRodHost creates an unconnected host. Call Connect before use.
func NewRodHost(config BrowserConfig, logger *zap.Logger) *RodHost {
	return &RodHost{config: config, logger: logger}
}

// Connect attaches to the configured browser, launching one if allowed.
func (h *RodHost) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.browser != nil {
		return nil
	}

	controlURL := h.config.ControlURL
	if controlURL == "" {
		if !h.config.Launch {
			return errors.New("no browser control URL configured and launching is disabled")
		}
		l := launcher.New().Headless(h.config.Headless)
		if h.config.Bin != "" {
			l = l.Bin(h.config.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to browser: %w", err)
	}

	h.browser = browser
	h.logger.Info("browser connected", zap.String("control_url", controlURL))
	return nil
}

// Close disconnects from the browser.
func (h *RodHost) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.browser == nil {
		return nil
	}
	err := h.browser.Close()
	h.browser = nil
	return err
}

func (h *RodHost) connected() (*rod.Browser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.browser == nil {
		return nil, errors.New("browser not connected")
	}
	return h.browser, nil
}

func (h *RodHost) page(ctx context.Context, tabID string) (*rod.Page, error) {
	browser, err := h.connected()
	if err != nil {
		return nil, err
	}
	page, err := browser.PageFromTarget(proto.TargetTargetID(tabID))
	if err != nil {
		return nil, fmt.Errorf("attach to tab %s: %w", tabID, err)
	}
	return page.Context(ctx), nil
}

// FocusedTarget returns the visible, focused tab or nil when the user is
// not looking at the browser.
func (h *RodHost) FocusedTarget(ctx context.Context) (*domain.Target, error) {
	browser, err := h.connected()
	if err != nil {
		return nil, err
	}
	pages, err := browser.Context(ctx).Pages()
	if err != nil {
		return nil, fmt.Errorf("list tabs: %w", err)
	}

	for _, page := range pages {
		res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
			JS:      focusProbeJS,
			ByValue: true,
		})
		if err != nil || !res.Value.Bool() {
			continue
		}
		info, err := page.Info()
		if err != nil {
			continue
		}
		return &domain.Target{TabID: string(page.TargetID), URL: info.URL}, nil
	}
	return nil, nil
}

// SendBlock calls the in-page interceptor.
func (h *RodHost) SendBlock(ctx context.Context, tabID string, msg domain.BlockMessage) error {
	page, err := h.page(ctx, tabID)
	if err != nil {
		return err
	}
	res, err := page.Evaluate(&rod.EvalOptions{
		JS:      sendBlockJS,
		JSArgs:  []interface{}{msg},
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("deliver block message: %w", err)
	}
	if !res.Value.Bool() {
		return domain.ErrNoReceiver
	}
	return nil
}

// InjectInterceptor installs the interceptor into the tab's current document.
func (h *RodHost) InjectInterceptor(ctx context.Context, tabID string) error {
	page, err := h.page(ctx, tabID)
	if err != nil {
		return err
	}
	if _, err := page.Evaluate(&rod.EvalOptions{JS: interceptorJS, ByValue: true}); err != nil {
		return fmt.Errorf("inject interceptor: %w", err)
	}
	return nil
}

// Redirect navigates the tab to url.
func (h *RodHost) Redirect(ctx context.Context, tabID, url string) error {
	page, err := h.page(ctx, tabID)
	if err != nil {
		return err
	}
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate tab %s: %w", tabID, err)
	}
	return nil
}

// OpenTab opens url in a new tab.
func (h *RodHost) OpenTab(ctx context.Context, url string) error {
	browser, err := h.connected()
	if err != nil {
		return err
	}
	if _, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url}); err != nil {
		return fmt.Errorf("open tab: %w", err)
	}
	return nil
}

// Navigations streams main-frame navigations of every page target until ctx
// is done. Each committed document is reported once, reloads included.
func (h *RodHost) Navigations(ctx context.Context) (<-chan domain.Navigation, error) {
	browser, err := h.connected()
	if err != nil {
		return nil, err
	}
	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(browser); err != nil {
		return nil, fmt.Errorf("enable target discovery: %w", err)
	}

	out := make(chan domain.Navigation, 16)
	navCtx, stop := context.WithCancel(ctx)

	var wg sync.WaitGroup
	watching := make(map[proto.TargetTargetID]context.CancelFunc)

	// Discovery replays targetCreated for tabs that already exist.
	wait := browser.Context(navCtx).EachEvent(
		func(ev *proto.TargetTargetCreated) {
			info := ev.TargetInfo
			if info == nil || info.Type != proto.TargetTargetInfoTypePage {
				return
			}
			if _, ok := watching[info.TargetID]; ok {
				return
			}
			pageCtx, cancel := context.WithCancel(navCtx)
			watching[info.TargetID] = cancel
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.watchPage(pageCtx, browser, info.TargetID, out)
			}()
		},
		func(ev *proto.TargetTargetDestroyed) {
			if cancel, ok := watching[ev.TargetID]; ok {
				cancel()
				delete(watching, ev.TargetID)
			}
		},
	)

	go func() {
		defer close(out)
		wait()
		stop()
		wg.Wait()
		h.logger.Debug("navigation stream ended")
	}()

	return out, nil
}

// watchPage reports main-frame navigations of one tab. Documents are keyed
// by loader ID: a reload of the same URL gets a new loader and is reported.
func (h *RodHost) watchPage(ctx context.Context, browser *rod.Browser, id proto.TargetTargetID, out chan<- domain.Navigation) {
	page, err := browser.PageFromTarget(id)
	if err != nil {
		h.logger.Debug("cannot watch tab", zap.String("tab", string(id)), zap.Error(err))
		return
	}
	page = page.Context(ctx)

	var lastLoader proto.NetworkLoaderID
	emit := func(frame *proto.PageFrame) {
		if frame == nil || frame.ParentID != "" || frame.URL == "" || frame.LoaderID == lastLoader {
			return
		}
		lastLoader = frame.LoaderID
		select {
		case out <- domain.Navigation{TabID: string(id), URL: frame.URL}:
		case <-ctx.Done():
		}
	}

	// Subscribe before reading the current document so nothing committed in
	// between is lost; the loader check drops the overlap.
	wait := page.EachEvent(func(ev *proto.PageFrameNavigated) { emit(ev.Frame) })

	if tree, err := (proto.PageGetFrameTree{}).Call(page); err == nil && tree.FrameTree != nil {
		emit(tree.FrameTree.Frame)
	}
	wait()
}

// Ensure RodHost implements domain.BrowserHost.
var _ domain.BrowserHost = (*RodHost)(nil)
