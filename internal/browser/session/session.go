// Package session drives one headless browser tab via chromedp/cdproto,
// exposing the action primitives and state capture the orchestrator and
// the interactive agent build on.
package session

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/watchloom/pagewatch/internal/config"
	"github.com/watchloom/pagewatch/internal/schemas"
)

const (
	maxDOMBytes  = 100 * 1024
	maxTextBytes = 3 * 1024
)

// Session owns one chromedp allocator + tab and implements every Step
// variant plus state capture.
type Session struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu          sync.Mutex
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	ctx         context.Context
	started     bool
}

// New constructs an unstarted Session.
func New(cfg config.BrowserConfig, logger *zap.Logger) *Session {
	return &Session{cfg: cfg, logger: logger.Named("browser.session")}
}

// StartOptions overrides the BrowserConfig defaults for one session. Start
// applies Viewport and UserAgent only; Headers and DefaultTimeoutMs are
// carried but not applied, so no extra request headers are sent and step
// timeouts are unaffected by them.
type StartOptions struct {
	Viewport         *schemas.Viewport
	UserAgent        string
	Headers          map[string]string
	DefaultTimeoutMs int
}

// Start launches the browser and opens one tab. It is idempotent: a second
// call on an already-started session is a no-op.
func (s *Session) Start(ctx context.Context, opts StartOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", s.cfg.IgnoreTLSErrors),
	)
	for _, arg := range s.cfg.Args {
		allocOpts = append(allocOpts, chromedp.Flag(arg, true))
	}
	if opts.Viewport != nil {
		allocOpts = append(allocOpts, chromedp.WindowSize(opts.Viewport.Width, opts.Viewport.Height))
	} else {
		allocOpts = append(allocOpts, chromedp.WindowSize(s.cfg.ViewportWidth, s.cfg.ViewportHeight))
	}
	ua := s.cfg.UserAgent
	if opts.UserAgent != "" {
		ua = opts.UserAgent
	}
	if ua != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(ua))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, ctxCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(tabCtx); err != nil {
		allocCancel()
		ctxCancel()
		return fmt.Errorf("browser session: launch failed: %w", err)
	}

	s.allocCancel = allocCancel
	s.ctxCancel = ctxCancel
	s.ctx = tabCtx
	s.started = true
	return nil
}

// Stop releases the tab, context, and browser process. Safe to call
// multiple times and on every exit path, including after a panic recovery.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	if s.ctxCancel != nil {
		s.ctxCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.started = false
}

// CurrentURL reports the tab's current location.
func (s *Session) CurrentURL() (string, error) {
	var url string
	if err := chromedp.Run(s.ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Viewport reports the tab's current viewport size.
func (s *Session) Viewport() schemas.Viewport {
	var w, h int
	_ = chromedp.Run(s.ctx, chromedp.Evaluate(`window.innerWidth`, &w))
	_ = chromedp.Run(s.ctx, chromedp.Evaluate(`window.innerHeight`, &h))
	return schemas.Viewport{Width: w, Height: h}
}

// PageText returns sanitized, script/style-stripped body text, truncated to
// maxTextBytes.
func (s *Session) PageText(ctx context.Context) (string, error) {
	var text string
	script := `(() => {
		const clone = document.body ? document.body.cloneNode(true) : null;
		if (!clone) return '';
		clone.querySelectorAll('script,style').forEach(el => el.remove());
		return clone.innerText || clone.textContent || '';
	})()`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &text)); err != nil {
		return "", err
	}
	return truncate(text, maxTextBytes), nil
}

// CaptureState snapshots URL, DOM, screenshot, and viewport.
func (s *Session) CaptureState(ctx context.Context) (schemas.BrowserState, error) {
	state := schemas.BrowserState{CapturedAt: time.Now()}

	url, err := s.CurrentURL()
	if err != nil {
		state.Error = err.Error()
		return state, err
	}
	state.URL = url
	state.Viewport = s.Viewport()

	var dom string
	domScript := `document.body ? document.body.outerHTML : document.documentElement.outerHTML`
	if err := chromedp.Run(ctx, chromedp.Evaluate(domScript, &dom)); err != nil {
		state.Error = err.Error()
		return state, err
	}
	state.DOM = truncate(dom, maxDOMBytes)

	var buf []byte
	if err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var captureErr error
		buf, captureErr = page.CaptureScreenshot().
			WithQuality(80).
			WithFormat(page.CaptureScreenshotFormatJpeg).
			Do(ctx)
		return captureErr
	})); err != nil {
		s.logger.Warn("screenshot capture failed", zap.Error(err))
	} else {
		state.Screenshot = base64.StdEncoding.EncodeToString(buf)
	}

	return state, nil
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}

// isTitleSelector reports whether a selector should be resolved against the
// document title rather than the element's textContent.
func isTitleSelector(selector string) bool {
	return strings.Contains(strings.ToLower(selector), "title")
}

// isTransientNavigationError reports a navigation-timeout-shaped failure so
// callers can classify status=timeout vs status=failed vs status=error.
func isTransientNavigationError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "context deadline")
}
