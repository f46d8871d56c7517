// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot-cli/api/schemas"
	"github.com/taskpilot/taskpilot-cli/internal/config"
)

const interactionTimeout = 30 * time.Second

// Session is one live browser tab with its own cookie jar. It implements
// schemas.SessionContext; all side effects are scoped to this tab.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    *config.Config

	onClose func()

	mu        sync.Mutex
	isClosed  bool
	navigated bool
}

var _ schemas.SessionContext = (*Session)(nil)

// NewSession wraps an already-created tab context.
func NewSession(
	ctx context.Context,
	cancel context.CancelFunc,
	cfg *config.Config,
	logger *zap.Logger,
	onClose func(),
) *Session {
	sessionID := uuid.New().String()
	return &Session{
		id:      sessionID,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With(zap.String("session_id", sessionID)),
		cfg:     cfg,
		onClose: onClose,
	}
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// runActions executes chromedp actions on the tab context while honoring the
// caller's deadline. The tab context carries the CDP connection and must be
// the base; the operational context only contributes cancellation.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	opCtx, cancel := combineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// combineContext derives from the tab context (preserving CDP values) and is
// canceled when either context is done.
func combineContext(tabCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(tabCtx)
	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// InjectCookies loads the cookies into the session's jar. Empty input is a
// no-op returning false. Injection after the first navigation is refused;
// cookies must be present before the page that needs them loads.
func (s *Session) InjectCookies(ctx context.Context, cookies []schemas.Cookie) (bool, error) {
	if len(cookies) == 0 {
		return false, nil
	}

	s.mu.Lock()
	if s.navigated {
		s.mu.Unlock()
		return false, fmt.Errorf("cookies must be injected before the first navigation")
	}
	s.mu.Unlock()

	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) error {
		for _, ck := range cookies {
			params := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(cookiePath(ck.Path))
			if ck.Expiry > 0 {
				expiry := cdp.TimeSinceEpoch(time.Unix(ck.Expiry, 0))
				params = params.WithExpires(&expiry)
			}
			if err := params.Do(c); err != nil {
				return fmt.Errorf("failed to set cookie %q: %w", ck.Name, err)
			}
		}
		return nil
	}))
	if err != nil {
		return false, err
	}

	s.logger.Info("Injected session cookies.", zap.Int("count", len(cookies)))
	return true, nil
}

func cookiePath(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// Cookies returns the cookies currently held by the session's jar.
func (s *Session) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	var raw []*network.Cookie
	err := s.runActions(ctx, chromedp.ActionFunc(func(c context.Context) (err error) {
		raw, err = storage.GetCookies().Do(c)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read cookies: %w", err)
	}

	cookies := make([]schemas.Cookie, 0, len(raw))
	for _, ck := range raw {
		cookies = append(cookies, schemas.Cookie{
			Name:   ck.Name,
			Value:  ck.Value,
			Domain: ck.Domain,
			Path:   ck.Path,
			Expiry: int64(ck.Expires),
		})
	}
	return cookies, nil
}

// Navigate loads the URL and waits for the page to settle. Failures are
// reported in the outcome rather than as an error; the caller decides whether
// a failed load is fatal for its stage.
func (s *Session) Navigate(ctx context.Context, url string) schemas.NavigationOutcome {
	s.logger.Debug("Navigating to URL.", zap.String("url", url))

	s.mu.Lock()
	s.navigated = true
	s.mu.Unlock()

	navTimeout := s.cfg.Network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 90 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	var finalURL string
	err := s.runActions(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		s.logger.Warn("Navigation failed.", zap.String("url", url), zap.Error(err))
		return schemas.NavigationOutcome{
			Status:   schemas.NavigationFailed,
			FinalURL: finalURL,
			Err:      err.Error(),
		}
	}

	// Let late async work (SPA hydration, redirects) settle.
	if wait := s.cfg.Network.PostLoadWait; wait > 0 {
		if err := s.runActions(ctx, chromedp.Sleep(wait)); err != nil {
			s.logger.Debug("Post-load wait interrupted.", zap.Error(err))
		}
	}

	s.logger.Info("Navigation complete.", zap.String("final_url", finalURL))
	return schemas.NavigationOutcome{Status: schemas.NavigationOK, FinalURL: finalURL}
}

// Click interacts with the element matching the selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.logger.Debug("Clicking element.", zap.String("selector", selector))

	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	err := s.runActions(opCtx, chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	})
	if err != nil {
		return fmt.Errorf("click failed for selector %q: %w", selector, err)
	}
	return nil
}

// Type inputs text into the element matching the selector.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	s.logger.Debug("Typing into element.",
		zap.String("selector", selector),
		zap.Int("text_length", len(text)))

	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	err := s.runActions(opCtx, chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	})
	if err != nil {
		return fmt.Errorf("type failed for selector %q: %w", selector, err)
	}
	return nil
}

// SelectOption sets the value of a select element and fires a change event so
// framework listeners observe the update.
func (s *Session) SelectOption(ctx context.Context, selector, value string) error {
	s.logger.Debug("Selecting option.",
		zap.String("selector", selector),
		zap.String("value", value))

	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	err := s.runActions(opCtx, chromedp.Tasks{
		chromedp.ScrollIntoView(selector, chromedp.ByQuery),
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SetValue(selector, value, chromedp.ByQuery),
		chromedp.Evaluate(changeEventScript(selector), nil),
	})
	if err != nil {
		return fmt.Errorf("select failed for selector %q: %w", selector, err)
	}
	return nil
}

func changeEventScript(selector string) string {
	sel, _ := json.Marshal(selector)
	return fmt.Sprintf(
		`(() => { const el = document.querySelector(%s); if (el) { el.dispatchEvent(new Event('change', {bubbles: true})); } })()`,
		sel)
}

// Submit submits the form associated with the selector.
func (s *Session) Submit(ctx context.Context, selector string) error {
	s.logger.Debug("Submitting form.", zap.String("selector", selector))

	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	err := s.runActions(opCtx, chromedp.Submit(selector, chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("submit failed for selector %q: %w", selector, err)
	}
	return nil
}

// WaitForAsync pauses the session for the given duration.
func (s *Session) WaitForAsync(ctx context.Context, d time.Duration) error {
	s.logger.Debug("Waiting for async operations.", zap.Duration("duration", d))
	return s.runActions(ctx, chromedp.Sleep(d))
}

// DOMSnapshot returns the serialized HTML of the current document.
func (s *Session) DOMSnapshot(ctx context.Context) (string, error) {
	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	var dom string
	if err := s.runActions(opCtx, chromedp.OuterHTML("html", &dom, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("failed to capture DOM snapshot: %w", err)
	}
	return dom, nil
}

// CaptureScreenshot writes a full-page screenshot to path.
func (s *Session) CaptureScreenshot(ctx context.Context, path string) error {
	opCtx, cancel := context.WithTimeout(ctx, interactionTimeout)
	defer cancel()

	var buf []byte
	if err := s.runActions(opCtx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot to %s: %w", path, err)
	}

	s.logger.Info("Screenshot captured.", zap.String("path", path))
	return nil
}

// Close terminates the session. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
