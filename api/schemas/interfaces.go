package schemas

import (
	"context"
	"time"
)

// LLMClient is the reasoning-service boundary: one textual request, one
// textual response. Implementations must not retry automatically; retry policy
// is deliberately out of core scope.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// SessionContext is one live browser context with its own cookie jar,
// exclusively owned by one agent run. All side effects are session-scoped.
type SessionContext interface {
	// ID returns the unique identifier for the session.
	ID() string

	// InjectCookies loads every cookie into the session's jar. It is a no-op
	// returning false when the collection is empty. Cookies must be injected
	// before the first navigation.
	InjectCookies(ctx context.Context, cookies []Cookie) (bool, error)

	// Navigate loads the URL and waits for the page to settle.
	Navigate(ctx context.Context, url string) NavigationOutcome

	// Step primitives. Each maps to exactly one browser interaction.
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	SelectOption(ctx context.Context, selector, value string) error
	Submit(ctx context.Context, selector string) error
	WaitForAsync(ctx context.Context, d time.Duration) error

	// DOMSnapshot returns the serialized HTML of the current document.
	DOMSnapshot(ctx context.Context) (string, error)

	// Cookies returns the cookies currently held by the session's jar.
	Cookies(ctx context.Context) ([]Cookie, error)

	// CaptureScreenshot writes a full-page screenshot to path.
	CaptureScreenshot(ctx context.Context, path string) error

	// Close terminates the session. The session is destroyed at run end
	// regardless of outcome.
	Close(ctx context.Context) error
}
