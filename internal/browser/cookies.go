// internal/browser/cookies.go
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot-cli/api/schemas"
)

var cookieJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// LoadCookieFile reads a JSON array of cookies from path. An empty path means
// no cookies were provided and yields an empty slice, not an error.
func LoadCookieFile(path string) ([]schemas.Cookie, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file %s: %w", path, err)
	}

	var cookies []schemas.Cookie
	if err := cookieJSON.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to parse cookie file %s: %w", path, err)
	}

	for i, ck := range cookies {
		if ck.Name == "" {
			return nil, fmt.Errorf("cookie record %d in %s has no name", i, path)
		}
	}
	return cookies, nil
}

// SaveCookieFile writes the session's cookies to path so a later run can
// restore the session without logging in again.
func SaveCookieFile(path string, cookies []schemas.Cookie) error {
	data, err := cookieJSON.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cookies: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cookie file %s: %w", path, err)
	}
	return nil
}

// authCookieMarkers are substrings that commonly identify an authenticated
// session cookie. A heuristic, not a guarantee.
var authCookieMarkers = []string{"session", "auth", "token", "jwt", "sid", "logged_in"}

// HasAuthCookie reports whether any cookie name looks like an authenticated
// session marker.
func HasAuthCookie(cookies []schemas.Cookie) bool {
	for _, ck := range cookies {
		name := strings.ToLower(ck.Name)
		for _, marker := range authCookieMarkers {
			if strings.Contains(name, marker) {
				return true
			}
		}
	}
	return false
}

const loginPollInterval = 3 * time.Second

// WaitForLogin polls the session's cookie jar until an auth-looking cookie
// appears or the timeout elapses. It returns the cookies observed at the end,
// and whether the heuristic fired. Credential entry itself happens outside the
// agent; this only watches for its effect.
func WaitForLogin(ctx context.Context, session schemas.SessionContext, timeout time.Duration, logger *zap.Logger) ([]schemas.Cookie, bool) {
	deadline := time.After(timeout)
	ticker := time.NewTicker(loginPollInterval)
	defer ticker.Stop()

	logger.Info("Waiting for manual login to complete.", zap.Duration("timeout", timeout))

	for {
		select {
		case <-ctx.Done():
			return nil, false
		case <-deadline:
			logger.Warn("Manual login wait timed out.")
			cookies, err := session.Cookies(ctx)
			if err != nil {
				return nil, false
			}
			return cookies, HasAuthCookie(cookies)
		case <-ticker.C:
			cookies, err := session.Cookies(ctx)
			if err != nil {
				logger.Debug("Cookie poll failed during login wait.", zap.Error(err))
				continue
			}
			if HasAuthCookie(cookies) {
				logger.Info("Detected authenticated session cookie.")
				return cookies, true
			}
		}
	}
}
