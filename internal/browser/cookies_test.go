package browser

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot-cli/api/schemas"
)

func TestLoadCookieFile_EmptyPathMeansNoCookies(t *testing.T) {
	cookies, err := LoadCookieFile("")
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestLoadCookieFile_Valid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	payload := `[
		{"name":"session_id","value":"abc123","domain":".linear.app","path":"/","expiry":1924905600},
		{"name":"theme","value":"dark","domain":".linear.app"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o600))

	cookies, err := LoadCookieFile(path)
	require.NoError(t, err)
	require.Len(t, cookies, 2)
	assert.Equal(t, "session_id", cookies[0].Name)
	assert.Equal(t, ".linear.app", cookies[0].Domain)
	assert.Equal(t, int64(1924905600), cookies[0].Expiry)
	assert.Zero(t, cookies[1].Expiry)
}

func TestLoadCookieFile_Missing(t *testing.T) {
	_, err := LoadCookieFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}

func TestLoadCookieFile_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"not":"an array"}`), 0o600))

	_, err := LoadCookieFile(path)
	require.Error(t, err)
}

func TestLoadCookieFile_NamelessCookieRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"value":"x","domain":"a.b"}]`), 0o600))

	_, err := LoadCookieFile(path)
	require.Error(t, err)
	assert.ErrorContains(t, err, "has no name")
}

func TestSaveCookieFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.json")
	in := []schemas.Cookie{
		{Name: "auth_token", Value: "v", Domain: ".example.com", Path: "/", Expiry: 1924905600},
	}
	require.NoError(t, SaveCookieFile(path, in))

	out, err := LoadCookieFile(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestHasAuthCookie(t *testing.T) {
	tests := []struct {
		name    string
		cookies []schemas.Cookie
		want    bool
	}{
		{"empty", nil, false},
		{"session marker", []schemas.Cookie{{Name: "SESSION_ID"}}, true},
		{"jwt marker", []schemas.Cookie{{Name: "app_jwt"}}, true},
		{"auth marker among noise", []schemas.Cookie{{Name: "theme"}, {Name: "oauth_state"}}, true},
		{"no markers", []schemas.Cookie{{Name: "theme"}, {Name: "locale"}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HasAuthCookie(tc.cookies))
		})
	}
}

// stubCookieSession implements the minimum of schemas.SessionContext needed to
// exercise the login wait.
type stubCookieSession struct {
	schemas.SessionContext
	cookies []schemas.Cookie
}

func (s *stubCookieSession) Cookies(context.Context) ([]schemas.Cookie, error) {
	return s.cookies, nil
}

func TestWaitForLogin_TimeoutReturnsCurrentJar(t *testing.T) {
	session := &stubCookieSession{cookies: []schemas.Cookie{{Name: "theme"}}}

	cookies, loggedIn := WaitForLogin(context.Background(), session, 10*time.Millisecond, zap.NewNop())
	assert.False(t, loggedIn)
	assert.Equal(t, session.cookies, cookies)
}

func TestWaitForLogin_TimeoutWithAuthCookie(t *testing.T) {
	session := &stubCookieSession{cookies: []schemas.Cookie{{Name: "session_id"}}}

	_, loggedIn := WaitForLogin(context.Background(), session, 10*time.Millisecond, zap.NewNop())
	assert.True(t, loggedIn)
}

func TestWaitForLogin_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, loggedIn := WaitForLogin(ctx, &stubCookieSession{}, time.Minute, zap.NewNop())
	assert.False(t, loggedIn)
}
