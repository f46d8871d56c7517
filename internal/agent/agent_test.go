package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot-cli/api/schemas"
	"github.com/taskpilot/taskpilot-cli/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- stubs --

type stubLLM struct {
	responses []string
	err       error
	prompts   []string
}

func (s *stubLLM) Generate(_ context.Context, req schemas.GenerationRequest) (string, error) {
	s.prompts = append(s.prompts, req.UserPrompt)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("stub exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

type stubSession struct {
	navigations []string
	injected    []schemas.Cookie
	dom         string
	failNavTo   string
	clickErr    error
	closed      bool
}

func (s *stubSession) ID() string { return "stub-session" }

func (s *stubSession) InjectCookies(_ context.Context, cookies []schemas.Cookie) (bool, error) {
	if len(cookies) == 0 {
		return false, nil
	}
	s.injected = cookies
	return true, nil
}

func (s *stubSession) Navigate(_ context.Context, url string) schemas.NavigationOutcome {
	s.navigations = append(s.navigations, url)
	if s.failNavTo == url {
		return schemas.NavigationOutcome{Status: schemas.NavigationFailed, Err: "net::ERR_CONNECTION_REFUSED"}
	}
	return schemas.NavigationOutcome{Status: schemas.NavigationOK, FinalURL: url}
}

func (s *stubSession) Click(context.Context, string) error { return s.clickErr }

func (s *stubSession) Type(context.Context, string, string) error { return nil }

func (s *stubSession) SelectOption(context.Context, string, string) error {
	return nil
}

func (s *stubSession) Submit(context.Context, string) error { return nil }
func (s *stubSession) WaitForAsync(context.Context, time.Duration) error {
	return nil
}

func (s *stubSession) DOMSnapshot(context.Context) (string, error) {
	if s.dom == "" {
		return "<html><body></body></html>", nil
	}
	return s.dom, nil
}

func (s *stubSession) Cookies(context.Context) ([]schemas.Cookie, error) {
	return s.injected, nil
}

func (s *stubSession) CaptureScreenshot(context.Context, string) error { return nil }

func (s *stubSession) Close(context.Context) error {
	s.closed = true
	return nil
}

type stubFactory struct {
	session *stubSession
	err     error
}

func (f *stubFactory) NewSession(context.Context) (schemas.SessionContext, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

// -- helpers --

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.Run = config.RunConfig{Task: "Create a new project named X in Linear"}
	cfg.Agent.Screenshots = false
	cfg.Agent.LoginWait = false
	return cfg
}

func writeCookieFile(t *testing.T, cookies string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, os.WriteFile(path, []byte(cookies), 0o600))
	return path
}

const planResponse = `[
	{"action":"click","selector":"button[data-testid='new-project']"},
	{"action":"type","selector":"input[name='name']","value":"X"},
	{"action":"submit","selector":"form"}
]`

// -- tests --

func TestRun_SuccessWithCookies(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.CookieFile = writeCookieFile(t,
		`[{"name":"session_id","value":"abc","domain":".linear.app"}]`)

	llm := &stubLLM{responses: []string{
		"https://linear.app",
		"https://linear.app/team/projects",
		planResponse,
	}}
	session := &stubSession{}

	report := New(cfg, llm, &stubFactory{session: session}, zap.NewNop()).Run(context.Background())

	assert.Equal(t, schemas.StatusSuccess, report.Status)
	assert.Empty(t, report.Error)

	require.NotNil(t, report.BaseURL)
	assert.Equal(t, "https://linear.app", *report.BaseURL)
	require.NotNil(t, report.TaskURL)
	assert.Equal(t, "https://linear.app/team/projects", *report.TaskURL)

	// Cookie-restored sessions never touch a login page.
	assert.Nil(t, report.LoginURL)
	assert.True(t, report.LoggedInViaCookies)
	assert.Equal(t, 1, report.CookiesInjected)
	assert.Equal(t, []string{"https://linear.app", "https://linear.app/team/projects"}, session.navigations)

	require.Len(t, report.Plan, 3)
	require.Len(t, report.Trace, 3)
	for _, entry := range report.Trace {
		assert.Equal(t, schemas.OutcomeSuccess, entry.Outcome)
	}
	assert.True(t, session.closed)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))
}

func TestRun_NoCookiesVisitsLoginExactlyOnce(t *testing.T) {
	cfg := testConfig(t)

	llm := &stubLLM{responses: []string{
		"https://linear.app",
		"https://linear.app/team/projects",
		planResponse,
	}}
	session := &stubSession{}

	report := New(cfg, llm, &stubFactory{session: session}, zap.NewNop()).Run(context.Background())

	assert.False(t, report.LoggedInViaCookies)
	assert.Zero(t, report.CookiesInjected)
	require.NotNil(t, report.LoginURL)
	assert.Equal(t, "https://linear.app/login", *report.LoginURL)

	loginVisits := 0
	for _, url := range session.navigations {
		if url == "https://linear.app/login" {
			loginVisits++
		}
	}
	assert.Equal(t, 1, loginVisits)
}

func TestRun_MalformedPlanRecordYieldsSyntheticSkippedEntry(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.CookieFile = writeCookieFile(t,
		`[{"name":"session_id","value":"abc","domain":".linear.app"}]`)

	// One valid step, one record with no target.
	llm := &stubLLM{responses: []string{
		"https://linear.app",
		"https://linear.app/projects",
		`[{"action":"click","selector":"#ok"},{"action":"type","value":"orphan"}]`,
	}}
	session := &stubSession{}

	report := New(cfg, llm, &stubFactory{session: session}, zap.NewNop()).Run(context.Background())

	require.Len(t, report.Plan, 1)
	require.Len(t, report.Trace, 2)
	assert.Equal(t, schemas.OutcomeSuccess, report.Trace[0].Outcome)
	assert.Equal(t, schemas.OutcomeSkipped, report.Trace[1].Outcome)
	assert.Contains(t, report.Trace[1].Detail, "unparsable plan record")
	assert.Equal(t, schemas.StatusPartial, report.Status)
}

func TestRun_StepFailureIsPartialNotFailed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.CookieFile = writeCookieFile(t,
		`[{"name":"auth","value":"x","domain":".linear.app"}]`)

	llm := &stubLLM{responses: []string{
		"https://linear.app",
		"https://linear.app/projects",
		planResponse,
	}}
	session := &stubSession{clickErr: errors.New("node not found")}

	report := New(cfg, llm, &stubFactory{session: session}, zap.NewNop()).Run(context.Background())

	assert.Equal(t, schemas.StatusPartial, report.Status)
	require.Len(t, report.Trace, 3)
	assert.Equal(t, schemas.OutcomeFailed, report.Trace[0].Outcome)
	assert.Equal(t, schemas.OutcomeSuccess, report.Trace[1].Outcome)
}

func TestRun_BaseResolutionFailureIsFailedReport(t *testing.T) {
	cfg := testConfig(t)
	llm := &stubLLM{err: errors.New("service unavailable")}
	session := &stubSession{}

	report := New(cfg, llm, &stubFactory{session: session}, zap.NewNop()).Run(context.Background())

	assert.Equal(t, schemas.StatusFailed, report.Status)
	assert.NotEmpty(t, report.Error)
	assert.Nil(t, report.BaseURL)
	assert.Empty(t, report.Trace)
	// Failure happened before any session existed.
	assert.Empty(t, session.navigations)
}

func TestRun_UnparsablePlanIsFailed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.CookieFile = writeCookieFile(t,
		`[{"name":"sid","value":"x","domain":".linear.app"}]`)

	llm := &stubLLM{responses: []string{
		"https://linear.app",
		"https://linear.app/projects",
		"I cannot help with that.",
	}}
	session := &stubSession{}

	report := New(cfg, llm, &stubFactory{session: session}, zap.NewNop()).Run(context.Background())

	assert.Equal(t, schemas.StatusFailed, report.Status)
	assert.Contains(t, report.Error, "plan unparsable")
	assert.True(t, session.closed)
}

func TestRun_TaskNavigationFailureIsFailed(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.CookieFile = writeCookieFile(t,
		`[{"name":"sid","value":"x","domain":".linear.app"}]`)

	llm := &stubLLM{responses: []string{
		"https://linear.app",
		"https://linear.app/projects",
	}}
	session := &stubSession{failNavTo: "https://linear.app/projects"}

	report := New(cfg, llm, &stubFactory{session: session}, zap.NewNop()).Run(context.Background())

	assert.Equal(t, schemas.StatusFailed, report.Status)
	assert.Contains(t, report.Error, "ERR_CONNECTION_REFUSED")
	require.NotNil(t, report.TaskURL)
}

func TestRun_CrossOriginTaskURLFlagged(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.CookieFile = writeCookieFile(t,
		`[{"name":"sid","value":"x","domain":".linear.app"}]`)

	llm := &stubLLM{responses: []string{
		"https://linear.app",
		"https://admin.linear.dev/projects",
		planResponse,
	}}
	session := &stubSession{}

	report := New(cfg, llm, &stubFactory{session: session}, zap.NewNop()).Run(context.Background())

	assert.True(t, report.CrossOriginTaskURL)
	// The cross-origin URL is used as-is.
	assert.Contains(t, session.navigations, "https://admin.linear.dev/projects")
}

func TestRun_StartURLOverrideSkipsBaseResolution(t *testing.T) {
	cfg := testConfig(t)
	cfg.Run.StartURL = "https://linear.app"
	cfg.Run.CookieFile = writeCookieFile(t,
		`[{"name":"sid","value":"x","domain":".linear.app"}]`)

	// Only the task URL and plan round-trips remain.
	llm := &stubLLM{responses: []string{
		"https://linear.app/projects",
		planResponse,
	}}
	session := &stubSession{}

	report := New(cfg, llm, &stubFactory{session: session}, zap.NewNop()).Run(context.Background())

	assert.Equal(t, schemas.StatusSuccess, report.Status)
	require.NotNil(t, report.BaseURL)
	assert.Equal(t, "https://linear.app", *report.BaseURL)
	assert.Len(t, llm.prompts, 2)
}

func TestRun_SessionCreationFailureIsFailed(t *testing.T) {
	cfg := testConfig(t)
	llm := &stubLLM{responses: []string{"https://linear.app"}}

	report := New(cfg, llm, &stubFactory{err: errors.New("browser gone")}, zap.NewNop()).Run(context.Background())

	assert.Equal(t, schemas.StatusFailed, report.Status)
	assert.Contains(t, report.Error, "browser gone")
}

func TestRun_PlanCappedAtMaxSteps(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.MaxSteps = 2
	cfg.Run.CookieFile = writeCookieFile(t,
		`[{"name":"sid","value":"x","domain":".linear.app"}]`)

	llm := &stubLLM{responses: []string{
		"https://linear.app",
		"https://linear.app/projects",
		planResponse, // 3 steps
	}}
	session := &stubSession{}

	report := New(cfg, llm, &stubFactory{session: session}, zap.NewNop()).Run(context.Background())

	require.Len(t, report.Trace, 3)
	assert.Equal(t, schemas.OutcomeSuccess, report.Trace[0].Outcome)
	assert.Equal(t, schemas.OutcomeSuccess, report.Trace[1].Outcome)
	assert.Equal(t, schemas.OutcomeSkipped, report.Trace[2].Outcome)
	assert.Contains(t, report.Trace[2].Detail, "step limit")
	assert.Equal(t, schemas.StatusPartial, report.Status)
}
