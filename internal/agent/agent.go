// internal/agent/agent.go
package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot-cli/api/schemas"
	"github.com/taskpilot/taskpilot-cli/internal/browser"
	"github.com/taskpilot/taskpilot-cli/internal/config"
	"github.com/taskpilot/taskpilot-cli/internal/executor"
	"github.com/taskpilot/taskpilot-cli/internal/planner"
	"github.com/taskpilot/taskpilot-cli/internal/resolver"
)

// SessionFactory creates isolated browser sessions. Satisfied by
// browser.Manager; tests substitute a stub.
type SessionFactory interface {
	NewSession(ctx context.Context) (schemas.SessionContext, error)
}

// Agent drives one task end to end: resolve URLs, establish a session, acquire
// a plan, execute it, and assemble the report. Strictly sequential; the agent
// exclusively owns its session for the whole run.
type Agent struct {
	id       string
	cfg      *config.Config
	logger   *zap.Logger
	resolver *resolver.Resolver
	planner  *planner.Planner
	sessions SessionFactory
	executor *executor.Executor

	stage stage
}

// New wires an Agent from its collaborators.
func New(cfg *config.Config, client schemas.LLMClient, sessions SessionFactory, logger *zap.Logger) *Agent {
	runID := uuid.New().String()[:8]
	agentLogger := logger.Named("agent").With(zap.String("run_id", runID))

	return &Agent{
		id:       runID,
		cfg:      cfg,
		logger:   agentLogger,
		resolver: resolver.New(client, agentLogger),
		planner:  planner.New(client, cfg.Agent.DOMSnapshotLimit, agentLogger),
		sessions: sessions,
		executor: executor.New(agentLogger),
		stage:    stageStart,
	}
}

// Run executes the task. It always returns a report, even when the run dies
// early; the report's status field is the single source of truth for the
// outcome.
func (a *Agent) Run(ctx context.Context) *schemas.Report {
	task := a.cfg.Run.Task
	report := &schemas.Report{
		Task:      task,
		Status:    schemas.StatusFailed,
		StartedAt: time.Now().UTC(),
	}
	defer func() {
		report.FinishedAt = time.Now().UTC()
	}()

	a.logger.Info("Starting agent run.", zap.String("task", task))

	// -- Resolve the base URL --
	a.setStage(stageResolvingBase)
	site, err := a.resolveBase(ctx, task)
	if err != nil {
		return a.fail(report, err)
	}
	report.BaseURL = &site.BaseURL

	cookies, err := browser.LoadCookieFile(a.cfg.Run.CookieFile)
	if err != nil {
		return a.fail(report, err)
	}

	// -- Establish the session --
	a.setStage(stageEstablishingSession)
	session, err := a.sessions.NewSession(ctx)
	if err != nil {
		return a.fail(report, fmt.Errorf("failed to create browser session: %w", err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			a.logger.Warn("Session close failed.", zap.Error(err))
		}
	}()

	if err := a.establishSession(ctx, session, &site, cookies, report); err != nil {
		return a.fail(report, err)
	}

	// -- Resolve the task URL --
	a.setStage(stageResolvingTaskURL)
	site, err = a.resolver.ResolveTaskURL(ctx, task, site)
	if err != nil {
		return a.fail(report, err)
	}
	report.TaskURL = &site.TaskURL
	report.CrossOriginTaskURL = site.CrossOriginTaskURL

	// -- Navigate to the task page --
	a.setStage(stageNavigatingTask)
	if outcome := session.Navigate(ctx, site.TaskURL); !outcome.OK() {
		return a.fail(report, &schemas.NavigationError{
			URL: site.TaskURL,
			Err: fmt.Errorf("%s", outcome.Err),
		})
	}
	a.captureTaskPage(ctx, session)

	// -- Acquire the plan --
	a.setStage(stagePlanning)
	dom, err := session.DOMSnapshot(ctx)
	if err != nil {
		return a.fail(report, err)
	}
	plan, err := a.planner.BuildPlan(ctx, task, dom)
	if err != nil {
		return a.fail(report, err)
	}
	report.Plan = planRecords(plan.Steps)

	steps, truncated := a.capSteps(plan.Steps)

	// -- Execute --
	a.setStage(stageExecuting)
	trace := a.executor.Execute(ctx, session, steps)
	trace = append(trace, truncated...)
	report.Trace = mergeTrace(trace, plan.Dropped)

	// -- Report --
	a.setStage(stageReporting)
	report.Status = statusFor(report.Trace)
	a.setStage(stageDone)

	a.logger.Info("Agent run complete.",
		zap.String("status", string(report.Status)),
		zap.Int("trace_entries", len(report.Trace)))
	return report
}

// resolveBase resolves the application's base URL, honoring a --start-url
// override which skips the reasoning round-trip entirely.
func (a *Agent) resolveBase(ctx context.Context, task string) (schemas.SiteContext, error) {
	if override := a.cfg.Run.StartURL; override != "" {
		sanitized, err := resolver.SanitizeURL(override)
		if err != nil {
			return schemas.SiteContext{}, fmt.Errorf("invalid start URL override: %w", err)
		}
		a.logger.Info("Using start URL override.", zap.String("base_url", sanitized))
		return schemas.SiteContext{BaseURL: sanitized}, nil
	}
	return a.resolver.ResolveBase(ctx, task)
}

// establishSession injects cookies and performs the bootstrap navigation. With
// cookies, a successful base navigation counts as logged in. Without cookies
// the login URL is derived and navigated exactly once; the optional bounded
// login wait then polls for an authenticated session.
func (a *Agent) establishSession(
	ctx context.Context,
	session schemas.SessionContext,
	site *schemas.SiteContext,
	cookies []schemas.Cookie,
	report *schemas.Report,
) error {
	injected, err := session.InjectCookies(ctx, cookies)
	if err != nil {
		return fmt.Errorf("cookie injection failed: %w", err)
	}

	if injected {
		report.CookiesInjected = len(cookies)
		if outcome := session.Navigate(ctx, site.BaseURL); !outcome.OK() {
			return &schemas.NavigationError{URL: site.BaseURL, Err: fmt.Errorf("%s", outcome.Err)}
		}
		report.LoggedInViaCookies = true
		a.logger.Info("Session restored from cookies.", zap.Int("cookies", len(cookies)))
		return nil
	}

	site.LoginURL = a.resolver.DeriveLoginURL(*site)
	report.LoginURL = &site.LoginURL

	// The login page is visited exactly once; there is no retry loop.
	if outcome := session.Navigate(ctx, site.LoginURL); !outcome.OK() {
		return &schemas.NavigationError{URL: site.LoginURL, Err: fmt.Errorf("%s", outcome.Err)}
	}
	a.logger.Info("No cookies available; manual login required.",
		zap.String("login_url", site.LoginURL))

	if a.cfg.Agent.LoginWait {
		saved, ok := browser.WaitForLogin(ctx, session, a.cfg.Agent.LoginWaitTimeout, a.logger)
		if ok && a.cfg.Run.OutDir != "" {
			path := filepath.Join(a.cfg.Run.OutDir, "cookies.json")
			if err := browser.SaveCookieFile(path, saved); err != nil {
				a.logger.Warn("Failed to save session cookies.", zap.Error(err))
			} else {
				a.logger.Info("Session cookies saved for future runs.", zap.String("path", path))
			}
		}
	}
	return nil
}

// captureTaskPage takes the task-page screenshot into the output directory.
// Best effort; a capture failure never affects the run.
func (a *Agent) captureTaskPage(ctx context.Context, session schemas.SessionContext) {
	if !a.cfg.Agent.Screenshots || a.cfg.Run.OutDir == "" {
		return
	}
	path := filepath.Join(a.cfg.Run.OutDir, "task_page.png")
	if err := session.CaptureScreenshot(ctx, path); err != nil {
		a.logger.Warn("Task page screenshot failed.", zap.Error(err))
	}
}

// capSteps bounds the plan at the configured step limit. Steps beyond the cap
// are recorded as skipped rather than silently discarded.
func (a *Agent) capSteps(steps []schemas.Step) ([]schemas.Step, []schemas.TraceEntry) {
	max := a.cfg.Agent.MaxSteps
	if max <= 0 || len(steps) <= max {
		return steps, nil
	}

	a.logger.Warn("Plan exceeds step limit; excess steps will be skipped.",
		zap.Int("plan_steps", len(steps)),
		zap.Int("max_steps", max))

	var skipped []schemas.TraceEntry
	for _, step := range steps[max:] {
		skipped = append(skipped, schemas.TraceEntry{
			Kind:      step.Kind,
			Target:    step.Target,
			Outcome:   schemas.OutcomeSkipped,
			Detail:    "step limit exceeded",
			Timestamp: time.Now().UTC(),
			Record:    step.Record,
		})
	}
	return steps[:max], skipped
}

func (a *Agent) setStage(next stage) {
	a.logger.Debug("Stage transition.",
		zap.String("from", string(a.stage)),
		zap.String("to", string(next)))
	a.stage = next
}

// fail marks the run failed at the current stage. The partially filled report
// is still returned and written.
func (a *Agent) fail(report *schemas.Report, err error) *schemas.Report {
	a.logger.Error("Agent run failed.",
		zap.String("stage", string(a.stage)),
		zap.Error(err))
	a.stage = stageFailed
	report.Status = schemas.StatusFailed
	report.Error = err.Error()
	return report
}
