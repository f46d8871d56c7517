// internal/resolver/resolver.go
package resolver

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot-cli/api/schemas"
	"github.com/taskpilot/taskpilot-cli/internal/llmutil"
)

// Resolver determines the base, login, and task-specific URLs for one task by
// asking the reasoning service and validating its answers. Responses are never
// cached across runs; the underlying service is not assumed deterministic.
type Resolver struct {
	client schemas.LLMClient
	logger *zap.Logger
}

// New creates a Resolver.
func New(client schemas.LLMClient, logger *zap.Logger) *Resolver {
	return &Resolver{
		client: client,
		logger: logger.Named("resolver"),
	}
}

// ResolveBase asks the reasoning service for the application's base domain and
// returns a SiteContext with a validated, normalized BaseURL.
func (r *Resolver) ResolveBase(ctx context.Context, task string) (schemas.SiteContext, error) {
	resp, err := r.client.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: basePrompt(task),
		Options:    schemas.GenerationOptions{Temperature: 0.0},
	})
	if err != nil {
		return schemas.SiteContext{}, &schemas.ResolutionError{Stage: "base", Err: err}
	}

	baseURL, err := SanitizeURL(resp)
	if err != nil {
		return schemas.SiteContext{}, &schemas.ResolutionError{
			Stage: "base",
			Raw:   llmutil.Truncate(resp, 200),
			Err:   err,
		}
	}

	r.logger.Info("Resolved base URL", zap.String("base_url", baseURL))
	return schemas.SiteContext{BaseURL: baseURL}, nil
}

// DeriveLoginURL returns the deterministic login URL for the site. It is only
// consulted when no session cookies are available; a cookie-restored session
// skips login derivation entirely.
func (r *Resolver) DeriveLoginURL(site schemas.SiteContext) string {
	return strings.TrimRight(site.BaseURL, "/") + "/login"
}

// ResolveTaskURL performs the second, independent reasoning round-trip for a
// deep-link where the task can be carried out. A cross-origin answer is
// accepted but flagged; it is never silently rewritten.
func (r *Resolver) ResolveTaskURL(ctx context.Context, task string, site schemas.SiteContext) (schemas.SiteContext, error) {
	resp, err := r.client.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: taskURLPrompt(task, site.BaseURL),
		Options:    schemas.GenerationOptions{Temperature: 0.0},
	})
	if err != nil {
		return site, &schemas.ResolutionError{Stage: "task", Err: err}
	}

	taskURL, err := SanitizeURL(resp)
	if err != nil {
		return site, &schemas.ResolutionError{
			Stage: "task",
			Raw:   llmutil.Truncate(resp, 200),
			Err:   err,
		}
	}

	site.TaskURL = taskURL
	if !sameOrigin(site.BaseURL, taskURL) {
		site.CrossOriginTaskURL = true
		r.logger.Warn("Task URL is cross-origin relative to the base URL",
			zap.String("base_url", site.BaseURL),
			zap.String("task_url", taskURL))
	} else {
		r.logger.Info("Resolved task URL", zap.String("task_url", taskURL))
	}
	return site, nil
}

// SanitizeURL cleans a raw reasoning response down to a well-formed absolute
// http(s) URL: junk characters trimmed, scheme defaulted to https://, trailing
// slash normalized. It fails rather than return a malformed URL.
func SanitizeURL(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	candidate = strings.Trim(candidate, "`'\"")

	// Prefer an explicit URL embedded in the text.
	if match, ok := llmutil.FirstURL(candidate); ok {
		candidate = match
	} else {
		// A bare domain is acceptable; everything else is not.
		if candidate == "" || strings.ContainsAny(candidate, " \t\n") || !strings.Contains(candidate, ".") {
			return "", fmt.Errorf("response does not contain a URL: %q", llmutil.Truncate(raw, 120))
		}
		candidate = "https://" + candidate
	}

	// Clean malformed fragments the reasoning service sometimes appends.
	candidate = strings.ReplaceAll(candidate, "\\", "")

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", candidate, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL %q has no host", candidate)
	}

	// Normalize the trailing slash on bare roots.
	if parsed.Path == "/" && parsed.RawQuery == "" && parsed.Fragment == "" {
		parsed.Path = ""
	}
	return parsed.String(), nil
}

// sameOrigin compares scheme and host (including port).
func sameOrigin(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host
}

func basePrompt(task string) string {
	return fmt.Sprintf(
		"Task: %s\n"+
			"Respond with ONLY the clean base website URL (e.g., https://linear.app) where this task would be performed. "+
			"Do not include /login or any explanations - only the root URL.",
		task)
}

func taskURLPrompt(task, baseURL string) string {
	return fmt.Sprintf(
		"Task: %s\n"+
			"The application's base URL is %s.\n"+
			"Output ONLY the clean, fully qualified URL (https...) where this task can be done. "+
			"Do not include quotes, backticks, or explanations - just the URL itself.",
		task, baseURL)
}
