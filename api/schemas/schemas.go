// api/schemas/schemas.go
package schemas

import (
	"time"
)

// StepKind enumerates the closed vocabulary of UI actions the agent is willing
// to execute. Anything outside this set is rejected before execution.
type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepClick    StepKind = "click"
	StepType     StepKind = "type"
	StepSelect   StepKind = "select"
	StepWait     StepKind = "wait"
	StepSubmit   StepKind = "submit"
)

// knownKinds is the authoritative set used for plan validation.
var knownKinds = map[StepKind]struct{}{
	StepNavigate: {},
	StepClick:    {},
	StepType:     {},
	StepSelect:   {},
	StepWait:     {},
	StepSubmit:   {},
}

// Known reports whether the kind is part of the supported vocabulary.
func (k StepKind) Known() bool {
	_, ok := knownKinds[k]
	return ok
}

// Step is one atomic UI action. Target is a locator (CSS selector, or a URL
// for navigate). Value carries the payload for type/select and the duration
// for wait.
type Step struct {
	Kind   StepKind `json:"kind"`
	Target string   `json:"target,omitempty"`
	Value  string   `json:"value,omitempty"`
	Desc   string   `json:"desc,omitempty"`

	// Record is the index of the source record in the reasoning response.
	// It keeps trace ordering stable when unparsable records are interleaved.
	Record int `json:"-"`
}

// MissingRequirement returns a non-empty description when the step cannot be
// attempted because a locator or required value is absent. This is the
// data-problem case that maps to a "skipped" trace outcome, as opposed to an
// attempted-and-failed interaction.
func (s Step) MissingRequirement() string {
	switch s.Kind {
	case StepNavigate:
		if s.Target == "" {
			return "navigate step missing target URL"
		}
	case StepClick, StepSubmit:
		if s.Target == "" {
			return string(s.Kind) + " step missing target locator"
		}
	case StepType, StepSelect:
		if s.Target == "" {
			return string(s.Kind) + " step missing target locator"
		}
		if s.Value == "" {
			return string(s.Kind) + " step missing value"
		}
	case StepWait:
		// Duration defaults when absent; nothing is required.
	}
	return ""
}

// DroppedRecord describes a reasoning-response record that could not be parsed
// into a valid Step. Dropped records surface in the final trace as synthetic
// "skipped" entries rather than aborting the whole plan.
type DroppedRecord struct {
	Record int    `json:"record"`
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"`
}

// Plan is the ordered, flat sequence of validated steps plus the records that
// were dropped during parsing. Ordering is significant; there is no branching.
type Plan struct {
	Steps   []Step          `json:"steps"`
	Dropped []DroppedRecord `json:"dropped,omitempty"`
}

// SiteContext carries the resolved URLs for one run. Fields are set once by
// the resolver and never mutated afterwards.
type SiteContext struct {
	BaseURL  string `json:"base_url,omitempty"`
	LoginURL string `json:"login_url,omitempty"`
	TaskURL  string `json:"task_url,omitempty"`

	// CrossOriginTaskURL is set when the reasoning service returned a task URL
	// on a different origin than BaseURL. The URL is accepted, never
	// rewritten; the flag is carried into the report.
	CrossOriginTaskURL bool `json:"cross_origin_task_url,omitempty"`
}

// Cookie matches the browser-boundary cookie record format.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path,omitempty"`
	// Expiry is a unix timestamp in seconds. Zero means a session cookie.
	Expiry int64 `json:"expiry,omitempty"`
}

// NavigationOutcome reports the result of one page load.
type NavigationOutcome struct {
	Status   string `json:"status"` // "ok" or "error"
	FinalURL string `json:"final_url,omitempty"`
	Err      string `json:"error,omitempty"`
}

// OK reports whether the navigation completed.
func (n NavigationOutcome) OK() bool { return n.Status == NavigationOK }

const (
	NavigationOK     = "ok"
	NavigationFailed = "error"
)

// Outcome classifies one executed (or deliberately not executed) step.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// TraceEntry is one append-only record of a step attempt.
type TraceEntry struct {
	Kind      StepKind  `json:"kind"`
	Target    string    `json:"target,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	ElapsedMS int64     `json:"elapsed_ms"`
	Timestamp time.Time `json:"timestamp"`

	// Record mirrors Step.Record for merge ordering.
	Record int `json:"-"`
}

// RunStatus is the overall result of one agent run. It is the single source of
// truth for success/failure; the process exit code only distinguishes
// "report written" from "catastrophic startup failure".
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusPartial RunStatus = "partial"
	StatusFailed  RunStatus = "failed"
)

// PlanStepRecord is the report-facing projection of a Step.
type PlanStepRecord struct {
	Kind   StepKind `json:"kind"`
	Target string   `json:"target,omitempty"`
	Value  string   `json:"value,omitempty"`
}

// Report is the final artifact of one run, written once at run end.
type Report struct {
	Task               string           `json:"task"`
	BaseURL            *string          `json:"base_url"`
	LoginURL           *string          `json:"login_url"`
	TaskURL            *string          `json:"task_url"`
	CrossOriginTaskURL bool             `json:"cross_origin_task_url,omitempty"`
	CookiesInjected    int              `json:"cookies_injected"`
	LoggedInViaCookies bool             `json:"logged_in_via_cookies"`
	Plan               []PlanStepRecord `json:"plan"`
	Trace              []TraceEntry     `json:"trace"`
	Status             RunStatus        `json:"status"`
	StartedAt          time.Time        `json:"started_at"`
	FinishedAt         time.Time        `json:"finished_at"`
	Error              string           `json:"error,omitempty"`
}

// GenerationOptions tunes a single reasoning request.
type GenerationOptions struct {
	Temperature     float32 `json:"temperature"`
	MaxTokens       int     `json:"max_tokens,omitempty"`
	ForceJSONFormat bool    `json:"force_json_format,omitempty"`
}

// GenerationRequest is one self-contained textual request to the reasoning
// service. Every prompt must carry whatever context it needs; the boundary has
// no multi-turn memory.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt,omitempty"`
	UserPrompt   string            `json:"user_prompt"`
	Options      GenerationOptions `json:"options"`
}
