package schemas

import (
	"fmt"
)

// The error taxonomy for one agent run. Resolution and catastrophic navigation
// errors are unrecoverable and drive the run to a failed report; step-level
// errors are recovered locally and recorded in the trace.

// ResolutionError signals that a URL could not be obtained from the reasoning
// service or failed validation. No browser action is ever attempted against an
// invalid URL.
type ResolutionError struct {
	Stage string // "base" or "task"
	Raw   string // the raw reasoning response, truncated by the caller
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("url resolution failed (%s): %v", e.Stage, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// NavigationError signals the browser failed to load a URL.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %q failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// UnsupportedStepError signals a plan step kind outside the known vocabulary.
// Such steps fail fast and are never attempted blindly.
type UnsupportedStepError struct {
	Kind StepKind
}

func (e *UnsupportedStepError) Error() string {
	return fmt.Sprintf("unsupported step kind: %q", string(e.Kind))
}

// StepExecutionError signals a single UI interaction failed against a loaded
// page. It is recovered locally: the step is recorded as failed and execution
// continues.
type StepExecutionError struct {
	Step Step
	Err  error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %s(%s) failed: %v", string(e.Step.Kind), e.Step.Target, e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// PlanParseError signals the reasoning response could not be parsed into any
// valid steps at all. Individual bad records are dropped instead; this error
// means there is nothing to execute.
type PlanParseError struct {
	Reason string
	Raw    string
}

func (e *PlanParseError) Error() string {
	return fmt.Sprintf("plan unparsable: %s", e.Reason)
}
