// internal/executor/executor.go
package executor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot-cli/api/schemas"
)

const defaultWait = 1 * time.Second

// Executor runs a validated plan against a browser session, step by step, in
// order. A failing step never halts the run; every step produces exactly one
// trace entry.
type Executor struct {
	logger *zap.Logger
}

// New creates an Executor.
func New(logger *zap.Logger) *Executor {
	return &Executor{logger: logger.Named("executor")}
}

// Execute walks the plan sequentially. Steps with a missing locator or value
// are skipped (a data problem, nothing was attempted); attempted steps that
// error are failed. Cancellation stops execution and marks the remaining
// steps skipped.
func (e *Executor) Execute(ctx context.Context, session schemas.SessionContext, steps []schemas.Step) []schemas.TraceEntry {
	trace := make([]schemas.TraceEntry, 0, len(steps))

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Run cancelled; skipping remaining steps.",
				zap.Int("remaining", len(steps)-i))
			for _, rest := range steps[i:] {
				trace = append(trace, skippedEntry(rest, "run cancelled before step executed"))
			}
			return trace
		}

		trace = append(trace, e.executeStep(ctx, session, step))
	}
	return trace
}

func (e *Executor) executeStep(ctx context.Context, session schemas.SessionContext, step schemas.Step) schemas.TraceEntry {
	logger := e.logger.With(
		zap.String("kind", string(step.Kind)),
		zap.String("target", step.Target))

	if reason := step.MissingRequirement(); reason != "" {
		logger.Warn("Skipping step with missing requirement.", zap.String("reason", reason))
		return skippedEntry(step, reason)
	}

	logger.Info("Executing step.")
	start := time.Now()
	err := e.attempt(ctx, session, step)
	elapsed := time.Since(start).Milliseconds()

	entry := schemas.TraceEntry{
		Kind:      step.Kind,
		Target:    step.Target,
		Outcome:   schemas.OutcomeSuccess,
		ElapsedMS: elapsed,
		Timestamp: time.Now().UTC(),
		Record:    step.Record,
	}
	if err != nil {
		logger.Warn("Step failed; continuing with the rest of the plan.", zap.Error(err))
		entry.Outcome = schemas.OutcomeFailed
		entry.Detail = err.Error()
	}
	return entry
}

// attempt maps one step onto exactly one session interaction.
func (e *Executor) attempt(ctx context.Context, session schemas.SessionContext, step schemas.Step) error {
	switch step.Kind {
	case schemas.StepNavigate:
		outcome := session.Navigate(ctx, step.Target)
		if !outcome.OK() {
			return &schemas.StepExecutionError{
				Step: step,
				Err:  fmt.Errorf("navigation failed: %s", outcome.Err),
			}
		}
		return nil
	case schemas.StepClick:
		return wrapStepErr(step, session.Click(ctx, step.Target))
	case schemas.StepType:
		return wrapStepErr(step, session.Type(ctx, step.Target, step.Value))
	case schemas.StepSelect:
		return wrapStepErr(step, session.SelectOption(ctx, step.Target, step.Value))
	case schemas.StepSubmit:
		return wrapStepErr(step, session.Submit(ctx, step.Target))
	case schemas.StepWait:
		return wrapStepErr(step, session.WaitForAsync(ctx, waitDuration(step.Value)))
	default:
		return &schemas.UnsupportedStepError{Kind: step.Kind}
	}
}

func wrapStepErr(step schemas.Step, err error) error {
	if err == nil {
		return nil
	}
	return &schemas.StepExecutionError{Step: step, Err: err}
}

// waitDuration parses a wait value in seconds, defaulting when absent or
// unparsable.
func waitDuration(value string) time.Duration {
	if value == "" {
		return defaultWait
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil || seconds <= 0 {
		return defaultWait
	}
	return time.Duration(seconds * float64(time.Second))
}

func skippedEntry(step schemas.Step, reason string) schemas.TraceEntry {
	return schemas.TraceEntry{
		Kind:      step.Kind,
		Target:    step.Target,
		Outcome:   schemas.OutcomeSkipped,
		Detail:    reason,
		Timestamp: time.Now().UTC(),
		Record:    step.Record,
	}
}
