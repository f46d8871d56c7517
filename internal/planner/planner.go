// internal/planner/planner.go
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/taskpilot/taskpilot-cli/api/schemas"
	"github.com/taskpilot/taskpilot-cli/internal/llmutil"
)

// Planner turns a natural-language task plus a DOM snapshot into a validated
// UI action plan. The reasoning response is untrusted free text: records that
// cannot be parsed are dropped with a warning and surface later as synthetic
// skipped trace entries; only a fully unparsable response aborts planning.
type Planner struct {
	client        schemas.LLMClient
	logger        *zap.Logger
	snapshotLimit int
}

// New creates a Planner. snapshotLimit bounds the DOM bytes sent per prompt.
func New(client schemas.LLMClient, snapshotLimit int, logger *zap.Logger) *Planner {
	if snapshotLimit <= 0 {
		snapshotLimit = 16000
	}
	return &Planner{
		client:        client,
		logger:        logger.Named("planner"),
		snapshotLimit: snapshotLimit,
	}
}

// Ask sends a raw, self-contained prompt to the reasoning service.
func (p *Planner) Ask(ctx context.Context, prompt string) (string, error) {
	return p.client.Generate(ctx, schemas.GenerationRequest{
		UserPrompt: prompt,
		Options:    schemas.GenerationOptions{Temperature: 0.0},
	})
}

// planRecord mirrors the loose vocabulary the reasoning service emits. Field
// aliases (action/type/kind, selector/sel/query/target, value/text/fill) are
// all accepted and normalized into a Step.
type planRecord struct {
	Action   string          `json:"action"`
	Type     string          `json:"type"`
	Kind     string          `json:"kind"`
	Selector string          `json:"selector"`
	Sel      string          `json:"sel"`
	Query    string          `json:"query"`
	Target   string          `json:"target"`
	URL      string          `json:"url"`
	Value    json.RawMessage `json:"value"`
	Text     string          `json:"text"`
	Fill     string          `json:"fill"`
	Seconds  json.RawMessage `json:"seconds"`
	Desc     string          `json:"desc"`
}

// kindAliases maps reasoning-service verbs onto the closed step vocabulary.
var kindAliases = map[string]schemas.StepKind{
	"navigate":      schemas.StepNavigate,
	"goto":          schemas.StepNavigate,
	"open":          schemas.StepNavigate,
	"click":         schemas.StepClick,
	"type":          schemas.StepType,
	"fill":          schemas.StepType,
	"set_value":     schemas.StepType,
	"input_text":    schemas.StepType,
	"select":        schemas.StepSelect,
	"select_option": schemas.StepSelect,
	"wait":          schemas.StepWait,
	"submit":        schemas.StepSubmit,
	"submit_form":   schemas.StepSubmit,
}

// BuildPlan requests a UI action plan for the task against the given DOM
// snapshot and defensively parses the response.
func (p *Planner) BuildPlan(ctx context.Context, task, domSnapshot string) (schemas.Plan, error) {
	prompt := uiPlanPrompt(task, llmutil.Truncate(domSnapshot, p.snapshotLimit))

	resp, err := p.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: planSystemPrompt,
		UserPrompt:   prompt,
		Options:      schemas.GenerationOptions{Temperature: 0.0, ForceJSONFormat: true},
	})
	if err != nil {
		return schemas.Plan{}, fmt.Errorf("plan request failed: %w", err)
	}

	plan, err := p.ParsePlan(resp)
	if err != nil {
		return schemas.Plan{}, err
	}

	p.logger.Info("UI plan parsed",
		zap.Int("steps", len(plan.Steps)),
		zap.Int("dropped_records", len(plan.Dropped)))
	return plan, nil
}

// ParsePlan converts a raw reasoning response into a Plan. Individual
// malformed records are collected as DroppedRecords; if no record parses into
// a valid step at all, a PlanParseError is returned.
func (p *Planner) ParsePlan(resp string) (schemas.Plan, error) {
	records, err := extractRecords(resp)
	if err != nil {
		return schemas.Plan{}, &schemas.PlanParseError{
			Reason: err.Error(),
			Raw:    llmutil.Truncate(resp, 500),
		}
	}

	var plan schemas.Plan
	for i, raw := range records {
		step, reason := parseRecord(raw)
		if reason != "" {
			p.logger.Warn("Dropping unparsable plan record",
				zap.Int("record", i),
				zap.String("reason", reason))
			plan.Dropped = append(plan.Dropped, schemas.DroppedRecord{
				Record: i,
				Reason: reason,
				Raw:    llmutil.Truncate(string(raw), 200),
			})
			continue
		}
		step.Record = i
		plan.Steps = append(plan.Steps, step)
	}

	if len(plan.Steps) == 0 {
		return schemas.Plan{}, &schemas.PlanParseError{
			Reason: "no executable steps could be parsed from the response",
			Raw:    llmutil.Truncate(resp, 500),
		}
	}
	return plan, nil
}

// extractRecords pulls the raw step records out of the response, accepting a
// bare array or an object wrapping the array under "plan" or "steps".
func extractRecords(resp string) ([]json.RawMessage, error) {
	if records, err := llmutil.ParseJSONResponse[[]json.RawMessage](resp); err == nil {
		return *records, nil
	}

	type planWrapper struct {
		Plan  []json.RawMessage `json:"plan"`
		Steps []json.RawMessage `json:"steps"`
	}
	wrapper, err := llmutil.ParseJSONResponse[planWrapper](resp)
	if err != nil {
		return nil, fmt.Errorf("response is neither a step array nor a plan object: %w", err)
	}
	if len(wrapper.Plan) > 0 {
		return wrapper.Plan, nil
	}
	if len(wrapper.Steps) > 0 {
		return wrapper.Steps, nil
	}
	return nil, fmt.Errorf("plan object contains no steps")
}

// parseRecord normalizes one record into a Step. A non-empty reason marks the
// record as dropped.
func parseRecord(raw json.RawMessage) (schemas.Step, string) {
	var rec planRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return schemas.Step{}, fmt.Sprintf("malformed record: %v", err)
	}

	verb := firstNonEmpty(rec.Action, rec.Type, rec.Kind)
	if verb == "" {
		return schemas.Step{}, "record missing step kind"
	}

	kind, ok := kindAliases[strings.ToLower(strings.TrimSpace(verb))]
	if !ok {
		return schemas.Step{}, fmt.Sprintf("unknown step kind %q", verb)
	}

	step := schemas.Step{
		Kind:   kind,
		Target: firstNonEmpty(rec.Selector, rec.Sel, rec.Query, rec.Target, rec.URL),
		Value:  firstNonEmpty(rawToString(rec.Value), rec.Text, rec.Fill),
		Desc:   rec.Desc,
	}

	// Wait durations sometimes arrive as a separate numeric field.
	if kind == schemas.StepWait && step.Value == "" {
		step.Value = rawToString(rec.Seconds)
	}

	if reason := step.MissingRequirement(); reason != "" {
		return schemas.Step{}, reason
	}
	return step, ""
}

// rawToString renders a JSON scalar (string or number) as its plain text form.
func rawToString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
