// internal/agent/report.go
package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/taskpilot/taskpilot-cli/api/schemas"
)

var reportJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ReportFileName is the fixed artifact name inside the output directory.
const ReportFileName = "report.json"

// WriteReport serializes the report into outDir/report.json, creating the
// directory if needed. The report is written exactly once per run.
func WriteReport(outDir string, report *schemas.Report) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outDir, err)
	}

	data, err := reportJSON.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	path := filepath.Join(outDir, ReportFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return path, nil
}

// planRecords projects the parsed steps into the report-facing form.
func planRecords(steps []schemas.Step) []schemas.PlanStepRecord {
	records := make([]schemas.PlanStepRecord, 0, len(steps))
	for _, step := range steps {
		records = append(records, schemas.PlanStepRecord{
			Kind:   step.Kind,
			Target: step.Target,
			Value:  step.Value,
		})
	}
	return records
}

// mergeTrace interleaves executed entries with synthetic skipped entries for
// records the planner dropped, ordered by original record index so the trace
// mirrors the reasoning response.
func mergeTrace(executed []schemas.TraceEntry, dropped []schemas.DroppedRecord) []schemas.TraceEntry {
	merged := make([]schemas.TraceEntry, 0, len(executed)+len(dropped))
	merged = append(merged, executed...)
	for _, rec := range dropped {
		detail := "unparsable plan record: " + rec.Reason
		if rec.Raw != "" {
			detail += " (record: " + rec.Raw + ")"
		}
		merged = append(merged, schemas.TraceEntry{
			Outcome:   schemas.OutcomeSkipped,
			Detail:    detail,
			Timestamp: time.Now().UTC(),
			Record:    rec.Record,
		})
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Record < merged[j].Record
	})
	return merged
}

// statusFor classifies a run that reached execution: success only when every
// trace entry succeeded, partial otherwise. Runs that die earlier are failed
// and never get here.
func statusFor(trace []schemas.TraceEntry) schemas.RunStatus {
	for _, entry := range trace {
		if entry.Outcome != schemas.OutcomeSuccess {
			return schemas.StatusPartial
		}
	}
	if len(trace) == 0 {
		return schemas.StatusPartial
	}
	return schemas.StatusSuccess
}
