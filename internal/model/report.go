package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// RunReport summarizes one pipeline run for operator review.
type RunReport struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`

	RecordsSelected int `json:"records_selected"`
	RecordsAnnotated int `json:"records_annotated"`

	RuleFields  int `json:"rule_fields"`
	ModelFields int `json:"model_fields"`

	BatchesDispatched int `json:"batches_dispatched"`
	BatchesRetried    int `json:"batches_retried"`
	BatchesAbandoned  int `json:"batches_abandoned"`

	Filled    int `json:"filled"`
	Corrected int `json:"corrected"`
	Skipped   int `json:"skipped"`

	// Coverage maps field key -> fraction of records with a non-empty value
	// after merge.
	Coverage map[string]float64 `json:"coverage"`
	// Unresolved maps field key -> count of records still empty after merge.
	Unresolved map[string]int `json:"unresolved"`
}

// RenderCoverage formats per-field coverage as an aligned text table, fields
// sorted by key for stable output.
func RenderCoverage(coverage map[string]float64, unresolved map[string]int) string {
	keys := make([]string, 0, len(coverage))
	for k := range coverage {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%-20s %6.1f%%", k, coverage[k]*100)
		if n, ok := unresolved[k]; ok && n > 0 {
			fmt.Fprintf(&b, "  (%d unresolved)", n)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
