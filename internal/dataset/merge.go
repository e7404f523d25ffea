package dataset

import (
	"sort"

	"go.uber.org/zap"

	"github.com/Sasuke-inu/immi-case/internal/model"
)

// MergeStats counts what a merge changed.
type MergeStats struct {
	Filled    int
	Corrected int
	Skipped   int
	Unknown   int
}

// Add folds other into s.
func (s *MergeStats) Add(other MergeStats) {
	s.Filled += other.Filled
	s.Corrected += other.Corrected
	s.Skipped += other.Skipped
	s.Unknown += other.Unknown
}

// Apply reconciles extraction results onto the in-memory dataset under a
// fill-only policy: an empty field takes the new value ("filled"); a
// non-empty field keeps its original unless overwrite is set ("corrected").
// Results for unknown records or non-target fields are dropped. Apply is
// idempotent: re-applying the same results changes nothing further.
func (d *Dataset) Apply(results []model.ExtractionResult, overwrite bool) MergeStats {
	var stats MergeStats
	for _, res := range results {
		rec := d.Get(res.RecordID)
		if rec == nil {
			stats.Unknown++
			zap.L().Debug("merge: result for unknown record", zap.String("id", res.RecordID))
			continue
		}
		for field, val := range res.Fields {
			if val == "" || !model.IsTargetField(field) {
				continue
			}
			current := rec.Fields[field]
			switch {
			case current == "":
				rec.Fields[field] = val
				stats.Filled++
			case current == val:
				stats.Skipped++
			case overwrite:
				rec.Fields[field] = val
				stats.Corrected++
			default:
				stats.Skipped++
			}
		}
	}
	return stats
}

// Coverage computes, per target field, the fraction of records with a
// non-empty value, plus the count of still-empty records per field.
func (d *Dataset) Coverage() (map[string]float64, map[string]int) {
	coverage := make(map[string]float64, len(model.TargetFields))
	unresolved := make(map[string]int, len(model.TargetFields))
	if len(d.Records) == 0 {
		return coverage, unresolved
	}
	for _, f := range model.TargetFields {
		filled := 0
		for _, rec := range d.Records {
			if rec.Get(f) != "" {
				filled++
			}
		}
		coverage[f] = float64(filled) / float64(len(d.Records))
		unresolved[f] = len(d.Records) - filled
	}
	return coverage, unresolved
}

// FieldKeys returns the target fields sorted by ascending coverage, least
// covered first. Used by the status command to surface the weakest fields.
func (d *Dataset) FieldKeys() []string {
	coverage, _ := d.Coverage()
	keys := make([]string, 0, len(coverage))
	for k := range coverage {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if coverage[keys[i]] != coverage[keys[j]] {
			return coverage[keys[i]] < coverage[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}
