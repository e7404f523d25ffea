package model

// Source tags how an extracted value was derived.
type Source string

const (
	// SourceRules marks values produced by the deterministic cascade.
	SourceRules Source = "rules"
	// SourceModel marks values produced by the annotation service.
	SourceModel Source = "model"
)

// ExtractionResult holds newly derived values for one record. Only non-empty
// values appear in Fields; extraction failure is "no evidence", never an
// error.
type ExtractionResult struct {
	RecordID string            `json:"record_id"`
	Source   Source            `json:"source"`
	Fields   map[string]string `json:"fields"`
}

// Empty reports whether the result carries no values at all.
func (r ExtractionResult) Empty() bool {
	return len(r.Fields) == 0
}

// Merge folds other into r, keeping r's existing values on key collision.
// Used when a rules-pass result and a model-pass result exist for the same
// record: the deterministic value wins.
func (r *ExtractionResult) Merge(other ExtractionResult) {
	if r.Fields == nil {
		r.Fields = make(map[string]string, len(other.Fields))
	}
	for k, v := range other.Fields {
		if _, ok := r.Fields[k]; !ok && v != "" {
			r.Fields[k] = v
		}
	}
}
