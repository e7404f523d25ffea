// Package extract implements the deterministic field extractor: per field, a
// fixed priority-ordered list of strategies, each a locate-extract-normalize
// triple. The first non-empty plausible result wins. Strategies reading
// explicit structured labels outrank phrase-pattern matches, which outrank
// positional heuristics; the ordering is the correctness mechanism and is
// fixed in fields.go. Extraction failure is "no evidence" (empty string),
// never an error.
package extract

import (
	"regexp"
	"strings"

	"github.com/Sasuke-inu/immi-case/internal/segment"
)

// Strategy is one locate-extract attempt for a field. Run returns the raw
// candidate substring, or "" when the strategy finds no evidence.
type Strategy struct {
	Name string
	Run  func(segs segment.Segments) string
}

// FieldSpec binds a field key to its ordered strategies and normalization.
type FieldSpec struct {
	Key    string
	MaxLen int
	// Normalize maps a raw candidate to its canonical form, or "" to reject.
	// Nil means the trimmed candidate is already canonical.
	Normalize  func(raw string) string
	Strategies []Strategy
}

// defaultMaxLen bounds candidate values for fields without their own bound.
const defaultMaxLen = 120

// contaminationFragments mark a candidate that swallowed a neighbouring
// label or structural heading. Such candidates are rejected, never stored.
var contaminationFragments = []string{
	"CATCHWORDS",
	"LEGISLATION",
	"DECISION",
	"REASONS",
	"Applicant:",
	"Respondent:",
	"Tribunal:",
	"File Number",
	"http://",
	"https://",
}

// Contaminated reports whether a candidate contains a known
// label-contamination fragment.
func Contaminated(val string) bool {
	for _, frag := range contaminationFragments {
		if strings.Contains(val, frag) {
			return true
		}
	}
	return strings.Contains(val, "\n\n")
}

// Extractor runs the deterministic cascade for every target field. It is a
// pure function over segments and safe for concurrent use.
type Extractor struct {
	specs []FieldSpec
	byKey map[string]*FieldSpec
}

// New builds an extractor with the canonical field specs over vocab.
func New(vocab *Vocabulary) *Extractor {
	specs := fieldSpecs(vocab)
	e := &Extractor{
		specs: specs,
		byKey: make(map[string]*FieldSpec, len(specs)),
	}
	for i := range e.specs {
		e.byKey[e.specs[i].Key] = &e.specs[i]
	}
	return e
}

// Field runs the cascade for a single field key. Unknown keys yield "".
func (e *Extractor) Field(key string, segs segment.Segments) string {
	spec, ok := e.byKey[key]
	if !ok {
		return ""
	}
	return e.cascade(spec, segs)
}

// Run extracts every requested field, returning only non-empty values.
func (e *Extractor) Run(fields []string, segs segment.Segments) map[string]string {
	out := make(map[string]string, len(fields))
	for _, key := range fields {
		if val := e.Field(key, segs); val != "" {
			out[key] = val
		}
	}
	return out
}

func (e *Extractor) cascade(spec *FieldSpec, segs segment.Segments) string {
	maxLen := spec.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	for _, st := range spec.Strategies {
		raw := strings.TrimSpace(st.Run(segs))
		if raw == "" {
			continue
		}
		val := raw
		if spec.Normalize != nil {
			val = spec.Normalize(raw)
		}
		val = strings.TrimSpace(val)
		if val == "" || len(val) > maxLen || Contaminated(val) {
			continue
		}
		return val
	}
	return ""
}

// labelPattern matches "Label: value" at a line start, capturing to line end.
func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?im)^[ \t]*` + regexp.QuoteMeta(label) + `[ \t]*:[ \t]*(\S[^\n]*)$`)
}

// labelStrategy extracts the value of an explicit "Label:" header from the
// document header window.
func labelStrategy(label string) Strategy {
	re := labelPattern(label)
	return Strategy{
		Name: "label:" + label,
		Run: func(segs segment.Segments) string {
			return firstGroup(re, segs.Header)
		},
	}
}

// phraseStrategy extracts the first capture group of re from the given
// segment texts, in order.
func phraseStrategy(name string, re *regexp.Regexp, pick func(segment.Segments) []string) Strategy {
	return Strategy{
		Name: name,
		Run: func(segs segment.Segments) string {
			for _, text := range pick(segs) {
				if v := firstGroup(re, text); v != "" {
					return v
				}
			}
			return ""
		},
	}
}

func firstGroup(re *regexp.Regexp, text string) string {
	if text == "" {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	// First non-empty capture group.
	for _, g := range m[1:] {
		if g != "" {
			return strings.TrimSpace(g)
		}
	}
	return ""
}

func headerThenCatchwords(segs segment.Segments) []string {
	return []string{segs.Header, segs.Catchwords}
}

func catchwordsThenHeader(segs segment.Segments) []string {
	return []string{segs.Catchwords, segs.Header}
}

func decisionThenCatchwords(segs segment.Segments) []string {
	return []string{segs.Decision, segs.Catchwords}
}

func allSegments(segs segment.Segments) []string {
	return []string{segs.Header, segs.Catchwords, segs.Decision}
}
