// Package segment bounds the per-record text volume seen by the extractor
// cascade and the annotation service. Selection is a pure function of the
// raw document text and never fails: absent anchors degrade to fixed-offset
// windows, an empty document yields empty segments.
package segment

import (
	"regexp"
	"strings"
)

// Window sizes. The header window covers the cover sheet (citation, parties,
// representative, hearing date); the decision window covers the operative
// orders at the end of the document.
const (
	HeaderChars     = 2500
	DecisionChars   = 2000
	CatchwordsChars = 1500
)

// Segments are the named bounded substrings of one raw document.
type Segments struct {
	// Header is the preamble window from the top of the document.
	Header string
	// Catchwords is the labeled summary block, if the document has one.
	Catchwords string
	// Decision is the tail window holding the operative decision.
	Decision string
}

// Joined returns the segments concatenated for prompt construction,
// de-duplicating the catchwords block when it already sits inside the header
// window.
func (s Segments) Joined() string {
	parts := []string{s.Header}
	if s.Catchwords != "" && !strings.Contains(s.Header, s.Catchwords) {
		parts = append(parts, s.Catchwords)
	}
	if s.Decision != "" && s.Decision != s.Header {
		parts = append(parts, s.Decision)
	}
	return strings.Join(parts, "\n...\n")
}

// Empty reports whether no segment captured any text.
func (s Segments) Empty() bool {
	return s.Header == "" && s.Catchwords == "" && s.Decision == ""
}

// catchwordsStart anchors the labeled summary block. Tribunal documents use
// either "CATCHWORDS" or "Catchwords:" depending on era and registry.
var catchwordsStart = regexp.MustCompile(`(?im)^\s*CATCHWORDS\s*:?\s*$|(?i)\bCatchwords:\s*`)

// catchwordsEnd matches the all-caps heading that terminates the catchwords
// block (LEGISLATION, CASES, DECISION, REASONS...).
var catchwordsEnd = regexp.MustCompile(`(?m)^\s*(LEGISLATION|CASES|DECISION|REASONS|STATEMENT)\b`)

// decisionStart anchors the operative-orders section near the end of the
// document.
var decisionStart = regexp.MustCompile(`(?im)^\s*(DECISION|THE DECISION|ORDERS?)\s*:?\s*$`)

// Select slices a raw document into bounded named segments.
func Select(text string) Segments {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return Segments{}
	}

	var s Segments
	s.Header = head(text, HeaderChars)
	s.Catchwords = selectCatchwords(text)
	s.Decision = selectDecision(text)
	return s
}

func selectCatchwords(text string) string {
	loc := catchwordsStart.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if end := catchwordsEnd.FindStringIndex(rest); end != nil {
		rest = rest[:end[0]]
	}
	return strings.TrimSpace(head(rest, CatchwordsChars))
}

func selectDecision(text string) string {
	// Anchor on the last DECISION/ORDERS heading; tribunal documents repeat
	// the heading in the cover sheet, so searching from the front would grab
	// the wrong one.
	locs := decisionStart.FindAllStringIndex(text, -1)
	if len(locs) > 0 {
		start := locs[len(locs)-1][0]
		return strings.TrimSpace(head(text[start:], DecisionChars))
	}
	return strings.TrimSpace(tail(text, DecisionChars))
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Cut on a rune boundary.
	for n > 0 && s[n]&0xC0 == 0x80 {
		n--
	}
	return s[:n]
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && s[i]&0xC0 == 0x80 {
		i++
	}
	return s[i:]
}
