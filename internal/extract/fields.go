package extract

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Sasuke-inu/immi-case/internal/model"
	"github.com/Sasuke-inu/immi-case/internal/segment"
)

// Phrase patterns shared by the field specs. Compiled once at init.
var (
	citizenOfRe = regexp.MustCompile(`(?i)\b(?:a citizen of|citizens? of|a national of|nationality of|citizenship of)\s+(?:the\s+)?([A-Z][A-Za-z' -]{2,30})`)
	bornInRe    = regexp.MustCompile(`(?i)\bborn in\s+(?:the\s+)?([A-Z][A-Za-z' -]{2,30})`)
	fledRe      = regexp.MustCompile(`(?i)\b(?:fled|departed|left|returned to)\s+(?:his|her|their)?\s*(?:home country[, ]+)?([A-Z][A-Za-z' -]{2,30})`)

	representedByRe = regexp.MustCompile(`(?i)\brepresented (?:at the hearing )?by\s+((?:[A-Z][\w.'-]*\s+){0,3}[A-Z][\w.'-]*)`)
	selfRepRe       = regexp.MustCompile(`(?i)\b(self[- ]represented|not represented|unrepresented|appeared on (?:his|her|their) own behalf|without (?:legal )?representation)\b`)
	isRepRe         = regexp.MustCompile(`(?i)\b(represented (?:at the hearing )?by|appeared with (?:his|her|their) (?:representative|agent))\b`)

	subclassRe      = regexp.MustCompile(`(?i)\bsub[- ]?class\s+([0-9]{2,3}[A-Z]?)\b`)
	subclassLabelRe = regexp.MustCompile(`([0-9]{2,3}[A-Z]?)`)

	heardOnRe = regexp.MustCompile(`(?i)\bheard (?:on|at [A-Za-z ,]+ on)\s+(\d{1,2} [A-Z][a-z]+ \d{4})`)

	ministerRe = regexp.MustCompile(`(?i)\b(minister for (?:immigration|home affairs)[a-z,&' ]*)`)

	actRe = regexp.MustCompile(`\b((?:[A-Z][A-Za-z']+ )+(?:Act|Regulations) \d{4})\b`)

	satisfiedRe = regexp.MustCompile(`(?i)\bTribunal (?:is|was) (not satisfied that [^.\n]{10,160}|satisfied that [^.\n]{10,160})`)

	refusalRe      = regexp.MustCompile(`(?i)\b(refus(?:al|e|ed) (?:to grant|of)(?: the grant of)?)\b`)
	cancellationRe = regexp.MustCompile(`(?i)\b(cancell?ation|cancel the)\b`)
	citizenshipRe  = regexp.MustCompile(`(?i)\b(citizenship)\b`)
)

// hearingDateLayouts are the date formats accepted on cover sheets, widest
// spread first.
var hearingDateLayouts = []string{
	"2 January 2006",
	"02 January 2006",
	"2 Jan 2006",
	"2/1/2006",
	"02/01/2006",
	"2006-01-02",
}

// fieldSpecs defines the canonical per-field strategy orderings. This table
// is the single authoritative version; tuning happens here, not per call
// site.
func fieldSpecs(vocab *Vocabulary) []FieldSpec {
	countryMention := vocab.countryMentionPattern()

	return []FieldSpec{
		{
			Key:       model.FieldCountryOfOrigin,
			Normalize: vocab.NormalizeCountry,
			Strategies: []Strategy{
				labelStrategy("Country of Reference"),
				labelStrategy("Country of Origin"),
				labelStrategy("Country of Citizenship"),
				phraseStrategy("citizen-of", citizenOfRe, headerThenCatchwords),
				phraseStrategy("born-in", bornInRe, headerThenCatchwords),
				phraseStrategy("fled", fledRe, headerThenCatchwords),
				contextCountry(countryMention, vocab),
			},
		},
		{
			Key: model.FieldIsRepresented,
			Strategies: []Strategy{
				representedFromLabel(),
				negatedPhrase("self-represented", selfRepRe, "no"),
				negatedPhrase("represented-by", isRepRe, "yes"),
			},
		},
		{
			Key:       model.FieldRepresentative,
			Normalize: normalizeName,
			Strategies: []Strategy{
				representativeFromLabel(),
				phraseStrategy("represented-by", representedByRe, headerThenCatchwords),
			},
		},
		{
			Key:       model.FieldRespondent,
			Normalize: normalizeRespondent(vocab),
			Strategies: []Strategy{
				labelStrategy("Respondent"),
				phraseStrategy("minister", ministerRe, headerThenCatchwords),
			},
		},
		{
			Key:       model.FieldVisaSubclass,
			MaxLen:    4,
			Normalize: normalizeSubclass,
			Strategies: []Strategy{
				subclassFromLabel("Visa Subclass"),
				subclassFromLabel("Subclass"),
				subclassFromLabel("Visa class"),
				phraseStrategy("subclass", subclassRe, allSegments),
			},
		},
		{
			Key:       model.FieldHearingDate,
			Normalize: normalizeDate,
			Strategies: []Strategy{
				labelStrategy("Date of Hearing"),
				labelStrategy("Hearing Date"),
				labelStrategy("Date of hearing"),
				phraseStrategy("heard-on", heardOnRe, headerThenCatchwords),
			},
		},
		{
			Key:       model.FieldApplicantName,
			Normalize: normalizeName,
			Strategies: []Strategy{
				labelStrategy("Applicant"),
				labelStrategy("Applicants"),
			},
		},
		{
			Key:    model.FieldCatchwords,
			MaxLen: segment.CatchwordsChars,
			Strategies: []Strategy{
				{Name: "segment", Run: func(segs segment.Segments) string {
					return collapseWhitespace(segs.Catchwords)
				}},
			},
		},
		{
			Key:    model.FieldLegislation,
			MaxLen: 300,
			Strategies: []Strategy{
				collectMatches("acts", actRe, catchwordsThenHeader, 3),
			},
		},
		{
			Key: model.FieldVisaType,
			Strategies: []Strategy{
				visaTypeFromPhrase(vocab),
				visaTypeFromSubclass(vocab),
			},
		},
		{
			Key: model.FieldCaseNature,
			Strategies: []Strategy{
				negatedPhrase("refusal", refusalRe, "visa refusal"),
				negatedPhrase("cancellation", cancellationRe, "visa cancellation"),
				negatedPhrase("citizenship", citizenshipRe, "citizenship"),
			},
		},
		{
			Key: model.FieldLegalTest,
			Strategies: []Strategy{
				legalTestFromVocab(vocab),
			},
		},
		{
			Key:    model.FieldLegalConcepts,
			MaxLen: 200,
			Strategies: []Strategy{
				conceptsFromVocab(vocab),
			},
		},
		{
			Key:       model.FieldOutcome,
			Normalize: normalizeOutcome(vocab),
			Strategies: []Strategy{
				outcomeFromSegment(vocab, func(segs segment.Segments) string { return segs.Decision }),
				outcomeFromSegment(vocab, func(segs segment.Segments) string { return segs.Catchwords }),
			},
		},
		{
			Key:    model.FieldOutcomeReason,
			MaxLen: 200,
			Strategies: []Strategy{
				phraseStrategy("satisfied-that", satisfiedRe, decisionThenCatchwords),
			},
		},
	}
}

// contextCountry is the weakest country strategy: the first known
// country/demonym mention in the catchwords, then the header. The home
// jurisdiction is excluded by NormalizeCountry.
func contextCountry(mention *regexp.Regexp, vocab *Vocabulary) Strategy {
	return Strategy{
		Name: "context-mention",
		Run: func(segs segment.Segments) string {
			for _, text := range catchwordsThenHeader(segs) {
				for _, m := range mention.FindAllString(text, 8) {
					if c := vocab.NormalizeCountry(m); c != "" {
						return c
					}
				}
			}
			return ""
		},
	}
}

// representedFromLabel derives yes/no from the cover sheet's
// "Representative:" line.
func representedFromLabel() Strategy {
	re := labelPattern("Representative")
	return Strategy{
		Name: "label:Representative",
		Run: func(segs segment.Segments) string {
			v := firstGroup(re, segs.Header)
			if v == "" {
				return ""
			}
			if isNilRepresentative(v) {
				return "no"
			}
			return "yes"
		},
	}
}

// representativeFromLabel reads the representative's name off the cover
// sheet, skipping nil markers.
func representativeFromLabel() Strategy {
	re := labelPattern("Representative")
	return Strategy{
		Name: "label:Representative",
		Run: func(segs segment.Segments) string {
			v := firstGroup(re, segs.Header)
			if isNilRepresentative(v) {
				return ""
			}
			return v
		},
	}
}

func isNilRepresentative(v string) bool {
	switch strings.ToLower(strings.Trim(strings.TrimSpace(v), ".-")) {
	case "", "nil", "none", "n/a", "not represented", "self-represented", "self represented", "self":
		return true
	}
	return false
}

// negatedPhrase returns a fixed canonical value when re matches anywhere in
// the header or catchwords.
func negatedPhrase(name string, re *regexp.Regexp, canonical string) Strategy {
	return Strategy{
		Name: name,
		Run: func(segs segment.Segments) string {
			for _, text := range headerThenCatchwords(segs) {
				if text != "" && re.MatchString(text) {
					return canonical
				}
			}
			return ""
		},
	}
}

// subclassFromLabel reads a subclass number out of an explicit cover-sheet
// label, tolerating values like "Class XA (Subclass 866)".
func subclassFromLabel(label string) Strategy {
	re := labelPattern(label)
	return Strategy{
		Name: "label:" + label,
		Run: func(segs segment.Segments) string {
			v := firstGroup(re, segs.Header)
			if v == "" {
				return ""
			}
			return firstGroup(subclassLabelRe, v)
		},
	}
}

// collectMatches gathers up to max unique capture-group matches across the
// picked segments, joined with "; " in first-seen order.
func collectMatches(name string, re *regexp.Regexp, pick func(segment.Segments) []string, max int) Strategy {
	return Strategy{
		Name: name,
		Run: func(segs segment.Segments) string {
			seen := make(map[string]bool)
			var out []string
			for _, text := range pick(segs) {
				for _, m := range re.FindAllStringSubmatch(text, -1) {
					v := strings.TrimSpace(m[1])
					if v == "" || seen[v] {
						continue
					}
					seen[v] = true
					out = append(out, v)
					if len(out) >= max {
						return strings.Join(out, "; ")
					}
				}
			}
			return strings.Join(out, "; ")
		},
	}
}

func visaTypeFromPhrase(vocab *Vocabulary) Strategy {
	phrases := sortedKeys(vocab.VisaTypes)
	return Strategy{
		Name: "visa-name",
		Run: func(segs segment.Segments) string {
			for _, text := range headerThenCatchwords(segs) {
				lower := strings.ToLower(text)
				best, bestIdx := "", -1
				for _, p := range phrases {
					if idx := strings.Index(lower, p); idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
						best, bestIdx = vocab.VisaTypes[p], idx
					}
				}
				if best != "" {
					return best
				}
			}
			return ""
		},
	}
}

// visaTypeFromSubclass falls back to the subclass->type table when no visa
// name is spelled out.
func visaTypeFromSubclass(vocab *Vocabulary) Strategy {
	return Strategy{
		Name: "subclass-map",
		Run: func(segs segment.Segments) string {
			for _, text := range allSegments(segs) {
				if sc := firstGroup(subclassRe, text); sc != "" {
					return vocab.SubclassTypes[strings.TrimRight(sc, "ABCDEFGH")]
				}
			}
			return ""
		},
	}
}

func legalTestFromVocab(vocab *Vocabulary) Strategy {
	return Strategy{
		Name: "test-phrase",
		Run: func(segs segment.Segments) string {
			for _, text := range catchwordsThenHeader(segs) {
				lower := strings.ToLower(text)
				for _, pair := range vocab.LegalTests {
					if strings.Contains(lower, pair.Phrase) {
						return pair.Canonical
					}
				}
			}
			return ""
		},
	}
}

func conceptsFromVocab(vocab *Vocabulary) Strategy {
	const maxConcepts = 5
	return Strategy{
		Name: "concept-scan",
		Run: func(segs segment.Segments) string {
			lower := strings.ToLower(segs.Catchwords + "\n" + segs.Header)
			var out []string
			for _, c := range vocab.Concepts {
				if strings.Contains(lower, c) {
					out = append(out, c)
					if len(out) >= maxConcepts {
						break
					}
				}
			}
			return strings.Join(out, "; ")
		},
	}
}

func outcomeFromSegment(vocab *Vocabulary, pick func(segment.Segments) string) Strategy {
	phrases := sortedKeys(vocab.Outcomes)
	return Strategy{
		Name: "outcome-phrase",
		Run: func(segs segment.Segments) string {
			lower := strings.ToLower(pick(segs))
			if lower == "" {
				return ""
			}
			best, bestIdx := "", -1
			for _, p := range phrases {
				if idx := strings.Index(lower, p); idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
					best, bestIdx = vocab.Outcomes[p], idx
				}
			}
			return best
		},
	}
}

func normalizeRespondent(vocab *Vocabulary) func(string) string {
	return func(raw string) string {
		key := strings.ToLower(strings.Trim(strings.TrimSpace(raw), ".,;"))
		if canonical, ok := vocab.Respondents[key]; ok {
			return canonical
		}
		// Ministerial titles with portfolio suffixes not in the table.
		for alias, canonical := range vocab.Respondents {
			if strings.HasPrefix(key, alias) {
				return canonical
			}
		}
		return strings.TrimSpace(raw)
	}
}

func normalizeOutcome(vocab *Vocabulary) func(string) string {
	return func(raw string) string {
		key := strings.ToLower(strings.TrimSpace(raw))
		if canonical, ok := vocab.Outcomes[key]; ok {
			return canonical
		}
		return key
	}
}

func normalizeSubclass(raw string) string {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if subclassLabelRe.FindString(v) != v {
		return ""
	}
	return v
}

func normalizeDate(raw string) string {
	raw = strings.Trim(strings.TrimSpace(raw), ".,")
	for _, layout := range hearingDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

// normalizeName trims noise from a captured party or representative name.
func normalizeName(raw string) string {
	v := strings.Trim(strings.TrimSpace(raw), ".,;:")
	v = collapseWhitespace(v)
	// A captured "name" that is actually prose leaked past the pattern.
	if len(strings.Fields(v)) > 6 {
		return ""
	}
	return v
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
