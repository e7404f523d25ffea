package model

import (
	"strings"
	"unicode"
)

// Identity fields present on every record. These are set at ingestion by the
// document-acquisition collaborator and are never written by this pipeline.
const (
	FieldCitation = "citation"
	FieldTribunal = "tribunal"
	FieldTitle    = "title"
)

// Extraction target fields, in canonical column order.
const (
	FieldCountryOfOrigin = "country_of_origin"
	FieldIsRepresented   = "is_represented"
	FieldRepresentative  = "representative"
	FieldRespondent      = "respondent"
	FieldVisaSubclass    = "visa_subclass"
	FieldHearingDate     = "hearing_date"
	FieldApplicantName   = "applicant_name"
	FieldOutcomeReason   = "outcome_reason"
	FieldLegalTest       = "legal_test"
	FieldCaseNature      = "case_nature"
	FieldLegalConcepts   = "legal_concepts"
	FieldCatchwords      = "catchwords"
	FieldOutcome         = "outcome"
	FieldVisaType        = "visa_type"
	FieldLegislation     = "legislation"
)

// TargetFields lists every field this pipeline may populate, in canonical
// dataset column order.
var TargetFields = []string{
	FieldCountryOfOrigin,
	FieldIsRepresented,
	FieldRepresentative,
	FieldRespondent,
	FieldVisaSubclass,
	FieldHearingDate,
	FieldApplicantName,
	FieldOutcomeReason,
	FieldLegalTest,
	FieldCaseNature,
	FieldLegalConcepts,
	FieldCatchwords,
	FieldOutcome,
	FieldVisaType,
	FieldLegislation,
}

// IdentityFields lists the read-only context columns.
var IdentityFields = []string{FieldCitation, FieldTribunal, FieldTitle}

var targetSet = func() map[string]bool {
	m := make(map[string]bool, len(TargetFields))
	for _, f := range TargetFields {
		m[f] = true
	}
	return m
}()

// IsTargetField reports whether key names an extraction target.
func IsTargetField(key string) bool {
	return targetSet[key]
}

// CaseRecord is one row of the canonical dataset: a stable identifier plus a
// fixed set of named string fields, each either empty or canonical.
type CaseRecord struct {
	ID     string
	Fields map[string]string
}

// NewCaseRecord builds a record keyed by the identifier derived from citation.
func NewCaseRecord(citation string) CaseRecord {
	return CaseRecord{
		ID: RecordID(citation),
		Fields: map[string]string{
			FieldCitation: citation,
		},
	}
}

// Get returns the value of a field, or "" if unset.
func (r CaseRecord) Get(key string) string {
	return r.Fields[key]
}

// Missing returns the target fields that are still empty, in canonical order.
func (r CaseRecord) Missing() []string {
	var missing []string
	for _, f := range TargetFields {
		if strings.TrimSpace(r.Fields[f]) == "" {
			missing = append(missing, f)
		}
	}
	return missing
}

// RecordID derives the stable record identifier from a citation. The citation
// is immutable upstream, so the derived ID is stable across runs: lowercase,
// alphanumerics preserved, every other run of characters collapsed to a
// single hyphen.
func RecordID(citation string) string {
	var b strings.Builder
	b.Grow(len(citation))
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(citation)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
