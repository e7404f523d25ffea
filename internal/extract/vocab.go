package extract

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Vocabulary holds the static lookup tables the extractor normalizes against.
// DefaultVocabulary is the single authoritative version; an operator may
// overlay entries from a YAML file via LoadVocabulary.
type Vocabulary struct {
	// Countries maps lowercase aliases and demonyms to the canonical country
	// name ("indian" -> "India").
	Countries map[string]string `yaml:"countries"`
	// ExcludedCountries are never returned as a country of origin. The
	// tribunal's own home jurisdiction appears in every document and is a
	// known false-positive anchor.
	ExcludedCountries []string `yaml:"excluded_countries"`
	// Respondents maps lowercase respondent aliases to the canonical party
	// name.
	Respondents map[string]string `yaml:"respondents"`
	// VisaTypes maps lowercase visa-name phrases to the canonical type.
	VisaTypes map[string]string `yaml:"visa_types"`
	// SubclassTypes maps a visa subclass number to its canonical type.
	SubclassTypes map[string]string `yaml:"subclass_types"`
	// Outcomes maps operative phrases to the canonical outcome.
	Outcomes map[string]string `yaml:"outcomes"`
	// LegalTests is a priority-ordered list of (phrase, canonical) pairs.
	LegalTests []VocabPair `yaml:"legal_tests"`
	// Concepts is the closed set of legal-concept keywords collected into
	// the legal_concepts field.
	Concepts []string `yaml:"concepts"`
}

// VocabPair is one phrase -> canonical mapping with a stable position in a
// priority-ordered list.
type VocabPair struct {
	Phrase    string `yaml:"phrase"`
	Canonical string `yaml:"canonical"`
}

// DefaultVocabulary returns the built-in lookup tables. Alias keys are
// lowercase; canonical values are the exact strings stored in the dataset.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		Countries:         defaultCountries(),
		ExcludedCountries: []string{"australia", "australian"},
		Respondents: map[string]string{
			"minister for immigration and border protection":                 "Minister for Immigration",
			"minister for immigration, citizenship and multicultural affairs": "Minister for Immigration",
			"minister for immigration and multicultural affairs":             "Minister for Immigration",
			"minister for immigration and citizenship":                       "Minister for Immigration",
			"minister for home affairs":                                      "Minister for Home Affairs",
			"minister for immigration":                                       "Minister for Immigration",
			"secretary, department of home affairs":                          "Department of Home Affairs",
		},
		VisaTypes: map[string]string{
			"protection visa":           "Protection",
			"temporary protection visa": "Protection",
			"safe haven enterprise":     "Protection",
			"partner visa":              "Partner",
			"spouse visa":               "Partner",
			"prospective marriage":      "Partner",
			"student visa":              "Student",
			"skilled visa":              "Skilled",
			"skilled migration":         "Skilled",
			"visitor visa":              "Visitor",
			"tourist visa":              "Visitor",
			"business visa":             "Business",
			"carer visa":                "Carer",
			"resident return visa":      "Resident Return",
			"bridging visa":             "Bridging",
			"citizenship":               "Citizenship",
		},
		SubclassTypes: map[string]string{
			"866": "Protection", "785": "Protection", "790": "Protection",
			"820": "Partner", "801": "Partner", "309": "Partner", "100": "Partner", "300": "Partner",
			"500": "Student", "572": "Student", "573": "Student",
			"189": "Skilled", "190": "Skilled", "485": "Skilled", "457": "Skilled", "482": "Skilled",
			"600": "Visitor", "676": "Visitor",
			"155": "Resident Return",
			"116": "Carer", "836": "Carer",
			"050": "Bridging",
		},
		Outcomes: map[string]string{
			"affirms the decision":          "affirmed",
			"decision under review is affirmed": "affirmed",
			"affirmed":                      "affirmed",
			"sets aside the decision":       "set aside",
			"set aside":                     "set aside",
			"remits the":                    "remitted",
			"remitted":                      "remitted",
			"varies the decision":           "varied",
			"varied":                        "varied",
			"no jurisdiction":               "no jurisdiction",
			"dismissed":                     "dismissed",
		},
		LegalTests: []VocabPair{
			{Phrase: "well-founded fear of persecution", Canonical: "well-founded fear"},
			{Phrase: "well founded fear", Canonical: "well-founded fear"},
			{Phrase: "real chance of persecution", Canonical: "real chance"},
			{Phrase: "real chance", Canonical: "real chance"},
			{Phrase: "real risk of significant harm", Canonical: "real risk of significant harm"},
			{Phrase: "complementary protection", Canonical: "complementary protection"},
			{Phrase: "genuine and continuing relationship", Canonical: "genuine and continuing relationship"},
			{Phrase: "genuine relationship", Canonical: "genuine and continuing relationship"},
			{Phrase: "character test", Canonical: "character test"},
			{Phrase: "best interests of the child", Canonical: "best interests of the child"},
		},
		Concepts: []string{
			"persecution",
			"particular social group",
			"political opinion",
			"religion",
			"state protection",
			"relocation",
			"credibility",
			"family violence",
			"health waiver",
			"character test",
			"procedural fairness",
			"complementary protection",
		},
	}
}

func defaultCountries() map[string]string {
	// canonical -> aliases/demonyms (lowercase). Flattened below so the
	// canonical name itself also resolves.
	byCanonical := map[string][]string{
		"Afghanistan": {"afghan", "islamic republic of afghanistan"},
		"Albania":     {"albanian"},
		"Bangladesh":  {"bangladeshi"},
		"Cambodia":    {"cambodian", "khmer"},
		"China":       {"chinese", "prc", "people's republic of china", "peoples republic of china"},
		"Colombia":    {"colombian"},
		"Egypt":       {"egyptian"},
		"Eritrea":     {"eritrean"},
		"Ethiopia":    {"ethiopian"},
		"Fiji":        {"fijian"},
		"Ghana":       {"ghanaian"},
		"India":       {"indian"},
		"Indonesia":   {"indonesian"},
		"Iran":        {"iranian", "islamic republic of iran"},
		"Iraq":        {"iraqi"},
		"Kenya":       {"kenyan"},
		"Lebanon":     {"lebanese"},
		"Malaysia":    {"malaysian"},
		"Myanmar":     {"burma", "burmese"},
		"Nepal":       {"nepalese", "nepali"},
		"Nigeria":     {"nigerian"},
		"Pakistan":    {"pakistani"},
		"Papua New Guinea": {"papua new guinean", "png"},
		"Philippines": {"filipino", "filipina", "the philippines"},
		"Russia":      {"russian", "russian federation"},
		"Samoa":       {"samoan"},
		"Serbia":      {"serbian"},
		"Somalia":     {"somali"},
		"South Korea": {"korean", "republic of korea"},
		"Sri Lanka":   {"sri lankan"},
		"Sudan":       {"sudanese"},
		"Thailand":    {"thai"},
		"Tonga":       {"tongan"},
		"Turkey":      {"turkish"},
		"Ukraine":     {"ukrainian"},
		"United Kingdom": {"british", "uk", "great britain"},
		"United States":  {"american", "usa", "united states of america"},
		"Venezuela":   {"venezuelan"},
		"Vietnam":     {"vietnamese", "viet nam", "socialist republic of vietnam"},
		"Zimbabwe":    {"zimbabwean"},
	}

	out := make(map[string]string, len(byCanonical)*3)
	for canonical, aliases := range byCanonical {
		out[strings.ToLower(canonical)] = canonical
		for _, a := range aliases {
			out[a] = canonical
		}
	}
	return out
}

// LoadVocabulary reads a YAML overlay from path and merges it over the
// defaults: map entries are added or replaced, list fields replace the
// default list when non-empty.
func LoadVocabulary(path string) (*Vocabulary, error) {
	base := DefaultVocabulary()
	if path == "" {
		return base, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "vocab: read overlay")
	}

	var overlay Vocabulary
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return nil, eris.Wrap(err, "vocab: parse overlay")
	}

	for k, v := range overlay.Countries {
		base.Countries[strings.ToLower(k)] = v
	}
	for k, v := range overlay.Respondents {
		base.Respondents[strings.ToLower(k)] = v
	}
	for k, v := range overlay.VisaTypes {
		base.VisaTypes[strings.ToLower(k)] = v
	}
	for k, v := range overlay.SubclassTypes {
		base.SubclassTypes[k] = v
	}
	for k, v := range overlay.Outcomes {
		base.Outcomes[strings.ToLower(k)] = v
	}
	if len(overlay.ExcludedCountries) > 0 {
		base.ExcludedCountries = overlay.ExcludedCountries
	}
	if len(overlay.LegalTests) > 0 {
		base.LegalTests = overlay.LegalTests
	}
	if len(overlay.Concepts) > 0 {
		base.Concepts = overlay.Concepts
	}
	return base, nil
}

// NormalizeCountry maps a raw substring to a canonical country name. Unknown
// values and excluded (home-jurisdiction) values normalize to "".
func (v *Vocabulary) NormalizeCountry(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.Trim(key, ".,;:'\"()")
	key = strings.TrimPrefix(key, "the ")
	if key == "" {
		return ""
	}
	for _, ex := range v.ExcludedCountries {
		if key == ex {
			return ""
		}
	}
	return v.Countries[key]
}

// countryMentionPattern compiles a single alternation of every known country
// alias for contextual scanning. Longer aliases are tried first so
// "sri lankan" wins over "sri lanka" at the same offset.
func (v *Vocabulary) countryMentionPattern() *regexp.Regexp {
	aliases := make([]string, 0, len(v.Countries))
	for a := range v.Countries {
		aliases = append(aliases, a)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	for i, a := range aliases {
		aliases[i] = regexp.QuoteMeta(a)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(aliases, "|") + `)\b`)
}
