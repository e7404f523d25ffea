package annotate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply_PartialCoverageIsValid(t *testing.T) {
	t.Parallel()

	// 7 of 10 records annotated. The missing indices mean "no update", not
	// failure.
	text := `[
		{"index": 0, "fields": {"country_of_origin": "India"}},
		{"index": 1, "fields": {"country_of_origin": "Iran"}},
		{"index": 2, "fields": {"outcome": "affirmed"}},
		{"index": 4, "fields": {"visa_subclass": "866"}},
		{"index": 5, "fields": {"is_represented": "yes"}},
		{"index": 7, "fields": {"hearing_date": "2014-10-21"}},
		{"index": 9, "fields": {"outcome": "remitted"}}
	]`

	reply, err := ParseReply(text, 10)
	require.NoError(t, err)
	assert.Len(t, reply.Items, 7)
	assert.Equal(t, 0, reply.Items[0].Index)
	assert.Equal(t, "India", reply.Items[0].Fields["country_of_origin"])
	assert.Equal(t, 9, reply.Items[6].Index)
}

func TestParseReply_ProseIsParseError(t *testing.T) {
	t.Parallel()

	_, err := ParseReply("I am unable to annotate these records.", 10)
	require.Error(t, err)
	assert.True(t, IsParseError(err))

	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Error(), "malformed reply")
}

func TestParseReply_EmptyText(t *testing.T) {
	t.Parallel()

	_, err := ParseReply("", 5)
	assert.True(t, IsParseError(err))

	_, err = ParseReply("   \n\t ", 5)
	assert.True(t, IsParseError(err))
}

func TestParseReply_StripsFencesAndProse(t *testing.T) {
	t.Parallel()

	text := "Here are the annotations:\n```json\n" +
		`[{"index": 0, "fields": {"outcome": "affirmed"}}]` +
		"\n```\nLet me know if you need anything else."

	reply, err := ParseReply(text, 3)
	require.NoError(t, err)
	require.Len(t, reply.Items, 1)
	assert.Equal(t, "affirmed", reply.Items[0].Fields["outcome"])
}

func TestParseReply_DiscardsBadIndices(t *testing.T) {
	t.Parallel()

	text := `[
		{"index": -1, "fields": {"outcome": "affirmed"}},
		{"index": 3, "fields": {"outcome": "affirmed"}},
		{"index": 1, "fields": {"country_of_origin": "Nepal"}},
		{"index": 1, "fields": {"country_of_origin": "China"}}
	]`

	// Batch of 3: index 3 is out of range, -1 invalid, the duplicate index 1
	// keeps its first occurrence.
	reply, err := ParseReply(text, 3)
	require.NoError(t, err)
	require.Len(t, reply.Items, 1)
	assert.Equal(t, 1, reply.Items[0].Index)
	assert.Equal(t, "Nepal", reply.Items[0].Fields["country_of_origin"])
}

func TestParseReply_CoercesScalarsDropsStructures(t *testing.T) {
	t.Parallel()

	text := `[{"index": 0, "fields": {
		"visa_subclass": 866,
		"is_represented": true,
		"outcome": "affirmed",
		"legal_concepts": ["persecution"],
		"hearing_date": null
	}}]`

	reply, err := ParseReply(text, 1)
	require.NoError(t, err)
	require.Len(t, reply.Items, 1)

	fields := reply.Items[0].Fields
	assert.Equal(t, "866", fields["visa_subclass"])
	assert.Equal(t, "true", fields["is_represented"])
	assert.Equal(t, "affirmed", fields["outcome"])
	assert.NotContains(t, fields, "legal_concepts")
	assert.NotContains(t, fields, "hearing_date")
}

func TestParseReply_DropsItemsWithNoUsableFields(t *testing.T) {
	t.Parallel()

	text := `[
		{"index": 0, "fields": {}},
		{"index": 1, "fields": {"outcome": "  "}},
		{"index": 2, "fields": {"outcome": "varied"}}
	]`

	reply, err := ParseReply(text, 3)
	require.NoError(t, err)
	require.Len(t, reply.Items, 1)
	assert.Equal(t, 2, reply.Items[0].Index)
}

func TestIsParseError_OtherErrors(t *testing.T) {
	t.Parallel()

	assert.False(t, IsParseError(nil))
	assert.False(t, IsParseError(errors.New("boom")))
}
