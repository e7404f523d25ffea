package annotate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Reply is the parsed outcome of one annotation round trip. A reply that
// covers fewer records than the batch is valid; records absent from Items
// simply receive no update.
type Reply struct {
	Items []Item
}

// Item is one record's annotation, keyed by its local batch index.
type Item struct {
	Index  int
	Fields map[string]string
}

// ParseError marks a reply whose text contained no decodable JSON array.
// Callers must branch on it explicitly (via IsParseError) instead of
// assuming reply structure; the scheduler treats it as one failed attempt.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "annotate: malformed reply: " + e.Reason
}

// IsParseError reports whether err (or its chain) is a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// ParseReply defensively decodes the service's free-form text. It strips
// markdown fences, locates the outermost JSON-array delimiters, and decodes
// leniently: unknown keys are ignored, non-string field values are coerced,
// items with an index outside [0, batchSize) are discarded. Only a reply
// with no recoverable array at all is an error.
func ParseReply(text string, batchSize int) (Reply, error) {
	cleaned := extractArray(text)
	if cleaned == "" {
		return Reply{}, &ParseError{Reason: "no JSON array in reply"}
	}

	var raw []struct {
		Index  json.Number                `json:"index"`
		Fields map[string]json.RawMessage `json:"fields"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return Reply{}, &ParseError{Reason: err.Error()}
	}

	var reply Reply
	seen := make(map[int]bool, len(raw))
	for _, r := range raw {
		idx, err := r.Index.Int64()
		if err != nil {
			continue
		}
		i := int(idx)
		// Out-of-range or duplicate indices are discarded, never applied to
		// the wrong record.
		if i < 0 || i >= batchSize || seen[i] {
			continue
		}
		fields := make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			if s := coerceString(v); s != "" {
				fields[k] = s
			}
		}
		if len(fields) == 0 {
			continue
		}
		seen[i] = true
		reply.Items = append(reply.Items, Item{Index: i, Fields: fields})
	}
	return reply, nil
}

// extractArray strips code fences and slices out the outermost [ ... ] pair.
func extractArray(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// coerceString renders a raw JSON value as the string stored in the dataset.
// Strings pass through, numbers and booleans are formatted, everything else
// (nested objects, arrays, null) is dropped.
func coerceString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return strconv.FormatBool(b)
	}
	return ""
}

// String implements a compact debug rendering for logs.
func (r Reply) String() string {
	return fmt.Sprintf("reply(%d items)", len(r.Items))
}
