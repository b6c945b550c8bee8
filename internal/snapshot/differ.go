package snapshot

import (
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/asquitt/govtech-sniper/internal/feed"
)

// Summary field names, in the fixed order the differ walks them. This
// order is also the order downstream consumers see changes in, so it
// never changes without versioning the diff output.
const (
	FieldResponseDeadline   = "response_deadline"
	FieldPostedDate         = "posted_date"
	FieldNAICSCode          = "naics_code"
	FieldSetAside           = "set_aside"
	FieldRFPType            = "rfp_type"
	FieldResourceLinksCount = "resource_links_count"
	FieldResourceLinksHash  = "resource_links_hash"
	FieldDescriptionHash    = "description_hash"
	FieldDescriptionLength  = "description_length"
)

var SummaryFields = []string{
	FieldResponseDeadline,
	FieldPostedDate,
	FieldNAICSCode,
	FieldSetAside,
	FieldRFPType,
	FieldResourceLinksCount,
	FieldResourceLinksHash,
	FieldDescriptionHash,
	FieldDescriptionLength,
}

// FieldSummary is the fixed projection of a raw payload used for
// diffing. A nil value means the field is absent from the payload.
type FieldSummary map[string]*string

// FieldChange is one differing field between two summaries.
type FieldChange struct {
	Field string  `json:"field"`
	From  *string `json:"from_value"`
	To    *string `json:"to_value"`
}

var stripTags = bluemonday.StrictPolicy()

// Summarize projects a raw payload onto the fixed comparable field
// set. List fields record a count and an order-sensitive hash so
// additions, removals, and reorderings are all detectable; free text
// records a hash and a length so content changes surface without
// storing the text twice.
func Summarize(payload map[string]interface{}) FieldSummary {
	rec := feed.RawListingRecord(payload)
	s := FieldSummary{}

	if v := normalizedDate(rec, "responseDeadLine"); v != "" {
		s.set(FieldResponseDeadline, v)
	}
	if v := normalizedDate(rec, "postedDate"); v != "" {
		s.set(FieldPostedDate, v)
	}
	if v := scalarString(payload["naicsCode"]); v != "" {
		s.set(FieldNAICSCode, v)
	}

	setAside := scalarString(payload["typeOfSetAsideDescription"])
	if setAside == "" {
		setAside = scalarString(payload["typeOfSetAside"])
	}
	if setAside != "" {
		s.set(FieldSetAside, setAside)
	}

	if code := scalarString(payload["type"]); code != "" {
		s.set(FieldRFPType, feed.RFPTypeFromCode(code).String())
	}

	links := feed.CollectResourceLinks(rec)
	if len(links) > 0 || payload["resourceLinks"] != nil {
		s.set(FieldResourceLinksCount, strconv.Itoa(len(links)))
		s.set(FieldResourceLinksHash, HashStrings(links))
	}

	if desc := scalarString(payload["description"]); desc != "" {
		text := normalizeText(stripTags.Sanitize(desc))
		s.set(FieldDescriptionHash, HashText(text))
		s.set(FieldDescriptionLength, strconv.Itoa(len(text)))
	}

	return s
}

// Diff walks the fixed field list in order and emits a change for
// every field whose value differs, including absent-to-present and
// present-to-absent transitions. Fields absent on both sides are
// skipped. The output is deterministic for a given input pair.
func Diff(from, to FieldSummary) []FieldChange {
	var changes []FieldChange
	for _, field := range SummaryFields {
		a, b := from[field], to[field]
		if a == nil && b == nil {
			continue
		}
		if a != nil && b != nil && *a == *b {
			continue
		}
		changes = append(changes, FieldChange{Field: field, From: a, To: b})
	}
	return changes
}

func (s FieldSummary) set(field, value string) {
	v := value
	s[field] = &v
}

// Get returns the summary value for a field, or "" when absent.
func (s FieldSummary) Get(field string) string {
	if v := s[field]; v != nil {
		return *v
	}
	return ""
}

// normalizedDate parses a payload date through the feed's format list
// and re-renders it in RFC3339, so cosmetic format drift upstream does
// not register as a change. Unparseable values compare raw.
func normalizedDate(rec feed.RawListingRecord, key string) string {
	raw := scalarString(map[string]interface{}(rec)[key])
	if raw == "" {
		return ""
	}
	if t := feed.ParseListingDate(raw); t != nil {
		return t.UTC().Format(time.RFC3339)
	}
	return raw
}

func scalarString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return formatNumber(val)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
