package snapshot

import (
	"reflect"
	"testing"
)

func basePayload() map[string]interface{} {
	return map[string]interface{}{
		"noticeId":                  "n-1",
		"title":                     "Radar System Maintenance",
		"type":                      "o",
		"naicsCode":                 "541330",
		"typeOfSetAsideDescription": "Total Small Business Set-Aside",
		"postedDate":                "2025-05-01",
		"responseDeadLine":          "2025-06-15T17:00:00Z",
		"description":               "Maintain the <b>radar</b> subsystems.",
		"resourceLinks":             []interface{}{"https://files.example.gov/sow.pdf"},
	}
}

func TestSummarize_FixedFieldSet(t *testing.T) {
	s := Summarize(basePayload())

	expected := map[string]string{
		FieldResponseDeadline:   "2025-06-15T17:00:00Z",
		FieldPostedDate:         "2025-05-01T00:00:00Z",
		FieldNAICSCode:          "541330",
		FieldSetAside:           "Total Small Business Set-Aside",
		FieldRFPType:            "solicitation",
		FieldResourceLinksCount: "1",
		FieldDescriptionLength:  "30", // "Maintain the radar subsystems."
	}
	for field, want := range expected {
		if got := s.Get(field); got != want {
			t.Errorf("%s: expected %q, got %q", field, want, got)
		}
	}
	if s.Get(FieldResourceLinksHash) == "" || s.Get(FieldDescriptionHash) == "" {
		t.Error("hash fields must be populated")
	}
}

func TestSummarize_MarkupIgnoredInDescriptionHash(t *testing.T) {
	a := basePayload()
	b := basePayload()
	b["description"] = "Maintain   the radar\n subsystems."

	if Summarize(a).Get(FieldDescriptionHash) != Summarize(b).Get(FieldDescriptionHash) {
		t.Fatal("markup and whitespace differences must not change the description hash")
	}
}

func TestDiff_IdenticalSummariesAreEmpty(t *testing.T) {
	s := Summarize(basePayload())
	if changes := Diff(s, s); len(changes) != 0 {
		t.Fatalf("expected no changes, got %v", changes)
	}
}

func TestDiff_ExtraneousFieldsDoNotRegister(t *testing.T) {
	a := basePayload()
	b := basePayload()
	b["uiLink"] = "https://sam.gov/opp/n-1/view"
	b["fullParentPathName"] = "DOD.ARMY"

	if changes := Diff(Summarize(a), Summarize(b)); len(changes) != 0 {
		t.Fatalf("non-summary fields must not produce changes, got %v", changes)
	}
}

func TestDiff_DeadlineChange(t *testing.T) {
	a := basePayload()
	b := basePayload()
	b["responseDeadLine"] = "2025-06-30T17:00:00Z"

	changes := Diff(Summarize(a), Summarize(b))
	if len(changes) != 1 {
		t.Fatalf("expected exactly one change, got %v", changes)
	}
	c := changes[0]
	if c.Field != FieldResponseDeadline {
		t.Fatalf("expected %s, got %s", FieldResponseDeadline, c.Field)
	}
	if *c.From != "2025-06-15T17:00:00Z" || *c.To != "2025-06-30T17:00:00Z" {
		t.Fatalf("wrong from/to: %s -> %s", *c.From, *c.To)
	}
}

func TestDiff_NullTransitions(t *testing.T) {
	a := basePayload()
	b := basePayload()
	delete(b, "responseDeadLine")

	changes := Diff(Summarize(a), Summarize(b))
	if len(changes) != 1 || changes[0].To != nil || changes[0].From == nil {
		t.Fatalf("present-to-absent must emit a change with nil To, got %v", changes)
	}

	changes = Diff(Summarize(b), Summarize(a))
	if len(changes) != 1 || changes[0].From != nil || changes[0].To == nil {
		t.Fatalf("absent-to-present must emit a change with nil From, got %v", changes)
	}
}

func TestDiff_ResourceLinkReorderDetected(t *testing.T) {
	a := basePayload()
	a["resourceLinks"] = []interface{}{
		"https://files.example.gov/sow.pdf",
		"https://files.example.gov/pricing.xlsx",
	}
	b := basePayload()
	b["resourceLinks"] = []interface{}{
		"https://files.example.gov/pricing.xlsx",
		"https://files.example.gov/sow.pdf",
	}

	changes := Diff(Summarize(a), Summarize(b))
	if len(changes) != 1 || changes[0].Field != FieldResourceLinksHash {
		t.Fatalf("reordering links must change only the links hash, got %v", changes)
	}
}

func TestDiff_MultipleChangesKeepFieldOrder(t *testing.T) {
	a := basePayload()
	b := basePayload()
	b["responseDeadLine"] = "2025-06-30T17:00:00Z"
	b["naicsCode"] = "541512"
	b["type"] = "k"

	changes := Diff(Summarize(a), Summarize(b))
	var fields []string
	for _, c := range changes {
		fields = append(fields, c.Field)
	}
	expected := []string{FieldResponseDeadline, FieldNAICSCode, FieldRFPType}
	if !reflect.DeepEqual(fields, expected) {
		t.Fatalf("expected order %v, got %v", expected, fields)
	}
}
