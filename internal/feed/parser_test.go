package feed

import (
	"testing"
	"time"
)

func TestParseListingDate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string // RFC3339, "" means nil
	}{
		{"rfc3339", "2025-06-15T17:00:00Z", "2025-06-15T17:00:00Z"},
		{"rfc3339 with offset", "2025-06-15T13:00:00-04:00", "2025-06-15T17:00:00Z"},
		{"offsetless timestamp", "2025-06-15T17:00:00", "2025-06-15T17:00:00Z"},
		{"bare date", "2025-06-15", "2025-06-15T00:00:00Z"},
		{"us slashes", "06/15/2025", "2025-06-15T00:00:00Z"},
		{"month name", "Jun 15, 2025", "2025-06-15T00:00:00Z"},
		{"empty", "", ""},
		{"garbage", "next Tuesday", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseListingDate(tt.input)
			if tt.expected == "" {
				if got != nil {
					t.Fatalf("expected nil, got %s", got)
				}
				return
			}
			if got == nil {
				t.Fatal("expected a parsed date, got nil")
			}
			if got.Format(time.RFC3339) != tt.expected {
				t.Fatalf("expected %s, got %s", tt.expected, got.Format(time.RFC3339))
			}
		})
	}
}

func TestRFPTypeFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected RFPType
	}{
		{"o", RFPTypeSolicitation},
		{"p", RFPTypePresolicitation},
		{"k", RFPTypeCombinedSynopsis},
		{"r", RFPTypeSourcesSought},
		{"s", RFPTypeSpecialNotice},
		{"a", RFPTypeAwardNotice},
		{"u", RFPTypeJustification},
		{"z", RFPTypeSolicitation}, // unknown defaults
		{"", RFPTypeSolicitation},
	}

	for _, tt := range tests {
		if got := RFPTypeFromCode(tt.code); got != tt.expected {
			t.Errorf("code %q: expected %s, got %s", tt.code, tt.expected, got)
		}
	}
}

func TestParseRecord_FullRecord(t *testing.T) {
	rec := RawListingRecord{
		"noticeId":                  "abc123",
		"solicitationNumber":        "W912DY-25-R-0042",
		"title":                     "Radar System Maintenance",
		"type":                      "k",
		"naicsCode":                 "541330",
		"typeOfSetAsideDescription": "Total Small Business Set-Aside",
		"postedDate":                "2025-05-01",
		"responseDeadLine":          "2025-06-15T17:00:00Z",
		"organizationHierarchy": []interface{}{
			map[string]interface{}{"name": "Dept of Defense", "level": float64(1)},
			map[string]interface{}{"name": "Army Corps of Engineers", "level": float64(2)},
		},
		"description":   `See <a href="https://files.example.gov/sow.pdf">the SOW</a> for details.`,
		"resourceLinks": []interface{}{"https://files.example.gov/amendment1.pdf"},
	}

	opp, err := ParseRecord(rec)
	if err != nil {
		t.Fatal(err)
	}

	if opp.Agency != "Dept of Defense" || opp.SubAgency != "Army Corps of Engineers" {
		t.Errorf("hierarchy parsed wrong: %q / %q", opp.Agency, opp.SubAgency)
	}
	if opp.RFPType != RFPTypeCombinedSynopsis {
		t.Errorf("expected combined_synopsis, got %s", opp.RFPType)
	}
	if opp.ResponseDeadline == nil || opp.ResponseDeadline.Format("2006-01-02") != "2025-06-15" {
		t.Errorf("deadline parsed wrong: %v", opp.ResponseDeadline)
	}
	if len(opp.ResourceLinks) != 2 {
		t.Fatalf("expected declared link plus description link, got %v", opp.ResourceLinks)
	}
}

func TestParseRecord_MissingHierarchyDefaultsUnknown(t *testing.T) {
	opp, err := ParseRecord(RawListingRecord{"noticeId": "n-2"})
	if err != nil {
		t.Fatal(err)
	}
	if opp.Agency != "Unknown" || opp.SubAgency != "Unknown" {
		t.Errorf("expected Unknown defaults, got %q / %q", opp.Agency, opp.SubAgency)
	}
	if opp.PostedDate != nil || opp.ResponseDeadline != nil {
		t.Error("absent dates must stay nil")
	}
}

func TestParseRecords_MalformedRecordDoesNotAbortBatch(t *testing.T) {
	recs := []RawListingRecord{
		{"noticeId": "good-1", "title": "First"},
		{"title": "no notice id"}, // malformed
		{"noticeId": "good-2", "title": "Second"},
	}

	opps := ParseRecords(recs)
	if len(opps) != 2 {
		t.Fatalf("expected 2 parsed records, got %d", len(opps))
	}
	if opps[0].NoticeID != "good-1" || opps[1].NoticeID != "good-2" {
		t.Fatalf("wrong records survived: %v", opps)
	}
}

func TestCollectResourceLinks_DedupesAcrossSources(t *testing.T) {
	rec := RawListingRecord{
		"resourceLinks": []interface{}{
			"https://files.example.gov/sow.pdf",
			map[string]interface{}{"url": "https://files.example.gov/pricing.xlsx"},
		},
		"description": `Both <a href="https://files.example.gov/sow.pdf">the SOW</a> and ` +
			`<a href="https://files.example.gov/qa.pdf">Q&amp;A</a> apply. <a href="/relative">ignored</a>`,
	}

	links := CollectResourceLinks(rec)
	if len(links) != 3 {
		t.Fatalf("expected 3 unique absolute links, got %v", links)
	}
}
