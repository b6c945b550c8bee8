package impact

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/asquitt/govtech-sniper/internal/snapshot"
)

func strptr(s string) *string { return &s }

func deadlineChange() snapshot.FieldChange {
	return snapshot.FieldChange{
		Field: "response_deadline",
		From:  strptr("2025-06-15T17:00:00Z"),
		To:    strptr("2025-06-30T17:00:00Z"),
	}
}

func section(proposalID, sectionID uuid.UUID, title, content string) ProposalSection {
	return ProposalSection{
		ProposalID: proposalID,
		SectionID:  sectionID,
		Number:     "1.0",
		Title:      title,
		Status:     "draft",
		Content:    content,
	}
}

var (
	proposalA = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	proposalB = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	sectionA  = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	sectionB  = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
	sectionC  = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000003")
)

func TestLoadRegistry_EmbeddedDefaults(t *testing.T) {
	reg := MustLoadRegistry()

	if reg.Thresholds.Include != 25 || reg.Thresholds.Medium != 40 || reg.Thresholds.High != 70 {
		t.Fatalf("unexpected thresholds: %+v", reg.Thresholds)
	}
	if reg.Weights.OverlapPoints != 8 || reg.Weights.OverlapCap != 32 || reg.Weights.RequirementBonus != 12 {
		t.Fatalf("unexpected weights: %+v", reg.Weights)
	}
	if len(reg.Profiles) != 9 {
		t.Fatalf("expected a profile per summary field, got %d", len(reg.Profiles))
	}
	if len(reg.ApprovalWorkflow) != 3 {
		t.Fatalf("expected a three step approval workflow, got %d", len(reg.ApprovalWorkflow))
	}
}

func TestAnalyze_KeywordOnlyMatchStaysBelowCutoff(t *testing.T) {
	reg := MustLoadRegistry()

	// Timeline keywords alone are worth 20, below the inclusion
	// threshold, so a section that merely talks about schedules is not
	// flagged for a deadline change it shares no vocabulary with.
	sec := section(proposalA, sectionA, "Program Management Plan",
		"Our master schedule tracks every milestone closely.")

	res := reg.Analyze([]snapshot.FieldChange{deadlineChange()}, []ProposalSection{sec}, nil, 0)

	if len(res.ImpactedSections) != 0 {
		t.Fatalf("expected no impacted sections, got %v", res.ImpactedSections)
	}
	if res.Summary.SectionsEvaluated != 1 || res.Summary.SectionsImpacted != 0 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	// A high severity signal still drives the amendment risk level.
	if res.RiskLevel != RiskMedium {
		t.Fatalf("expected medium risk, got %s", res.RiskLevel)
	}
}

func TestAnalyze_OverlapAndAreaBonus(t *testing.T) {
	reg := MustLoadRegistry()

	// Two overlapping tokens (response, deadline) at 8 points each plus
	// the timeline bonus for "delivery": 16 + 20 = 36.
	sec := section(proposalA, sectionA, "Delivery Schedule",
		"The response deadline drives delivery.")

	res := reg.Analyze([]snapshot.FieldChange{deadlineChange()}, []ProposalSection{sec}, nil, 0)

	if len(res.ImpactedSections) != 1 {
		t.Fatalf("expected one impacted section, got %v", res.ImpactedSections)
	}
	rem := res.ImpactedSections[0]
	if rem.ImpactScore != 36 {
		t.Errorf("expected score 36, got %d", rem.ImpactScore)
	}
	if rem.ImpactLevel != LevelLow || rem.ApprovalRequired {
		t.Errorf("expected low level without approval, got %s / %v", rem.ImpactLevel, rem.ApprovalRequired)
	}
	if len(rem.MatchedChangeFields) != 1 || rem.MatchedChangeFields[0] != "response_deadline" {
		t.Errorf("unexpected matched fields: %v", rem.MatchedChangeFields)
	}
	if !strings.Contains(rem.Rationale, "shares terms") {
		t.Errorf("rationale should name shared terms: %q", rem.Rationale)
	}
	if len(rem.RecommendedActions) == 0 {
		t.Error("expected profile actions on the remediation")
	}
}

func TestAnalyze_OverlapCapAndClamp(t *testing.T) {
	reg := MustLoadRegistry()

	changes := []snapshot.FieldChange{
		{Field: "set_aside", From: strptr("Total Small Business Set-Aside"), To: nil},
		{Field: "naics_code", From: strptr("541330"), To: strptr("541512")},
	}
	// set_aside: five overlapping tokens cap at 32, eligibility bonus
	// 24 -> 56. naics_code: three overlapping tokens 24, bonus 24 -> 48.
	// 104 clamps to 100.
	sec := section(proposalA, sectionA, "Eligibility",
		"We qualify as a total small business set aside under NAICS code 541330.")

	res := reg.Analyze(changes, []ProposalSection{sec}, nil, 0)

	if len(res.ImpactedSections) != 1 {
		t.Fatalf("expected one impacted section, got %v", res.ImpactedSections)
	}
	rem := res.ImpactedSections[0]
	if rem.ImpactScore != 100 {
		t.Errorf("expected clamped score 100, got %d", rem.ImpactScore)
	}
	if rem.ImpactLevel != LevelHigh || !rem.ApprovalRequired {
		t.Errorf("expected high level with approval, got %s / %v", rem.ImpactLevel, rem.ApprovalRequired)
	}
	if len(rem.MatchedChangeFields) != 2 {
		t.Errorf("both changes should match: %v", rem.MatchedChangeFields)
	}
	if res.RiskLevel != RiskHigh {
		t.Errorf("high severity plus a high scoring section must be high risk, got %s", res.RiskLevel)
	}
}

func TestAnalyze_InclusionCutoffEdge(t *testing.T) {
	reg := MustLoadRegistry()

	// Three overlapping tokens score 24, one short of the cutoff; a
	// fourth pushes the section to 32 and into the result.
	changes := []snapshot.FieldChange{
		{Field: "set_aside", From: strptr("alpha bravo charlie"), To: nil},
	}
	below := section(proposalA, sectionA, "Annex One", "alpha bravo charlie")
	above := section(proposalA, sectionB, "Annex Two", "alpha bravo charlie aside")

	res := reg.Analyze(changes, []ProposalSection{below, above}, nil, 0)

	if len(res.ImpactedSections) != 1 {
		t.Fatalf("expected only the section above the cutoff, got %v", res.ImpactedSections)
	}
	rem := res.ImpactedSections[0]
	if rem.SectionID != sectionB || rem.ImpactScore != 32 {
		t.Fatalf("expected section B at 32, got %s at %d", rem.SectionID, rem.ImpactScore)
	}
}

func TestAnalyze_LinkedRequirementBonus(t *testing.T) {
	reg := MustLoadRegistry()

	base := section(proposalA, sectionA, "Delivery Plan",
		"The response deadline drives delivery.")
	linked := section(proposalA, sectionB, "Delivery Plan",
		"The response deadline drives delivery.")
	linked.RequirementID = "REQ-7"

	reqs := map[string]string{"REQ-7": "Final deadline applies"}

	res := reg.Analyze([]snapshot.FieldChange{deadlineChange()}, []ProposalSection{base, linked}, reqs, 0)

	if len(res.ImpactedSections) != 2 {
		t.Fatalf("expected both sections flagged, got %v", res.ImpactedSections)
	}
	first, second := res.ImpactedSections[0], res.ImpactedSections[1]
	if first.SectionID != sectionB || first.ImpactScore != 48 || first.ImpactLevel != LevelMedium {
		t.Errorf("linked section should rank first at 48/medium, got %+v", first)
	}
	if second.ImpactScore != 36 {
		t.Errorf("unlinked section should stay at 36, got %d", second.ImpactScore)
	}
	if !strings.Contains(first.Rationale, "compliance requirement") {
		t.Errorf("rationale should mention the requirement link: %q", first.Rationale)
	}
}

func TestAnalyze_TieBreakByProposalThenSection(t *testing.T) {
	reg := MustLoadRegistry()

	content := "The response deadline drives delivery."
	sections := []ProposalSection{
		section(proposalB, sectionA, "Delivery Plan", content),
		section(proposalA, sectionC, "Delivery Plan", content),
		section(proposalA, sectionB, "Delivery Plan", content),
	}

	res := reg.Analyze([]snapshot.FieldChange{deadlineChange()}, sections, nil, 0)

	if len(res.ImpactedSections) != 3 {
		t.Fatalf("expected three impacted sections, got %d", len(res.ImpactedSections))
	}
	got := []uuid.UUID{
		res.ImpactedSections[0].SectionID,
		res.ImpactedSections[1].SectionID,
		res.ImpactedSections[2].SectionID,
	}
	expected := []uuid.UUID{sectionB, sectionC, sectionA}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected order %v, got %v", expected, got)
		}
	}
}

func TestAnalyze_TopNTruncation(t *testing.T) {
	reg := MustLoadRegistry()

	content := "The response deadline drives delivery."
	sections := []ProposalSection{
		section(proposalA, sectionA, "Delivery Plan", content),
		section(proposalA, sectionB, "Delivery Plan", content),
		section(proposalA, sectionC, "Delivery Plan", content),
	}

	res := reg.Analyze([]snapshot.FieldChange{deadlineChange()}, sections, nil, 2)

	if len(res.ImpactedSections) != 2 {
		t.Fatalf("expected truncation to 2, got %d", len(res.ImpactedSections))
	}
	if res.Summary.SectionsImpacted != 3 {
		t.Fatalf("summary must count pre-truncation impact, got %d", res.Summary.SectionsImpacted)
	}
}

func TestAnalyze_UnknownFieldUsesDefaultProfile(t *testing.T) {
	reg := MustLoadRegistry()

	changes := []snapshot.FieldChange{
		{Field: "amendment_number", From: strptr("0001"), To: strptr("0002")},
	}
	sec := section(proposalA, sectionA, "Approach",
		"The amendment number affects our compliance approach.")

	res := reg.Analyze(changes, []ProposalSection{sec}, nil, 0)

	if len(res.Signals) != 1 {
		t.Fatalf("expected one signal, got %d", len(res.Signals))
	}
	sig := res.Signals[0]
	if sig.Area != AreaScope || sig.Severity != SeverityLow {
		t.Errorf("unknown fields should take the default profile, got %s/%s", sig.Area, sig.Severity)
	}
	if len(res.ImpactedSections) != 1 || res.ImpactedSections[0].ImpactScore != 34 {
		t.Fatalf("expected one section at 34, got %v", res.ImpactedSections)
	}
	if res.RiskLevel != RiskLow {
		t.Errorf("expected low risk, got %s", res.RiskLevel)
	}
}

func TestAnalyze_ManyChangesRaiseRisk(t *testing.T) {
	reg := MustLoadRegistry()

	changes := []snapshot.FieldChange{
		{Field: "posted_date", From: strptr("2025-05-01T00:00:00Z"), To: strptr("2025-05-02T00:00:00Z")},
		{Field: "description_length", From: strptr("1200"), To: strptr("1210")},
		{Field: "amendment_number", From: strptr("0001"), To: strptr("0002")},
	}

	res := reg.Analyze(changes, nil, nil, 0)

	if res.Summary.ChangeCount != 3 || res.Summary.SignalCount != 3 {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	if res.RiskLevel != RiskMedium {
		t.Errorf("three concurrent changes should raise risk to medium, got %s", res.RiskLevel)
	}
	if len(res.ApprovalWorkflow) != 3 {
		t.Errorf("result should carry the approval workflow, got %v", res.ApprovalWorkflow)
	}
}
