package impact

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/asquitt/govtech-sniper/internal/snapshot"
)

const (
	defaultTopN = 10
	maxTopN     = 50
)

// ProposalSection is the read-only section record the analyzer scores.
// Lifecycle and ownership stay with the caller.
type ProposalSection struct {
	ProposalID    uuid.UUID `json:"proposal_id"`
	SectionID     uuid.UUID `json:"section_id"`
	Number        string    `json:"section_number"`
	Title         string    `json:"section_title"`
	Status        string    `json:"section_status"`
	Content       string    `json:"-"`
	RequirementID string    `json:"requirement_id,omitempty"`
}

// Signal is a detected field change enriched with its impact profile.
type Signal struct {
	Field    string     `json:"field"`
	From     *string    `json:"from_value"`
	To       *string    `json:"to_value"`
	Area     ImpactArea `json:"impact_area"`
	Severity Severity   `json:"severity"`
	Actions  []string   `json:"recommended_actions"`

	tokens map[string]struct{}
}

// SectionRemediation is one ranked recommendation that a section be
// revisited because of the amendment.
type SectionRemediation struct {
	ProposalID          uuid.UUID   `json:"proposal_id"`
	SectionID           uuid.UUID   `json:"section_id"`
	SectionNumber       string      `json:"section_number"`
	SectionTitle        string      `json:"section_title"`
	SectionStatus       string      `json:"section_status"`
	ImpactScore         int         `json:"impact_score"`
	ImpactLevel         ImpactLevel `json:"impact_level"`
	MatchedChangeFields []string    `json:"matched_change_fields"`
	Rationale           string      `json:"rationale"`
	RecommendedActions  []string    `json:"recommended_actions"`
	ApprovalRequired    bool        `json:"approval_required"`
}

// Summary carries the analysis counts.
type Summary struct {
	ChangeCount       int `json:"change_count"`
	SignalCount       int `json:"signal_count"`
	SectionsEvaluated int `json:"sections_evaluated"`
	SectionsImpacted  int `json:"sections_impacted"`
}

// Result is the full amendment impact analysis.
type Result struct {
	Signals          []Signal             `json:"signals"`
	ChangedFields    []string             `json:"changed_fields"`
	ImpactedSections []SectionRemediation `json:"impacted_sections"`
	RiskLevel        RiskLevel            `json:"amendment_risk_level"`
	Summary          Summary              `json:"summary"`
	ApprovalWorkflow []string             `json:"approval_workflow"`
}

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases the input and returns the set of alphanumeric
// runs of length >= 3.
func tokenize(parts ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, part := range parts {
		for _, tok := range tokenPattern.FindAllString(strings.ToLower(part), -1) {
			if len(tok) >= 3 {
				set[tok] = struct{}{}
			}
		}
	}
	return set
}

// Analyze scores every section against the detected changes and
// returns the ranked remediation list with the aggregate risk level.
// It is a pure computation: safe to run concurrently for different
// proposals.
func (r *Registry) Analyze(changes []snapshot.FieldChange, sections []ProposalSection, linkedRequirements map[string]string, topN int) Result {
	if topN <= 0 {
		topN = defaultTopN
	}
	if topN > maxTopN {
		topN = maxTopN
	}

	signals := r.buildSignals(changes)

	// Global change vocabulary: union of every signal's token set.
	vocabulary := make(map[string]struct{})
	for _, sig := range signals {
		for tok := range sig.tokens {
			vocabulary[tok] = struct{}{}
		}
	}

	var impacted []SectionRemediation
	for _, section := range sections {
		if rem, ok := r.scoreSection(section, signals, vocabulary, linkedRequirements); ok {
			impacted = append(impacted, rem)
		}
	}

	sort.SliceStable(impacted, func(i, j int) bool {
		a, b := impacted[i], impacted[j]
		if a.ImpactScore != b.ImpactScore {
			return a.ImpactScore > b.ImpactScore
		}
		if a.ImpactLevel.Rank() != b.ImpactLevel.Rank() {
			return a.ImpactLevel.Rank() > b.ImpactLevel.Rank()
		}
		if a.ProposalID != b.ProposalID {
			return a.ProposalID.String() < b.ProposalID.String()
		}
		return a.SectionID.String() < b.SectionID.String()
	})

	totalImpacted := len(impacted)
	if len(impacted) > topN {
		impacted = impacted[:topN]
	}

	changedFields := make([]string, 0, len(changes))
	for _, ch := range changes {
		changedFields = append(changedFields, ch.Field)
	}

	return Result{
		Signals:          signals,
		ChangedFields:    changedFields,
		ImpactedSections: impacted,
		RiskLevel:        r.riskLevel(signals, impacted, len(changes)),
		Summary: Summary{
			ChangeCount:       len(changes),
			SignalCount:       len(signals),
			SectionsEvaluated: len(sections),
			SectionsImpacted:  totalImpacted,
		},
		ApprovalWorkflow: append([]string(nil), r.ApprovalWorkflow...),
	}
}

// buildSignals enriches each change with its profile and token set.
// The token set covers the field name (underscores read as spaces)
// plus both values, so "response_deadline 2025-06-15" style vocabulary
// can overlap with drafted text.
func (r *Registry) buildSignals(changes []snapshot.FieldChange) []Signal {
	signals := make([]Signal, 0, len(changes))
	for _, ch := range changes {
		profile := r.profileFor(ch.Field)
		sig := Signal{
			Field:    ch.Field,
			From:     ch.From,
			To:       ch.To,
			Area:     profile.Area,
			Severity: profile.Severity,
			Actions:  append([]string(nil), profile.Actions...),
		}

		parts := []string{strings.ReplaceAll(ch.Field, "_", " ")}
		if ch.From != nil {
			parts = append(parts, *ch.From)
		}
		if ch.To != nil {
			parts = append(parts, *ch.To)
		}
		sig.tokens = tokenize(parts...)

		signals = append(signals, sig)
	}
	return signals
}

func (r *Registry) scoreSection(section ProposalSection, signals []Signal, vocabulary map[string]struct{}, linkedRequirements map[string]string) (SectionRemediation, bool) {
	requirementText := ""
	if section.RequirementID != "" {
		requirementText = linkedRequirements[section.RequirementID]
	}

	sectionTokens := tokenize(section.Title, section.Number, section.RequirementID, requirementText, section.Content)
	sectionText := strings.ToLower(strings.Join([]string{
		section.Title, section.Number, section.RequirementID, requirementText, section.Content,
	}, " "))

	score := 0
	var matchedFields []string
	var actions []string
	var rationale []string

	for _, sig := range signals {
		contribution := 0

		var overlapping []string
		for tok := range sig.tokens {
			if _, ok := sectionTokens[tok]; ok {
				overlapping = append(overlapping, tok)
			}
		}
		if len(overlapping) > 0 {
			points := len(overlapping) * r.Weights.OverlapPoints
			if points > r.Weights.OverlapCap {
				points = r.Weights.OverlapCap
			}
			contribution += points
		}

		// Domain heuristics fire on keyword presence alone, independent
		// of token overlap.
		if bonus, ok := r.Weights.AreaBonus[sig.Area]; ok && containsAnyKeyword(sectionText, r.Keywords[sig.Area]) {
			contribution += bonus
		}

		if contribution == 0 {
			continue
		}

		score += contribution
		matchedFields = appendUniqueString(matchedFields, sig.Field)
		for _, action := range sig.Actions {
			actions = appendUniqueString(actions, action)
		}

		if len(overlapping) > 0 {
			sort.Strings(overlapping)
			top := overlapping
			if len(top) > 3 {
				top = top[:3]
			}
			rationale = append(rationale, fmt.Sprintf("%s: shares terms %s", sig.Field, strings.Join(top, ", ")))
		} else {
			rationale = append(rationale, fmt.Sprintf("%s: semantic alignment", sig.Field))
		}
	}

	if requirementText != "" && sharesAnyToken(tokenize(requirementText), vocabulary) {
		score += r.Weights.RequirementBonus
		rationale = append(rationale, "linked compliance requirement overlaps amendment vocabulary")
	}

	if score > 100 {
		score = 100
	}
	if score < r.Thresholds.Include {
		return SectionRemediation{}, false
	}

	level := LevelLow
	switch {
	case score >= r.Thresholds.High:
		level = LevelHigh
	case score >= r.Thresholds.Medium:
		level = LevelMedium
	}

	return SectionRemediation{
		ProposalID:          section.ProposalID,
		SectionID:           section.SectionID,
		SectionNumber:       section.Number,
		SectionTitle:        section.Title,
		SectionStatus:       section.Status,
		ImpactScore:         score,
		ImpactLevel:         level,
		MatchedChangeFields: matchedFields,
		Rationale:           strings.Join(rationale, "; "),
		RecommendedActions:  actions,
		ApprovalRequired:    level == LevelHigh || level == LevelMedium,
	}, true
}

// riskLevel aggregates signal severity and section scores into one
// amendment risk classification.
func (r *Registry) riskLevel(signals []Signal, impacted []SectionRemediation, changeCount int) RiskLevel {
	maxSeverity := 0
	for _, sig := range signals {
		if rank := sig.Severity.Rank(); rank > maxSeverity {
			maxSeverity = rank
		}
	}

	maxScore := 0
	for _, rem := range impacted {
		if rem.ImpactScore > maxScore {
			maxScore = rem.ImpactScore
		}
	}

	switch {
	case maxSeverity >= SeverityHigh.Rank() && maxScore >= r.Thresholds.High:
		return RiskHigh
	case maxSeverity >= SeverityMedium.Rank() || maxScore >= r.Thresholds.Medium || changeCount >= 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

func containsAnyKeyword(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func sharesAnyToken(a, b map[string]struct{}) bool {
	for tok := range a {
		if _, ok := b[tok]; ok {
			return true
		}
	}
	return false
}

func appendUniqueString(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
