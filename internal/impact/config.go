// Package impact classifies detected listing changes into business
// impact signals and ranks the proposal sections each amendment puts
// at risk.
package impact

import (
	"embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed config/profiles.yaml
var profilesYAML embed.FS

// ImpactArea groups changed fields by what part of the response they
// threaten.
type ImpactArea string

const (
	AreaTimeline    ImpactArea = "timeline"
	AreaEligibility ImpactArea = "eligibility"
	AreaScope       ImpactArea = "scope"
	AreaAttachments ImpactArea = "attachments"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Rank returns the ordinal used for severity comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

type ImpactLevel string

const (
	LevelLow    ImpactLevel = "low"
	LevelMedium ImpactLevel = "medium"
	LevelHigh   ImpactLevel = "high"
)

func (l ImpactLevel) Rank() int {
	return Severity(l).Rank()
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Profile is the static impact classification for one summary field.
type Profile struct {
	Area     ImpactArea `yaml:"area" json:"impact_area"`
	Severity Severity   `yaml:"severity" json:"severity"`
	Actions  []string   `yaml:"actions" json:"recommended_actions"`
}

// Weights holds the scoring magnitudes. Values are calibrated against
// the original engine; change them only via the profiles file.
type Weights struct {
	OverlapPoints    int                `yaml:"overlap_points"`
	OverlapCap       int                `yaml:"overlap_cap"`
	AreaBonus        map[ImpactArea]int `yaml:"area_bonus"`
	RequirementBonus int                `yaml:"requirement_bonus"`
}

// Thresholds holds the inclusion cutoff and level boundaries.
type Thresholds struct {
	Include int `yaml:"include"`
	Medium  int `yaml:"medium"`
	High    int `yaml:"high"`
}

// Registry is the loaded impact configuration: field profiles, area
// keyword sets, scoring weights, and the approval workflow text.
type Registry struct {
	Weights          Weights                 `yaml:"weights"`
	Thresholds       Thresholds              `yaml:"thresholds"`
	Keywords         map[ImpactArea][]string `yaml:"keywords"`
	Profiles         map[string]Profile      `yaml:"profiles"`
	DefaultProfile   Profile                 `yaml:"default_profile"`
	ApprovalWorkflow []string                `yaml:"approval_workflow"`
}

// LoadRegistry reads the embedded profiles.yaml, preferring a
// filesystem copy at path when one is given (so heuristics can be
// retuned without a rebuild).
func LoadRegistry(path string) (*Registry, error) {
	var data []byte
	var err error

	if path != "" {
		data, err = os.ReadFile(path)
	}
	if path == "" || err != nil {
		data, err = profilesYAML.ReadFile("config/profiles.yaml")
		if err != nil {
			return nil, fmt.Errorf("reading embedded impact profiles: %w", err)
		}
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, fmt.Errorf("parsing impact profiles: %w", err)
	}

	if reg.Weights.OverlapPoints == 0 || reg.Thresholds.Include == 0 {
		return nil, fmt.Errorf("impact profiles missing scoring weights")
	}

	return &reg, nil
}

// MustLoadRegistry loads the embedded defaults and panics on failure.
// The embedded file is compiled in, so failure means a build defect.
func MustLoadRegistry() *Registry {
	reg, err := LoadRegistry("")
	if err != nil {
		panic(err)
	}
	return reg
}

// profileFor resolves a changed field to its impact profile, falling
// back to the default profile for unknown fields.
func (r *Registry) profileFor(field string) Profile {
	if p, ok := r.Profiles[field]; ok {
		return p
	}
	return r.DefaultProfile
}
