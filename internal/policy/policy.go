package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Policy holds the fairness thresholds applied when judging metric results.
//
// The four basic checks (statistical parity, disparate impact, equal
// opportunity, equalized odds) feed the overall fairness score, so their
// thresholds must stay stable across runs for scores to be comparable.
type Policy struct {
	Version     string    `json:"version"` // Semantic version
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	Active      bool      `json:"active"`

	// Basic check thresholds
	StatisticalParityThreshold float64 `json:"statistical_parity_threshold"`
	DisparateImpactMinRatio    float64 `json:"disparate_impact_min_ratio"`
	EqualOpportunityThreshold  float64 `json:"equal_opportunity_threshold"`
	EqualizedOddsThreshold     float64 `json:"equalized_odds_threshold"`

	// Advanced metric thresholds
	PredictiveParityThreshold  float64 `json:"predictive_parity_threshold"`
	FalseNegativeRateThreshold float64 `json:"false_negative_rate_threshold"`
	AccuracyThreshold          float64 `json:"accuracy_threshold"`
	TreatmentEqualityThreshold float64 `json:"treatment_equality_threshold"`
	CalibrationThreshold       float64 `json:"calibration_threshold"`
	CalibrationBins            int     `json:"calibration_bins"`

	// Feature flags
	Flags map[string]bool `json:"flags,omitempty"`
}

// ValidationError reports an invalid input or policy field by name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s]: %s", e.Field, e.Message)
}

// Validate checks all threshold fields before a policy is registered.
func (p *Policy) Validate() error {
	if p.Version == "" {
		return &ValidationError{Field: "version", Message: "version is required"}
	}

	// Difference-style thresholds live in (0, 1]
	diffThresholds := []struct {
		field string
		value float64
	}{
		{"statistical_parity_threshold", p.StatisticalParityThreshold},
		{"equal_opportunity_threshold", p.EqualOpportunityThreshold},
		{"equalized_odds_threshold", p.EqualizedOddsThreshold},
		{"predictive_parity_threshold", p.PredictiveParityThreshold},
		{"false_negative_rate_threshold", p.FalseNegativeRateThreshold},
		{"accuracy_threshold", p.AccuracyThreshold},
		{"calibration_threshold", p.CalibrationThreshold},
	}
	for _, t := range diffThresholds {
		if t.value <= 0 || t.value > 1 {
			return &ValidationError{Field: t.field, Message: "must be in (0, 1]"}
		}
	}

	// Treatment equality compares FN/FP ratios, which are unbounded above,
	// so only non-positivity is rejected.
	if p.TreatmentEqualityThreshold <= 0 {
		return &ValidationError{Field: "treatment_equality_threshold", Message: "must be positive"}
	}

	if p.DisparateImpactMinRatio <= 0 || p.DisparateImpactMinRatio > 1 {
		return &ValidationError{Field: "disparate_impact_min_ratio", Message: "must be in (0, 1]"}
	}

	if p.CalibrationBins < 2 {
		return &ValidationError{Field: "calibration_bins", Message: "at least 2 bins required"}
	}

	return nil
}

// Hash computes a stable hash of the policy thresholds for lineage tracking.
func (p *Policy) Hash() (string, error) {
	canonical := map[string]interface{}{
		"version":                       p.Version,
		"statistical_parity_threshold":  p.StatisticalParityThreshold,
		"disparate_impact_min_ratio":    p.DisparateImpactMinRatio,
		"equal_opportunity_threshold":   p.EqualOpportunityThreshold,
		"equalized_odds_threshold":      p.EqualizedOddsThreshold,
		"predictive_parity_threshold":   p.PredictiveParityThreshold,
		"false_negative_rate_threshold": p.FalseNegativeRateThreshold,
		"accuracy_threshold":            p.AccuracyThreshold,
		"treatment_equality_threshold":  p.TreatmentEqualityThreshold,
		"calibration_threshold":         p.CalibrationThreshold,
		"calibration_bins":              p.CalibrationBins,
	}

	jsonBytes, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to marshal policy for hashing: %w", err)
	}

	hash := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(hash[:]), nil
}

// Registry manages versioned fairness policies
type Registry struct {
	policies map[string]*Policy // version -> policy
	active   string             // active policy version
}

// NewRegistry creates a new policy registry
func NewRegistry() *Registry {
	return &Registry{
		policies: make(map[string]*Policy),
	}
}

// Register adds a policy to the registry after validation
func (r *Registry) Register(p *Policy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("policy validation failed: %w", err)
	}

	if _, exists := r.policies[p.Version]; exists {
		return fmt.Errorf("policy version %s already exists", p.Version)
	}

	r.policies[p.Version] = p
	return nil
}

// Promote activates a policy version
func (r *Registry) Promote(version string) error {
	p, exists := r.policies[version]
	if !exists {
		return fmt.Errorf("policy version %s not found", version)
	}

	if !p.Active {
		return fmt.Errorf("policy version %s is not active", version)
	}

	r.active = version
	return nil
}

// GetActive returns the currently active policy
func (r *Registry) GetActive() (*Policy, error) {
	if r.active == "" {
		return nil, fmt.Errorf("no active policy")
	}

	p, exists := r.policies[r.active]
	if !exists {
		return nil, fmt.Errorf("active policy %s not found", r.active)
	}

	return p, nil
}

// Get retrieves a policy by version
func (r *Registry) Get(version string) (*Policy, error) {
	p, exists := r.policies[version]
	if !exists {
		return nil, fmt.Errorf("policy version %s not found", version)
	}
	return p, nil
}

// ListVersions returns all policy versions
func (r *Registry) ListVersions() []string {
	versions := make([]string, 0, len(r.policies))
	for v := range r.policies {
		versions = append(versions, v)
	}
	return versions
}

// Default returns the conventional thresholds: 0.1 for parity-style
// differences, the 80% rule for disparate impact, 0.05 for accuracy and
// calibration, 0.2 for treatment equality.
func Default() *Policy {
	return &Policy{
		Version:                    "1.0.0",
		Name:                       "default",
		Description:                "Conventional group-fairness thresholds",
		CreatedAt:                  time.Now(),
		Active:                     true,
		StatisticalParityThreshold: 0.1,
		DisparateImpactMinRatio:    0.8,
		EqualOpportunityThreshold:  0.1,
		EqualizedOddsThreshold:     0.1,
		PredictiveParityThreshold:  0.1,
		FalseNegativeRateThreshold: 0.1,
		AccuracyThreshold:          0.05,
		TreatmentEqualityThreshold: 0.2,
		CalibrationThreshold:       0.05,
		CalibrationBins:            10,
		Flags:                      make(map[string]bool),
	}
}
