// Package report shapes a metrics bundle into an operator-facing report:
// graded metric cards grouped into sections, plus flat issue and pass lists
// for dashboards that only want the headlines.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/probity-ml/rawls/internal/fairness"
	"github.com/probity-ml/rawls/internal/policy"
)

// Status grades one metric card.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// StatusFor grades a metric value. Ratio metrics are higher-better: ok at or
// above the threshold, warning within 0.1 below it, critical further down.
// Difference metrics are lower-better: ok at or under the threshold, warning
// up to twice it, critical beyond.
func StatusFor(isRatio bool, value, threshold float64) Status {
	if isRatio {
		switch {
		case value >= threshold:
			return StatusOK
		case value >= threshold-0.1:
			return StatusWarning
		default:
			return StatusCritical
		}
	}
	switch {
	case value <= threshold:
		return StatusOK
	case value <= 2*threshold:
		return StatusWarning
	default:
		return StatusCritical
	}
}

// Card is one graded metric.
type Card struct {
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Status      Status  `json:"status"`
	Detail      string  `json:"detail"`
}

// Section groups related cards.
type Section struct {
	Title string `json:"title"`
	Cards []Card `json:"cards"`
}

// Report is the rendered view of one evaluation.
type Report struct {
	GeneratedAt         time.Time `json:"generated_at"`
	OverallScore        float64   `json:"overall_score"`
	OverallStatus       Status    `json:"overall_status"`
	PassesBasicFairness bool      `json:"passes_basic_fairness"`
	Sections            []Section `json:"sections"`
	Issues              []string  `json:"issues"`
	Passes              []string  `json:"passes"`
	Recommendations     []string  `json:"recommendations"`
}

// JSON renders the report with indentation for file output and API
// responses.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Transformer builds reports under one policy's thresholds.
type Transformer struct {
	policy *policy.Policy
}

// NewTransformer uses the default policy when p is nil.
func NewTransformer(p *policy.Policy) *Transformer {
	if p == nil {
		p = policy.Default()
	}
	return &Transformer{policy: p}
}

// Transform renders a bundle into a report. The recommendations are passed
// through from the calculator so the report stays a pure projection.
func (t *Transformer) Transform(bundle *fairness.Bundle, recommendations []string) (*Report, error) {
	if bundle == nil || bundle.Posttrain == nil {
		return nil, errors.New("metrics bundle is empty: nothing to report")
	}

	sections := []Section{
		t.groupFairnessSection(bundle.Posttrain),
		t.errorParitySection(bundle.Posttrain),
	}
	if bundle.Pretrain != nil {
		sections = append(sections, t.dataBalanceSection(bundle.Pretrain))
	}

	r := &Report{
		GeneratedAt:         time.Now().UTC(),
		OverallScore:        bundle.Summary.OverallScore,
		OverallStatus:       StatusOK,
		PassesBasicFairness: bundle.Summary.PassesBasicFairness,
		Sections:            sections,
		Recommendations:     recommendations,
	}
	for _, s := range sections {
		for _, c := range s.Cards {
			line := fmt.Sprintf("%s: %s (%.4f)", c.DisplayName, c.Status, c.Value)
			if c.Status == StatusOK {
				r.Passes = append(r.Passes, line)
				continue
			}
			r.Issues = append(r.Issues, line)
			if c.Status == StatusCritical {
				r.OverallStatus = StatusCritical
			} else if r.OverallStatus == StatusOK {
				r.OverallStatus = StatusWarning
			}
		}
	}
	return r, nil
}

func (t *Transformer) groupFairnessSection(m *fairness.PosttrainMetrics) Section {
	p := t.policy
	return Section{
		Title: "Group Fairness",
		Cards: []Card{
			diffCard("statistical_parity_diff", "Statistical parity difference",
				m.StatisticalParity.Difference, p.StatisticalParityThreshold,
				"max - min selection rate across groups"),
			ratioCard("disparate_impact_ratio", "Disparate impact ratio",
				m.DisparateImpact.Ratio, p.DisparateImpactMinRatio,
				fmt.Sprintf("min / max selection rate; %s favored over %s",
					m.DisparateImpact.AdvantagedGroup, m.DisparateImpact.DisadvantagedGroup)),
			diffCard("equal_opportunity_diff", "Equal opportunity difference",
				m.EqualOpportunity.Difference, p.EqualOpportunityThreshold,
				"max - min true positive rate across groups"),
			diffCard("equalized_odds_tpr_diff", "Equalized odds TPR difference",
				m.EqualizedOdds.TPRDifference, p.EqualizedOddsThreshold,
				"max - min true positive rate across groups"),
			diffCard("equalized_odds_fpr_diff", "Equalized odds FPR difference",
				m.EqualizedOdds.FPRDifference, p.EqualizedOddsThreshold,
				"max - min false positive rate across groups"),
		},
	}
}

func (t *Transformer) errorParitySection(m *fairness.PosttrainMetrics) Section {
	p := t.policy
	cards := []Card{
		diffCard("predictive_parity_diff", "Predictive parity difference",
			m.PredictiveParity.Difference, p.PredictiveParityThreshold,
			"max - min positive predictive value across groups"),
		diffCard("negative_predictive_parity_diff", "Negative predictive parity difference",
			m.NegativePredictiveParity.Difference, p.PredictiveParityThreshold,
			"max - min negative predictive value across groups"),
		diffCard("false_negative_rate_diff", "False negative rate difference",
			m.FalseNegativeRateDiff.Difference, p.FalseNegativeRateThreshold,
			"max - min false negative rate across groups"),
		diffCard("accuracy_diff", "Accuracy difference",
			m.AccuracyDifference.Difference, p.AccuracyThreshold,
			"max - min accuracy across groups"),
		diffCard("treatment_equality_diff", "Treatment equality difference",
			m.TreatmentEquality.Difference, p.TreatmentEqualityThreshold,
			"max - min FN/FP ratio across groups with defined ratios"),
	}
	if m.Calibration != nil {
		cards = append(cards, diffCard("calibration_diff", "Calibration difference",
			m.Calibration.Difference, p.CalibrationThreshold,
			"max - min expected calibration error across groups"))
	}
	return Section{Title: "Error Rate Parity", Cards: cards}
}

// Data balance grading uses fixed report thresholds: a balance score of 0.8
// separates healthy from skewed label distributions, and a normalized
// mutual information of 0.1 separates near-independence from leakage of the
// group into the label.
const (
	balanceScoreFloor = 0.8
	normalizedMICeil  = 0.1
)

func (t *Transformer) dataBalanceSection(m *fairness.PretrainMetrics) Section {
	cards := []Card{
		diffCard("normalized_mutual_information", "Group/label mutual information",
			m.ConceptBalance.NormalizedMI, normalizedMICeil,
			"normalized MI between group membership and label"),
	}

	groups := make([]string, 0, len(m.ClassBalance))
	for g := range m.ClassBalance {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	for _, g := range groups {
		cards = append(cards, ratioCard(
			fmt.Sprintf("class_balance_%s", g),
			fmt.Sprintf("Class balance (%s)", g),
			m.ClassBalance[g].BalanceScore, balanceScoreFloor,
			fmt.Sprintf("normalized label entropy over %d samples", m.ClassBalance[g].TotalSamples)))
	}
	return Section{Title: "Data Balance", Cards: cards}
}

func diffCard(name, display string, value, threshold float64, detail string) Card {
	return Card{
		Name:        name,
		DisplayName: display,
		Value:       value,
		Threshold:   threshold,
		Status:      StatusFor(false, value, threshold),
		Detail:      detail,
	}
}

func ratioCard(name, display string, value, threshold float64, detail string) Card {
	return Card{
		Name:        name,
		DisplayName: display,
		Value:       value,
		Threshold:   threshold,
		Status:      StatusFor(true, value, threshold),
		Detail:      detail,
	}
}
