package fairness

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/probity-ml/rawls/internal/cache"
	"github.com/probity-ml/rawls/internal/policy"
)

const (
	defaultCacheSize = 256
	defaultCacheTTL  = time.Hour
)

// ErrNoMetrics is returned when a summary or recommendation is requested
// before any evaluation has run.
var ErrNoMetrics = errors.New("no metrics computed yet: call CalculateAll first")

// Calculator runs the full metric suite under a fairness policy and
// memoizes results by a content hash of the inputs, so re-evaluating the
// same data is free regardless of call order. Safe for concurrent use.
type Calculator struct {
	policy     *policy.Policy
	policyHash string
	results    *cache.Cache[string, any]

	mu   sync.RWMutex
	last *Bundle
}

// NewCalculator builds a calculator for the given policy. The policy is
// validated up front so metric calls never fail on threshold errors.
func NewCalculator(p *policy.Policy) (*Calculator, error) {
	if p == nil {
		p = policy.Default()
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}
	hash, err := p.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash policy: %w", err)
	}
	results, err := cache.New[string, any](defaultCacheSize, defaultCacheTTL)
	if err != nil {
		return nil, err
	}
	return &Calculator{policy: p, policyHash: hash, results: results}, nil
}

// Policy returns the policy the calculator evaluates against.
func (c *Calculator) Policy() *policy.Policy {
	return c.policy
}

// Validate checks that the batch's parallel arrays agree in length. The
// first mismatch found is reported as a *policy.ValidationError naming the
// offending field; probabilities are only checked when present.
func (b *Batch) Validate() error {
	if len(b.YTrue) != len(b.YPred) {
		return &policy.ValidationError{
			Field:   "y_pred",
			Message: fmt.Sprintf("y_true and y_pred have different lengths: %d vs %d", len(b.YTrue), len(b.YPred)),
		}
	}
	if len(b.YPred) != len(b.Group) {
		return &policy.ValidationError{
			Field:   "group",
			Message: fmt.Sprintf("y_pred and group have different lengths: %d vs %d", len(b.YPred), len(b.Group)),
		}
	}
	if len(b.YProb) > 0 && len(b.YProb) != len(b.YPred) {
		return &policy.ValidationError{
			Field:   "y_prob",
			Message: fmt.Sprintf("y_prob and y_pred have different lengths: %d vs %d", len(b.YProb), len(b.YPred)),
		}
	}
	return nil
}

// CalculatePretrain computes the model-independent metrics for string
// labels partitioned by group.
func (c *Calculator) CalculatePretrain(labels, group []string) (*PretrainMetrics, error) {
	if len(labels) != len(group) {
		return nil, &policy.ValidationError{
			Field:   "group",
			Message: fmt.Sprintf("labels and group have different lengths: %d vs %d", len(labels), len(group)),
		}
	}

	key := labelDigest("pretrain:"+c.policyHash, labels, group)
	if v, ok := c.results.Get(key); ok {
		if m, ok := v.(*PretrainMetrics); ok {
			return m, nil
		}
	}

	m := &PretrainMetrics{
		ClassBalance:                ClassBalance(labels, group),
		ConceptBalance:              ConceptBalance(labels, group),
		GroupDistributionDifference: GroupDistributionDifference(labels, group),
	}
	c.results.Set(key, m)
	return m, nil
}

// CalculatePosttrain computes the model-dependent metrics for a batch.
// Calibration is included only when the batch carries probabilities.
func (c *Calculator) CalculatePosttrain(b Batch) (*PosttrainMetrics, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	key := digest("posttrain:"+c.policyHash, b.YTrue, b.YPred, b.YProb, b.Group)
	if v, ok := c.results.Get(key); ok {
		if m, ok := v.(*PosttrainMetrics); ok {
			return m, nil
		}
	}

	p := c.policy
	m := &PosttrainMetrics{
		StatisticalParity:        StatisticalParity(b.YPred, b.Group, p.StatisticalParityThreshold),
		DisparateImpact:          DisparateImpact(b.YPred, b.Group, p.DisparateImpactMinRatio),
		EqualOpportunity:         EqualOpportunity(b.YTrue, b.YPred, b.Group, p.EqualOpportunityThreshold),
		EqualizedOdds:            EqualizedOdds(b.YTrue, b.YPred, b.Group, p.EqualizedOddsThreshold),
		ConfusionMatrix:          ConfusionMatrixByGroup(b.YTrue, b.YPred, b.Group),
		FalseNegativeRateDiff:    FalseNegativeRateDifference(b.YTrue, b.YPred, b.Group, p.FalseNegativeRateThreshold),
		PredictiveParity:         PredictiveParity(b.YTrue, b.YPred, b.Group, p.PredictiveParityThreshold),
		NegativePredictiveParity: NegativePredictiveParity(b.YTrue, b.YPred, b.Group, p.PredictiveParityThreshold),
		AccuracyDifference:       AccuracyDifference(b.YTrue, b.YPred, b.Group, p.AccuracyThreshold),
		TreatmentEquality:        TreatmentEquality(b.YTrue, b.YPred, b.Group, p.TreatmentEqualityThreshold),
	}
	if b.HasProbabilities() {
		cal := CalibrationByGroup(b.YTrue, b.YProb, b.Group, p.CalibrationBins, p.CalibrationThreshold)
		m.Calibration = &cal
	}
	c.results.Set(key, m)
	return m, nil
}

// CalculateAll runs the complete suite: pretrain metrics over the true
// labels, the posttrain metrics, and the four-check summary. The bundle is
// retained as the calculator's latest result.
func (c *Calculator) CalculateAll(b Batch) (*Bundle, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	pre, err := c.CalculatePretrain(LabelsFromBool(b.YTrue), b.Group)
	if err != nil {
		return nil, err
	}
	post, err := c.CalculatePosttrain(b)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{
		Pretrain:  pre,
		Posttrain: post,
		Summary:   summarize(post),
	}

	c.mu.Lock()
	c.last = bundle
	c.mu.Unlock()
	return bundle, nil
}

// summaryChecks are the fixed checks feeding the overall score, in report
// order.
var summaryChecks = []struct {
	name string
	fair func(*PosttrainMetrics) bool
}{
	{"statistical_parity", func(m *PosttrainMetrics) bool { return m.StatisticalParity.IsFair }},
	{"disparate_impact", func(m *PosttrainMetrics) bool { return m.DisparateImpact.Passes80Rule }},
	{"equal_opportunity", func(m *PosttrainMetrics) bool { return m.EqualOpportunity.IsFair }},
	{"equalized_odds", func(m *PosttrainMetrics) bool { return m.EqualizedOdds.IsFair }},
}

func summarize(m *PosttrainMetrics) Summary {
	violations := make([]string, 0, len(summaryChecks))
	for _, check := range summaryChecks {
		if !check.fair(m) {
			violations = append(violations, check.name)
		}
	}
	n := len(violations)
	return Summary{
		OverallScore:          100.0 * float64(len(summaryChecks)-n) / float64(len(summaryChecks)),
		FairnessViolations:    violations,
		NViolations:           n,
		DisparateImpactRatio:  m.DisparateImpact.Ratio,
		StatisticalParityDiff: m.StatisticalParity.Difference,
		PassesBasicFairness:   n == 0,
	}
}

// GetSummary returns the summary of the most recent CalculateAll.
func (c *Calculator) GetSummary() (Summary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.last == nil {
		return Summary{}, ErrNoMetrics
	}
	return c.last.Summary, nil
}

var recommendationText = map[string]string{
	"statistical_parity": "Selection rates differ substantially across groups. Consider rebalancing " +
		"training data or applying per-group threshold adjustment.",
	"disparate_impact": "Disparate impact ratio falls below the four-fifths rule. Review selection " +
		"criteria and consider reweighing samples before retraining.",
	"equal_opportunity": "True positive rates differ across groups. Qualified members of some groups " +
		"are missed more often; consider collecting more representative positive examples.",
	"equalized_odds": "Error rates are not balanced across groups. Consider post-processing the " +
		"classifier with an equalized-odds correction.",
}

// Recommendations maps each summary violation to remediation guidance. With
// a nil bundle the most recent CalculateAll result is used; if none exists,
// ErrNoMetrics is returned. A clean summary yields a single monitoring
// recommendation.
func (c *Calculator) Recommendations(bundle *Bundle) ([]string, error) {
	if bundle == nil {
		c.mu.RLock()
		bundle = c.last
		c.mu.RUnlock()
		if bundle == nil {
			return nil, ErrNoMetrics
		}
	}

	if len(bundle.Summary.FairnessViolations) == 0 {
		return []string{"No fairness violations detected. Continue monitoring metrics over time."}, nil
	}

	recs := make([]string, 0, len(bundle.Summary.FairnessViolations))
	for _, v := range bundle.Summary.FairnessViolations {
		if text, ok := recommendationText[v]; ok {
			recs = append(recs, text)
		}
	}
	return recs, nil
}

// ClearCache drops all memoized results and the latest bundle.
func (c *Calculator) ClearCache() {
	c.results.Purge()
	c.mu.Lock()
	c.last = nil
	c.mu.Unlock()
}

// CacheStats reports hit/miss counters for the result cache.
func (c *Calculator) CacheStats() cache.Stats {
	return c.results.Stats()
}

// MetricsSnapshot flattens a bundle into the named scalar metrics that the
// drift detector tracks between evaluations.
func (b *Bundle) MetricsSnapshot() map[string]float64 {
	if b == nil || b.Posttrain == nil {
		return map[string]float64{}
	}
	m := map[string]float64{
		"statistical_parity_diff":         b.Posttrain.StatisticalParity.Difference,
		"disparate_impact_ratio":          b.Posttrain.DisparateImpact.Ratio,
		"equal_opportunity_diff":          b.Posttrain.EqualOpportunity.Difference,
		"equalized_odds_tpr_diff":         b.Posttrain.EqualizedOdds.TPRDifference,
		"equalized_odds_fpr_diff":         b.Posttrain.EqualizedOdds.FPRDifference,
		"false_negative_rate_diff":        b.Posttrain.FalseNegativeRateDiff.Difference,
		"predictive_parity_diff":          b.Posttrain.PredictiveParity.Difference,
		"negative_predictive_parity_diff": b.Posttrain.NegativePredictiveParity.Difference,
		"accuracy_diff":                   b.Posttrain.AccuracyDifference.Difference,
		"treatment_equality_diff":         b.Posttrain.TreatmentEquality.Difference,
		"overall_fairness_score":          b.Summary.OverallScore,
	}
	if b.Posttrain.Calibration != nil {
		m["calibration_diff"] = b.Posttrain.Calibration.Difference
	}
	return m
}
