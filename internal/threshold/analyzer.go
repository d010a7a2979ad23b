// Package threshold sweeps a classifier's decision threshold and scores
// each candidate on performance and group fairness, so operators can pick a
// cutoff instead of inheriting 0.5 by default.
package threshold

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/probity-ml/rawls/internal/fairness"
	"github.com/probity-ml/rawls/internal/policy"
)

// sweepStep is the threshold granularity: candidates run 0.01 through 0.99.
const sweepStep = 0.01

// ErrNotAnalyzed is returned when a threshold search runs before Analyze.
var ErrNotAnalyzed = errors.New("no sweep available: run Analyze first")

// Point holds the performance and fairness profile at one candidate
// threshold.
type Point struct {
	Threshold              float64 `json:"threshold"`
	Accuracy               float64 `json:"accuracy"`
	Precision              float64 `json:"precision"`
	Recall                 float64 `json:"recall"`
	F1                     float64 `json:"f1"`
	StatisticalParityDiff  float64 `json:"statistical_parity_diff"`
	StatisticalParityRatio float64 `json:"statistical_parity_ratio"`
	DisparateImpactRatio   float64 `json:"disparate_impact_ratio"`
	EqualOpportunityDiff   float64 `json:"equal_opportunity_diff"`
	EqualizedOddsTPRDiff   float64 `json:"equalized_odds_tpr_diff"`
	EqualizedOddsFPRDiff   float64 `json:"equalized_odds_fpr_diff"`
}

// Optimal is the outcome of a threshold search. Found is false when a
// constraint excluded every candidate.
type Optimal struct {
	Found             bool    `json:"found"`
	Threshold         float64 `json:"threshold"`
	FairnessValue     float64 `json:"fairness_value"`
	PerformanceValue  float64 `json:"performance_value"`
	CombinedScore     float64 `json:"combined_score"`
	FairnessMetric    string  `json:"fairness_metric"`
	PerformanceMetric string  `json:"performance_metric"`
	FairnessWeight    float64 `json:"fairness_weight"`
}

// Analyzer owns one sweep at a time. Safe for concurrent use.
type Analyzer struct {
	mu     sync.RWMutex
	policy *policy.Policy
	sweep  []Point
}

// NewAnalyzer evaluates candidates under the given policy, defaulting when
// nil.
func NewAnalyzer(p *policy.Policy) *Analyzer {
	if p == nil {
		p = policy.Default()
	}
	return &Analyzer{policy: p}
}

// Analyze sweeps thresholds 0.01 through 0.99 over the scored samples and
// retains the result for the search methods. The returned slice is ordered
// by threshold.
func (a *Analyzer) Analyze(yTrue []bool, yProb []float64, group []string) ([]Point, error) {
	if len(yTrue) != len(yProb) {
		return nil, fmt.Errorf("y_true and y_prob have different lengths: %d vs %d", len(yTrue), len(yProb))
	}
	if len(yTrue) != len(group) {
		return nil, fmt.Errorf("y_true and group have different lengths: %d vs %d", len(yTrue), len(group))
	}

	sweep := make([]Point, 0, 99)
	for step := 1; step <= 99; step++ {
		t := float64(step) * sweepStep
		yPred := make([]bool, len(yProb))
		for i, p := range yProb {
			yPred[i] = p >= t
		}
		sweep = append(sweep, a.evaluate(t, yTrue, yPred, group))
	}

	a.mu.Lock()
	a.sweep = sweep
	a.mu.Unlock()

	out := make([]Point, len(sweep))
	copy(out, sweep)
	return out, nil
}

func (a *Analyzer) evaluate(t float64, yTrue, yPred []bool, group []string) Point {
	var tp, tn, fp, fn int
	for i := range yTrue {
		switch {
		case yTrue[i] && yPred[i]:
			tp++
		case !yTrue[i] && !yPred[i]:
			tn++
		case !yTrue[i] && yPred[i]:
			fp++
		default:
			fn++
		}
	}

	precision := ratio(tp, tp+fp)
	recall := ratio(tp, tp+fn)
	f1 := 0.0
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}

	sp := fairness.StatisticalParity(yPred, group, a.policy.StatisticalParityThreshold)
	di := fairness.DisparateImpact(yPred, group, a.policy.DisparateImpactMinRatio)
	eo := fairness.EqualOpportunity(yTrue, yPred, group, a.policy.EqualOpportunityThreshold)
	odds := fairness.EqualizedOdds(yTrue, yPred, group, a.policy.EqualizedOddsThreshold)

	return Point{
		Threshold:              t,
		Accuracy:               ratio(tp+tn, len(yTrue)),
		Precision:              precision,
		Recall:                 recall,
		F1:                     f1,
		StatisticalParityDiff:  sp.Difference,
		StatisticalParityRatio: sp.Ratio,
		DisparateImpactRatio:   di.Ratio,
		EqualOpportunityDiff:   eo.Difference,
		EqualizedOddsTPRDiff:   odds.TPRDifference,
		EqualizedOddsFPRDiff:   odds.FPRDifference,
	}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

var fairnessMetrics = map[string]func(Point) float64{
	"statistical_parity_diff":  func(p Point) float64 { return p.StatisticalParityDiff },
	"statistical_parity_ratio": func(p Point) float64 { return p.StatisticalParityRatio },
	"disparate_impact_ratio":   func(p Point) float64 { return p.DisparateImpactRatio },
	"equal_opportunity_diff":   func(p Point) float64 { return p.EqualOpportunityDiff },
	"equalized_odds_tpr_diff":  func(p Point) float64 { return p.EqualizedOddsTPRDiff },
	"equalized_odds_fpr_diff":  func(p Point) float64 { return p.EqualizedOddsFPRDiff },
}

var performanceMetrics = map[string]func(Point) float64{
	"accuracy":  func(p Point) float64 { return p.Accuracy },
	"precision": func(p Point) float64 { return p.Precision },
	"recall":    func(p Point) float64 { return p.Recall },
	"f1":        func(p Point) float64 { return p.F1 },
}

func metricNames(m map[string]func(Point) float64) string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// fairnessScore normalizes a fairness metric so higher is always better:
// ratio metrics pass through, difference metrics invert to 1 - diff.
func fairnessScore(name string, v float64) float64 {
	if strings.HasSuffix(name, "_ratio") {
		return v
	}
	s := 1 - v
	if s < 0 {
		s = 0
	}
	return s
}

// OptimalThreshold finds the candidate maximizing
// weight*fairness + (1-weight)*performance over the stored sweep.
func (a *Analyzer) OptimalThreshold(fairnessMetric, performanceMetric string, fairnessWeight float64) (Optimal, error) {
	fm, ok := fairnessMetrics[fairnessMetric]
	if !ok {
		return Optimal{}, fmt.Errorf("unknown fairness metric %q (valid: %s)", fairnessMetric, metricNames(fairnessMetrics))
	}
	pm, ok := performanceMetrics[performanceMetric]
	if !ok {
		return Optimal{}, fmt.Errorf("unknown performance metric %q (valid: %s)", performanceMetric, metricNames(performanceMetrics))
	}
	if fairnessWeight < 0 || fairnessWeight > 1 {
		return Optimal{}, fmt.Errorf("fairness weight %v outside [0, 1]", fairnessWeight)
	}

	a.mu.RLock()
	sweep := a.sweep
	a.mu.RUnlock()
	if len(sweep) == 0 {
		return Optimal{}, ErrNotAnalyzed
	}

	best := Optimal{
		FairnessMetric:    fairnessMetric,
		PerformanceMetric: performanceMetric,
		FairnessWeight:    fairnessWeight,
	}
	for _, p := range sweep {
		fair := fairnessScore(fairnessMetric, fm(p))
		perf := pm(p)
		combined := fairnessWeight*fair + (1-fairnessWeight)*perf
		if !best.Found || combined > best.CombinedScore {
			best.Found = true
			best.Threshold = p.Threshold
			best.FairnessValue = fm(p)
			best.PerformanceValue = perf
			best.CombinedScore = combined
		}
	}
	return best, nil
}

// FairThreshold finds the candidate with the best performance among those
// satisfying the fairness constraint: ratio metrics must reach
// constraintValue, difference metrics must stay at or under it. When no
// candidate qualifies the result carries Found=false instead of an error,
// since an unsatisfiable constraint is an answer, not a failure.
func (a *Analyzer) FairThreshold(constraintMetric string, constraintValue float64, performanceMetric string) (Optimal, error) {
	fm, ok := fairnessMetrics[constraintMetric]
	if !ok {
		return Optimal{}, fmt.Errorf("unknown fairness metric %q (valid: %s)", constraintMetric, metricNames(fairnessMetrics))
	}
	pm, ok := performanceMetrics[performanceMetric]
	if !ok {
		return Optimal{}, fmt.Errorf("unknown performance metric %q (valid: %s)", performanceMetric, metricNames(performanceMetrics))
	}

	a.mu.RLock()
	sweep := a.sweep
	a.mu.RUnlock()
	if len(sweep) == 0 {
		return Optimal{}, ErrNotAnalyzed
	}

	isRatio := strings.HasSuffix(constraintMetric, "_ratio")
	best := Optimal{
		FairnessMetric:    constraintMetric,
		PerformanceMetric: performanceMetric,
	}
	for _, p := range sweep {
		v := fm(p)
		satisfied := (isRatio && v >= constraintValue) || (!isRatio && v <= constraintValue)
		if !satisfied {
			continue
		}
		perf := pm(p)
		if !best.Found || perf > best.PerformanceValue {
			best.Found = true
			best.Threshold = p.Threshold
			best.FairnessValue = v
			best.PerformanceValue = perf
			best.CombinedScore = perf
		}
	}
	return best, nil
}

// Recommend picks a threshold using a named strategy: balanced weighs
// fairness and performance equally, fairness_priority weighs fairness at
// 0.7 and performance_priority at 0.3. All strategies trade disparate
// impact against F1.
func (a *Analyzer) Recommend(strategy string) (Optimal, error) {
	var weight float64
	switch strategy {
	case "balanced":
		weight = 0.5
	case "fairness_priority":
		weight = 0.7
	case "performance_priority":
		weight = 0.3
	default:
		return Optimal{}, fmt.Errorf("unknown strategy %q (valid: balanced, fairness_priority, performance_priority)", strategy)
	}
	return a.OptimalThreshold("disparate_impact_ratio", "f1", weight)
}

// Sweep returns a copy of the stored sweep, if any.
func (a *Analyzer) Sweep() []Point {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Point, len(a.sweep))
	copy(out, a.sweep)
	return out
}
