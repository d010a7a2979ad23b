// Package drift detects movement of fairness metrics away from a recorded
// baseline and tracks recent movement over a sliding window of evaluations.
package drift

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// Method identifies the comparison algorithm used against the baseline.
type Method string

const (
	// MethodThreshold flags any metric whose absolute change exceeds the
	// configured threshold.
	MethodThreshold Method = "threshold"
	// MethodPSI scores changes with the population stability index term
	// |(new - base) * ln(new / base)|, compared against 2.5x the threshold.
	MethodPSI Method = "psi"
	// MethodKS behaves like MethodThreshold for scalar metrics. A true
	// two-sample KS test needs score distributions, which single metric
	// values cannot provide, so the result is tagged as an approximation.
	MethodKS Method = "ks"
)

const (
	defaultThreshold = 0.1
	psiFloor         = 1e-10
	psiScale         = 2.5
)

// Severity grades a drift result.
type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Details carries the raw inputs behind a drift result.
type Details struct {
	Baseline     map[string]float64 `json:"baseline_metrics"`
	New          map[string]float64 `json:"new_metrics"`
	NumDrifted   int                `json:"num_drifted"`
	NumCompared  int                `json:"num_compared"`
	PSIThreshold float64            `json:"psi_threshold,omitempty"`
	Note         string             `json:"note,omitempty"`
}

// Result is the outcome of one baseline comparison. DriftScores holds the
// score of every compared metric; DriftedMetrics is the subset whose score
// crossed the cutoff.
type Result struct {
	HasDrift       bool               `json:"has_drift"`
	DriftedMetrics map[string]float64 `json:"drifted_metrics"`
	DriftScores    map[string]float64 `json:"drift_scores"`
	Method         Method             `json:"method"`
	Threshold      float64            `json:"threshold"`
	Severity       Severity           `json:"severity"`
	Message        string             `json:"message"`
	Timestamp      time.Time          `json:"timestamp"`
	Details        Details            `json:"details"`
}

// Detector compares metric snapshots against a fixed baseline. The baseline
// only changes through UpdateBaseline. Safe for concurrent use.
type Detector struct {
	mu        sync.RWMutex
	baseline  map[string]float64
	threshold float64
	method    Method
}

// New creates a detector over a copy of baseline. An empty method defaults
// to threshold comparison; an unknown method is rejected here rather than
// surfacing on every detection call. A non-positive threshold falls back to
// the 0.1 default.
func New(baseline map[string]float64, threshold float64, method Method) (*Detector, error) {
	if method == "" {
		method = MethodThreshold
	}
	switch method {
	case MethodThreshold, MethodPSI, MethodKS:
	default:
		return nil, fmt.Errorf("unknown drift detection method %q (valid: threshold, psi, ks)", method)
	}
	if threshold <= 0 {
		threshold = defaultThreshold
	}
	return &Detector{
		baseline:  copyMetrics(baseline),
		threshold: threshold,
		method:    method,
	}, nil
}

// Baseline returns a copy of the current baseline metrics.
func (d *Detector) Baseline() map[string]float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return copyMetrics(d.baseline)
}

// Threshold returns the configured drift threshold.
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// Method returns the configured comparison method.
func (d *Detector) Method() Method {
	return d.method
}

// UpdateBaseline replaces the baseline wholesale with a copy of metrics.
func (d *Detector) UpdateBaseline(metrics map[string]float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.baseline = copyMetrics(metrics)
}

// DetectDrift compares metrics against the baseline. Baseline metrics
// missing from the new snapshot are skipped; metrics that never appeared in
// the baseline are ignored.
func (d *Detector) DetectDrift(metrics map[string]float64) Result {
	d.mu.RLock()
	baseline := copyMetrics(d.baseline)
	d.mu.RUnlock()

	scores := make(map[string]float64)
	drifted := make(map[string]float64)
	compared := 0
	for name, base := range baseline {
		nv, ok := metrics[name]
		if !ok {
			continue
		}
		compared++
		score, over := d.score(base, nv)
		scores[name] = score
		if over {
			drifted[name] = score
		}
	}

	res := Result{
		HasDrift:       len(drifted) > 0,
		DriftedMetrics: drifted,
		DriftScores:    scores,
		Method:         d.method,
		Threshold:      d.threshold,
		Severity:       d.severity(len(drifted), compared, drifted),
		Timestamp:      time.Now().UTC(),
		Details: Details{
			Baseline:    baseline,
			New:         copyMetrics(metrics),
			NumDrifted:  len(drifted),
			NumCompared: compared,
		},
	}
	if res.HasDrift {
		res.Message = fmt.Sprintf("Drift detected in %d metric(s)", len(drifted))
	} else {
		res.Message = "No drift detected"
	}
	switch d.method {
	case MethodPSI:
		res.Details.PSIThreshold = d.threshold * psiScale
	case MethodKS:
		res.Details.Note = "KS over scalar metrics reduces to threshold comparison"
	}
	return res
}

// score returns the drift score for one metric and whether it crosses the
// method's cutoff. Comparisons are strict so a change exactly at the
// threshold does not count as drift.
func (d *Detector) score(base, nv float64) (float64, bool) {
	switch d.method {
	case MethodPSI:
		b := math.Max(base, psiFloor)
		n := math.Max(nv, psiFloor)
		score := math.Abs((n - b) * math.Log(n/b))
		return score, score > d.threshold*psiScale
	default: // threshold and ks
		score := math.Abs(nv - base)
		return score, score > d.threshold
	}
}

func (d *Detector) severity(numDrifted, compared int, scores map[string]float64) Severity {
	if numDrifted == 0 {
		return SeverityNone
	}

	fraction := 0.0
	if compared > 0 {
		fraction = float64(numDrifted) / float64(compared)
	}
	mean := 0.0
	for _, s := range scores {
		mean += s
	}
	mean /= float64(numDrifted)

	switch {
	case fraction >= 0.5 || mean > 3*d.threshold:
		return SeverityHigh
	case fraction >= 0.25 || mean > 2*d.threshold:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func copyMetrics(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
