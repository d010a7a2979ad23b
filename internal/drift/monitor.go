package drift

import (
	"fmt"
	"sync"
	"time"
)

const defaultWindowSize = 10

// driftyWindowFraction is the share of recent observations that must show
// drift before the monitor as a whole reports drift.
const driftyWindowFraction = 0.3

// Observation is one monitored snapshot and its detection outcome.
type Observation struct {
	Timestamp time.Time          `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
	Result    Result             `json:"result"`
}

// Status summarizes the monitor's window.
type Status struct {
	HasDrift     bool    `json:"has_drift"`
	Message      string  `json:"message"`
	DriftedCount int     `json:"drifted_count"`
	WindowCount  int     `json:"window_count"`
	Latest       *Result `json:"latest,omitempty"`
}

// Monitor keeps the most recent detection results in a bounded FIFO window.
// Every observation is compared against the detector's fixed baseline, not
// against its predecessor, so a slow departure accumulates instead of
// hiding inside small step-to-step changes.
type Monitor struct {
	mu         sync.Mutex
	detector   *Detector
	window     []Observation
	windowSize int
}

// NewMonitor wraps a detector with a sliding window. A non-positive
// windowSize falls back to the default of 10.
func NewMonitor(detector *Detector, windowSize int) *Monitor {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	return &Monitor{
		detector:   detector,
		window:     make([]Observation, 0, windowSize),
		windowSize: windowSize,
	}
}

// Detector returns the underlying baseline detector.
func (m *Monitor) Detector() *Detector {
	return m.detector
}

// AddObservation runs drift detection on a metrics snapshot, records the
// outcome in the window and returns it. The oldest observation is evicted
// once the window is full.
func (m *Monitor) AddObservation(metrics map[string]float64) Result {
	res := m.detector.DetectDrift(metrics)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.window = append(m.window, Observation{
		Timestamp: res.Timestamp,
		Metrics:   copyMetrics(metrics),
		Result:    res,
	})
	if len(m.window) > m.windowSize {
		m.window = m.window[1:]
	}
	return res
}

// CheckDrift reports whether more than 30% of the windowed observations
// detected drift, along with the most recent result.
func (m *Monitor) CheckDrift() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.window) == 0 {
		return Status{Message: "no observations yet"}
	}

	drifted := 0
	for _, obs := range m.window {
		if obs.Result.HasDrift {
			drifted++
		}
	}
	latest := m.window[len(m.window)-1].Result

	return Status{
		HasDrift:     float64(drifted)/float64(len(m.window)) > driftyWindowFraction,
		Message:      fmt.Sprintf("Drift detected in %d/%d recent observations", drifted, len(m.window)),
		DriftedCount: drifted,
		WindowCount:  len(m.window),
		Latest:       &latest,
	}
}

// Trend returns, per metric, the ordered drift scores from the windowed
// results, oldest first. Metrics absent from some snapshots produce shorter
// sequences.
func (m *Monitor) Trend() map[string][]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	trend := make(map[string][]float64)
	for _, obs := range m.window {
		for name, score := range obs.Result.DriftScores {
			trend[name] = append(trend[name], score)
		}
	}
	return trend
}

// Observations returns a copy of the current window, oldest first.
func (m *Monitor) Observations() []Observation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Observation, len(m.window))
	copy(out, m.window)
	return out
}
