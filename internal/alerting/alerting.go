// Package alerting fans drift detections out to notification channels:
// console, generic webhook, Slack, email and SIEM platforms. Channels fail
// independently; one unreachable endpoint never blocks the others.
package alerting

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/probity-ml/rawls/internal/drift"
)

// Alert is the payload delivered to every channel.
type Alert struct {
	ID             string             `json:"id"`
	Severity       drift.Severity     `json:"severity"`
	Message        string             `json:"message"`
	DriftedMetrics []string           `json:"drifted_metrics"`
	DriftScores    map[string]float64 `json:"drift_scores"`
	Method         drift.Method       `json:"method"`
	Threshold      float64            `json:"threshold"`
	Timestamp      time.Time          `json:"timestamp"`
	NumDrifted     int                `json:"num_drifted"`
	NumTotal       int                `json:"num_total"`
}

// Channel delivers alerts to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// Config controls when the dispatcher fires.
type Config struct {
	// Enabled gates all dispatching. Disabled dispatchers drop every
	// result silently.
	Enabled bool `json:"enabled"`
	// SeverityThreshold is the minimum severity that gets dispatched.
	SeverityThreshold drift.Severity `json:"severity_threshold"`
	// RateLimit is the minimum interval between dispatched alerts.
	// 0 disables rate limiting.
	RateLimit time.Duration `json:"rate_limit"`
}

// DefaultConfig enables alerting at every severity, at most one alert per
// five minutes.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		SeverityThreshold: drift.SeverityLow,
		RateLimit:         5 * time.Minute,
	}
}

var severityRank = map[drift.Severity]int{
	drift.SeverityLow:    1,
	drift.SeverityMedium: 2,
	drift.SeverityHigh:   3,
}

// rank maps severities onto comparable ordinals. Unknown severities and
// SeverityNone rank 0 and never pass the threshold gate.
func rank(s drift.Severity) int {
	return severityRank[s]
}

// Dispatcher fans drift results out to its channels, a name-keyed set of
// destinations. Safe for concurrent use.
type Dispatcher struct {
	mu         sync.Mutex
	config     Config
	channels   map[string]Channel
	lastSent   time.Time
	sent       uint64
	suppressed uint64
}

// NewDispatcher creates a dispatcher over the given channels, keyed by their
// names.
func NewDispatcher(cfg Config, channels ...Channel) *Dispatcher {
	d := &Dispatcher{config: cfg, channels: make(map[string]Channel, len(channels))}
	for _, ch := range channels {
		d.channels[ch.Name()] = ch
	}
	return d
}

// AddChannel registers another destination, replacing any channel already
// registered under the same name.
func (d *Dispatcher) AddChannel(ch Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[ch.Name()] = ch
}

// RemoveChannel drops the named destination. Removing an unknown name is a
// no-op.
func (d *Dispatcher) RemoveChannel(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.channels, name)
}

// Dispatch turns a drift result into an alert and sends it to every
// channel. The returned map records per-channel success keyed by channel
// name. An empty map means nothing was sent: alerting disabled, no drift,
// severity under the threshold, or rate limited.
func (d *Dispatcher) Dispatch(ctx context.Context, res drift.Result) map[string]bool {
	results := make(map[string]bool)

	if !d.config.Enabled || !res.HasDrift || rank(res.Severity) < rank(d.config.SeverityThreshold) {
		return results
	}

	d.mu.Lock()
	if d.config.RateLimit > 0 && !d.lastSent.IsZero() && time.Since(d.lastSent) < d.config.RateLimit {
		d.suppressed++
		d.mu.Unlock()
		return results
	}
	d.lastSent = time.Now()
	d.sent++
	channels := make(map[string]Channel, len(d.channels))
	for name, ch := range d.channels {
		channels[name] = ch
	}
	d.mu.Unlock()

	alert := newAlert(res)
	for name, ch := range channels {
		if err := ch.Send(ctx, alert); err != nil {
			log.Printf("alerting: channel %s failed: %v", name, err)
			results[name] = false
			continue
		}
		results[name] = true
	}
	return results
}

// Stats reports how many alerts were dispatched and how many were dropped
// by the rate limiter.
func (d *Dispatcher) Stats() (sent, suppressed uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent, d.suppressed
}

func newAlert(res drift.Result) Alert {
	return Alert{
		ID:             uuid.NewString(),
		Severity:       res.Severity,
		Message:        res.Message,
		DriftedMetrics: sortedMetricNames(res.DriftedMetrics),
		DriftScores:    res.DriftScores,
		Method:         res.Method,
		Threshold:      res.Threshold,
		Timestamp:      res.Timestamp,
		NumDrifted:     res.Details.NumDrifted,
		NumTotal:       res.Details.NumCompared,
	}
}
