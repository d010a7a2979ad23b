// Package monitor schedules recurring fairness checks: pull a metric
// snapshot, run drift detection against the stored baseline, dispatch
// alerts and persist the latest snapshot for inspection.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/probity-ml/rawls/internal/alerting"
	"github.com/probity-ml/rawls/internal/baseline"
	"github.com/probity-ml/rawls/internal/drift"
	"github.com/probity-ml/rawls/internal/metrics"
)

const (
	defaultInterval     = time.Minute
	defaultSnapshotName = "latest"
)

// SnapshotSource produces the current fairness metric snapshot, typically
// by evaluating the most recent prediction batch.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (map[string]float64, error)
}

// SnapshotFunc adapts a plain function to SnapshotSource.
type SnapshotFunc func(ctx context.Context) (map[string]float64, error)

func (f SnapshotFunc) Snapshot(ctx context.Context) (map[string]float64, error) {
	return f(ctx)
}

// Config tunes the service loop.
type Config struct {
	// Interval between scheduled runs.
	Interval time.Duration
	// SnapshotName is the baseline-store key the latest snapshot is saved
	// under after each run.
	SnapshotName string
}

// Stats is a copy of the service counters.
type Stats struct {
	Running         bool      `json:"running"`
	Runs            uint64    `json:"runs"`
	Failures        uint64    `json:"failures"`
	DriftDetections uint64    `json:"drift_detections"`
	LastRun         time.Time `json:"last_run"`
	LastError       string    `json:"last_error,omitempty"`
}

// Service runs the monitoring loop. Construct with New, drive with Start
// and Stop, or call RunOnce directly for request-scoped checks.
type Service struct {
	monitor      *drift.Monitor
	dispatcher   *alerting.Dispatcher
	store        baseline.Store
	source       SnapshotSource
	prom         *metrics.Metrics
	interval     time.Duration
	snapshotName string

	mu             sync.Mutex
	running        bool
	stopCh         chan struct{}
	runs           uint64
	failures       uint64
	driftHits      uint64
	lastRun        time.Time
	lastErr        string
	lastSuppressed uint64
}

// New wires the service. The store and prom may be nil: persistence and
// instrument updates are then skipped.
func New(mon *drift.Monitor, disp *alerting.Dispatcher, store baseline.Store, source SnapshotSource, cfg Config, prom *metrics.Metrics) (*Service, error) {
	if mon == nil {
		return nil, errors.New("monitor is required")
	}
	if source == nil {
		return nil, errors.New("snapshot source is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.SnapshotName == "" {
		cfg.SnapshotName = defaultSnapshotName
	}
	return &Service{
		monitor:      mon,
		dispatcher:   disp,
		store:        store,
		source:       source,
		prom:         prom,
		interval:     cfg.Interval,
		snapshotName: cfg.SnapshotName,
	}, nil
}

// Start launches the loop. A second Start while running is an error.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("monitor service already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	go s.loop(ctx, s.stopCh)
	return nil
}

// Stop halts the loop. Safe to call when not running.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
}

func (s *Service) loop(ctx context.Context, stopCh chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("monitor: scheduled run failed: %v", err)
			}
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// RunOnce performs one full cycle and returns the drift result.
func (s *Service) RunOnce(ctx context.Context) (*drift.Result, error) {
	s.mu.Lock()
	s.runs++
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()
	if s.prom != nil {
		s.prom.MonitorRunsTotal.Inc()
	}

	snap, err := s.source.Snapshot(ctx)
	if err != nil {
		s.recordFailure(fmt.Errorf("snapshot: %w", err))
		return nil, fmt.Errorf("snapshot: %w", err)
	}

	res := s.monitor.AddObservation(snap)
	if s.prom != nil {
		s.prom.DriftChecksTotal.Inc()
		s.prom.DriftBySeverity.WithLabelValues(string(res.Severity)).Inc()
		if res.HasDrift {
			s.prom.DriftDetected.Inc()
		}
	}
	if res.HasDrift {
		s.mu.Lock()
		s.driftHits++
		s.mu.Unlock()
	}

	if s.dispatcher != nil {
		delivered := s.dispatcher.Dispatch(ctx, res)
		if s.prom != nil {
			for channel, ok := range delivered {
				if ok {
					s.prom.AlertsSentTotal.WithLabelValues(channel).Inc()
				} else {
					s.prom.AlertsFailedTotal.WithLabelValues(channel).Inc()
				}
			}
			_, suppressed := s.dispatcher.Stats()
			s.mu.Lock()
			if delta := suppressed - s.lastSuppressed; delta > 0 {
				s.prom.AlertsSuppressed.Add(float64(delta))
				s.lastSuppressed = suppressed
			}
			s.mu.Unlock()
		}
	}

	if s.store != nil {
		b := &baseline.Baseline{Name: s.snapshotName, Metrics: snap}
		if err := s.store.Save(ctx, b); err != nil {
			s.recordFailure(fmt.Errorf("persist snapshot: %w", err))
			return &res, fmt.Errorf("persist snapshot: %w", err)
		}
	}

	s.mu.Lock()
	s.lastErr = ""
	s.mu.Unlock()
	return &res, nil
}

func (s *Service) recordFailure(err error) {
	s.mu.Lock()
	s.failures++
	s.lastErr = err.Error()
	s.mu.Unlock()
	if s.prom != nil {
		s.prom.MonitorRunErrors.Inc()
	}
}

// Stats returns a copy of the service counters.
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Running:         s.running,
		Runs:            s.runs,
		Failures:        s.failures,
		DriftDetections: s.driftHits,
		LastRun:         s.lastRun,
		LastError:       s.lastErr,
	}
}

// Monitor exposes the wrapped drift monitor for status endpoints.
func (s *Service) Monitor() *drift.Monitor {
	return s.monitor
}
