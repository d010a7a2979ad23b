package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/probity-ml/rawls/internal/alerting"
	"github.com/probity-ml/rawls/internal/baseline"
	"github.com/probity-ml/rawls/internal/cache"
	"github.com/probity-ml/rawls/internal/drift"
	"github.com/probity-ml/rawls/internal/fairness"
	"github.com/probity-ml/rawls/internal/metrics"
	"github.com/probity-ml/rawls/internal/monitor"
	"github.com/probity-ml/rawls/internal/policy"
	"github.com/probity-ml/rawls/internal/report"
	"github.com/probity-ml/rawls/internal/threshold"
	"github.com/probity-ml/rawls/pkg/otel"
)

const maxBodyBytes = 10 << 20

type Server struct {
	policies    *policy.Registry
	policy      *policy.Policy
	calculator  *fairness.Calculator
	transformer *report.Transformer
	detector    *drift.Detector
	window      *drift.Monitor
	dispatcher  *alerting.Dispatcher
	store       baseline.Store
	service     *monitor.Service
	metrics     *metrics.Metrics
	limiter     *rate.Limiter
	metricsAuth struct {
		enabled  bool
		user     string
		password string
	}

	mu             sync.Mutex
	lastSnapshot   map[string]float64
	lastCacheStats cache.Stats
	lastSuppressed uint64
}

func main() {
	// Optional .env for local development
	_ = godotenv.Load()

	// Policy registry: the default policy plus any versions loaded from
	// POLICY_FILE. The active version is resolved through the registry so
	// operators can promote another version at runtime.
	registry := policy.NewRegistry()
	if err := registry.Register(policy.Default()); err != nil {
		log.Fatalf("Failed to register default policy: %v", err)
	}
	if path := getEnv("POLICY_FILE", ""); path != "" {
		n, err := registerPoliciesFromFile(registry, path)
		if err != nil {
			log.Fatalf("Failed to load policies from %s: %v", path, err)
		}
		log.Printf("Registered %d policies from %s", n, path)
	}
	if err := registry.Promote(getEnv("POLICY_VERSION", "1.0.0")); err != nil {
		log.Fatalf("Failed to promote policy: %v", err)
	}
	pol, err := registry.GetActive()
	if err != nil {
		log.Fatalf("Failed to resolve active policy: %v", err)
	}

	calculator, err := fairness.NewCalculator(pol)
	if err != nil {
		log.Fatalf("Failed to create calculator: %v", err)
	}

	// Baseline store backend
	backend := getEnv("BASELINE_BACKEND", "memory")
	var store baseline.Store

	switch backend {
	case "memory":
		snapshotPath := getEnv("BASELINE_SNAPSHOT", "data/baselines.json")
		store, err = baseline.NewMemoryStore(snapshotPath)
		if err != nil {
			log.Fatalf("Failed to create memory store: %v", err)
		}
	case "redis":
		addr := getEnv("REDIS_ADDR", "localhost:6379")
		store, err = baseline.NewRedisStore(addr, getEnv("REDIS_PASSWORD", ""), getEnvInt("REDIS_DB", 0))
		if err != nil {
			log.Fatalf("Failed to create Redis store: %v", err)
		}
	case "postgres":
		connStr := getEnv("POSTGRES_CONN", "")
		store, err = baseline.NewPostgresStore(connStr)
		if err != nil {
			log.Fatalf("Failed to create Postgres store: %v", err)
		}
	default:
		log.Fatalf("Unknown BASELINE_BACKEND: %s", backend)
	}

	// Drift detector seeded from the stored baseline when present
	baselineName := getEnv("DRIFT_BASELINE", "production")
	baselineMetrics := map[string]float64{}
	if b, err := store.Load(context.Background(), baselineName); err == nil {
		baselineMetrics = b.Metrics
		log.Printf("Loaded drift baseline %q (%d metrics)", baselineName, len(b.Metrics))
	} else if errors.Is(err, baseline.ErrNotFound) {
		log.Printf("Drift baseline %q not found, starting empty", baselineName)
	} else {
		log.Fatalf("Failed to load drift baseline: %v", err)
	}

	detector, err := drift.New(baselineMetrics,
		getEnvFloat("DRIFT_THRESHOLD", 0.1),
		drift.Method(getEnv("DRIFT_METHOD", "threshold")))
	if err != nil {
		log.Fatalf("Failed to create drift detector: %v", err)
	}
	window := drift.NewMonitor(detector, getEnvInt("DRIFT_WINDOW", 10))

	dispatcher := buildDispatcher()
	m := metrics.New()

	tokenRate := getEnvInt("TOKEN_RATE", 100)
	limiter := rate.NewLimiter(rate.Limit(tokenRate), tokenRate*2)

	srv := &Server{
		policies:    registry,
		policy:      pol,
		calculator:  calculator,
		transformer: report.NewTransformer(pol),
		detector:    detector,
		window:      window,
		dispatcher:  dispatcher,
		store:       store,
		metrics:     m,
		limiter:     limiter,
	}
	srv.metricsAuth.enabled = getEnv("METRICS_USER", "") != ""
	srv.metricsAuth.user = getEnv("METRICS_USER", "")
	srv.metricsAuth.password = getEnv("METRICS_PASS", "")

	// Tracing
	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	if getEnvBool("OTEL_ENABLED", false) {
		cfg := otel.DefaultConfig("rawls")
		cfg.CollectorEndpoint = getEnv("OTEL_ENDPOINT", "localhost:4317")
		cfg.Environment = getEnv("ENVIRONMENT", "production")
		tp, err := otel.InitTracer(rootCtx, cfg)
		if err != nil {
			log.Fatalf("Failed to init tracing: %v", err)
		}
		defer func() {
			if err := otel.Shutdown(context.Background(), tp); err != nil {
				log.Printf("Tracer shutdown error: %v", err)
			}
		}()
	}

	// Scheduled monitoring over the latest evaluation snapshot
	if getEnvBool("MONITOR_ENABLED", false) {
		source := monitor.SnapshotFunc(func(ctx context.Context) (map[string]float64, error) {
			snap := srv.snapshot()
			if snap == nil {
				return nil, errors.New("no evaluation snapshot available yet")
			}
			return snap, nil
		})
		svc, err := monitor.New(window, dispatcher, store, source, monitor.Config{
			Interval:     time.Duration(getEnvInt("MONITOR_INTERVAL_SECONDS", 60)) * time.Second,
			SnapshotName: baselineName + "-latest",
		}, m)
		if err != nil {
			log.Fatalf("Failed to create monitor service: %v", err)
		}
		if err := svc.Start(rootCtx); err != nil {
			log.Fatalf("Failed to start monitor service: %v", err)
		}
		defer svc.Stop()
		srv.service = svc
		log.Printf("Monitor service started (interval %ds)", getEnvInt("MONITOR_INTERVAL_SECONDS", 60))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/evaluate", srv.handleEvaluate)
	mux.HandleFunc("/api/v1/threshold/analyze", srv.handleThresholdAnalyze)
	mux.HandleFunc("/api/v1/drift/observe", srv.handleDriftObserve)
	mux.HandleFunc("/api/v1/drift/check", srv.handleDriftCheck)
	mux.HandleFunc("/api/v1/drift/trend", srv.handleDriftTrend)
	mux.HandleFunc("/api/v1/drift/baseline", srv.handleDriftBaseline)
	mux.HandleFunc("/api/v1/baselines", srv.handleBaselineList)
	mux.HandleFunc("/api/v1/baselines/", srv.handleBaselineItem)
	mux.HandleFunc("/api/v1/policies", srv.handlePolicies)
	mux.HandleFunc("/api/v1/stats", srv.handleStats)
	mux.Handle("/metrics", srv.metricsHandler())
	mux.HandleFunc("/health", handleHealth)

	port := getEnv("PORT", "8080")
	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdown
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Printf("Error closing baseline store: %v", err)
	}

	log.Println("Server stopped")
}

// buildDispatcher assembles alert channels from the environment. The
// console channel is on by default so a bare deployment still surfaces
// drift somewhere.
func buildDispatcher() *alerting.Dispatcher {
	cfg := alerting.DefaultConfig()
	cfg.Enabled = getEnvBool("ALERTING_ENABLED", true)
	cfg.SeverityThreshold = drift.Severity(getEnv("ALERT_SEVERITY", "low"))
	cfg.RateLimit = time.Duration(getEnvInt("ALERT_RATE_LIMIT_SECONDS", 300)) * time.Second

	d := alerting.NewDispatcher(cfg)
	if getEnvBool("ALERT_CONSOLE", true) {
		d.AddChannel(alerting.NewConsoleChannel(nil))
	}
	if url := getEnv("WEBHOOK_URL", ""); url != "" {
		d.AddChannel(alerting.NewWebhookChannel(url, nil, 10*time.Second))
	}
	if url := getEnv("SLACK_WEBHOOK_URL", ""); url != "" {
		d.AddChannel(alerting.NewSlackChannel(url, 10*time.Second))
	}
	if provider := getEnv("SIEM_PROVIDER", ""); provider != "" {
		ch, err := alerting.NewSIEMChannel(alerting.SIEMConfig{
			Provider:   provider,
			Endpoint:   getEnv("SIEM_ENDPOINT", ""),
			APIKey:     getEnv("SIEM_API_KEY", ""),
			SourceType: getEnv("SIEM_SOURCE_TYPE", ""),
		})
		if err != nil {
			log.Fatalf("Failed to create SIEM channel: %v", err)
		}
		d.AddChannel(ch)
	}
	if host := getEnv("SMTP_HOST", ""); host != "" {
		d.AddChannel(alerting.NewEmailChannel(alerting.EmailConfig{
			Host:     host,
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", ""),
			To:       splitList(getEnv("SMTP_TO", "")),
			UseTLS:   getEnvBool("SMTP_TLS", false),
		}))
	}
	return d
}

type evaluateRequest struct {
	YTrue         []bool    `json:"y_true"`
	YPred         []bool    `json:"y_pred"`
	YProb         []float64 `json:"y_prob,omitempty"`
	Group         []string  `json:"group"`
	IncludeReport bool      `json:"include_report,omitempty"`
}

type evaluateResponse struct {
	Metrics         *fairness.Bundle `json:"metrics"`
	Recommendations []string         `json:"recommendations"`
	Report          *report.Report   `json:"report,omitempty"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "10")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	s.metrics.EvaluationsTotal.Inc()
	start := time.Now()

	var req evaluateRequest
	if err := decodeBody(r, &req); err != nil {
		s.metrics.EvaluationErrors.Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	_, span := otel.StartSpan(r.Context(), "rawls/server", "evaluate")
	defer span.End()

	calculator := s.calc()
	batch := fairness.Batch{YTrue: req.YTrue, YPred: req.YPred, YProb: req.YProb, Group: req.Group}
	bundle, err := calculator.CalculateAll(batch)
	if err != nil {
		s.metrics.EvaluationErrors.Inc()
		otel.RecordError(span, err, "evaluation rejected")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.metrics.EvaluationSeconds.Observe(time.Since(start).Seconds())
	for _, v := range bundle.Summary.FairnessViolations {
		s.metrics.ViolationsTotal.WithLabelValues(v).Inc()
	}
	span.SetAttributes(otel.EvaluationAttributes(
		batch.Len(),
		len(bundle.Posttrain.StatisticalParity.ByGroup),
		bundle.Summary.OverallScore,
		bundle.Summary.NViolations,
		bundle.Summary.PassesBasicFairness,
	)...)

	recs, err := calculator.Recommendations(bundle)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := evaluateResponse{Metrics: bundle, Recommendations: recs}
	if req.IncludeReport {
		rep, err := s.reporter().Transform(bundle, recs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp.Report = rep
	}

	s.setSnapshot(bundle.MetricsSnapshot())
	s.syncCacheMetrics()

	writeJSON(w, http.StatusOK, resp)
}

type thresholdRequest struct {
	YTrue    []bool    `json:"y_true"`
	YProb    []float64 `json:"y_prob"`
	Group    []string  `json:"group"`
	Strategy string    `json:"strategy,omitempty"`
}

type thresholdResponse struct {
	Sweep       []threshold.Point `json:"sweep"`
	Recommended threshold.Optimal `json:"recommended"`
}

func (s *Server) handleThresholdAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "10")
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	var req thresholdRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Strategy == "" {
		req.Strategy = "balanced"
	}

	analyzer := threshold.NewAnalyzer(s.activePolicy())
	sweep, err := analyzer.Analyze(req.YTrue, req.YProb, req.Group)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	recommended, err := analyzer.Recommend(req.Strategy)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, thresholdResponse{Sweep: sweep, Recommended: recommended})
}

type observeRequest struct {
	Metrics map[string]float64 `json:"metrics"`
}

type observeResponse struct {
	Result drift.Result    `json:"result"`
	Alerts map[string]bool `json:"alerts"`
}

func (s *Server) handleDriftObserve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req observeRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Metrics) == 0 {
		http.Error(w, "metrics are required", http.StatusBadRequest)
		return
	}

	_, span := otel.StartSpan(r.Context(), "rawls/server", "drift.observe")
	defer span.End()

	res := s.window.AddObservation(req.Metrics)
	s.metrics.DriftChecksTotal.Inc()
	s.metrics.DriftBySeverity.WithLabelValues(string(res.Severity)).Inc()
	if res.HasDrift {
		s.metrics.DriftDetected.Inc()
	}
	span.SetAttributes(otel.DriftAttributes(
		string(res.Method), res.HasDrift, string(res.Severity), res.Details.NumDrifted)...)

	delivered := s.dispatcher.Dispatch(r.Context(), res)
	for channel, ok := range delivered {
		if ok {
			s.metrics.AlertsSentTotal.WithLabelValues(channel).Inc()
		} else {
			s.metrics.AlertsFailedTotal.WithLabelValues(channel).Inc()
		}
	}
	s.syncSuppressed()

	writeJSON(w, http.StatusOK, observeResponse{Result: res, Alerts: delivered})
}

func (s *Server) handleDriftCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.window.CheckDrift())
}

func (s *Server) handleDriftTrend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.window.Trend())
}

func (s *Server) handleDriftBaseline(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"metrics":   s.detector.Baseline(),
			"threshold": s.detector.Threshold(),
			"method":    s.detector.Method(),
		})
	case http.MethodPut, http.MethodPost:
		var req observeRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Metrics) == 0 {
			http.Error(w, "metrics are required", http.StatusBadRequest)
			return
		}
		s.detector.UpdateBaseline(req.Metrics)
		writeJSON(w, http.StatusOK, map[string]string{"status": "baseline updated"})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleBaselineList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	names, err := s.store.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"baselines": names})
}

func (s *Server) handleBaselineItem(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/baselines/")
	if name == "" || strings.Contains(name, "/") {
		http.Error(w, "Invalid baseline name", http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodGet:
		b, err := s.store.Load(r.Context(), name)
		if errors.Is(err, baseline.ErrNotFound) {
			http.Error(w, "Baseline not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, b)
	case http.MethodPut:
		var req observeRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Metrics) == 0 {
			http.Error(w, "metrics are required", http.StatusBadRequest)
			return
		}
		b := &baseline.Baseline{Name: name, Metrics: req.Metrics}
		if err := s.store.Save(r.Context(), b); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, b)
	case http.MethodDelete:
		err := s.store.Delete(r.Context(), name)
		if errors.Is(err, baseline.ErrNotFound) {
			http.Error(w, "Baseline not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type promoteRequest struct {
	Version string `json:"version"`
}

// handlePolicies lists the registered policy versions and promotes one.
// Promotion swaps the calculator and report transformer so subsequent
// evaluations run under the newly active thresholds.
func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		versions := s.policies.ListVersions()
		sort.Strings(versions)
		pol := s.activePolicy()
		writeJSON(w, http.StatusOK, map[string]any{
			"active":   pol.Version,
			"versions": versions,
			"policy":   pol,
		})
	case http.MethodPost:
		var req promoteRequest
		if err := decodeBody(r, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Version == "" {
			http.Error(w, "version is required", http.StatusBadRequest)
			return
		}
		if err := s.policies.Promote(req.Version); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		pol, err := s.policies.GetActive()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		calculator, err := fairness.NewCalculator(pol)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		s.mu.Lock()
		s.policy = pol
		s.calculator = calculator
		s.transformer = report.NewTransformer(pol)
		s.lastCacheStats = cache.Stats{}
		s.mu.Unlock()

		log.Printf("Promoted policy %s (%s)", pol.Version, pol.Name)
		writeJSON(w, http.StatusOK, map[string]string{"status": "promoted", "active": pol.Version})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sent, suppressed := s.dispatcher.Stats()
	stats := map[string]any{
		"cache":  s.calc().CacheStats(),
		"window": s.window.CheckDrift(),
		"alerts": map[string]uint64{"sent": sent, "suppressed": suppressed},
	}
	if s.service != nil {
		stats["monitor"] = s.service.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) metricsHandler() http.Handler {
	handler := promhttp.Handler()
	if !s.metricsAuth.enabled {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.metricsAuth.user || pass != s.metricsAuth.password {
			w.Header().Set("WWW-Authenticate", `Basic realm="Metrics"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Policy promotion swaps the policy-bound components at runtime, so
// handlers read them through these mutex-guarded accessors.
func (s *Server) activePolicy() *policy.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

func (s *Server) calc() *fairness.Calculator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calculator
}

func (s *Server) reporter() *report.Transformer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transformer
}

func (s *Server) setSnapshot(snap map[string]float64) {
	s.mu.Lock()
	s.lastSnapshot = snap
	s.mu.Unlock()
}

func (s *Server) snapshot() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSnapshot
}

// syncCacheMetrics folds the calculator's cache counters into the
// Prometheus counters as deltas.
func (s *Server) syncCacheMetrics() {
	stats := s.calc().CacheStats()

	s.mu.Lock()
	defer s.mu.Unlock()
	if d := stats.Hits - s.lastCacheStats.Hits; d > 0 {
		s.metrics.CacheHits.Add(float64(d))
	}
	if d := stats.Misses - s.lastCacheStats.Misses; d > 0 {
		s.metrics.CacheMisses.Add(float64(d))
	}
	s.lastCacheStats = stats
}

func (s *Server) syncSuppressed() {
	_, suppressed := s.dispatcher.Stats()

	s.mu.Lock()
	defer s.mu.Unlock()
	if d := suppressed - s.lastSuppressed; d > 0 {
		s.metrics.AlertsSuppressed.Add(float64(d))
		s.lastSuppressed = suppressed
	}
}

// registerPoliciesFromFile registers every policy in a JSON array file.
// Each entry is validated by Register; a bad entry fails the whole load so
// a typo cannot silently drop a policy version.
func registerPoliciesFromFile(registry *policy.Registry, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var policies []*policy.Policy
	if err := json.Unmarshal(data, &policies); err != nil {
		return 0, errors.New("policy file must be a JSON array of policies")
	}
	for _, p := range policies {
		if err := registry.Register(p); err != nil {
			return 0, err
		}
	}
	return len(policies), nil
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return errors.New("failed to read body")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.New("invalid JSON")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
