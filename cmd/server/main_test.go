package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/probity-ml/rawls/internal/drift"
	"github.com/probity-ml/rawls/internal/fairness"
	"github.com/probity-ml/rawls/internal/policy"
	"github.com/probity-ml/rawls/internal/report"
)

// newTestServer wires a server with two registered policy versions, 1.0.0
// active.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	registry := policy.NewRegistry()
	pol := policy.Default()
	if err := registry.Register(pol); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	strict := policy.Default()
	strict.Version = "2.0.0"
	strict.Name = "strict"
	strict.StatisticalParityThreshold = 0.05
	if err := registry.Register(strict); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := registry.Promote("1.0.0"); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	calculator, err := fairness.NewCalculator(pol)
	if err != nil {
		t.Fatalf("NewCalculator failed: %v", err)
	}
	detector, err := drift.New(map[string]float64{"statistical_parity_diff": 0.05}, 0.1, drift.MethodThreshold)
	if err != nil {
		t.Fatalf("drift.New failed: %v", err)
	}

	return &Server{
		policies:    registry,
		policy:      pol,
		calculator:  calculator,
		transformer: report.NewTransformer(pol),
		detector:    detector,
	}
}

func TestHandlePolicies_List(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handlePolicies(rec, httptest.NewRequest(http.MethodGet, "/api/v1/policies", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Active   string   `json:"active"`
		Versions []string `json:"versions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Active != "1.0.0" {
		t.Errorf("active = %q, want 1.0.0", resp.Active)
	}
	want := []string{"1.0.0", "2.0.0"}
	if len(resp.Versions) != 2 || resp.Versions[0] != want[0] || resp.Versions[1] != want[1] {
		t.Errorf("versions = %v, want %v", resp.Versions, want)
	}
}

func TestHandlePolicies_Promote(t *testing.T) {
	srv := newTestServer(t)

	body := bytes.NewBufferString(`{"version": "2.0.0"}`)
	rec := httptest.NewRecorder()
	srv.handlePolicies(rec, httptest.NewRequest(http.MethodPost, "/api/v1/policies", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := srv.activePolicy(); got.Version != "2.0.0" || got.Name != "strict" {
		t.Errorf("active policy = %s (%s), want 2.0.0 (strict)", got.Version, got.Name)
	}
	// The calculator and transformer must follow the promoted policy.
	if got := srv.calc().Policy().Version; got != "2.0.0" {
		t.Errorf("calculator policy = %s, want 2.0.0", got)
	}

	rec = httptest.NewRecorder()
	srv.handlePolicies(rec, httptest.NewRequest(http.MethodGet, "/api/v1/policies", nil))
	var resp struct {
		Active string `json:"active"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Active != "2.0.0" {
		t.Errorf("active after promote = %q, want 2.0.0", resp.Active)
	}
}

func TestHandlePolicies_PromoteUnknownVersion(t *testing.T) {
	srv := newTestServer(t)

	body := bytes.NewBufferString(`{"version": "9.9.9"}`)
	rec := httptest.NewRecorder()
	srv.handlePolicies(rec, httptest.NewRequest(http.MethodPost, "/api/v1/policies", body))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if got := srv.activePolicy().Version; got != "1.0.0" {
		t.Errorf("active policy changed to %s on failed promote", got)
	}
}

func TestHandlePolicies_PromoteRequiresVersion(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handlePolicies(rec, httptest.NewRequest(http.MethodPost, "/api/v1/policies", bytes.NewBufferString(`{}`)))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDriftBaseline_Put(t *testing.T) {
	srv := newTestServer(t)

	body := bytes.NewBufferString(`{"metrics": {"statistical_parity_diff": 0.2}}`)
	rec := httptest.NewRecorder()
	srv.handleDriftBaseline(rec, httptest.NewRequest(http.MethodPut, "/api/v1/drift/baseline", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got := srv.detector.Baseline()["statistical_parity_diff"]; got != 0.2 {
		t.Errorf("baseline = %v, want 0.2", got)
	}
}

func TestHandleDriftBaseline_Get(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleDriftBaseline(rec, httptest.NewRequest(http.MethodGet, "/api/v1/drift/baseline", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Metrics   map[string]float64 `json:"metrics"`
		Threshold float64            `json:"threshold"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Metrics["statistical_parity_diff"] != 0.05 || resp.Threshold != 0.1 {
		t.Errorf("response = %+v", resp)
	}
}

func TestHandleDriftBaseline_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleDriftBaseline(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/drift/baseline", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
