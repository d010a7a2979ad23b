package policy

import (
	"strings"
	"testing"
)

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Policy)
		wantField string
	}{
		{
			name:   "default_is_valid",
			mutate: func(p *Policy) {},
		},
		{
			name:      "missing_version",
			mutate:    func(p *Policy) { p.Version = "" },
			wantField: "version",
		},
		{
			name:      "negative_parity_threshold",
			mutate:    func(p *Policy) { p.StatisticalParityThreshold = -0.1 },
			wantField: "statistical_parity_threshold",
		},
		{
			name:      "parity_threshold_above_one",
			mutate:    func(p *Policy) { p.EqualOpportunityThreshold = 1.5 },
			wantField: "equal_opportunity_threshold",
		},
		{
			name:      "zero_impact_ratio",
			mutate:    func(p *Policy) { p.DisparateImpactMinRatio = 0 },
			wantField: "disparate_impact_min_ratio",
		},
		{
			name:      "treatment_equality_above_one_is_fine",
			mutate:    func(p *Policy) { p.TreatmentEqualityThreshold = 2.5 },
			wantField: "",
		},
		{
			name:      "too_few_calibration_bins",
			mutate:    func(p *Policy) { p.CalibrationBins = 1 },
			wantField: "calibration_bins",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Default()
			tt.mutate(p)

			err := p.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantField) {
				t.Errorf("Validate() = %v, want field %q named", err, tt.wantField)
			}
		})
	}
}

func TestPolicy_HashStability(t *testing.T) {
	p := Default()

	h1, err := p.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := p.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not stable: %s vs %s", h1, h2)
	}

	// Non-threshold metadata must not change the hash.
	p.Description = "different description"
	h3, err := p.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 != h3 {
		t.Error("description change altered the hash")
	}

	// Threshold changes must.
	p.StatisticalParityThreshold = 0.2
	h4, err := p.Hash()
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 == h4 {
		t.Error("threshold change did not alter the hash")
	}
}

func TestRegistry_RegisterAndPromote(t *testing.T) {
	r := NewRegistry()

	p := Default()
	if err := r.Register(p); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Duplicate version rejected.
	if err := r.Register(Default()); err == nil {
		t.Error("duplicate version should fail")
	}

	if err := r.Promote(p.Version); err != nil {
		t.Fatalf("Promote failed: %v", err)
	}

	active, err := r.GetActive()
	if err != nil {
		t.Fatalf("GetActive failed: %v", err)
	}
	if active.Version != p.Version {
		t.Errorf("active version = %s, want %s", active.Version, p.Version)
	}
}

func TestRegistry_PromoteInactive(t *testing.T) {
	r := NewRegistry()

	p := Default()
	p.Version = "2.0.0"
	p.Active = false
	if err := r.Register(p); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := r.Promote("2.0.0"); err == nil {
		t.Error("promoting an inactive policy should fail")
	}
}

func TestRegistry_UnknownVersion(t *testing.T) {
	r := NewRegistry()

	if _, err := r.Get("9.9.9"); err == nil {
		t.Error("unknown version should fail")
	}
	if err := r.Promote("9.9.9"); err == nil {
		t.Error("promoting unknown version should fail")
	}
	if _, err := r.GetActive(); err == nil {
		t.Error("GetActive with nothing promoted should fail")
	}
}

func TestRegistry_RejectsInvalidPolicy(t *testing.T) {
	r := NewRegistry()

	p := Default()
	p.CalibrationBins = 0
	if err := r.Register(p); err == nil {
		t.Error("invalid policy should not register")
	}
}
