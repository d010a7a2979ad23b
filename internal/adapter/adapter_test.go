package adapter

import (
	"context"
	"math"
	"strings"
	"testing"
)

type decideOnly struct{}

func (decideOnly) Predict(_ context.Context, X [][]float64) ([]bool, error) {
	return make([]bool, len(X)), nil
}

func TestRegistry_BuiltinKinds(t *testing.T) {
	r := NewRegistry()

	kinds := r.Kinds()
	if len(kinds) != 1 || kinds[0] != "threshold" {
		t.Errorf("Kinds = %v, want [threshold]", kinds)
	}
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry()

	_, err := r.Create("xgboost", nil)
	if err == nil || !strings.Contains(err.Error(), `unknown adapter kind "xgboost"`) {
		t.Errorf("Create = %v, want unknown-kind error", err)
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	r := NewRegistry()

	if err := r.Register("custom", func(map[string]any) (Predictor, error) { return decideOnly{}, nil }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := r.Register("custom", func(map[string]any) (Predictor, error) { return decideOnly{}, nil }); err == nil {
		t.Error("second Register under the same kind should fail")
	}
	if err := r.Register("threshold", thresholdFactory); err == nil {
		t.Error("re-registering a builtin kind should fail")
	}
}

func TestRegistry_CreateThreshold(t *testing.T) {
	r := NewRegistry()

	// Options arrive JSON-shaped: numbers as float64, arrays as []any.
	p, err := r.Create("threshold", map[string]any{
		"weights":   []any{1.0, -1.0},
		"bias":      0.5,
		"threshold": 0.6,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	tp, ok := p.(*ThresholdPredictor)
	if !ok {
		t.Fatalf("Create returned %T, want *ThresholdPredictor", p)
	}
	if tp.Bias != 0.5 || tp.Threshold != 0.6 {
		t.Errorf("predictor = %+v", tp)
	}
}

func TestRegistry_CreateThreshold_BadOptions(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		opts map[string]any
	}{
		{"missing_weights", map[string]any{}},
		{"weights_not_numbers", map[string]any{"weights": []any{"heavy"}}},
		{"bias_not_number", map[string]any{"weights": []any{1.0}, "bias": "zero"}},
		{"threshold_out_of_range", map[string]any{"weights": []any{1.0}, "threshold": 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := r.Create("threshold", tt.opts); err == nil {
				t.Errorf("Create(%v) should fail", tt.opts)
			}
		})
	}
}

func TestThresholdPredictor(t *testing.T) {
	p, err := NewThresholdPredictor([]float64{1}, 0, 0.5)
	if err != nil {
		t.Fatalf("NewThresholdPredictor failed: %v", err)
	}
	ctx := context.Background()
	X := [][]float64{{0}, {2}, {-2}}

	proba, err := p.PredictProba(ctx, X)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	if math.Abs(proba[0]-0.5) > 1e-9 {
		t.Errorf("sigmoid(0) = %v, want 0.5", proba[0])
	}
	if proba[1] <= 0.5 || proba[2] >= 0.5 {
		t.Errorf("proba = %v, want monotone in the score", proba)
	}

	preds, err := p.Predict(ctx, X)
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	// Decision is >= threshold, so the 0.5 boundary case predicts positive.
	want := []bool{true, true, false}
	for i := range want {
		if preds[i] != want[i] {
			t.Errorf("preds = %v, want %v", preds, want)
			break
		}
	}
}

func TestThresholdPredictor_FeatureMismatch(t *testing.T) {
	p, _ := NewThresholdPredictor([]float64{1, 2}, 0, 0.5)

	_, err := p.PredictProba(context.Background(), [][]float64{{1}})
	if err == nil || !strings.Contains(err.Error(), "model expects 2") {
		t.Errorf("PredictProba = %v, want feature-count error", err)
	}
}

func TestThresholdPredictor_InvalidThreshold(t *testing.T) {
	if _, err := NewThresholdPredictor([]float64{1}, 0, -0.1); err == nil {
		t.Error("negative threshold should fail")
	}
	if _, err := NewThresholdPredictor([]float64{1}, 0, 1.1); err == nil {
		t.Error("threshold above 1 should fail")
	}
}

func TestSupportsProba(t *testing.T) {
	tp, _ := NewThresholdPredictor([]float64{1}, 0, 0.5)

	if _, ok := SupportsProba(tp); !ok {
		t.Error("ThresholdPredictor should support probabilities")
	}
	if _, ok := SupportsProba(decideOnly{}); ok {
		t.Error("decide-only predictor should not support probabilities")
	}
}

func TestBuildBatch(t *testing.T) {
	ctx := context.Background()
	tp, _ := NewThresholdPredictor([]float64{1}, 0, 0.5)
	X := [][]float64{{2}, {-2}, {3}, {-3}}
	yTrue := []bool{true, false, true, true}
	group := []string{"a", "a", "b", "b"}

	b, err := BuildBatch(ctx, tp, X, yTrue, group)
	if err != nil {
		t.Fatalf("BuildBatch failed: %v", err)
	}
	if b.Len() != 4 {
		t.Fatalf("batch length = %d, want 4", b.Len())
	}
	if !b.HasProbabilities() {
		t.Error("batch should carry probabilities from a probability predictor")
	}
	wantPred := []bool{true, false, true, false}
	for i := range wantPred {
		if b.YPred[i] != wantPred[i] {
			t.Errorf("YPred = %v, want %v", b.YPred, wantPred)
			break
		}
	}

	decided, err := BuildBatch(ctx, decideOnly{}, X, yTrue, group)
	if err != nil {
		t.Fatalf("BuildBatch failed: %v", err)
	}
	if decided.HasProbabilities() {
		t.Error("decide-only predictor should not attach probabilities")
	}
}

func TestBuildBatch_LengthMismatch(t *testing.T) {
	tp, _ := NewThresholdPredictor([]float64{1}, 0, 0.5)

	if _, err := BuildBatch(context.Background(), tp, [][]float64{{1}}, []bool{true, false}, []string{"a"}); err == nil {
		t.Error("mismatched lengths should fail")
	}
}
