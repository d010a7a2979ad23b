package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeJSONFile(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadModelBatch(t *testing.T) {
	dir := t.TempDir()
	input := writeJSONFile(t, dir, "batch.json", map[string]any{
		"y_true":   []bool{true, true, false},
		"group":    []string{"a", "b", "a"},
		"features": [][]float64{{4}, {2}, {-4}},
	})
	config := writeJSONFile(t, dir, "model.json", map[string]any{
		"weights":   []float64{1},
		"bias":      0.0,
		"threshold": 0.5,
	})

	batch, err := loadModelBatch(input, "threshold", config)
	if err != nil {
		t.Fatalf("loadModelBatch failed: %v", err)
	}

	// sigmoid(4) and sigmoid(2) clear 0.5, sigmoid(-4) does not.
	wantPred := []bool{true, true, false}
	if len(batch.YPred) != len(wantPred) {
		t.Fatalf("len(YPred) = %d, want %d", len(batch.YPred), len(wantPred))
	}
	for i, want := range wantPred {
		if batch.YPred[i] != want {
			t.Errorf("YPred[%d] = %v, want %v", i, batch.YPred[i], want)
		}
	}
	if len(batch.YProb) != 3 {
		t.Fatalf("len(YProb) = %d, want 3", len(batch.YProb))
	}
	if batch.YProb[0] <= 0.5 || batch.YProb[2] >= 0.5 {
		t.Errorf("YProb = %v, want probabilities straddling 0.5", batch.YProb)
	}
	if len(batch.YTrue) != 3 || len(batch.Group) != 3 {
		t.Errorf("labels not carried through: YTrue=%v Group=%v", batch.YTrue, batch.Group)
	}
}

func TestLoadModelBatch_DefaultBiasAndThreshold(t *testing.T) {
	dir := t.TempDir()
	input := writeJSONFile(t, dir, "batch.json", map[string]any{
		"y_true":   []bool{true, false},
		"group":    []string{"a", "b"},
		"features": [][]float64{{3}, {-3}},
	})
	config := writeJSONFile(t, dir, "model.json", map[string]any{
		"weights": []float64{1},
	})

	batch, err := loadModelBatch(input, "threshold", config)
	if err != nil {
		t.Fatalf("loadModelBatch failed: %v", err)
	}
	if !batch.YPred[0] || batch.YPred[1] {
		t.Errorf("YPred = %v, want [true false]", batch.YPred)
	}
}

func TestLoadModelBatch_Errors(t *testing.T) {
	dir := t.TempDir()
	noFeatures := writeJSONFile(t, dir, "plain.json", map[string]any{
		"y_true": []bool{true},
		"y_pred": []bool{true},
		"group":  []string{"a"},
	})
	withFeatures := writeJSONFile(t, dir, "batch.json", map[string]any{
		"y_true":   []bool{true},
		"group":    []string{"a"},
		"features": [][]float64{{1}},
	})

	tests := []struct {
		name    string
		path    string
		kind    string
		wantErr string
	}{
		{"missing features", noFeatures, "threshold", "features"},
		{"unknown model kind", withFeatures, "oracle", "unknown"},
		{"missing weights", withFeatures, "threshold", "weights"},
		{"missing input file", filepath.Join(dir, "absent.json"), "threshold", "no such file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadModelBatch(tt.path, tt.kind, "")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}
