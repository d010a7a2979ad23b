// Package adapter defines the model-facing interfaces the evaluation
// pipeline consumes and a registry that builds adapters from explicit,
// declared kinds. Nothing is inferred from model names; a caller states the
// kind and the registry either knows it or fails.
package adapter

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/probity-ml/rawls/internal/fairness"
)

// Predictor produces binary predictions for a feature matrix, one row per
// sample.
type Predictor interface {
	Predict(ctx context.Context, X [][]float64) ([]bool, error)
}

// ProbabilityPredictor is the optional capability of scoring the positive
// class. Adapters that can only decide implement Predictor alone.
type ProbabilityPredictor interface {
	Predictor
	PredictProba(ctx context.Context, X [][]float64) ([]float64, error)
}

// SupportsProba reports whether p can produce probabilities and returns the
// capability view when it can.
func SupportsProba(p Predictor) (ProbabilityPredictor, bool) {
	pp, ok := p.(ProbabilityPredictor)
	return pp, ok
}

// Factory builds a predictor from decoded options.
type Factory func(opts map[string]any) (Predictor, error)

// Registry maps adapter kinds to factories. Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry with the built-in kinds registered.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.factories["threshold"] = thresholdFactory
	return r
}

// Register adds a factory under kind. Registering a kind twice is an error
// so wiring mistakes surface immediately.
func (r *Registry) Register(kind string, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("adapter kind %q already registered", kind)
	}
	r.factories[kind] = f
	return nil
}

// Create builds a predictor of the named kind.
func (r *Registry) Create(kind string, opts map[string]any) (Predictor, error) {
	r.mu.RLock()
	f, ok := r.factories[kind]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown adapter kind %q (registered: %s)", kind, strings.Join(r.Kinds(), ", "))
	}
	return f(opts)
}

// Kinds lists the registered kinds in lexical order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// ThresholdPredictor scores each sample with a linear model squashed
// through a sigmoid and predicts positive when the probability reaches the
// decision threshold.
type ThresholdPredictor struct {
	Weights   []float64
	Bias      float64
	Threshold float64
}

// NewThresholdPredictor validates the decision threshold and returns the
// predictor.
func NewThresholdPredictor(weights []float64, bias, threshold float64) (*ThresholdPredictor, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("decision threshold %v outside [0, 1]", threshold)
	}
	return &ThresholdPredictor{Weights: weights, Bias: bias, Threshold: threshold}, nil
}

// PredictProba returns sigmoid(w . x + b) per row.
func (t *ThresholdPredictor) PredictProba(ctx context.Context, X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(row) != len(t.Weights) {
			return nil, fmt.Errorf("row %d has %d features, model expects %d", i, len(row), len(t.Weights))
		}
		z := t.Bias
		for j, w := range t.Weights {
			z += w * row[j]
		}
		out[i] = 1.0 / (1.0 + math.Exp(-z))
	}
	return out, nil
}

// Predict thresholds the probabilities.
func (t *ThresholdPredictor) Predict(ctx context.Context, X [][]float64) ([]bool, error) {
	proba, err := t.PredictProba(ctx, X)
	if err != nil {
		return nil, err
	}
	preds := make([]bool, len(proba))
	for i, p := range proba {
		preds[i] = p >= t.Threshold
	}
	return preds, nil
}

func thresholdFactory(opts map[string]any) (Predictor, error) {
	weights, err := floatSlice(opts["weights"])
	if err != nil {
		return nil, fmt.Errorf("threshold adapter: weights: %w", err)
	}
	bias, err := floatOr(opts["bias"], 0)
	if err != nil {
		return nil, fmt.Errorf("threshold adapter: bias: %w", err)
	}
	threshold, err := floatOr(opts["threshold"], 0.5)
	if err != nil {
		return nil, fmt.Errorf("threshold adapter: threshold: %w", err)
	}
	return NewThresholdPredictor(weights, bias, threshold)
}

// floatSlice decodes a JSON-shaped value into floats.
func floatSlice(v any) ([]float64, error) {
	switch vv := v.(type) {
	case nil:
		return nil, fmt.Errorf("missing")
	case []float64:
		return vv, nil
	case []any:
		out := make([]float64, len(vv))
		for i, e := range vv {
			f, ok := e.(float64)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, want number", i, e)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, fmt.Errorf("got %T, want number array", v)
	}
}

func floatOr(v any, def float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("got %T, want number", v)
	}
	return f, nil
}

// BuildBatch runs the predictor over X and assembles a fairness batch,
// attaching probabilities when the predictor supports them.
func BuildBatch(ctx context.Context, p Predictor, X [][]float64, yTrue []bool, group []string) (fairness.Batch, error) {
	if len(X) != len(yTrue) || len(X) != len(group) {
		return fairness.Batch{}, fmt.Errorf("X, y_true and group have different lengths: %d, %d, %d",
			len(X), len(yTrue), len(group))
	}

	preds, err := p.Predict(ctx, X)
	if err != nil {
		return fairness.Batch{}, fmt.Errorf("predict: %w", err)
	}
	b := fairness.Batch{YTrue: yTrue, YPred: preds, Group: group}

	if pp, ok := SupportsProba(p); ok {
		proba, err := pp.PredictProba(ctx, X)
		if err != nil {
			return fairness.Batch{}, fmt.Errorf("predict proba: %w", err)
		}
		b.YProb = proba
	}
	return b, nil
}
