package fairness

import (
	"math"
	"reflect"
	"testing"
)

func TestStatisticalParity_Violation(t *testing.T) {
	yPred := []bool{true, true, false, false}
	group := []string{"A", "A", "B", "B"}

	res := StatisticalParity(yPred, group, 0.1)

	if res.ByGroup["A"].SelectionRate != 1.0 {
		t.Errorf("group A selection rate = %.4f, want 1.0", res.ByGroup["A"].SelectionRate)
	}
	if res.ByGroup["B"].SelectionRate != 0.0 {
		t.Errorf("group B selection rate = %.4f, want 0.0", res.ByGroup["B"].SelectionRate)
	}
	if res.Difference != 1.0 {
		t.Errorf("Difference = %.4f, want 1.0", res.Difference)
	}
	if res.Ratio != 0.0 {
		t.Errorf("Ratio = %.4f, want 0.0", res.Ratio)
	}
	if res.IsFair {
		t.Error("IsFair = true, want false")
	}
}

func TestStatisticalParity_SingleGroup(t *testing.T) {
	res := StatisticalParity([]bool{true, false, true}, []string{"A", "A", "A"}, 0.1)

	if res.Difference != 0.0 {
		t.Errorf("Difference = %.4f, want 0.0", res.Difference)
	}
	if res.Ratio != 1.0 {
		t.Errorf("Ratio = %.4f, want 1.0", res.Ratio)
	}
	if !res.IsFair {
		t.Error("single group should be fair")
	}
}

func TestStatisticalParity_EmptyBatch(t *testing.T) {
	res := StatisticalParity(nil, nil, 0.1)

	if res.Difference != 0.0 || res.Ratio != 1.0 || !res.IsFair {
		t.Errorf("empty batch = {diff %.2f, ratio %.2f, fair %v}, want {0, 1, true}",
			res.Difference, res.Ratio, res.IsFair)
	}
	if len(res.ByGroup) != 0 {
		t.Errorf("ByGroup has %d entries, want 0", len(res.ByGroup))
	}
}

func TestStatisticalParity_AllRatesZero(t *testing.T) {
	// Nobody selected in either group: the ratio falls back to the
	// fairness-neutral 1.0 instead of dividing by zero.
	res := StatisticalParity([]bool{false, false, false, false}, []string{"A", "A", "B", "B"}, 0.1)

	if res.Ratio != 1.0 {
		t.Errorf("Ratio = %.4f, want 1.0", res.Ratio)
	}
	if !res.IsFair {
		t.Error("IsFair = false, want true")
	}
}

func TestStatisticalParity_Idempotent(t *testing.T) {
	yPred := []bool{true, false, true, false, true}
	group := []string{"A", "B", "A", "B", "A"}

	first := StatisticalParity(yPred, group, 0.1)
	second := StatisticalParity(yPred, group, 0.1)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated call differs: first %+v, second %+v", first, second)
	}
	if !reflect.DeepEqual(yPred, []bool{true, false, true, false, true}) {
		t.Error("input yPred was mutated")
	}
}

func TestDisparateImpact_Passes80Rule(t *testing.T) {
	yPred := []bool{true, false, true, false}
	group := []string{"A", "A", "B", "B"}

	res := DisparateImpact(yPred, group, 0.8)

	if res.Ratio != 1.0 {
		t.Errorf("Ratio = %.4f, want 1.0", res.Ratio)
	}
	if !res.Passes80Rule {
		t.Error("Passes80Rule = false, want true")
	}
	if res.ByGroup["A"] != 0.5 || res.ByGroup["B"] != 0.5 {
		t.Errorf("ByGroup = %v, want 0.5 for both", res.ByGroup)
	}
}

func TestDisparateImpact_Violation(t *testing.T) {
	yPred := []bool{true, true, true, false}
	group := []string{"A", "A", "A", "B"}

	res := DisparateImpact(yPred, group, 0.8)

	if res.Ratio != 0.0 {
		t.Errorf("Ratio = %.4f, want 0.0", res.Ratio)
	}
	if res.Passes80Rule {
		t.Error("Passes80Rule = true, want false")
	}
	if res.AdvantagedGroup != "A" {
		t.Errorf("AdvantagedGroup = %q, want A", res.AdvantagedGroup)
	}
	if res.DisadvantagedGroup != "B" {
		t.Errorf("DisadvantagedGroup = %q, want B", res.DisadvantagedGroup)
	}
}

func TestDisparateImpact_TieBreaksLexicographically(t *testing.T) {
	// All groups share the same rate, so both roles resolve to the
	// lexicographically smallest label.
	yPred := []bool{true, false, true, false, true, false}
	group := []string{"C", "C", "A", "A", "B", "B"}

	res := DisparateImpact(yPred, group, 0.8)

	if res.AdvantagedGroup != "A" {
		t.Errorf("AdvantagedGroup = %q, want A", res.AdvantagedGroup)
	}
	if res.DisadvantagedGroup != "A" {
		t.Errorf("DisadvantagedGroup = %q, want A", res.DisadvantagedGroup)
	}
	if res.Ratio != 1.0 {
		t.Errorf("Ratio = %.4f, want 1.0", res.Ratio)
	}
}

func TestDisparateImpact_EmptyBatch(t *testing.T) {
	res := DisparateImpact(nil, nil, 0.8)

	if res.Ratio != 1.0 || !res.Passes80Rule {
		t.Errorf("empty batch = {ratio %.2f, passes %v}, want {1.0, true}", res.Ratio, res.Passes80Rule)
	}
	if res.AdvantagedGroup != "" || res.DisadvantagedGroup != "" {
		t.Errorf("group names = (%q, %q), want empty", res.AdvantagedGroup, res.DisadvantagedGroup)
	}
}

func TestEqualOpportunity_NoPositivesInGroup(t *testing.T) {
	// Group A has no true positives at all; its TPR is defined as 0.0
	// rather than erroring on the zero denominator.
	yTrue := []bool{false, false, true, true}
	yPred := []bool{false, false, true, false}
	group := []string{"A", "A", "B", "B"}

	res := EqualOpportunity(yTrue, yPred, group, 0.1)

	if res.ByGroup["A"].TPR != 0.0 {
		t.Errorf("group A TPR = %.4f, want 0.0", res.ByGroup["A"].TPR)
	}
	if res.ByGroup["B"].TPR != 0.5 {
		t.Errorf("group B TPR = %.4f, want 0.5", res.ByGroup["B"].TPR)
	}
	if res.Difference != 0.5 {
		t.Errorf("Difference = %.4f, want 0.5", res.Difference)
	}
	if res.IsFair {
		t.Error("IsFair = true, want false")
	}
}

func TestEqualizedOdds(t *testing.T) {
	yTrue := []bool{true, true, false, false, true, true, false, false}
	yPred := []bool{true, false, true, false, true, true, false, false}
	group := []string{"A", "A", "A", "A", "B", "B", "B", "B"}

	res := EqualizedOdds(yTrue, yPred, group, 0.1)

	a := res.ByGroup["A"]
	if a.TPR != 0.5 || a.FPR != 0.5 {
		t.Errorf("group A = {TPR %.2f, FPR %.2f}, want {0.5, 0.5}", a.TPR, a.FPR)
	}
	if a.TP != 1 || a.FN != 1 || a.FP != 1 || a.TN != 1 {
		t.Errorf("group A counts = %+v, want TP/FN/FP/TN all 1", a)
	}

	b := res.ByGroup["B"]
	if b.TPR != 1.0 || b.FPR != 0.0 {
		t.Errorf("group B = {TPR %.2f, FPR %.2f}, want {1.0, 0.0}", b.TPR, b.FPR)
	}

	if res.TPRDifference != 0.5 {
		t.Errorf("TPRDifference = %.4f, want 0.5", res.TPRDifference)
	}
	if res.FPRDifference != 0.5 {
		t.Errorf("FPRDifference = %.4f, want 0.5", res.FPRDifference)
	}
	if res.IsFair {
		t.Error("IsFair = true, want false")
	}
}

func TestEqualizedOdds_IdenticalGroups(t *testing.T) {
	yTrue := []bool{true, false, true, false}
	yPred := []bool{true, false, true, false}
	group := []string{"A", "A", "B", "B"}

	res := EqualizedOdds(yTrue, yPred, group, 0.1)

	if res.TPRDifference != 0.0 || res.FPRDifference != 0.0 {
		t.Errorf("differences = (%.4f, %.4f), want (0, 0)", res.TPRDifference, res.FPRDifference)
	}
	if !res.IsFair {
		t.Error("IsFair = false, want true")
	}
}

func TestConfusionMatrixByGroup(t *testing.T) {
	yTrue := []bool{true, true, false, false}
	yPred := []bool{true, false, true, false}
	group := []string{"A", "A", "A", "A"}

	cm := ConfusionMatrixByGroup(yTrue, yPred, group)

	got := cm["A"]
	want := ConfusionCounts{TP: 1, TN: 1, FP: 1, FN: 1, Total: 4}
	if got != want {
		t.Errorf("confusion counts = %+v, want %+v", got, want)
	}
}

func TestRateMetrics(t *testing.T) {
	// Group A is classified perfectly, group B gets everything half right:
	// A: TP=2 TN=2, B: TP=1 FN=1 FP=1 TN=1.
	yTrue := []bool{true, true, false, false, true, true, false, false}
	yPred := []bool{true, true, false, false, true, false, true, false}
	group := []string{"A", "A", "A", "A", "B", "B", "B", "B"}

	tests := []struct {
		name  string
		fn    func(yTrue, yPred []bool, group []string, threshold float64) RateResult
		wantA float64
		wantB float64
	}{
		{"predictive_parity", PredictiveParity, 1.0, 0.5},
		{"negative_predictive_parity", NegativePredictiveParity, 1.0, 0.5},
		{"false_negative_rate", FalseNegativeRateDifference, 0.0, 0.5},
		{"accuracy", AccuracyDifference, 1.0, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.fn(yTrue, yPred, group, 0.1)

			if res.ByGroup["A"] != tt.wantA {
				t.Errorf("group A = %.4f, want %.4f", res.ByGroup["A"], tt.wantA)
			}
			if res.ByGroup["B"] != tt.wantB {
				t.Errorf("group B = %.4f, want %.4f", res.ByGroup["B"], tt.wantB)
			}
			if res.Difference != 0.5 {
				t.Errorf("Difference = %.4f, want 0.5", res.Difference)
			}
			if res.IsFair {
				t.Error("IsFair = true, want false")
			}
		})
	}
}

func TestTreatmentEquality_UndefinedRatioExcluded(t *testing.T) {
	// Group A has false negatives but zero false positives, so its ratio
	// is undefined and drops out of the difference entirely. With only one
	// finite ratio left the difference defaults to 0.
	yTrue := []bool{true, true, true, false}
	yPred := []bool{false, false, false, true}
	group := []string{"A", "A", "B", "B"}

	res := TreatmentEquality(yTrue, yPred, group, 0.2)

	a := res.ByGroup["A"]
	if a.Defined {
		t.Error("group A ratio should be undefined (FN>0, FP=0)")
	}
	if a.FalseNegatives != 2 || a.FalsePositives != 0 {
		t.Errorf("group A counts = FN %d FP %d, want FN 2 FP 0", a.FalseNegatives, a.FalsePositives)
	}

	b := res.ByGroup["B"]
	if !b.Defined {
		t.Error("group B ratio should be defined")
	}
	if b.Ratio != 1.0 {
		t.Errorf("group B ratio = %.4f, want 1.0", b.Ratio)
	}

	if res.Difference != 0.0 {
		t.Errorf("Difference = %.4f, want 0.0 with fewer than two finite ratios", res.Difference)
	}
	if !res.IsFair {
		t.Error("IsFair = false, want true")
	}
}

func TestTreatmentEquality_NoErrorsIsDefined(t *testing.T) {
	// Zero FN and zero FP is a perfect classifier, not an undefined ratio.
	yTrue := []bool{true, false}
	yPred := []bool{true, false}
	group := []string{"A", "A"}

	res := TreatmentEquality(yTrue, yPred, group, 0.2)

	a := res.ByGroup["A"]
	if !a.Defined {
		t.Error("ratio should be defined when FN=0 and FP=0")
	}
	if a.Ratio != 0.0 {
		t.Errorf("ratio = %.4f, want 0.0", a.Ratio)
	}
}

func TestTreatmentEquality_TwoFiniteRatios(t *testing.T) {
	// A: FN=2, FP=1 -> ratio 2.0. B: FN=1, FP=1 -> ratio 1.0.
	yTrue := []bool{true, true, true, false, false, true, false, false}
	yPred := []bool{false, false, true, true, false, false, true, false}
	group := []string{"A", "A", "A", "A", "A", "B", "B", "B"}

	res := TreatmentEquality(yTrue, yPred, group, 0.2)

	if got := res.ByGroup["A"].Ratio; got != 2.0 {
		t.Errorf("group A ratio = %.4f, want 2.0", got)
	}
	if got := res.ByGroup["B"].Ratio; got != 1.0 {
		t.Errorf("group B ratio = %.4f, want 1.0", got)
	}
	if res.Difference != 1.0 {
		t.Errorf("Difference = %.4f, want 1.0", res.Difference)
	}
	if res.IsFair {
		t.Error("IsFair = true, want false")
	}
}

func TestCalibrationByGroup_PerfectlyCalibrated(t *testing.T) {
	// Probability 1.0 must land in the top bin, not in an out-of-range
	// eleventh bin.
	yTrue := []bool{true, false}
	yProb := []float64{1.0, 0.0}
	group := []string{"A", "A"}

	res := CalibrationByGroup(yTrue, yProb, group, 10, 0.1)

	if got := res.ByGroup["A"].ECE; got != 0.0 {
		t.Errorf("ECE = %.4f, want 0.0", got)
	}
	if got := res.ByGroup["A"].Samples; got != 2 {
		t.Errorf("Samples = %d, want 2", got)
	}
	if got := res.ByGroup["A"].Bins; got != 10 {
		t.Errorf("Bins = %d, want 10", got)
	}
	if !res.IsFair {
		t.Error("IsFair = false, want true")
	}
}

func TestCalibrationByGroup_Miscalibrated(t *testing.T) {
	// Every prediction claims 90% confidence but nothing is positive:
	// the single occupied bin contributes |0 - 0.9|.
	yTrue := []bool{false, false}
	yProb := []float64{0.9, 0.9}
	group := []string{"A", "A"}

	res := CalibrationByGroup(yTrue, yProb, group, 10, 0.1)

	if got := res.ByGroup["A"].ECE; math.Abs(got-0.9) > 1e-12 {
		t.Errorf("ECE = %.4f, want 0.9", got)
	}
}

func TestCalibrationByGroup_GroupGap(t *testing.T) {
	// A is calibrated, B claims 80% on all-negative outcomes.
	yTrue := []bool{true, false, false, false}
	yProb := []float64{1.0, 0.0, 0.8, 0.8}
	group := []string{"A", "A", "B", "B"}

	res := CalibrationByGroup(yTrue, yProb, group, 10, 0.1)

	if math.Abs(res.Difference-0.8) > 1e-12 {
		t.Errorf("Difference = %.4f, want 0.8", res.Difference)
	}
	if res.IsFair {
		t.Error("IsFair = true, want false")
	}
}
