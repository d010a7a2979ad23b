// Package fairness implements group fairness metrics for binary
// classifiers: model-dependent (posttrain) metrics computed from labels and
// predictions, model-independent (pretrain) metrics computed from the data
// alone, and a calculator that bundles them with a summary score.
//
// All metrics partition samples by the protected-attribute value and report
// per-group values keyed by group name, plus a cross-group spread. Rates
// with a zero denominator evaluate to 0 rather than NaN so that results stay
// JSON-encodable and comparable.
package fairness

import (
	"math"
	"sort"
)

// sortedGroups returns the distinct group names in lexical order. Every
// cross-group scan iterates this slice so that tie-breaks and map
// construction are deterministic.
func sortedGroups(group []string) []string {
	seen := make(map[string]struct{}, len(group))
	names := make([]string, 0, len(group))
	for _, g := range group {
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		names = append(names, g)
	}
	sort.Strings(names)
	return names
}

// groupIndices maps each group name to the sample indices belonging to it.
func groupIndices(group []string) map[string][]int {
	idx := make(map[string][]int)
	for i, g := range group {
		idx[g] = append(idx[g], i)
	}
	return idx
}

// safeRate divides num by den, returning 0 when the denominator is 0.
func safeRate(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

// confusionFor counts the confusion matrix over the given sample indices.
func confusionFor(yTrue, yPred []bool, idx []int) ConfusionCounts {
	var c ConfusionCounts
	for _, i := range idx {
		switch {
		case yTrue[i] && yPred[i]:
			c.TP++
		case !yTrue[i] && !yPred[i]:
			c.TN++
		case !yTrue[i] && yPred[i]:
			c.FP++
		default:
			c.FN++
		}
	}
	c.Total = len(idx)
	return c
}

// spread returns max - min over the rates of the named groups. It returns 0
// when fewer than one group is present.
func spread(names []string, rate map[string]float64) float64 {
	if len(names) == 0 {
		return 0
	}
	maxV := rate[names[0]]
	minV := rate[names[0]]
	for _, g := range names[1:] {
		if rate[g] > maxV {
			maxV = rate[g]
		}
		if rate[g] < minV {
			minV = rate[g]
		}
	}
	return maxV - minV
}

// StatisticalParity computes the selection rate per group and the spread
// between the highest and lowest rates. An empty batch yields a difference
// of 0, a ratio of 1 and a fair verdict.
func StatisticalParity(yPred []bool, group []string, threshold float64) StatisticalParityResult {
	names := sortedGroups(group)
	idx := groupIndices(group)

	byGroup := make(map[string]GroupSelection, len(names))
	rates := make(map[string]float64, len(names))
	for _, g := range names {
		selected := 0
		for _, i := range idx[g] {
			if yPred[i] {
				selected++
			}
		}
		rate := safeRate(selected, len(idx[g]))
		rates[g] = rate
		byGroup[g] = GroupSelection{SelectionRate: rate, TotalSamples: len(idx[g])}
	}

	diff := spread(names, rates)
	ratio := 1.0
	if maxV := maxRate(names, rates); maxV > 0 {
		ratio = minRate(names, rates) / maxV
	}
	return StatisticalParityResult{
		ByGroup:    byGroup,
		Difference: diff,
		Ratio:      ratio,
		IsFair:     diff < threshold,
	}
}

func maxRate(names []string, rate map[string]float64) float64 {
	v := 0.0
	for i, g := range names {
		if i == 0 || rate[g] > v {
			v = rate[g]
		}
	}
	return v
}

func minRate(names []string, rate map[string]float64) float64 {
	v := 0.0
	for i, g := range names {
		if i == 0 || rate[g] < v {
			v = rate[g]
		}
	}
	return v
}

// DisparateImpact computes the ratio of the lowest to the highest group
// selection rate and checks it against minRatio (0.8 for the four-fifths
// rule). Ties resolve to the lexically smallest group name. An empty batch
// passes with a ratio of 1 and empty group names.
func DisparateImpact(yPred []bool, group []string, minRatio float64) DisparateImpactResult {
	names := sortedGroups(group)
	idx := groupIndices(group)

	byGroup := make(map[string]float64, len(names))
	for _, g := range names {
		selected := 0
		for _, i := range idx[g] {
			if yPred[i] {
				selected++
			}
		}
		byGroup[g] = safeRate(selected, len(idx[g]))
	}

	if len(names) == 0 {
		return DisparateImpactResult{
			Ratio:        1.0,
			Passes80Rule: true,
			ByGroup:      byGroup,
		}
	}

	advantaged := names[0]
	disadvantaged := names[0]
	for _, g := range names[1:] {
		if byGroup[g] > byGroup[advantaged] {
			advantaged = g
		}
		if byGroup[g] < byGroup[disadvantaged] {
			disadvantaged = g
		}
	}

	ratio := 1.0
	if byGroup[advantaged] > 0 {
		ratio = byGroup[disadvantaged] / byGroup[advantaged]
	}
	return DisparateImpactResult{
		Ratio:              ratio,
		Passes80Rule:       ratio >= minRatio,
		AdvantagedGroup:    advantaged,
		DisadvantagedGroup: disadvantaged,
		ByGroup:            byGroup,
	}
}

// EqualOpportunity compares true-positive rates across groups.
func EqualOpportunity(yTrue, yPred []bool, group []string, threshold float64) EqualOpportunityResult {
	names := sortedGroups(group)
	idx := groupIndices(group)

	byGroup := make(map[string]GroupTPR, len(names))
	rates := make(map[string]float64, len(names))
	for _, g := range names {
		c := confusionFor(yTrue, yPred, idx[g])
		tpr := safeRate(c.TP, c.TP+c.FN)
		rates[g] = tpr
		byGroup[g] = GroupTPR{TPR: tpr, TruePositives: c.TP, FalseNegatives: c.FN}
	}

	diff := spread(names, rates)
	return EqualOpportunityResult{
		ByGroup:    byGroup,
		Difference: diff,
		IsFair:     diff < threshold,
	}
}

// EqualizedOdds compares both true-positive and false-positive rates across
// groups. Both spreads must fall under the threshold for a fair verdict.
func EqualizedOdds(yTrue, yPred []bool, group []string, threshold float64) EqualizedOddsResult {
	names := sortedGroups(group)
	idx := groupIndices(group)

	byGroup := make(map[string]GroupOdds, len(names))
	tprs := make(map[string]float64, len(names))
	fprs := make(map[string]float64, len(names))
	for _, g := range names {
		c := confusionFor(yTrue, yPred, idx[g])
		tpr := safeRate(c.TP, c.TP+c.FN)
		fpr := safeRate(c.FP, c.FP+c.TN)
		tprs[g] = tpr
		fprs[g] = fpr
		byGroup[g] = GroupOdds{TPR: tpr, FPR: fpr, TP: c.TP, TN: c.TN, FP: c.FP, FN: c.FN}
	}

	tprDiff := spread(names, tprs)
	fprDiff := spread(names, fprs)
	return EqualizedOddsResult{
		ByGroup:       byGroup,
		TPRDifference: tprDiff,
		FPRDifference: fprDiff,
		IsFair:        tprDiff < threshold && fprDiff < threshold,
	}
}

// ConfusionMatrixByGroup returns the raw confusion counts per group.
func ConfusionMatrixByGroup(yTrue, yPred []bool, group []string) map[string]ConfusionCounts {
	names := sortedGroups(group)
	idx := groupIndices(group)

	out := make(map[string]ConfusionCounts, len(names))
	for _, g := range names {
		out[g] = confusionFor(yTrue, yPred, idx[g])
	}
	return out
}

// rateMetric computes a per-group rate derived from the confusion matrix and
// wraps it in the shared RateResult shape.
func rateMetric(yTrue, yPred []bool, group []string, threshold float64, f func(ConfusionCounts) float64) RateResult {
	names := sortedGroups(group)
	idx := groupIndices(group)

	byGroup := make(map[string]float64, len(names))
	for _, g := range names {
		byGroup[g] = f(confusionFor(yTrue, yPred, idx[g]))
	}

	diff := spread(names, byGroup)
	return RateResult{
		ByGroup:    byGroup,
		Difference: diff,
		IsFair:     diff < threshold,
	}
}

// FalseNegativeRateDifference compares FN / (FN + TP) across groups. A high
// spread means some groups bear more missed positives than others.
func FalseNegativeRateDifference(yTrue, yPred []bool, group []string, threshold float64) RateResult {
	return rateMetric(yTrue, yPred, group, threshold, func(c ConfusionCounts) float64 {
		return safeRate(c.FN, c.FN+c.TP)
	})
}

// PredictiveParity compares positive predictive value, TP / (TP + FP),
// across groups.
func PredictiveParity(yTrue, yPred []bool, group []string, threshold float64) RateResult {
	return rateMetric(yTrue, yPred, group, threshold, func(c ConfusionCounts) float64 {
		return safeRate(c.TP, c.TP+c.FP)
	})
}

// NegativePredictiveParity compares negative predictive value,
// TN / (TN + FN), across groups.
func NegativePredictiveParity(yTrue, yPred []bool, group []string, threshold float64) RateResult {
	return rateMetric(yTrue, yPred, group, threshold, func(c ConfusionCounts) float64 {
		return safeRate(c.TN, c.TN+c.FN)
	})
}

// AccuracyDifference compares plain accuracy, (TP + TN) / total, across
// groups.
func AccuracyDifference(yTrue, yPred []bool, group []string, threshold float64) RateResult {
	return rateMetric(yTrue, yPred, group, threshold, func(c ConfusionCounts) float64 {
		return safeRate(c.TP+c.TN, c.Total)
	})
}

// TreatmentEquality compares the FN/FP ratio across groups. A group with
// false negatives but no false positives has an undefined (infinite) ratio
// and is excluded from the spread; a group with neither has a neutral ratio
// of 0. The spread is 0 when fewer than two groups have finite ratios.
func TreatmentEquality(yTrue, yPred []bool, group []string, threshold float64) TreatmentEqualityResult {
	names := sortedGroups(group)
	idx := groupIndices(group)

	byGroup := make(map[string]GroupTreatment, len(names))
	finite := make([]float64, 0, len(names))
	for _, g := range names {
		c := confusionFor(yTrue, yPred, idx[g])
		t := GroupTreatment{FalseNegatives: c.FN, FalsePositives: c.FP}
		switch {
		case c.FP == 0 && c.FN > 0:
			t.Defined = false
		case c.FP == 0:
			t.Ratio = 0
			t.Defined = true
		default:
			t.Ratio = float64(c.FN) / float64(c.FP)
			t.Defined = true
		}
		if t.Defined {
			finite = append(finite, t.Ratio)
		}
		byGroup[g] = t
	}

	diff := 0.0
	if len(finite) >= 2 {
		maxV, minV := finite[0], finite[0]
		for _, v := range finite[1:] {
			if v > maxV {
				maxV = v
			}
			if v < minV {
				minV = v
			}
		}
		diff = maxV - minV
	}
	return TreatmentEqualityResult{
		ByGroup:    byGroup,
		Difference: diff,
		IsFair:     diff < threshold,
	}
}

// CalibrationByGroup computes the expected calibration error per group over
// equal-width probability bins and compares the spread of ECE values.
//
// Each sample lands in bin int(p * bins), clamped to the last bin so that
// p == 1.0 stays in range. A group's ECE is the sample-weighted mean of
// |observed positive rate - mean predicted probability| over its non-empty
// bins.
func CalibrationByGroup(yTrue []bool, yProb []float64, group []string, bins int, threshold float64) CalibrationResult {
	names := sortedGroups(group)
	idx := groupIndices(group)

	byGroup := make(map[string]GroupCalibration, len(names))
	eces := make(map[string]float64, len(names))
	for _, g := range names {
		ece := groupECE(yTrue, yProb, idx[g], bins)
		eces[g] = ece
		byGroup[g] = GroupCalibration{ECE: ece, Samples: len(idx[g]), Bins: bins}
	}

	diff := spread(names, eces)
	return CalibrationResult{
		ByGroup:    byGroup,
		Difference: diff,
		IsFair:     diff < threshold,
	}
}

func groupECE(yTrue []bool, yProb []float64, idx []int, bins int) float64 {
	if len(idx) == 0 || bins <= 0 {
		return 0
	}
	count := make([]int, bins)
	sumProb := make([]float64, bins)
	positives := make([]int, bins)
	for _, i := range idx {
		b := int(yProb[i] * float64(bins))
		if b >= bins {
			b = bins - 1
		}
		if b < 0 {
			b = 0
		}
		count[b]++
		sumProb[b] += yProb[i]
		if yTrue[i] {
			positives[b]++
		}
	}

	total := float64(len(idx))
	ece := 0.0
	for b := 0; b < bins; b++ {
		if count[b] == 0 {
			continue
		}
		observed := float64(positives[b]) / float64(count[b])
		predicted := sumProb[b] / float64(count[b])
		ece += float64(count[b]) / total * math.Abs(observed-predicted)
	}
	return ece
}
