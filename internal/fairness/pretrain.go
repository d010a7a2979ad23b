package fairness

import (
	"fmt"
	"math"
	"sort"
)

const divergenceEpsilon = 1e-10

// ClassBalance measures the label distribution inside each group. The
// balance score is the Shannon entropy of the distribution normalized by its
// maximum, so 1 means perfectly balanced classes and 0 means a single class
// (or an empty group).
func ClassBalance(labels, group []string) ClassBalanceResult {
	names := sortedGroups(group)
	idx := groupIndices(group)

	out := make(ClassBalanceResult, len(names))
	for _, g := range names {
		counts := make(map[string]int)
		for _, i := range idx[g] {
			counts[labels[i]]++
		}
		total := len(idx[g])

		majority := 0
		for _, c := range counts {
			if c > majority {
				majority = c
			}
		}

		score := 0.0
		if len(counts) > 1 {
			h := 0.0
			for _, c := range counts {
				p := float64(c) / float64(total)
				h -= p * math.Log2(p)
			}
			score = h / math.Log2(float64(len(counts)))
		}

		out[g] = GroupClassBalance{
			ClassDistribution:  counts,
			MajorityClassRatio: safeRate(majority, total),
			BalanceScore:       score,
			TotalSamples:       total,
		}
	}
	return out
}

// ConceptBalance measures the mutual information between group membership
// and label, in bits. NormalizedMI divides by the label entropy so the value
// lands in [0, 1]; it is 0 when the labels carry no entropy at all.
func ConceptBalance(labels, group []string) ConceptBalanceResult {
	n := len(labels)
	if n == 0 {
		return ConceptBalanceResult{}
	}

	joint := make(map[[2]string]int)
	groupCount := make(map[string]int)
	labelCount := make(map[string]int)
	for i := range labels {
		joint[[2]string{group[i], labels[i]}]++
		groupCount[group[i]]++
		labelCount[labels[i]]++
	}

	total := float64(n)
	mi := 0.0
	for k, c := range joint {
		pJoint := float64(c) / total
		pGroup := float64(groupCount[k[0]]) / total
		pLabel := float64(labelCount[k[1]]) / total
		mi += pJoint * math.Log2(pJoint/(pGroup*pLabel))
	}
	if mi < 0 {
		mi = 0 // floating-point noise on independent distributions
	}

	hLabel := 0.0
	for _, c := range labelCount {
		p := float64(c) / total
		hLabel -= p * math.Log2(p)
	}

	nmi := 0.0
	if hLabel > 0 {
		nmi = mi / hLabel
	}
	return ConceptBalanceResult{MutualInformation: mi, NormalizedMI: nmi}
}

// normalize scales the values to sum to 1. It returns nil when the input is
// empty or sums to 0.
func normalize(v []float64) []float64 {
	sum := 0.0
	for _, x := range v {
		sum += x
	}
	if sum <= 0 {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / sum
	}
	return out
}

// smooth adds epsilon to every element and renormalizes, so that zero bins
// never produce log(0).
func smooth(v []float64) []float64 {
	out := make([]float64, len(v))
	sum := 0.0
	for i, x := range v {
		out[i] = x + divergenceEpsilon
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// KLDivergence computes the Kullback-Leibler divergence D(p || q) in nats.
// Both inputs are normalized and epsilon-smoothed first. The result is
// asymmetric: D(p || q) and D(q || p) generally differ. Degenerate inputs
// (empty, mismatched lengths, zero mass) yield 0.
func KLDivergence(p, q []float64) float64 {
	if len(p) == 0 || len(p) != len(q) {
		return 0
	}
	pn := normalize(p)
	qn := normalize(q)
	if pn == nil || qn == nil {
		return 0
	}
	pn = smooth(pn)
	qn = smooth(qn)

	d := 0.0
	for i := range pn {
		d += pn[i] * math.Log(pn[i]/qn[i])
	}
	return d
}

// JSDivergence computes the Jensen-Shannon divergence between p and q in
// bits, clipped to [0, 1]. Unlike KL it is symmetric and always finite.
func JSDivergence(p, q []float64) float64 {
	if len(p) == 0 || len(p) != len(q) {
		return 0
	}
	pn := normalize(p)
	qn := normalize(q)
	if pn == nil || qn == nil {
		return 0
	}

	m := make([]float64, len(pn))
	for i := range pn {
		m[i] = 0.5 * (pn[i] + qn[i])
	}

	js := (0.5*KLDivergence(pn, m) + 0.5*KLDivergence(qn, m)) / math.Ln2
	if js > 1.0 {
		js = 1.0
	}
	if js < 0 {
		js = 0
	}
	return js
}

// GroupDistributionDifference compares the label distribution of every pair
// of groups. Pairs are keyed "a_vs_b" with a before b in lexical order, and
// both distributions are aligned over the sorted union of label values seen
// in either group, with missing labels counted as 0.
func GroupDistributionDifference(labels, group []string) DistributionDifferenceResult {
	names := sortedGroups(group)
	idx := groupIndices(group)

	counts := make(map[string]map[string]int, len(names))
	for _, g := range names {
		c := make(map[string]int)
		for _, i := range idx[g] {
			c[labels[i]]++
		}
		counts[g] = c
	}

	out := make(DistributionDifferenceResult)
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			a, b := names[i], names[j]
			union := labelUnion(counts[a], counts[b])
			p := make([]float64, len(union))
			q := make([]float64, len(union))
			for k, label := range union {
				p[k] = float64(counts[a][label])
				q[k] = float64(counts[b][label])
			}
			out[fmt.Sprintf("%s_vs_%s", a, b)] = PairDivergence{
				KLDivergence: KLDivergence(p, q),
				JSDivergence: JSDivergence(p, q),
			}
		}
	}
	return out
}

func labelUnion(a, b map[string]int) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	union := make([]string, 0, len(a)+len(b))
	for l := range a {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			union = append(union, l)
		}
	}
	for l := range b {
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			union = append(union, l)
		}
	}
	sort.Strings(union)
	return union
}
