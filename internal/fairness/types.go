package fairness

// Batch is the unit of analysis: parallel arrays describing one evaluation
// of a binary classifier. Group carries the protected-attribute value per
// sample. All present slices must share the same length; an empty batch is
// valid and produces neutral results.
type Batch struct {
	YTrue []bool    `json:"y_true"`
	YPred []bool    `json:"y_pred"`
	YProb []float64 `json:"y_prob,omitempty"` // P(positive class), in [0, 1]
	Group []string  `json:"group"`
}

// Len returns the number of samples in the batch.
func (b *Batch) Len() int {
	return len(b.YPred)
}

// HasProbabilities reports whether probability scores were supplied.
func (b *Batch) HasProbabilities() bool {
	return len(b.YProb) > 0
}

// GroupSelection holds the selection rate for one group.
type GroupSelection struct {
	SelectionRate float64 `json:"selection_rate"` // mean(y_pred | group)
	TotalSamples  int     `json:"total_samples"`
}

// StatisticalParityResult reports demographic parity across groups.
type StatisticalParityResult struct {
	ByGroup    map[string]GroupSelection `json:"by_group"`
	Difference float64                   `json:"difference"` // max - min selection rate
	Ratio      float64                   `json:"ratio"`      // min / max, 1.0 when max == 0
	IsFair     bool                      `json:"is_fair"`
}

// DisparateImpactResult reports the 80% rule outcome.
type DisparateImpactResult struct {
	Ratio              float64            `json:"ratio"` // min / max selection rate
	Passes80Rule       bool               `json:"passes_80_rule"`
	AdvantagedGroup    string             `json:"advantaged_group"`
	DisadvantagedGroup string             `json:"disadvantaged_group"`
	ByGroup            map[string]float64 `json:"by_group"`
}

// GroupTPR holds the true-positive rate for one group.
type GroupTPR struct {
	TPR            float64 `json:"tpr"` // TP / (TP + FN), 0 when undefined
	TruePositives  int     `json:"true_positives"`
	FalseNegatives int     `json:"false_negatives"`
}

// EqualOpportunityResult reports TPR equality across groups.
type EqualOpportunityResult struct {
	ByGroup    map[string]GroupTPR `json:"by_group"`
	Difference float64             `json:"difference"` // max TPR - min TPR
	IsFair     bool                `json:"is_fair"`
}

// GroupOdds holds TPR, FPR and raw confusion counts for one group.
type GroupOdds struct {
	TPR float64 `json:"tpr"`
	FPR float64 `json:"fpr"`
	TP  int     `json:"tp"`
	TN  int     `json:"tn"`
	FP  int     `json:"fp"`
	FN  int     `json:"fn"`
}

// EqualizedOddsResult reports joint TPR/FPR equality across groups.
type EqualizedOddsResult struct {
	ByGroup       map[string]GroupOdds `json:"by_group"`
	TPRDifference float64              `json:"tpr_difference"`
	FPRDifference float64              `json:"fpr_difference"`
	IsFair        bool                 `json:"is_fair"` // both differences under threshold
}

// RateResult is the shared shape for single-rate metrics (PPV, NPV, FNR,
// accuracy): one rate per group plus the max-min spread.
type RateResult struct {
	ByGroup    map[string]float64 `json:"by_group"`
	Difference float64            `json:"difference"`
	IsFair     bool               `json:"is_fair"`
}

// GroupTreatment holds the FN/FP ratio for one group. The ratio is
// undefined (infinite) when FP == 0 and FN > 0; such groups are excluded
// from the cross-group difference.
type GroupTreatment struct {
	Ratio          float64 `json:"ratio"`
	Defined        bool    `json:"defined"`
	FalseNegatives int     `json:"false_negatives"`
	FalsePositives int     `json:"false_positives"`
}

// TreatmentEqualityResult reports FN/FP ratio equality across groups.
type TreatmentEqualityResult struct {
	ByGroup    map[string]GroupTreatment `json:"by_group"`
	Difference float64                   `json:"difference"` // 0.0 with fewer than two finite ratios
	IsFair     bool                      `json:"is_fair"`
}

// GroupCalibration holds the expected calibration error for one group.
type GroupCalibration struct {
	ECE     float64 `json:"ece"`
	Samples int     `json:"samples"`
	Bins    int     `json:"bins"`
}

// CalibrationResult reports per-group ECE and its spread.
type CalibrationResult struct {
	ByGroup    map[string]GroupCalibration `json:"by_group"`
	Difference float64                     `json:"difference"` // max ECE - min ECE
	IsFair     bool                        `json:"is_fair"`
}

// ConfusionCounts holds the confusion matrix for one group.
type ConfusionCounts struct {
	TP    int `json:"tp"`
	TN    int `json:"tn"`
	FP    int `json:"fp"`
	FN    int `json:"fn"`
	Total int `json:"total"`
}

// GroupClassBalance describes the label distribution within one group.
type GroupClassBalance struct {
	ClassDistribution  map[string]int `json:"class_distribution"`
	MajorityClassRatio float64        `json:"majority_class_ratio"`
	BalanceScore       float64        `json:"balance_score"` // normalized entropy, 0 with <=1 class
	TotalSamples       int            `json:"total_samples"`
}

// ClassBalanceResult maps group name to its label balance.
type ClassBalanceResult map[string]GroupClassBalance

// ConceptBalanceResult reports how much information the group assignment
// carries about the label.
type ConceptBalanceResult struct {
	MutualInformation float64 `json:"mutual_information"` // bits
	NormalizedMI      float64 `json:"normalized_mi"`      // MI / H(label), 0 when H(label) == 0
}

// PairDivergence holds KL and JS divergence between two group label
// distributions.
type PairDivergence struct {
	KLDivergence float64 `json:"kl_divergence"`
	JSDivergence float64 `json:"js_divergence"`
}

// DistributionDifferenceResult maps "groupA_vs_groupB" to its divergences.
type DistributionDifferenceResult map[string]PairDivergence

// PretrainMetrics bundles all model-independent metrics.
type PretrainMetrics struct {
	ClassBalance                ClassBalanceResult           `json:"class_balance"`
	ConceptBalance              ConceptBalanceResult         `json:"concept_balance"`
	GroupDistributionDifference DistributionDifferenceResult `json:"group_distribution_difference"`
}

// PosttrainMetrics bundles all model-dependent metrics.
type PosttrainMetrics struct {
	StatisticalParity        StatisticalParityResult    `json:"statistical_parity"`
	DisparateImpact          DisparateImpactResult      `json:"disparate_impact"`
	EqualOpportunity         EqualOpportunityResult     `json:"equal_opportunity"`
	EqualizedOdds            EqualizedOddsResult        `json:"equalized_odds"`
	ConfusionMatrix          map[string]ConfusionCounts `json:"confusion_matrix"`
	FalseNegativeRateDiff    RateResult                 `json:"false_negative_rate_diff"`
	PredictiveParity         RateResult                 `json:"predictive_parity"`
	NegativePredictiveParity RateResult                 `json:"negative_predictive_parity"`
	AccuracyDifference       RateResult                 `json:"accuracy_difference"`
	TreatmentEquality        TreatmentEqualityResult    `json:"treatment_equality"`
	Calibration              *CalibrationResult         `json:"calibration,omitempty"` // only with probabilities
}

// Summary condenses the posttrain metrics into the four-check score.
//
// Exactly four checks feed the score: statistical parity, disparate impact,
// equal opportunity, equalized odds. Adding or removing checks would change
// the score's scale, breaking comparability across runs.
type Summary struct {
	OverallScore          float64  `json:"overall_fairness_score"` // 100 * (4 - violations) / 4
	FairnessViolations    []string `json:"fairness_violations"`
	NViolations           int      `json:"n_violations"`
	DisparateImpactRatio  float64  `json:"disparate_impact_ratio"`
	StatisticalParityDiff float64  `json:"statistical_parity_diff"`
	PassesBasicFairness   bool     `json:"passes_basic_fairness"`
}

// Bundle is the calculator's complete output. Immutable after construction.
type Bundle struct {
	Pretrain  *PretrainMetrics  `json:"pretrain,omitempty"`
	Posttrain *PosttrainMetrics `json:"posttrain"`
	Summary   Summary           `json:"summary"`
}

// LabelsFromBool converts a boolean label column into the string labels the
// pretrain metrics operate on.
func LabelsFromBool(y []bool) []string {
	labels := make([]string, len(y))
	for i, v := range y {
		if v {
			labels[i] = "1"
		} else {
			labels[i] = "0"
		}
	}
	return labels
}
