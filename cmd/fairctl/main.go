package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/probity-ml/rawls/internal/adapter"
	"github.com/probity-ml/rawls/internal/alerting"
	"github.com/probity-ml/rawls/internal/baseline"
	"github.com/probity-ml/rawls/internal/drift"
	"github.com/probity-ml/rawls/internal/fairness"
	"github.com/probity-ml/rawls/internal/monitor"
	"github.com/probity-ml/rawls/internal/policy"
	"github.com/probity-ml/rawls/internal/report"
	"github.com/probity-ml/rawls/internal/threshold"
)

var (
	// Global flags
	inputFile  string
	jsonOutput bool

	// Evaluate flags
	includeReport   bool
	modelKind       string
	modelConfigFile string

	// Drift flags
	baselineFile   string
	driftThreshold float64
	driftMethod    string
	windowSize     int

	// Threshold flags
	strategy string

	// Baseline store flags
	storeBackend string
	snapshotPath string
	redisAddr    string
	postgresConn string
	baselineName string

	// Monitor flags
	intervalSeconds int
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "fairctl",
		Short: "Fairness evaluation and drift monitoring for binary classifiers",
		Long: `fairctl evaluates group fairness metrics for binary classifier predictions,
detects metric drift against stored baselines, and recommends decision thresholds.`,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit raw JSON instead of formatted output")

	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(thresholdCmd())
	rootCmd.AddCommand(driftCmd())
	rootCmd.AddCommand(baselineCmd())
	rootCmd.AddCommand(monitorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// evaluateCmd computes the full fairness metric bundle for a prediction batch.
func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate fairness metrics for a prediction batch",
		Long: `Reads a JSON batch file with y_true, y_pred, optional y_prob, and group
arrays, computes pre-training and post-training fairness metrics, and prints
a summary with recommendations.

With --model the batch file carries a features matrix instead of y_pred; the
named model adapter scores it and the predictions (and probabilities, when
the adapter supports them) feed the evaluation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var batch fairness.Batch
			var err error
			if modelKind != "" {
				batch, err = loadModelBatch(inputFile, modelKind, modelConfigFile)
			} else {
				batch, err = loadBatch(inputFile)
			}
			if err != nil {
				return fmt.Errorf("failed to load batch: %w", err)
			}

			calc, err := fairness.NewCalculator(policy.Default())
			if err != nil {
				return fmt.Errorf("failed to create calculator: %w", err)
			}

			bundle, err := calc.CalculateAll(batch)
			if err != nil {
				return fmt.Errorf("evaluation failed: %w", err)
			}
			recs, err := calc.Recommendations(bundle)
			if err != nil {
				return fmt.Errorf("failed to build recommendations: %w", err)
			}

			if includeReport {
				rep, err := report.NewTransformer(calc.Policy()).Transform(bundle, recs)
				if err != nil {
					return fmt.Errorf("failed to build report: %w", err)
				}
				out, err := rep.JSON()
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			if jsonOutput {
				return printJSON(bundle)
			}

			printSummary(batch, bundle, recs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Batch file (JSON)")
	cmd.Flags().BoolVar(&includeReport, "report", false, "Emit the full graded report as JSON")
	cmd.Flags().StringVar(&modelKind, "model", "", "Score the batch's features with a model adapter kind (e.g. threshold)")
	cmd.Flags().StringVar(&modelConfigFile, "model-config", "", "JSON options file for the model adapter")
	cmd.MarkFlagRequired("input")

	return cmd
}

// thresholdCmd sweeps decision thresholds and recommends one.
func thresholdCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "threshold",
		Short: "Recommend a decision threshold balancing fairness and performance",
		Long: `Reads a JSON file with y_true, y_prob, and group arrays, sweeps decision
thresholds from 0.01 to 0.99, and recommends one according to the chosen
strategy (balanced, fairness_priority, performance_priority).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := loadBatch(inputFile)
			if err != nil {
				return fmt.Errorf("failed to load batch: %w", err)
			}
			if !batch.HasProbabilities() {
				return fmt.Errorf("threshold analysis requires y_prob")
			}

			analyzer := threshold.NewAnalyzer(policy.Default())
			sweep, err := analyzer.Analyze(batch.YTrue, batch.YProb, batch.Group)
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}
			recommended, err := analyzer.Recommend(strategy)
			if err != nil {
				return err
			}

			if jsonOutput {
				return printJSON(map[string]any{"sweep": sweep, "recommended": recommended})
			}

			fmt.Printf("=== Threshold Analysis ===\n")
			fmt.Printf("Samples: %d, Sweep points: %d, Strategy: %s\n", batch.Len(), len(sweep), strategy)
			fmt.Printf("\n")
			fmt.Printf("Recommended threshold: %.2f\n", recommended.Threshold)
			fmt.Printf("  %s: %.4f\n", recommended.FairnessMetric, recommended.FairnessValue)
			fmt.Printf("  %s: %.4f\n", recommended.PerformanceMetric, recommended.PerformanceValue)
			fmt.Printf("  combined score: %.4f (fairness weight %.2f)\n",
				recommended.CombinedScore, recommended.FairnessWeight)

			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Batch file with y_true, y_prob, group (JSON)")
	cmd.Flags().StringVar(&strategy, "strategy", "balanced", "Recommendation strategy")
	cmd.MarkFlagRequired("input")

	return cmd
}

// driftCmd compares a metric snapshot against a baseline snapshot.
func driftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Detect drift between a baseline and a new metric snapshot",
		Long: `Reads two JSON files of metric name to value maps and reports which
metrics drifted beyond the threshold, with an overall severity.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := loadMetrics(baselineFile)
			if err != nil {
				return fmt.Errorf("failed to load baseline: %w", err)
			}
			current, err := loadMetrics(inputFile)
			if err != nil {
				return fmt.Errorf("failed to load metrics: %w", err)
			}

			detector, err := drift.New(base, driftThreshold, drift.Method(driftMethod))
			if err != nil {
				return err
			}
			res := detector.DetectDrift(current)

			if jsonOutput {
				return printJSON(res)
			}

			fmt.Printf("=== Drift Check ===\n")
			fmt.Printf("Method: %s, Threshold: %.3f\n", res.Method, res.Threshold)
			fmt.Printf("Compared: %d metrics, Drifted: %d\n", res.Details.NumCompared, res.Details.NumDrifted)
			fmt.Printf("Severity: %s\n", res.Severity)
			fmt.Printf("%s\n", res.Message)
			for _, name := range sortedKeys(res.DriftedMetrics) {
				fmt.Printf("  %-35s %.4f -> %.4f (score %.4f)\n",
					name, res.Details.Baseline[name], res.Details.New[name], res.DriftScores[name])
			}
			if res.HasDrift {
				return fmt.Errorf("drift detected")
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&baselineFile, "baseline", "b", "", "Baseline metrics file (JSON)")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "New metrics file (JSON)")
	cmd.Flags().Float64Var(&driftThreshold, "threshold", 0.1, "Drift threshold")
	cmd.Flags().StringVar(&driftMethod, "method", "threshold", "Detection method (threshold, psi, ks)")
	cmd.MarkFlagRequired("baseline")
	cmd.MarkFlagRequired("input")

	return cmd
}

// baselineCmd manages named baselines in the configured store.
func baselineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage stored metric baselines",
	}

	cmd.PersistentFlags().StringVar(&storeBackend, "backend", envOr("BASELINE_BACKEND", "memory"), "Store backend (memory, redis, postgres)")
	cmd.PersistentFlags().StringVar(&snapshotPath, "snapshot", envOr("BASELINE_SNAPSHOT", "data/baselines.json"), "Snapshot path for the memory backend")
	cmd.PersistentFlags().StringVar(&redisAddr, "redis-addr", envOr("REDIS_ADDR", "localhost:6379"), "Redis address")
	cmd.PersistentFlags().StringVar(&postgresConn, "postgres-conn", envOr("POSTGRES_CONN", ""), "Postgres connection string")

	set := &cobra.Command{
		Use:   "set",
		Short: "Save a metric snapshot as a named baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics, err := loadMetrics(inputFile)
			if err != nil {
				return fmt.Errorf("failed to load metrics: %w", err)
			}
			return withStore(func(ctx context.Context, store baseline.Store) error {
				b := &baseline.Baseline{Name: baselineName, Metrics: metrics}
				if err := store.Save(ctx, b); err != nil {
					return err
				}
				fmt.Printf("Saved baseline %q (%d metrics)\n", baselineName, len(metrics))
				return nil
			})
		},
	}
	set.Flags().StringVarP(&baselineName, "name", "n", "", "Baseline name")
	set.Flags().StringVarP(&inputFile, "input", "i", "", "Metrics file (JSON)")
	set.MarkFlagRequired("name")
	set.MarkFlagRequired("input")

	get := &cobra.Command{
		Use:   "get",
		Short: "Show a stored baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store baseline.Store) error {
				b, err := store.Load(ctx, baselineName)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(b)
				}
				fmt.Printf("Baseline: %s\n", b.Name)
				fmt.Printf("Created: %s, Updated: %s\n",
					b.CreatedAt.Format(time.RFC3339), b.UpdatedAt.Format(time.RFC3339))
				for _, name := range sortedKeys(b.Metrics) {
					fmt.Printf("  %-35s %.4f\n", name, b.Metrics[name])
				}
				return nil
			})
		},
	}
	get.Flags().StringVarP(&baselineName, "name", "n", "", "Baseline name")
	get.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored baseline names",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store baseline.Store) error {
				names, err := store.List(ctx)
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(names)
				}
				for _, name := range names {
					fmt.Println(name)
				}
				return nil
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete",
		Short: "Delete a stored baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(func(ctx context.Context, store baseline.Store) error {
				if err := store.Delete(ctx, baselineName); err != nil {
					return err
				}
				fmt.Printf("Deleted baseline %q\n", baselineName)
				return nil
			})
		},
	}
	del.Flags().StringVarP(&baselineName, "name", "n", "", "Baseline name")
	del.MarkFlagRequired("name")

	cmd.AddCommand(set, get, list, del)
	return cmd
}

// monitorCmd polls a metrics file and alerts on the console when the
// recent window shows drift.
func monitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Watch a metrics file and alert on drift",
		Long: `Polls a JSON metrics file at a fixed interval, feeds each snapshot into a
sliding drift window against the baseline file, and prints console alerts
when drift is detected. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := loadMetrics(baselineFile)
			if err != nil {
				return fmt.Errorf("failed to load baseline: %w", err)
			}

			detector, err := drift.New(base, driftThreshold, drift.Method(driftMethod))
			if err != nil {
				return err
			}
			window := drift.NewMonitor(detector, windowSize)
			dispatcher := alerting.NewDispatcher(alerting.DefaultConfig(), alerting.NewConsoleChannel(nil))

			source := monitor.SnapshotFunc(func(ctx context.Context) (map[string]float64, error) {
				return loadMetrics(inputFile)
			})
			svc, err := monitor.New(window, dispatcher, nil, source, monitor.Config{
				Interval: time.Duration(intervalSeconds) * time.Second,
			}, nil)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if err := svc.Start(ctx); err != nil {
				return err
			}

			fmt.Printf("Monitoring %s every %ds (method %s, threshold %.3f). Ctrl-C to stop.\n",
				inputFile, intervalSeconds, driftMethod, driftThreshold)

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			svc.Stop()
			stats := svc.Stats()
			fmt.Printf("\nStopped after %d runs (%d failures, %d drift detections)\n",
				stats.Runs, stats.Failures, stats.DriftDetections)
			return nil
		},
	}

	cmd.Flags().StringVarP(&baselineFile, "baseline", "b", "", "Baseline metrics file (JSON)")
	cmd.Flags().StringVarP(&inputFile, "input", "i", "", "Metrics file to poll (JSON)")
	cmd.Flags().Float64Var(&driftThreshold, "threshold", 0.1, "Drift threshold")
	cmd.Flags().StringVar(&driftMethod, "method", "threshold", "Detection method (threshold, psi, ks)")
	cmd.Flags().IntVar(&windowSize, "window", 10, "Observation window size")
	cmd.Flags().IntVar(&intervalSeconds, "interval", 60, "Poll interval in seconds")
	cmd.MarkFlagRequired("baseline")
	cmd.MarkFlagRequired("input")

	return cmd
}

// --- Helpers ---

type batchFile struct {
	YTrue    []bool      `json:"y_true"`
	YPred    []bool      `json:"y_pred"`
	YProb    []float64   `json:"y_prob,omitempty"`
	Group    []string    `json:"group"`
	Features [][]float64 `json:"features,omitempty"`
}

func loadBatch(path string) (fairness.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fairness.Batch{}, err
	}
	var f batchFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fairness.Batch{}, err
	}
	return fairness.Batch{YTrue: f.YTrue, YPred: f.YPred, YProb: f.YProb, Group: f.Group}, nil
}

// loadModelBatch scores the batch file's features matrix with the named
// adapter kind and assembles the batch from its predictions.
func loadModelBatch(path, kind, configPath string) (fairness.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return fairness.Batch{}, err
	}
	var f batchFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fairness.Batch{}, err
	}
	if len(f.Features) == 0 {
		return fairness.Batch{}, fmt.Errorf("model evaluation requires a features matrix in %s", path)
	}

	opts := map[string]any{}
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return fairness.Batch{}, fmt.Errorf("failed to read model config: %w", err)
		}
		if err := json.Unmarshal(raw, &opts); err != nil {
			return fairness.Batch{}, fmt.Errorf("failed to parse model config: %w", err)
		}
	}

	predictor, err := adapter.NewRegistry().Create(kind, opts)
	if err != nil {
		return fairness.Batch{}, err
	}
	return adapter.BuildBatch(context.Background(), predictor, f.Features, f.YTrue, f.Group)
}

// loadMetrics accepts either a bare {"metric": value} map or a wrapper
// object with a "metrics" field, so server responses can be fed back in.
func loadMetrics(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var bare map[string]float64
	if err := json.Unmarshal(data, &bare); err == nil && len(bare) > 0 {
		return bare, nil
	}
	var wrapped struct {
		Metrics map[string]float64 `json:"metrics"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	if len(wrapped.Metrics) == 0 {
		return nil, fmt.Errorf("no metrics found in %s", path)
	}
	return wrapped.Metrics, nil
}

func withStore(fn func(ctx context.Context, store baseline.Store) error) error {
	var store baseline.Store
	var err error

	switch storeBackend {
	case "memory":
		store, err = baseline.NewMemoryStore(snapshotPath)
	case "redis":
		store, err = baseline.NewRedisStore(redisAddr, envOr("REDIS_PASSWORD", ""), 0)
	case "postgres":
		store, err = baseline.NewPostgresStore(postgresConn)
	default:
		return fmt.Errorf("unknown backend %q (valid: memory, redis, postgres)", storeBackend)
	}
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", storeBackend, err)
	}
	defer store.Close()

	return fn(context.Background(), store)
}

func printSummary(batch fairness.Batch, bundle *fairness.Bundle, recs []string) {
	s := bundle.Summary
	post := bundle.Posttrain

	fmt.Printf("=== Fairness Evaluation ===\n")
	fmt.Printf("Samples: %d, Groups: %d\n", batch.Len(), len(post.StatisticalParity.ByGroup))
	fmt.Printf("Overall fairness score: %.1f/100\n", s.OverallScore)
	fmt.Printf("\n")
	fmt.Printf("Statistical parity diff:  %.4f\n", post.StatisticalParity.Difference)
	fmt.Printf("Disparate impact ratio:   %.4f\n", post.DisparateImpact.Ratio)
	fmt.Printf("Equal opportunity diff:   %.4f\n", post.EqualOpportunity.Difference)
	fmt.Printf("Equalized odds TPR diff:  %.4f\n", post.EqualizedOdds.TPRDifference)
	fmt.Printf("Equalized odds FPR diff:  %.4f\n", post.EqualizedOdds.FPRDifference)
	fmt.Printf("\n")
	if s.PassesBasicFairness {
		fmt.Printf("Status: PASS\n")
	} else {
		fmt.Printf("Status: FAIL (%s)\n", strings.Join(s.FairnessViolations, ", "))
	}
	fmt.Printf("\nRecommendations:\n")
	for _, r := range recs {
		fmt.Printf("  - %s\n", r)
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func envOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
