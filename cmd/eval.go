package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/lehigh-university-libraries/textdet/pkg/metric"
)

// EvalConfig holds the parameters of an evaluation run. It can be loaded
// from a YAML run file with --config.
type EvalConfig struct {
	GroundTruthDir string  `yaml:"gt"`
	DetectionDir   string  `yaml:"det"`
	Threshold      float64 `yaml:"threshold"`
	Output         string  `yaml:"output"`
	WithStatus     bool    `yaml:"with_status"`
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score detection boxes against ground truth boxes",
	Long: `Score every ground truth file in --gt against a detection file in --det.
For gt_<name>.txt the detection is the first of gt_<name>.txt, <name>.txt
and res_<name>.txt that exists.

A ground truth box counts as found for each detection whose IoU with it is
strictly above --threshold. The report has one CSV row per ground truth file
with image_name, true_positive, precision, recall and f_measure.

Example:
  textdet eval --gt ./gt --det ./yandex --threshold 0.5 --output report.csv`,
	RunE: runEval,
}

var (
	evalGroundTruthDir string
	evalDetectionDir   string
	evalThreshold      float64
	evalOutput         string
	evalWithStatus     bool
	evalConfigPath     string
)

func init() {
	RootCmd.AddCommand(evalCmd)

	evalCmd.Flags().StringVar(&evalGroundTruthDir, "gt", "", "Directory of gt_*.txt ground truth box files")
	evalCmd.Flags().StringVar(&evalDetectionDir, "det", "", "Directory of res_*.txt detection box files")
	evalCmd.Flags().Float64VarP(&evalThreshold, "threshold", "t", 0.5, "IoU a detection must exceed to match a ground truth box")
	evalCmd.Flags().StringVarP(&evalOutput, "output", "o", "", "Output path for the CSV report (prints to stdout if not specified)")
	evalCmd.Flags().BoolVar(&evalWithStatus, "with-status", false, "Add a status column explaining rows that could not be scored")
	evalCmd.Flags().StringVar(&evalConfigPath, "config", "", "YAML run file with the same parameters; flags given on the command line win")
}

func runEval(cmd *cobra.Command, args []string) error {
	config, err := evalConfigFromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	return evaluate(cmd.Context(), config, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func evalConfigFromFlags(flags *pflag.FlagSet) (EvalConfig, error) {
	config := EvalConfig{Threshold: evalThreshold}
	if evalConfigPath != "" {
		if err := loadYAMLConfig(evalConfigPath, &config); err != nil {
			return EvalConfig{}, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if evalConfigPath == "" || flagOverride(flags, "gt") {
		config.GroundTruthDir = evalGroundTruthDir
	}
	if evalConfigPath == "" || flagOverride(flags, "det") {
		config.DetectionDir = evalDetectionDir
	}
	if flagOverride(flags, "threshold") {
		config.Threshold = evalThreshold
	}
	if evalConfigPath == "" || flagOverride(flags, "output") {
		config.Output = evalOutput
	}
	if evalConfigPath == "" || flagOverride(flags, "with-status") {
		config.WithStatus = evalWithStatus
	}

	if config.GroundTruthDir == "" || config.DetectionDir == "" {
		return EvalConfig{}, fmt.Errorf("both --gt and --det are required")
	}
	return config, nil
}

// evaluate runs the evaluation and writes the report to config.Output, or
// to stdout when it is empty. The summary goes to stdout, or to stderr when
// stdout carries the report.
func evaluate(ctx context.Context, config EvalConfig, stdout, stderr io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	runner := metric.Runner{
		GroundTruthDir: config.GroundTruthDir,
		DetectionDir:   config.DetectionDir,
		Threshold:      config.Threshold,
	}
	report, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	summaryOut := stdout
	if config.Output == "" {
		if err := report.WriteCSV(stdout, config.WithStatus); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		summaryOut = stderr
	} else {
		if err := saveReport(report, config.Output, config.WithStatus); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		fmt.Fprintf(stdout, "\nEvaluation completed. Report saved to: %s\n", config.Output)
	}

	printSummaryStats(summaryOut, report)
	return nil
}

func saveReport(report *metric.Report, path string, withStatus bool) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteCSV(f, withStatus); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printSummaryStats(w io.Writer, report *metric.Report) {
	s := report.Summary()
	if s.Files == 0 {
		fmt.Fprintf(w, "\nNo ground truth files found\n")
		return
	}

	fmt.Fprintf(w, "\n=== SUMMARY STATISTICS ===\n")
	fmt.Fprintf(w, "IoU Threshold: %g\n", report.Threshold)
	fmt.Fprintf(w, "Total Files: %d\n", s.Files)
	for _, st := range []metric.Status{
		metric.StatusOK,
		metric.StatusDegenerate,
		metric.StatusMissingDetection,
		metric.StatusMalformed,
		metric.StatusError,
	} {
		if n := s.ByStatus[st]; n > 0 {
			fmt.Fprintf(w, "  %s: %d\n", st, n)
		}
	}
	fmt.Fprintf(w, "Average Precision: %.3f\n", s.MeanPrecision)
	fmt.Fprintf(w, "Average Recall: %.3f\n", s.MeanRecall)
	fmt.Fprintf(w, "Average F-measure: %.3f\n", s.MeanFMeasure)
	fmt.Fprintf(w, "Overall True Positives: %d (of %d ground truth, %d detections)\n", s.TruePositive, s.NumGroundTruth, s.NumDetections)
	fmt.Fprintf(w, "Overall Precision: %.3f\n", s.Precision)
	fmt.Fprintf(w, "Overall Recall: %.3f\n", s.Recall)
	fmt.Fprintf(w, "Overall F-measure: %.3f\n", s.FMeasure)
}
