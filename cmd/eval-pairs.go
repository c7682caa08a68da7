package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/textdet/pkg/metric"
)

// PairsEvalConfig stores configuration for scoring an explicit list of box
// file pairs
type PairsEvalConfig struct {
	CSVPath   string
	Dir       string
	Threshold float64
	TestRows  []int
	Output    string
}

var evalPairsCmd = &cobra.Command{
	Use:   "eval-pairs",
	Short: "Score explicitly listed pairs of ground truth and detection box files",
	Long: `Score pairs of box files listed in a CSV file, for detection results that do
not follow the gt_/res_ naming that "textdet eval" expects.

This command expects a CSV file with 2 columns:
  ground_truth,detection

Where:
  - ground_truth: path to a ground truth box file
  - detection: path to the detector's box file for the same image

Example:
  textdet eval-pairs --csv pairs.csv --dir ./fixtures --threshold 0.5`,
	RunE: runEvalPairs,
}

var (
	evalPairsCSVPath   string
	evalPairsDir       string
	evalPairsThreshold float64
	evalPairsRows      []int
	evalPairsOutput    string
)

func init() {
	RootCmd.AddCommand(evalPairsCmd)

	evalPairsCmd.Flags().StringVarP(&evalPairsCSVPath, "csv", "c", "", "Path to CSV file listing box file pairs (required)")
	evalPairsCmd.Flags().StringVar(&evalPairsDir, "dir", "./", "Prepend your CSV file paths with a directory")
	evalPairsCmd.Flags().Float64VarP(&evalPairsThreshold, "threshold", "t", 0.5, "IoU a detection must exceed to match a ground truth box")
	evalPairsCmd.Flags().IntSliceVar(&evalPairsRows, "rows", []int{}, "A list of row numbers to process")
	evalPairsCmd.Flags().StringVarP(&evalPairsOutput, "output", "o", "", "Output path for the CSV report (with a status column)")

	if err := evalPairsCmd.MarkFlagRequired("csv"); err != nil {
		panic(err)
	}
}

func runEvalPairs(cmd *cobra.Command, args []string) error {
	config := PairsEvalConfig{
		CSVPath:   evalPairsCSVPath,
		Dir:       evalPairsDir,
		Threshold: evalPairsThreshold,
		TestRows:  evalPairsRows,
		Output:    evalPairsOutput,
	}

	report, err := processPairsEval(config, cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("pair evaluation failed: %w", err)
	}

	if config.Output != "" {
		if err := saveReport(report, config.Output, true); err != nil {
			return fmt.Errorf("failed to save report: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\nPair evaluation completed. Report saved to: %s\n", config.Output)
	}
	printSummaryStats(cmd.OutOrStdout(), report)

	return nil
}

func processPairsEval(config PairsEvalConfig, w io.Writer) (*metric.Report, error) {
	if err := metric.ValidateThreshold(config.Threshold); err != nil {
		return nil, err
	}

	file, err := os.Open(config.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file is empty")
	}

	// Skip header row if present
	dataRows := records
	if strings.EqualFold(strings.TrimSpace(records[0][0]), "ground_truth") {
		dataRows = records[1:]
	}

	report := &metric.Report{Threshold: config.Threshold}
	for i, row := range dataRows {
		if len(config.TestRows) > 0 && !slices.Contains(config.TestRows, i) {
			slog.Debug("Skipping row", "row", i+1)
			continue
		}

		if len(row) < 2 {
			slog.Warn("Insufficient columns (expected 2: ground_truth, detection)", "row", i+1, "columns", len(row))
			continue
		}

		result := processPairsEvalRow(row, config)
		report.Rows = append(report.Rows, result)
		printRowResult(w, result)
	}

	if len(report.Rows) == 0 {
		return nil, fmt.Errorf("no rows were processed")
	}

	return report, nil
}

func processPairsEvalRow(row []string, config PairsEvalConfig) metric.Row {
	gtPath := filepath.Join(config.Dir, strings.TrimSpace(row[0]))
	detPath := filepath.Join(config.Dir, strings.TrimSpace(row[1]))
	return metric.EvaluateRow(metric.ImageName(filepath.Base(gtPath)), gtPath, detPath, config.Threshold)
}

func printRowResult(w io.Writer, result metric.Row) {
	fmt.Fprintf(w, "\n=== Results for %s ===\n", result.ImageName)
	fmt.Fprintf(w, "Ground Truth: %s\n", result.GroundTruth)
	fmt.Fprintf(w, "Detection: %s\n", result.Detection)
	fmt.Fprintf(w, "Status: %s\n", result.Status)
	if result.Err != "" {
		fmt.Fprintf(w, "Error: %s\n", result.Err)
	}
	fmt.Fprintf(w, "True Positives: %d\n", result.TruePositive)
	fmt.Fprintf(w, "Ground Truth Boxes: %d\n", result.NumGroundTruth)
	fmt.Fprintf(w, "Detected Boxes: %d\n", result.NumDetections)
	fmt.Fprintf(w, "Precision: %.3f\n", result.Precision)
	fmt.Fprintf(w, "Recall: %.3f\n", result.Recall)
	fmt.Fprintf(w, "F-measure: %.3f\n", result.FMeasure)
}
