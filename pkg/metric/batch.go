package metric

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lehigh-university-libraries/textdet/pkg/boxfile"
)

const (
	groundTruthPrefix = "gt_"
	resultPrefix      = "res_"
	boxFileExt        = ".txt"
	imageExt          = ".jpg"
)

// Status says how a report row was produced.
type Status string

const (
	StatusOK               Status = "ok"
	StatusMissingDetection Status = "missing_detection"
	StatusMalformed        Status = "malformed"
	StatusDegenerate       Status = "degenerate"
	StatusError            Status = "error"
)

// Row is one line of the report, one per ground truth file.
type Row struct {
	ImageName   string
	GroundTruth string
	Detection   string
	Status      Status
	Err         string
	Metrics
}

type Report struct {
	Threshold float64
	Rows      []Row
}

// Runner evaluates every ground truth file in GroundTruthDir against its
// counterpart in DetectionDir.
type Runner struct {
	GroundTruthDir string
	DetectionDir   string
	Threshold      float64
}

// Run evaluates all pairs in file name order. Problems with a single pair
// become a row with a non-ok status; only an unreadable ground truth
// directory, an invalid threshold or ctx cancellation abort the run.
func (r Runner) Run(ctx context.Context) (*Report, error) {
	if err := ValidateThreshold(r.Threshold); err != nil {
		return nil, err
	}

	names, err := listBoxFiles(r.GroundTruthDir)
	if err != nil {
		return nil, errors.Wrap(err, "list ground truth")
	}
	slog.Info("Evaluating detections", "gt_dir", r.GroundTruthDir, "det_dir", r.DetectionDir, "files", len(names), "threshold", r.Threshold)

	report := &Report{Threshold: r.Threshold, Rows: make([]Row, 0, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Rows = append(report.Rows, r.evaluate(name))
	}

	return report, nil
}

func (r Runner) evaluate(name string) Row {
	gtPath := filepath.Join(r.GroundTruthDir, name)
	row := Row{
		ImageName:   ImageName(name),
		GroundTruth: gtPath,
	}

	detPath, ok := ResolveDetection(r.DetectionDir, name)
	if !ok {
		slog.Warn("Skipped ground truth with no matching detection file", "gt", gtPath, "det_dir", r.DetectionDir)
		row.Status = StatusMissingDetection
		return row
	}
	return EvaluateRow(row.ImageName, gtPath, detPath, r.Threshold)
}

// EvaluateRow scores one pair of box files and folds any error into the
// row's status.
func EvaluateRow(imageName, gtPath, detPath string, threshold float64) Row {
	row := Row{
		ImageName:   imageName,
		GroundTruth: gtPath,
		Detection:   detPath,
	}

	m, err := EvaluatePair(gtPath, detPath, threshold)
	switch {
	case err == nil:
		row.Status = StatusOK
		row.Metrics = m
		slog.Debug("Evaluated pair", "gt", gtPath, "det", detPath, "tp", m.TruePositive, "precision", m.Precision, "recall", m.Recall, "f_measure", m.FMeasure)
	case errors.Is(err, ErrDegenerateMetric):
		row.Status = StatusDegenerate
		row.Metrics = m
		row.Err = err.Error()
		slog.Warn("Undefined metric for pair", "gt", gtPath, "det", detPath, "err", err)
	case errors.Is(err, boxfile.ErrMalformedRecord):
		row.Status = StatusMalformed
		row.Err = err.Error()
		slog.Warn("Malformed box file", "gt", gtPath, "det", detPath, "err", err)
	default:
		row.Status = StatusError
		row.Err = err.Error()
		slog.Error("Error evaluating pair", "gt", gtPath, "det", detPath, "err", err)
	}

	return row
}

func listBoxFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), boxFileExt) {
			continue
		}
		// follow symlinks; directories, pipes and dangling links are skipped
		info, err := os.Stat(filepath.Join(dir, e.Name()))
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// DetectionCandidates lists the file names tried for a ground truth file,
// in priority order: the same name, the name without a leading "gt_", and
// that name with "res_" prepended.
func DetectionCandidates(gtName string) []string {
	stripped := strings.TrimPrefix(gtName, groundTruthPrefix)
	return []string{gtName, stripped, resultPrefix + stripped}
}

// ResolveDetection returns the first candidate that exists as a regular file
// in detDir.
func ResolveDetection(detDir, gtName string) (string, bool) {
	for _, candidate := range DetectionCandidates(gtName) {
		p := filepath.Join(detDir, candidate)
		info, err := os.Stat(p)
		if err == nil && info.Mode().IsRegular() {
			return p, true
		}
	}
	return "", false
}

// ImageName maps a ground truth file name to the image it annotates:
// gt_img_1.txt -> img_1.jpg.
func ImageName(gtName string) string {
	stem := strings.TrimSuffix(strings.TrimPrefix(gtName, groundTruthPrefix), boxFileExt)
	return stem + imageExt
}

var csvHeader = []string{"image_name", "true_positive", "precision", "recall", "f_measure"}

// WriteCSV writes one line per row. withStatus appends a status column.
func (r *Report) WriteCSV(w io.Writer, withStatus bool) error {
	cw := csv.NewWriter(w)

	header := csvHeader
	if withStatus {
		header = append(append([]string{}, csvHeader...), "status")
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, row := range r.Rows {
		record := []string{
			row.ImageName,
			strconv.Itoa(row.TruePositive),
			formatFloat(row.Precision),
			formatFloat(row.Recall),
			formatFloat(row.FMeasure),
		}
		if withStatus {
			record = append(record, string(row.Status))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Summary aggregates a report.
type Summary struct {
	Files    int
	ByStatus map[Status]int

	// Means over rows with StatusOK.
	MeanPrecision float64
	MeanRecall    float64
	MeanFMeasure  float64

	// Ratios of counts summed over every evaluated row (ok and degenerate).
	TruePositive   int
	NumGroundTruth int
	NumDetections  int
	Precision      float64
	Recall         float64
	FMeasure       float64
}

// Summary computes macro averages over ok rows and micro averages over all
// scored rows. Undefined ratios are left at 0.
func (r *Report) Summary() Summary {
	s := Summary{Files: len(r.Rows), ByStatus: map[Status]int{}}

	ok := 0
	for _, row := range r.Rows {
		s.ByStatus[row.Status]++
		switch row.Status {
		case StatusOK:
			ok++
			s.MeanPrecision += row.Precision
			s.MeanRecall += row.Recall
			s.MeanFMeasure += row.FMeasure
		case StatusDegenerate:
		default:
			continue
		}
		s.TruePositive += row.TruePositive
		s.NumGroundTruth += row.NumGroundTruth
		s.NumDetections += row.NumDetections
	}

	if ok > 0 {
		s.MeanPrecision /= float64(ok)
		s.MeanRecall /= float64(ok)
		s.MeanFMeasure /= float64(ok)
	}
	if s.NumDetections > 0 {
		s.Precision = float64(s.TruePositive) / float64(s.NumDetections)
	}
	if s.NumGroundTruth > 0 {
		s.Recall = float64(s.TruePositive) / float64(s.NumGroundTruth)
	}
	if s.Precision+s.Recall > 0 {
		s.FMeasure = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
	}

	return s
}
