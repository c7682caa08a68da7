// Package metric scores text detection output against ground truth using
// box IoU, per file pair and across a directory of pairs.
package metric

import (
	"math"

	"github.com/pkg/errors"

	"github.com/lehigh-university-libraries/textdet/pkg/boxfile"
	"github.com/lehigh-university-libraries/textdet/pkg/geometry"
)

var (
	// ErrDegenerateMetric is returned when precision, recall or F-measure
	// would divide by zero.
	ErrDegenerateMetric = errors.New("degenerate metric")
	ErrInvalidThreshold = errors.New("invalid threshold")
)

// Metrics is the score of one ground truth / detection pair.
type Metrics struct {
	TruePositive   int
	NumGroundTruth int
	NumDetections  int
	Precision      float64
	Recall         float64
	FMeasure       float64
}

// ValidateThreshold accepts finite thresholds in [0, 1].
func ValidateThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return errors.Wrapf(ErrInvalidThreshold, "%v is outside [0, 1]", threshold)
	}
	return nil
}

// Compute scores det against gt.
//
// When a ratio is undefined the error wraps ErrDegenerateMetric and the
// returned Metrics still carries the counts plus whichever of precision and
// recall could be computed; undefined values stay 0.
func Compute(gt, det []geometry.BoundingBox, threshold float64) (Metrics, error) {
	m := Metrics{
		TruePositive:   NewIoUMatrix(gt, det).TruePositives(threshold),
		NumGroundTruth: len(gt),
		NumDetections:  len(det),
	}

	switch {
	case m.NumDetections == 0 && m.NumGroundTruth == 0:
		return m, errors.Wrap(ErrDegenerateMetric, "no ground truth and no detections")
	case m.NumDetections == 0:
		return m, errors.Wrap(ErrDegenerateMetric, "precision: no detections")
	case m.NumGroundTruth == 0:
		return m, errors.Wrap(ErrDegenerateMetric, "recall: no ground truth")
	}

	m.Precision = float64(m.TruePositive) / float64(m.NumDetections)
	m.Recall = float64(m.TruePositive) / float64(m.NumGroundTruth)
	if m.Precision+m.Recall == 0 {
		return m, errors.Wrap(ErrDegenerateMetric, "f-measure: precision and recall are both 0")
	}
	m.FMeasure = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)

	return m, nil
}

// EvaluatePair reads a ground truth file and a detection file and scores
// them. Parse failures wrap boxfile.ErrMalformedRecord.
func EvaluatePair(gtPath, detPath string, threshold float64) (Metrics, error) {
	gt, err := boxfile.ReadFile(gtPath)
	if err != nil {
		return Metrics{}, errors.Wrap(err, "read ground truth")
	}
	det, err := boxfile.ReadFile(detPath)
	if err != nil {
		return Metrics{}, errors.Wrap(err, "read detections")
	}

	return Compute(boxfile.BoundingBoxes(gt), boxfile.BoundingBoxes(det), threshold)
}
