package metric

import (
	"gonum.org/v1/gonum/mat"

	"github.com/lehigh-university-libraries/textdet/pkg/geometry"
)

// IoUMatrix holds the IoU of every ground truth box (rows) against every
// detected box (columns).
type IoUMatrix struct {
	rows, cols int
	// nil when either side is empty; gonum does not allow zero-sized matrices.
	dense *mat.Dense
}

// NewIoUMatrix scores all gt×det pairs.
func NewIoUMatrix(gt, det []geometry.BoundingBox) *IoUMatrix {
	m := &IoUMatrix{rows: len(gt), cols: len(det)}
	if m.rows == 0 || m.cols == 0 {
		return m
	}

	m.dense = mat.NewDense(m.rows, m.cols, nil)
	for i, g := range gt {
		for j, d := range det {
			m.dense.Set(i, j, geometry.IoU(g, d))
		}
	}
	return m
}

func (m *IoUMatrix) Dims() (int, int) {
	return m.rows, m.cols
}

// At returns the IoU of ground truth box i and detection j.
func (m *IoUMatrix) At(i, j int) float64 {
	return m.dense.At(i, j)
}

// TruePositives counts the pairs whose IoU is strictly greater than
// threshold.
//
// Pairs are counted independently: one ground truth box overlapping two
// detections above the threshold contributes two true positives. No
// one-to-one assignment is made, so the count can exceed either box count.
func (m *IoUMatrix) TruePositives(threshold float64) int {
	if m.dense == nil {
		return 0
	}

	tp := 0
	for i := 0; i < m.rows; i++ {
		for _, v := range m.dense.RawRowView(i) {
			if v > threshold {
				tp++
			}
		}
	}
	return tp
}
