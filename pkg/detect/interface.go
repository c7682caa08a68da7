// Package detect defines the text detector interface shared by the local and
// cloud detectors, and converts detections into the box file format.
package detect

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lehigh-university-libraries/textdet/pkg/boxfile"
	"github.com/lehigh-university-libraries/textdet/pkg/geometry"
)

// Level selects the granularity of the boxes a detector returns
type Level string

const (
	LevelWord Level = "word"
	LevelLine Level = "line"
)

var ErrUnknownLevel = errors.New("unknown detection level")

// ParseLevel accepts "word" and "line"; empty means word.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case "", LevelWord:
		return LevelWord, nil
	case LevelLine:
		return LevelLine, nil
	}
	return "", errors.Wrapf(ErrUnknownLevel, "%q", s)
}

// Config represents the configuration for a detector
type Config struct {
	Detector string
	Level    Level
	Timeout  time.Duration
}

// Detection is one detected text region
type Detection struct {
	Box geometry.Rect
	// Text is empty for detectors that only localize
	Text string
}

// Detector interface that all text detectors must implement
type Detector interface {
	// Detect finds text regions in the image at imagePath
	Detect(ctx context.Context, config Config, imagePath string) ([]Detection, error)
	// Name returns the detector's name
	Name() string
	// ValidateConfig validates the detector-specific configuration
	ValidateConfig(config Config) error
}

// ToRecords converts detections into box file records, keeping any
// recognized text as the trailing field with whitespace collapsed so each
// record stays on one line.
func ToRecords(dets []Detection) []boxfile.Record {
	records := make([]boxfile.Record, 0, len(dets))
	for _, d := range dets {
		records = append(records, boxfile.Record{Coords: d.Box.Quad(), Extra: strings.Join(strings.Fields(d.Text), " ")})
	}
	return records
}
