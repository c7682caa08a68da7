package yandex

import (
	"context"

	"github.com/lehigh-university-libraries/textdet/pkg/detect"
)

// Detector adapts the client to detect.Detector. Credentials come from the
// environment unless Config is set.
type Detector struct {
	Config *Config
}

func NewDetector() *Detector {
	return &Detector{}
}

func (d *Detector) Name() string {
	return "yandex"
}

func (d *Detector) config() Config {
	if d.Config != nil {
		return *d.Config
	}
	return ConfigFromEnv()
}

func (d *Detector) ValidateConfig(config detect.Config) error {
	if _, err := detect.ParseLevel(string(config.Level)); err != nil {
		return err
	}
	return d.config().Validate()
}

func (d *Detector) Detect(ctx context.Context, config detect.Config, imagePath string) ([]detect.Detection, error) {
	cfg := d.config()
	if config.Timeout > 0 {
		cfg.Timeout = config.Timeout
	}

	resp, err := New(cfg, nil).Recognize(ctx, imagePath)
	if err != nil {
		return nil, err
	}
	return Detections(Parse(resp), config.Level), nil
}

// Detections flattens doc into words, or lines when level is detect.LevelLine.
func Detections(doc Document, level detect.Level) []detect.Detection {
	var dets []detect.Detection
	if level == detect.LevelLine {
		for _, l := range doc.Lines() {
			dets = append(dets, detect.Detection{Box: l.Box, Text: l.Text()})
		}
		return dets
	}
	for _, w := range doc.Words() {
		dets = append(dets, detect.Detection{Box: w.Box, Text: w.Text})
	}
	return dets
}
