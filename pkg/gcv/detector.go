// Package gcv detects text with Google Cloud Vision document text detection.
package gcv

import (
	"context"
	"image"
	"os"
	"strings"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/lehigh-university-libraries/textdet/internal/utils"
	"github.com/lehigh-university-libraries/textdet/pkg/detect"
	"github.com/lehigh-university-libraries/textdet/pkg/geometry"
)

type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// Detector calls the Vision API with application default credentials, or
// with GOOGLE_API_KEY when it is set.
type Detector struct {
	annotate annotateFunc
}

func New() *Detector {
	return &Detector{}
}

func (d *Detector) Name() string {
	return "gcv"
}

func (d *Detector) ValidateConfig(config detect.Config) error {
	_, err := detect.ParseLevel(string(config.Level))
	return err
}

func (d *Detector) Detect(ctx context.Context, config detect.Config, imagePath string) ([]detect.Detection, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}

	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
	}

	annotate := d.annotate
	if annotate == nil {
		var opts []option.ClientOption
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			opts = append(opts, option.WithAPIKey(key))
		}
		client, err := vision.NewImageAnnotatorClient(ctx, opts...)
		if err != nil {
			return nil, errors.Wrap(utils.MaskSensitiveError(err), "create vision client")
		}
		defer client.Close()
		annotate = func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
			return client.BatchAnnotateImages(ctx, req)
		}
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{{
			Image:    &visionpb.Image{Content: data},
			Features: []*visionpb.Feature{{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION}},
		}},
	}
	resp, err := annotate(ctx, req)
	if err != nil {
		return nil, errors.Wrap(utils.MaskSensitiveError(err), "annotate image")
	}

	var dets []detect.Detection
	for _, r := range resp.GetResponses() {
		if e := r.GetError(); e != nil && e.GetCode() != 0 {
			return nil, errors.Errorf("vision API error %d: %s", e.GetCode(), e.GetMessage())
		}
		dets = append(dets, Detections(r.GetFullTextAnnotation(), config.Level)...)
	}
	return dets, nil
}

// Detections returns one detection per word, or per paragraph when level is
// detect.LevelLine since Vision has no line level.
func Detections(ann *visionpb.TextAnnotation, level detect.Level) []detect.Detection {
	var dets []detect.Detection
	for _, page := range ann.GetPages() {
		for _, block := range page.GetBlocks() {
			for _, para := range block.GetParagraphs() {
				if level == detect.LevelLine {
					words := make([]string, 0, len(para.GetWords()))
					for _, w := range para.GetWords() {
						words = append(words, wordText(w))
					}
					dets = append(dets, detect.Detection{
						Box:  polyRect(para.GetBoundingBox()),
						Text: strings.Join(words, " "),
					})
					continue
				}
				for _, w := range para.GetWords() {
					dets = append(dets, detect.Detection{Box: polyRect(w.GetBoundingBox()), Text: wordText(w)})
				}
			}
		}
	}
	return dets
}

func wordText(w *visionpb.Word) string {
	var sb strings.Builder
	for _, s := range w.GetSymbols() {
		sb.WriteString(s.GetText())
	}
	return sb.String()
}

// polyRect takes the envelope of the polygon; Vision rotates vertex order
// with the text orientation.
func polyRect(p *visionpb.BoundingPoly) geometry.Rect {
	vs := p.GetVertices()
	pts := make([]image.Point, len(vs))
	for i, v := range vs {
		pts[i] = image.Pt(int(v.GetX()), int(v.GetY()))
	}
	return geometry.RectFromPoints(pts)
}
