package gcv

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/status"

	"github.com/lehigh-university-libraries/textdet/pkg/detect"
	"github.com/lehigh-university-libraries/textdet/pkg/geometry"
)

func poly(x0, y0, x1, y1 int32) *visionpb.BoundingPoly {
	return &visionpb.BoundingPoly{Vertices: []*visionpb.Vertex{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

func word(text string, x0, y0, x1, y1 int32) *visionpb.Word {
	w := &visionpb.Word{BoundingBox: poly(x0, y0, x1, y1)}
	for _, r := range text {
		w.Symbols = append(w.Symbols, &visionpb.Symbol{Text: string(r)})
	}
	return w
}

func sampleAnnotation() *visionpb.TextAnnotation {
	return &visionpb.TextAnnotation{Pages: []*visionpb.Page{{
		Blocks: []*visionpb.Block{{
			Paragraphs: []*visionpb.Paragraph{
				{
					BoundingBox: poly(5, 5, 120, 30),
					Words:       []*visionpb.Word{word("Hi", 5, 5, 40, 30), word("there", 50, 5, 120, 30)},
				},
				{
					BoundingBox: poly(5, 40, 60, 70),
					Words:       []*visionpb.Word{word("bye", 5, 40, 60, 70)},
				},
			},
		}},
	}}}
}

func TestDetections(t *testing.T) {
	words := Detections(sampleAnnotation(), detect.LevelWord)
	require.Len(t, words, 3)
	assert.Equal(t, "Hi", words[0].Text)
	assert.Equal(t, geometry.Rect{X: 50, Y: 5, Width: 70, Height: 25}, words[1].Box)

	paras := Detections(sampleAnnotation(), detect.LevelLine)
	require.Len(t, paras, 2)
	assert.Equal(t, "Hi there", paras[0].Text)
	assert.Equal(t, geometry.Rect{X: 5, Y: 40, Width: 55, Height: 30}, paras[1].Box)

	assert.Empty(t, Detections(nil, detect.LevelWord))
}

func TestPolyRectRotatedVertices(t *testing.T) {
	p := &visionpb.BoundingPoly{Vertices: []*visionpb.Vertex{
		{X: 100, Y: 50}, {X: 10, Y: 50}, {X: 10, Y: 20}, {X: 100, Y: 20},
	}}
	assert.Equal(t, geometry.Rect{X: 10, Y: 20, Width: 90, Height: 30}, polyRect(p))
}

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.png")
	require.NoError(t, os.WriteFile(path, []byte("png bytes"), 0o644))
	return path
}

func TestDetect(t *testing.T) {
	var got *visionpb.BatchAnnotateImagesRequest
	d := &Detector{annotate: func(_ context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		got = req
		return &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{
			{FullTextAnnotation: sampleAnnotation()},
		}}, nil
	}}

	dets, err := d.Detect(context.Background(), detect.Config{Level: detect.LevelWord}, writeImage(t))
	require.NoError(t, err)
	assert.Len(t, dets, 3)

	require.Len(t, got.GetRequests(), 1)
	assert.Equal(t, []byte("png bytes"), got.GetRequests()[0].GetImage().GetContent())
	assert.Equal(t, visionpb.Feature_DOCUMENT_TEXT_DETECTION, got.GetRequests()[0].GetFeatures()[0].GetType())
}

func TestDetectErrors(t *testing.T) {
	apiErr := &Detector{annotate: func(context.Context, *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{
			{Error: &status.Status{Code: 3, Message: "Bad image data"}},
		}}, nil
	}}
	_, err := apiErr.Detect(context.Background(), detect.Config{}, writeImage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad image data")

	rpcErr := &Detector{annotate: func(context.Context, *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return nil, errors.New("unavailable")
	}}
	_, err = rpcErr.Detect(context.Background(), detect.Config{}, writeImage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "annotate image")

	_, err = rpcErr.Detect(context.Background(), detect.Config{}, filepath.Join(t.TempDir(), "missing.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestValidateConfig(t *testing.T) {
	d := New()
	assert.Equal(t, "gcv", d.Name())
	assert.NoError(t, d.ValidateConfig(detect.Config{Level: detect.LevelLine}))
	assert.Error(t, d.ValidateConfig(detect.Config{Level: "symbol"}))
}
