// Package components is a local text detector. It binarizes the page, finds
// connected components of dark pixels, merges them into words and groups the
// words into lines. It returns boxes only, never text.
package components

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"math"
	"os"
	"sort"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/lehigh-university-libraries/textdet/pkg/detect"
	"github.com/lehigh-university-libraries/textdet/pkg/geometry"
)

type Options struct {
	// MaxSide downscales larger pages before detection. Zero disables it.
	MaxSide int
	// MergeRadius is the horizontal closing radius that joins letters.
	MergeRadius int
}

var DefaultOptions = Options{MaxSide: 2000, MergeRadius: 2}

type Detector struct {
	Options Options
}

func New() *Detector {
	return &Detector{Options: DefaultOptions}
}

func (d *Detector) Name() string {
	return "components"
}

func (d *Detector) ValidateConfig(config detect.Config) error {
	if _, err := detect.ParseLevel(string(config.Level)); err != nil {
		return err
	}
	if d.Options.MaxSide < 0 || d.Options.MergeRadius < 0 {
		return errors.New("components: MaxSide and MergeRadius must not be negative")
	}
	return nil
}

func (d *Detector) Detect(ctx context.Context, config detect.Config, imagePath string) ([]detect.Detection, error) {
	img, err := loadImage(imagePath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := DetectWords(img, d.Options)
	slog.Debug("Component word detection completed", "image", imagePath, "word_count", len(words), "image_size", fmt.Sprintf("%dx%d", img.Bounds().Dx(), img.Bounds().Dy()))

	var dets []detect.Detection
	if config.Level == detect.LevelLine {
		lines := groupWordsIntoLines(words)
		slog.Debug("Grouped words into lines", "image", imagePath, "line_count", len(lines))
		for _, l := range lines {
			dets = append(dets, detect.Detection{Box: l.Box})
		}
		return dets, nil
	}
	for _, w := range words {
		dets = append(dets, detect.Detection{Box: w})
	}
	return dets, nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return img, nil
}

// DetectWords returns word boxes in image coordinates, sorted top to bottom
// then left to right.
func DetectWords(img image.Image, opts Options) []geometry.Rect {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	scale := 1.0
	if opts.MaxSide > 0 && max(w, h) > opts.MaxSide {
		img = resize.Thumbnail(uint(opts.MaxSide), uint(opts.MaxSide), img, resize.Bilinear)
		scale = float64(w) / float64(img.Bounds().Dx())
	}

	mask, ok := binarize(img)
	if !ok {
		return nil
	}
	if opts.MergeRadius > 0 {
		mask = mask.closeHorizontal(opts.MergeRadius)
	}

	var components []geometry.Rect
	for _, c := range mask.components() {
		if isValidWordSize(c.Width, c.Height, mask.w, mask.h) {
			components = append(components, c)
		}
	}

	words := refineComponentsToWords(components)
	if scale != 1 {
		for i, r := range words {
			x, y := int(float64(r.X)*scale), int(float64(r.Y)*scale)
			words[i] = geometry.Rect{
				X:      x,
				Y:      y,
				Width:  min(int(math.Ceil(float64(r.Width)*scale)), w-x),
				Height: min(int(math.Ceil(float64(r.Height)*scale)), h-y),
			}.Shift(bounds.Min.X, bounds.Min.Y)
		}
	} else if bounds.Min != (image.Point{}) {
		for i := range words {
			words[i] = words[i].Shift(bounds.Min.X, bounds.Min.Y)
		}
	}
	return words
}

func isValidWordSize(w, h, imgWidth, imgHeight int) bool {
	minWidth, minHeight := 8, 10
	maxWidth := imgWidth / 2
	maxHeight := imgHeight / 5
	return w >= minWidth && h >= minHeight && w <= maxWidth && h <= maxHeight
}

func refineComponentsToWords(components []geometry.Rect) []geometry.Rect {
	if len(components) == 0 {
		return components
	}

	sort.SliceStable(components, func(i, j int) bool {
		if abs(components[i].Y-components[j].Y) < 10 {
			return components[i].X < components[j].X
		}
		return components[i].Y < components[j].Y
	})

	return mergeNearbyComponents(components)
}

func mergeNearbyComponents(components []geometry.Rect) []geometry.Rect {
	if len(components) <= 1 {
		return components
	}

	var merged []geometry.Rect
	group := []geometry.Rect{components[0]}

	for _, c := range components[1:] {
		if shouldMergeComponents(group[len(group)-1], c) {
			group = append(group, c)
			continue
		}
		merged = append(merged, envelope(group))
		group = []geometry.Rect{c}
	}
	return append(merged, envelope(group))
}

func shouldMergeComponents(a, b geometry.Rect) bool {
	horizontalGap := b.X - a.XMax()
	verticalOverlap := b.YMax() >= a.Y && b.Y <= a.YMax()
	maxGap := max(a.Height, b.Height) / 3
	return horizontalGap >= 0 && horizontalGap <= maxGap && verticalOverlap
}

func envelope(group []geometry.Rect) geometry.Rect {
	if len(group) == 1 {
		return group[0]
	}
	minX, minY := group[0].X, group[0].Y
	maxX, maxY := group[0].XMax(), group[0].YMax()
	for _, r := range group[1:] {
		minX = min(minX, r.X)
		minY = min(minY, r.Y)
		maxX = max(maxX, r.XMax())
		maxY = max(maxY, r.YMax())
	}
	return geometry.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

type line struct {
	Box   geometry.Rect
	Words []geometry.Rect
}

func groupWordsIntoLines(words []geometry.Rect) []line {
	if len(words) == 0 {
		return nil
	}

	words = append([]geometry.Rect(nil), words...)
	sort.SliceStable(words, func(i, j int) bool {
		if abs(words[i].Y-words[j].Y) < words[i].Height/2 {
			return words[i].X < words[j].X
		}
		return words[i].Y < words[j].Y
	})

	var lines []line
	var current []geometry.Rect
	for _, w := range words {
		if len(current) == 0 || wordsOnSameLine(current, w) {
			current = append(current, w)
			continue
		}
		lines = append(lines, line{Box: envelope(current), Words: current})
		current = []geometry.Rect{w}
	}
	return append(lines, line{Box: envelope(current), Words: current})
}

func wordsOnSameLine(current []geometry.Rect, w geometry.Rect) bool {
	if len(current) == 0 {
		return true
	}

	box := envelope(current)
	avgHeight := 0
	for _, c := range current {
		avgHeight += c.Height
	}
	avgHeight /= len(current)

	tolerance := avgHeight / 3
	return w.YMax() >= box.Y-tolerance && w.Y <= box.YMax()+tolerance
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// toGray renders img onto an 8-bit grayscale canvas with origin (0,0).
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
