package via

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"gonum.org/v1/gonum/mat"
)

// ErrEmptyRegion is returned when a region lies entirely outside its image.
var ErrEmptyRegion = errors.New("region does not overlap the image")

// Cutter writes every shaped region of a dataset as its own image.
type Cutter struct {
	ImageDir  string
	OutputDir string
	// MaxSide, when positive, shrinks crops so neither side exceeds it.
	MaxSide int
}

// Cut writes one image per region named <stem>-<region id><ext> and returns
// how many were written. A file whose image cannot be read, or a region that
// cannot be cropped, is logged and skipped; the returned error then reports
// how many failed.
func (c Cutter) Cut(ctx context.Context, ds *Dataset) (int, error) {
	if err := os.MkdirAll(c.OutputDir, 0755); err != nil {
		return 0, errors.Wrap(err, "create output directory")
	}

	written, failed := 0, 0
	for _, f := range ds.Files() {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		img, err := decodeImage(filepath.Join(c.ImageDir, f.Filename))
		if err != nil {
			slog.Error("Unable to read image", "file", f.Filename, "err", err)
			failed++
			continue
		}

		for _, r := range f.Regions {
			if r.Shape == nil {
				continue
			}
			if err := c.cutRegion(img, f.Filename, r); err != nil {
				slog.Error("Unable to cut region", "file", f.Filename, "region", r.ID, "err", err)
				failed++
				continue
			}
			written++
		}
	}

	slog.Info("Cut regions", "written", written, "failed", failed, "output", c.OutputDir)
	if failed > 0 {
		return written, errors.Errorf("%d images or regions could not be cut", failed)
	}
	return written, nil
}

func (c Cutter) cutRegion(img image.Image, filename string, r Region) error {
	crop, err := Crop(img, r.Shape)
	if err != nil {
		return err
	}
	if c.MaxSide > 0 {
		crop = resize.Thumbnail(uint(c.MaxSide), uint(c.MaxSide), crop, resize.Lanczos3)
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filepath.Base(filename), ext)
	if !canEncode(ext) {
		ext = ".png"
	}
	out := filepath.Join(c.OutputDir, fmt.Sprintf("%s-%d%s", stem, r.ID, ext))

	w, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := encodeImage(w, crop, ext); err != nil {
		w.Close()
		return errors.Wrap(err, out)
	}
	return w.Close()
}

// Crop extracts the pixels of shape from img. A rect is clipped to the image
// bounds. A polygon has everything outside it blacked out; a four point
// polygon is then warped to an upright rectangle, any other polygon is cut
// to its bounding box.
func Crop(img image.Image, shape Shape) (image.Image, error) {
	switch s := shape.(type) {
	case Rect:
		return cropRect(img, s.Bounds().Image())
	case Polygon:
		masked, err := maskPolygon(img, s.Points)
		if err != nil {
			return nil, err
		}
		if len(s.Points) == 4 {
			return warpQuad(masked, s.Points)
		}
		return masked, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedShape, "%T", shape)
	}
}

func cropRect(img image.Image, r image.Rectangle) (image.Image, error) {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return nil, ErrEmptyRegion
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst, nil
}

// maskPolygon returns the polygon's bounding box with pixels outside the
// polygon set to black. The result keeps image coordinates.
func maskPolygon(img image.Image, pts []image.Point) (*image.RGBA, error) {
	var env image.Rectangle
	for i, p := range pts {
		pr := image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))}
		if i == 0 {
			env = pr
		} else {
			env = env.Union(pr)
		}
	}
	env = env.Intersect(img.Bounds())
	if env.Empty() {
		return nil, ErrEmptyRegion
	}

	dst := image.NewRGBA(env)
	draw.Draw(dst, env, image.NewUniform(color.Black), image.Point{}, draw.Src)
	for y := env.Min.Y; y < env.Max.Y; y++ {
		for x := env.Min.X; x < env.Max.X; x++ {
			if insidePolygon(pts, x, y) {
				dst.Set(x, y, img.At(x, y))
			}
		}
	}
	return dst, nil
}

// insidePolygon reports whether (x, y) is inside pts or on one of its edges.
func insidePolygon(pts []image.Point, x, y int) bool {
	inside := false
	n := len(pts)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if onSegment(a, b, x, y) {
			return true
		}
		if (a.Y > y) != (b.Y > y) {
			cross := float64(b.X-a.X)*float64(y-a.Y)/float64(b.Y-a.Y) + float64(a.X)
			if float64(x) < cross {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(a, b image.Point, x, y int) bool {
	if (b.X-a.X)*(y-a.Y) != (b.Y-a.Y)*(x-a.X) {
		return false
	}
	return x >= min(a.X, b.X) && x <= max(a.X, b.X) && y >= min(a.Y, b.Y) && y <= max(a.Y, b.Y)
}

// orderCorners sorts four points as top-left, top-right, bottom-right,
// bottom-left.
func orderCorners(pts []image.Point) [4]image.Point {
	var tl, tr, br, bl image.Point
	minSum, maxSum := math.MaxInt, math.MinInt
	minDiff, maxDiff := math.MaxInt, math.MinInt
	for _, p := range pts {
		sum, diff := p.X+p.Y, p.Y-p.X
		if sum < minSum {
			minSum, tl = sum, p
		}
		if sum > maxSum {
			maxSum, br = sum, p
		}
		if diff < minDiff {
			minDiff, tr = diff, p
		}
		if diff > maxDiff {
			maxDiff, bl = diff, p
		}
	}
	return [4]image.Point{tl, tr, br, bl}
}

func dist(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}

// warpQuad maps the quadrilateral pts of src onto an upright rectangle whose
// sides are the longest opposite edges of the quad.
func warpQuad(src image.Image, pts []image.Point) (image.Image, error) {
	c := orderCorners(pts)
	width := int(math.Round(max(dist(c[2], c[3]), dist(c[1], c[0]))))
	height := int(math.Round(max(dist(c[1], c[2]), dist(c[0], c[3]))))
	if width < 1 || height < 1 {
		return nil, ErrEmptyRegion
	}

	dstCorners := [4][2]float64{
		{0, 0},
		{float64(width - 1), 0},
		{float64(width - 1), float64(height - 1)},
		{0, float64(height - 1)},
	}
	var srcCorners [4][2]float64
	for i, p := range c {
		srcCorners[i] = [2]float64{float64(p.X), float64(p.Y)}
	}

	// Solve for the mapping from output pixels back to source pixels.
	h, err := homography(dstCorners, srcCorners)
	if err != nil {
		return nil, errors.Wrap(err, "corners do not form a quadrilateral")
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			fx, fy := float64(x), float64(y)
			w := h[6]*fx + h[7]*fy + 1
			if w == 0 {
				continue
			}
			sx := int(math.Round((h[0]*fx + h[1]*fy + h[2]) / w))
			sy := int(math.Round((h[3]*fx + h[4]*fy + h[5]) / w))
			if image.Pt(sx, sy).In(bounds) {
				dst.Set(x, y, src.At(sx, sy))
			}
		}
	}
	return dst, nil
}

// homography returns h0..h7 of the projective transform taking each from
// point to the matching to point, with h8 fixed at 1.
func homography(from, to [4][2]float64) ([8]float64, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := from[i][0], from[i][1]
		u, v := to[i][0], to[i][1]
		a.SetRow(2*i, []float64{x, y, 1, 0, 0, 0, -u * x, -u * y})
		a.SetRow(2*i+1, []float64{0, 0, 0, x, y, 1, -v * x, -v * y})
		b.SetVec(2*i, u)
		b.SetVec(2*i+1, v)
	}

	var sol mat.VecDense
	var h [8]float64
	if err := sol.SolveVec(a, b); err != nil {
		return h, err
	}
	for i := range h {
		h[i] = sol.AtVec(i)
	}
	return h, nil
}

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return img, nil
}

func canEncode(ext string) bool {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

func encodeImage(w io.Writer, img image.Image, ext string) error {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 95})
	case ".gif":
		return gif.Encode(w, img, nil)
	case ".bmp":
		return bmp.Encode(w, img)
	case ".tif", ".tiff":
		return tiff.Encode(w, img, nil)
	default:
		return png.Encode(w, img)
	}
}
