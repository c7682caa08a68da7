package components

import (
	"image"

	"github.com/lehigh-university-libraries/textdet/pkg/geometry"
)

// bitmap marks text pixels in row-major order.
type bitmap struct {
	w, h int
	px   []bool
}

func newBitmap(w, h int) *bitmap {
	return &bitmap{w: w, h: h, px: make([]bool, w*h)}
}

func (b *bitmap) at(x, y int) bool {
	return b.px[y*b.w+x]
}

func (b *bitmap) set(x, y int, v bool) {
	b.px[y*b.w+x] = v
}

// binarize thresholds img with Otsu's method, treating pixels at or below
// the threshold as text. It reports false for a page of a single gray level.
func binarize(img image.Image) (*bitmap, bool) {
	gray := toGray(img)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()

	var hist [256]int
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			hist[gray.GrayAt(x, y).Y]++
		}
	}
	t, ok := otsuThreshold(hist, w*h)
	if !ok {
		return nil, false
	}

	mask := newBitmap(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if gray.GrayAt(x, y).Y <= t {
				mask.set(x, y, true)
			}
		}
	}
	return mask, true
}

func otsuThreshold(hist [256]int, total int) (uint8, bool) {
	var sum float64
	for i, n := range hist {
		sum += float64(i * n)
	}

	var (
		sumB float64
		wB   int
		best float64
		t    uint8
	)
	for i := 0; i < 256; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * hist[i])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			t = uint8(i)
		}
	}
	return t, best > 0
}

// closeHorizontal dilates then erodes each row by r pixels, bridging gaps of
// up to 2r between letters without growing the blobs.
func (b *bitmap) closeHorizontal(r int) *bitmap {
	return b.rowFilter(r, func(n, _ int) bool { return n > 0 }).
		rowFilter(r, func(n, span int) bool { return n == span })
}

// rowFilter sets each pixel from the count of set pixels in the window
// [x-r, x+r] clipped to the row.
func (b *bitmap) rowFilter(r int, keep func(n, span int) bool) *bitmap {
	out := newBitmap(b.w, b.h)
	prefix := make([]int, b.w+1)
	for y := 0; y < b.h; y++ {
		for x := 0; x < b.w; x++ {
			prefix[x+1] = prefix[x]
			if b.at(x, y) {
				prefix[x+1]++
			}
		}
		for x := 0; x < b.w; x++ {
			lo, hi := max(0, x-r), min(b.w, x+r+1)
			out.set(x, y, keep(prefix[hi]-prefix[lo], hi-lo))
		}
	}
	return out
}

// components returns the bounding rectangle of every 8-connected group of
// set pixels, in scan order.
func (b *bitmap) components() []geometry.Rect {
	visited := make([]bool, len(b.px))
	var stack []image.Point
	var rects []geometry.Rect

	for y := 0; y < b.h; y++ {
		for x := 0; x < b.w; x++ {
			if visited[y*b.w+x] || !b.at(x, y) {
				continue
			}
			minX, minY, maxX, maxY := x, y, x, y
			visited[y*b.w+x] = true
			stack = append(stack[:0], image.Pt(x, y))

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				minX, maxX = min(minX, p.X), max(maxX, p.X)
				minY, maxY = min(minY, p.Y), max(maxY, p.Y)

				for dy := -1; dy <= 1; dy++ {
					for dx := -1; dx <= 1; dx++ {
						nx, ny := p.X+dx, p.Y+dy
						if nx < 0 || nx >= b.w || ny < 0 || ny >= b.h {
							continue
						}
						i := ny*b.w + nx
						if visited[i] || !b.px[i] {
							continue
						}
						visited[i] = true
						stack = append(stack, image.Pt(nx, ny))
					}
				}
			}
			rects = append(rects, geometry.Rect{X: minX, Y: minY, Width: maxX - minX + 1, Height: maxY - minY + 1})
		}
	}
	return rects
}
