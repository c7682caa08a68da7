package geometry

import "image"

// Rect is an upright rectangle stored as origin plus size, the form cloud
// OCR responses and image crops use.
type Rect struct {
	X, Y          int
	Width, Height int
}

// RectFromPoints returns the envelope of pts. An empty slice gives the zero
// Rect.
func RectFromPoints(pts []image.Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

func (r Rect) XMax() int { return r.X + r.Width }
func (r Rect) YMax() int { return r.Y + r.Height }

func (r Rect) Area() int { return r.Width * r.Height }

// Center truncates toward the origin.
func (r Rect) Center() image.Point {
	return image.Pt(r.X+r.Width/2, r.Y+r.Height/2)
}

// Rectangle returns xmin, ymin, xmax, ymax.
func (r Rect) Rectangle() (int, int, int, int) {
	return r.X, r.Y, r.XMax(), r.YMax()
}

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.XMax(), r.YMax())
}

func (r Rect) Shift(dx, dy int) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// Expand grows r by border on every side, never moving the origin below 0.
func (r Rect) Expand(border int) Rect {
	return Rect{
		X:      max(0, r.X-border),
		Y:      max(0, r.Y-border),
		Width:  r.Width + 2*border,
		Height: r.Height + 2*border,
	}
}

// ExpandWithin is Expand with the resulting size capped at maxWidth and
// maxHeight, typically the image dimensions.
func (r Rect) ExpandWithin(border, maxWidth, maxHeight int) Rect {
	e := r.Expand(border)
	e.Width = min(e.Width, maxWidth)
	e.Height = min(e.Height, maxHeight)
	return e
}

// Quad returns the corners clockwise from the top left, the layout used by
// ground truth and detection files.
func (r Rect) Quad() [8]int {
	return [8]int{
		r.X, r.Y,
		r.XMax(), r.Y,
		r.XMax(), r.YMax(),
		r.X, r.YMax(),
	}
}

func (r Rect) BoundingBox() BoundingBox {
	return NewBoundingBox(r.Quad())
}
