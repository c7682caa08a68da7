package geometry

// MaxCoordinate bounds the absolute value of a corner coordinate. Within it
// a box side is at most 2^30, so areas and their sums fit in an int.
const MaxCoordinate = 1 << 29

// InRange reports whether v is a usable corner coordinate.
func InRange(v int) bool {
	return v >= -MaxCoordinate && v <= MaxCoordinate
}

// BoundingBox is the axis-aligned envelope of a quadrilateral given by four
// corner points. Rotation is not modelled: a tilted quad becomes the
// smallest upright rectangle containing it.
type BoundingBox struct {
	XMin, XMax int
	YMin, YMax int
	Width      int
	Height     int
	Area       int
}

// NewBoundingBox builds a box from x1,y1,x2,y2,x3,y3,x4,y4. The corners may
// come in any order.
func NewBoundingBox(coords [8]int) BoundingBox {
	b := BoundingBox{
		XMin: coords[0], XMax: coords[0],
		YMin: coords[1], YMax: coords[1],
	}
	for i := 2; i < len(coords); i += 2 {
		x, y := coords[i], coords[i+1]
		b.XMin = min(b.XMin, x)
		b.XMax = max(b.XMax, x)
		b.YMin = min(b.YMin, y)
		b.YMax = max(b.YMax, y)
	}
	b.Width = b.XMax - b.XMin
	b.Height = b.YMax - b.YMin
	b.Area = b.Width * b.Height
	return b
}

// Intersection returns the overlapping area of b and other.
//
// The overlap along an axis is the sum of both extents minus the extent of
// their hull; it is positive only when the boxes overlap on that axis.
func (b BoundingBox) Intersection(other BoundingBox) int {
	xOverlap := (b.Width + other.Width) - (max(b.XMax, other.XMax) - min(b.XMin, other.XMin))
	yOverlap := (b.Height + other.Height) - (max(b.YMax, other.YMax) - min(b.YMin, other.YMin))
	if xOverlap > 0 && yOverlap > 0 {
		return xOverlap * yOverlap
	}
	return 0
}

// Union returns the area covered by b or other.
func (b BoundingBox) Union(other BoundingBox) int {
	return b.Area + other.Area - b.Intersection(other)
}

// IoU returns intersection over union of a and b. Two degenerate boxes have
// an empty union; their IoU is 0.
func IoU(a, b BoundingBox) float64 {
	union := a.Union(b)
	if union == 0 {
		return 0
	}
	return float64(a.Intersection(b)) / float64(union)
}

// Quad returns the corners clockwise from the top left.
func (b BoundingBox) Quad() [8]int {
	return [8]int{
		b.XMin, b.YMin,
		b.XMax, b.YMin,
		b.XMax, b.YMax,
		b.XMin, b.YMax,
	}
}
