package via

import (
	"encoding/json"
	"image"
	"math"

	"github.com/pkg/errors"

	"github.com/lehigh-university-libraries/textdet/pkg/geometry"
)

// ErrUnsupportedShape is returned for VIA shapes other than rect and polygon.
var ErrUnsupportedShape = errors.New("unsupported region shape")

const (
	shapeRect    = "rect"
	shapePolygon = "polygon"
)

// Shape is the geometry of a region: either Rect or Polygon.
type Shape interface {
	Bounds() geometry.Rect
	isShape()
}

type Rect struct {
	X, Y          int
	Width, Height int
}

func (r Rect) Bounds() geometry.Rect {
	return geometry.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

func (Rect) isShape() {}

type Polygon struct {
	Points []image.Point
}

func (p Polygon) Bounds() geometry.Rect {
	return geometry.RectFromPoints(p.Points)
}

func (Polygon) isShape() {}

// shapeAttributes mirrors the region_shape_attributes JSON column.
type shapeAttributes struct {
	Name       string    `json:"name"`
	X          *float64  `json:"x,omitempty"`
	Y          *float64  `json:"y,omitempty"`
	Width      *float64  `json:"width,omitempty"`
	Height     *float64  `json:"height,omitempty"`
	AllPointsX []float64 `json:"all_points_x,omitempty"`
	AllPointsY []float64 `json:"all_points_y,omitempty"`
}

// parseShape decodes region_shape_attributes. An empty object yields a nil
// Shape.
func parseShape(data string) (Shape, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return nil, errors.Wrap(err, "decode region_shape_attributes")
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var attrs shapeAttributes
	if err := json.Unmarshal([]byte(data), &attrs); err != nil {
		return nil, errors.Wrap(err, "decode region_shape_attributes")
	}

	switch attrs.Name {
	case shapeRect:
		if attrs.X == nil || attrs.Y == nil || attrs.Width == nil || attrs.Height == nil {
			return nil, errors.Errorf("rect needs x, y, width and height: %s", data)
		}
		return Rect{
			X:      round(*attrs.X),
			Y:      round(*attrs.Y),
			Width:  round(*attrs.Width),
			Height: round(*attrs.Height),
		}, nil
	case shapePolygon:
		if len(attrs.AllPointsX) != len(attrs.AllPointsY) {
			return nil, errors.Errorf("polygon has %d x and %d y coordinates", len(attrs.AllPointsX), len(attrs.AllPointsY))
		}
		if len(attrs.AllPointsX) < 3 {
			return nil, errors.Errorf("polygon needs at least 3 points, got %d", len(attrs.AllPointsX))
		}
		pts := make([]image.Point, len(attrs.AllPointsX))
		for i := range pts {
			pts[i] = image.Pt(round(attrs.AllPointsX[i]), round(attrs.AllPointsY[i]))
		}
		return Polygon{Points: pts}, nil
	default:
		return nil, errors.Wrapf(ErrUnsupportedShape, "%q", attrs.Name)
	}
}

func marshalShape(s Shape) (string, error) {
	var v any
	switch s := s.(type) {
	case nil:
		return "{}", nil
	case Rect:
		v = struct {
			Name   string `json:"name"`
			X      int    `json:"x"`
			Y      int    `json:"y"`
			Width  int    `json:"width"`
			Height int    `json:"height"`
		}{shapeRect, s.X, s.Y, s.Width, s.Height}
	case Polygon:
		xs := make([]int, len(s.Points))
		ys := make([]int, len(s.Points))
		for i, p := range s.Points {
			xs[i], ys[i] = p.X, p.Y
		}
		v = struct {
			Name       string `json:"name"`
			AllPointsX []int  `json:"all_points_x"`
			AllPointsY []int  `json:"all_points_y"`
		}{shapePolygon, xs, ys}
	default:
		return "", errors.Wrapf(ErrUnsupportedShape, "%T", s)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func round(f float64) int {
	return int(math.Round(f))
}
