package yandex

import (
	"image"
	"strings"

	"github.com/lehigh-university-libraries/textdet/pkg/geometry"
)

// Document is the page/block/line/word tree of a text detection response
// with every bounding polygon reduced to an upright rectangle.
type Document struct {
	Pages []Page
}

type Page struct {
	Width, Height int
	Blocks        []Block
}

type Block struct {
	Box   geometry.Rect
	Lines []Line
}

type Line struct {
	Box   geometry.Rect
	Words []Word
}

type Word struct {
	Box        geometry.Rect
	Text       string
	Confidence float64
	Languages  []string
}

// Parse flattens every text detection result in resp into one Document.
func Parse(resp *Response) Document {
	var doc Document
	for _, meta := range resp.Results {
		for _, result := range meta.Results {
			if result.TextDetection == nil {
				continue
			}
			for _, p := range result.TextDetection.Pages {
				doc.Pages = append(doc.Pages, parsePage(p))
			}
		}
	}
	return doc
}

func parsePage(p RawPage) Page {
	page := Page{Width: int(p.Width), Height: int(p.Height)}
	for _, b := range p.Blocks {
		block := Block{Box: polygonRect(b.BoundingBox)}
		for _, l := range b.Lines {
			line := Line{Box: polygonRect(l.BoundingBox)}
			for _, w := range l.Words {
				word := Word{
					Box:        polygonRect(w.BoundingBox),
					Text:       w.Text,
					Confidence: w.Confidence,
				}
				for _, lang := range w.Languages {
					word.Languages = append(word.Languages, lang.LanguageCode)
				}
				line.Words = append(line.Words, word)
			}
			block.Lines = append(block.Lines, line)
		}
		page.Blocks = append(page.Blocks, block)
	}
	return page
}

// polygonRect reads vertices in the API's order: top left, bottom left,
// bottom right, top right. Shorter polygons use their envelope.
func polygonRect(p Polygon) geometry.Rect {
	v := p.Vertices
	if len(v) < 3 {
		pts := make([]image.Point, len(v))
		for i, vert := range v {
			pts[i] = image.Pt(int(vert.X), int(vert.Y))
		}
		return geometry.RectFromPoints(pts)
	}
	return geometry.Rect{
		X:      int(v[0].X),
		Y:      int(v[0].Y),
		Width:  int(v[2].X - v[0].X),
		Height: int(v[1].Y - v[0].Y),
	}
}

// Words returns every word in reading order.
func (d Document) Words() []Word {
	var words []Word
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			for _, l := range b.Lines {
				words = append(words, l.Words...)
			}
		}
	}
	return words
}

// Lines returns every line in reading order.
func (d Document) Lines() []Line {
	var lines []Line
	for _, p := range d.Pages {
		for _, b := range p.Blocks {
			lines = append(lines, b.Lines...)
		}
	}
	return lines
}

// Text joins the words of a line with spaces.
func (l Line) Text() string {
	words := make([]string, len(l.Words))
	for i, w := range l.Words {
		words[i] = w.Text
	}
	return strings.Join(words, " ")
}
