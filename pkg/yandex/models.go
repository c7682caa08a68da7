package yandex

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// Response is the batchAnalyze reply. Only text detection is modelled.
type Response struct {
	Results []AnalyzeResult `json:"results"`
}

type AnalyzeResult struct {
	Results []FeatureResult `json:"results"`
	Error   *Status         `json:"error,omitempty"`
}

type FeatureResult struct {
	TextDetection *TextAnnotation `json:"textDetection,omitempty"`
	Error         *Status         `json:"error,omitempty"`
}

type Status struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type TextAnnotation struct {
	Pages []RawPage `json:"pages"`
}

type RawPage struct {
	Blocks []RawBlock `json:"blocks"`
	Width  Int        `json:"width"`
	Height Int        `json:"height"`
}

type RawBlock struct {
	BoundingBox Polygon   `json:"boundingBox"`
	Lines       []RawLine `json:"lines"`
}

type RawLine struct {
	BoundingBox Polygon   `json:"boundingBox"`
	Words       []RawWord `json:"words"`
	Confidence  float64   `json:"confidence"`
}

type RawWord struct {
	BoundingBox Polygon            `json:"boundingBox"`
	Text        string             `json:"text"`
	Confidence  float64            `json:"confidence"`
	Languages   []DetectedLanguage `json:"languages"`
}

type DetectedLanguage struct {
	LanguageCode string  `json:"languageCode"`
	Confidence   float64 `json:"confidence"`
}

type Polygon struct {
	Vertices []Vertex `json:"vertices"`
}

// Vertex coordinates are int64 in the API and therefore arrive as JSON
// strings. Omitted coordinates are zero.
type Vertex struct {
	X Int `json:"x"`
	Y Int `json:"y"`
}

// Int decodes a JSON number or a string holding one.
type Int int

func (i *Int) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*i = 0
		return nil
	}
	v, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	*i = Int(v)
	return nil
}

func (i Int) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.Itoa(int(i)))
}
