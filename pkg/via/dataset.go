// Package via reads and writes VGG Image Annotator (VIA) CSV exports and
// cuts annotated regions out of the source images.
package via

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
)

var columns = []string{
	"filename",
	"file_size",
	"file_attributes",
	"region_count",
	"region_id",
	"region_shape_attributes",
	"region_attributes",
}

// Region is one annotated area of an image. Shape is nil for the
// placeholder row VIA emits for images without regions.
type Region struct {
	ID         int
	Shape      Shape
	Attributes map[string]any
}

// File groups the regions of one image.
type File struct {
	Filename    string
	Size        int64
	Attributes  map[string]any
	RegionCount int
	Regions     []Region
}

// AppendRegion adds a region with the next free id.
func (f *File) AppendRegion(shape Shape, attrs map[string]any) Region {
	id := 0
	if n := len(f.Regions); n > 0 {
		id = f.Regions[n-1].ID + 1
	}
	r := Region{ID: id, Shape: shape, Attributes: attrs}
	f.Regions = append(f.Regions, r)
	f.RegionCount++
	return r
}

// Dataset is a VIA project: files in the order they were first seen.
type Dataset struct {
	files []*File
	index map[string]*File
}

func NewDataset() *Dataset {
	return &Dataset{index: make(map[string]*File)}
}

// ReadFile loads a VIA CSV export.
func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ds := NewDataset()
	if err := ds.Read(f); err != nil {
		return nil, errors.Wrap(err, path)
	}
	return ds, nil
}

// Read adds every row of a VIA CSV export to d. Rows for the same filename
// are merged into one File.
func (d *Dataset) Read(r io.Reader) error {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "read header")
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range columns {
		if _, ok := col[name]; !ok {
			return errors.Errorf("missing column %q", name)
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		line++
		if err != nil {
			return errors.Wrapf(err, "row %d", line)
		}
		if err := d.addRow(record, col); err != nil {
			return errors.Wrapf(err, "row %d", line)
		}
	}
}

func (d *Dataset) addRow(record []string, col map[string]int) error {
	field := func(name string) string { return record[col[name]] }

	size, err := strconv.ParseInt(field("file_size"), 10, 64)
	if err != nil {
		return errors.Wrap(err, "file_size")
	}
	regionCount, err := strconv.Atoi(field("region_count"))
	if err != nil {
		return errors.Wrap(err, "region_count")
	}
	regionID, err := strconv.Atoi(field("region_id"))
	if err != nil {
		return errors.Wrap(err, "region_id")
	}
	fileAttrs, err := decodeAttributes(field("file_attributes"))
	if err != nil {
		return errors.Wrap(err, "file_attributes")
	}
	shape, err := parseShape(field("region_shape_attributes"))
	if err != nil {
		return err
	}
	regionAttrs, err := decodeAttributes(field("region_attributes"))
	if err != nil {
		return errors.Wrap(err, "region_attributes")
	}

	name := field("filename")
	f, ok := d.index[name]
	if !ok {
		f = &File{
			Filename:    name,
			Size:        size,
			Attributes:  fileAttrs,
			RegionCount: regionCount,
		}
		d.Add(f)
	}

	// VIA writes a single empty row for images without regions.
	if regionCount == 0 && shape == nil && len(regionAttrs) == 0 {
		return nil
	}
	f.Regions = append(f.Regions, Region{ID: regionID, Shape: shape, Attributes: regionAttrs})
	return nil
}

func decodeAttributes(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	attrs := map[string]any{}
	if err := json.Unmarshal([]byte(s), &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

func encodeAttributes(attrs map[string]any) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(attrs)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Add appends f, replacing any file with the same name in place.
func (d *Dataset) Add(f *File) {
	if existing, ok := d.index[f.Filename]; ok {
		*existing = *f
		return
	}
	d.index[f.Filename] = f
	d.files = append(d.files, f)
}

func (d *Dataset) Get(filename string) (*File, bool) {
	f, ok := d.index[filename]
	return f, ok
}

func (d *Dataset) Files() []*File {
	return d.files
}

func (d *Dataset) Len() int {
	return len(d.files)
}

// Write emits d as a VIA CSV export, one row per region.
func (d *Dataset) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}

	for _, f := range d.files {
		fileAttrs, err := encodeAttributes(f.Attributes)
		if err != nil {
			return errors.Wrapf(err, "%s: file_attributes", f.Filename)
		}
		base := []string{f.Filename, strconv.FormatInt(f.Size, 10), fileAttrs, strconv.Itoa(f.RegionCount)}

		if len(f.Regions) == 0 {
			if err := cw.Write(append(base, "0", "{}", "{}")); err != nil {
				return err
			}
			continue
		}

		for _, r := range f.Regions {
			shape, err := marshalShape(r.Shape)
			if err != nil {
				return errors.Wrapf(err, "%s: region %d", f.Filename, r.ID)
			}
			attrs, err := encodeAttributes(r.Attributes)
			if err != nil {
				return errors.Wrapf(err, "%s: region %d", f.Filename, r.ID)
			}
			row := append(append([]string{}, base...), strconv.Itoa(r.ID), shape, attrs)
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func (d *Dataset) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := d.Write(f); err != nil {
		f.Close()
		return errors.Wrap(err, path)
	}
	return f.Close()
}
