// Package boxfile reads and writes the plain-text box format shared by
// ground truth and detector output: one quadrilateral per line as
// x1,y1,x2,y2,x3,y3,x4,y4 followed by optional extra fields such as the
// transcription.
package boxfile

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/lehigh-university-libraries/textdet/pkg/geometry"
)

// ErrMalformedRecord is returned when a line does not start with eight
// integer fields.
var ErrMalformedRecord = errors.New("malformed record")

const coordFields = 8

// Record is one line of a box file.
type Record struct {
	Coords [8]int
	// Extra holds everything after the eighth field, commas included.
	Extra string
}

func (r Record) BoundingBox() geometry.BoundingBox {
	return geometry.NewBoundingBox(r.Coords)
}

// Parse reads every record from r. Blank lines are skipped. The first
// malformed line fails the whole read.
func Parse(r io.Reader) ([]Record, error) {
	var records []Record

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		record, err := parseLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNum)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan box file")
	}

	return records, nil
}

func parseLine(line string) (Record, error) {
	fields := strings.SplitN(strings.TrimSpace(line), ",", coordFields+1)
	if len(fields) < coordFields {
		return Record{}, errors.Wrapf(ErrMalformedRecord, "expected %d coordinates, got %d fields", coordFields, len(fields))
	}

	var record Record
	for i := 0; i < coordFields; i++ {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return Record{}, errors.Wrapf(ErrMalformedRecord, "field %d: %q is not an integer", i+1, fields[i])
		}
		if !geometry.InRange(v) {
			return Record{}, errors.Wrapf(ErrMalformedRecord, "field %d: %d is outside [-%d, %d]", i+1, v, geometry.MaxCoordinate, geometry.MaxCoordinate)
		}
		record.Coords[i] = v
	}
	if len(fields) > coordFields {
		record.Extra = fields[coordFields]
	}

	return record, nil
}

// ReadFile parses the box file at path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := Parse(f)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return records, nil
}

// BoundingBoxes converts records to boxes, keeping order.
func BoundingBoxes(records []Record) []geometry.BoundingBox {
	boxes := make([]geometry.BoundingBox, len(records))
	for i, r := range records {
		boxes[i] = r.BoundingBox()
	}
	return boxes
}

// Write emits records one per line.
func Write(w io.Writer, records []Record) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		parts := make([]string, 0, coordFields+1)
		for _, c := range r.Coords {
			parts = append(parts, strconv.Itoa(c))
		}
		if r.Extra != "" {
			parts = append(parts, r.Extra)
		}
		if _, err := bw.WriteString(strings.Join(parts, ",") + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes records to path, replacing any existing file.
func WriteFile(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := Write(f, records); err != nil {
		f.Close()
		return errors.Wrap(err, path)
	}
	return f.Close()
}
