package via

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/lehigh-university-libraries/textdet/pkg/boxfile"
)

// ErrNameCollision is returned when two images map to the same ground
// truth file name.
var ErrNameCollision = errors.New("ground truth file name collision")

// Attribute keys read as the transcription of a region, in order.
var textAttributes = []string{"text", "transcription"}

// ToRecords converts the shaped regions of f to box records. Rects give
// their corners, four point polygons keep their points and larger polygons
// fall back to their bounding box.
func ToRecords(f *File) []boxfile.Record {
	var records []boxfile.Record
	for _, r := range f.Regions {
		var coords [8]int
		switch s := r.Shape.(type) {
		case Rect:
			coords = s.Bounds().Quad()
		case Polygon:
			if len(s.Points) == 4 {
				for i, p := range s.Points {
					coords[2*i], coords[2*i+1] = p.X, p.Y
				}
			} else {
				coords = s.Bounds().Quad()
			}
		default:
			continue
		}
		records = append(records, boxfile.Record{Coords: coords, Extra: regionText(r)})
	}
	return records
}

func regionText(r Region) string {
	for _, key := range textAttributes {
		if s, ok := r.Attributes[key].(string); ok {
			return s
		}
	}
	return ""
}

// GroundTruthName is the box file name for an image: img_1.jpg -> gt_img_1.txt.
func GroundTruthName(imageName string) string {
	base := filepath.Base(imageName)
	return "gt_" + strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
}

// ExportGroundTruth writes one box file per image of ds into dir and returns
// the number of files written. Images without regions get an empty file.
// Nothing is written when two images would share a file name.
func ExportGroundTruth(ds *Dataset, dir string) (int, error) {
	seen := make(map[string]string, ds.Len())
	for _, f := range ds.Files() {
		name := GroundTruthName(f.Filename)
		if prev, ok := seen[name]; ok {
			return 0, errors.Wrapf(ErrNameCollision, "%s and %s both map to %s", prev, f.Filename, name)
		}
		seen[name] = f.Filename
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, errors.Wrap(err, "create output directory")
	}

	for i, f := range ds.Files() {
		path := filepath.Join(dir, GroundTruthName(f.Filename))
		if err := boxfile.WriteFile(path, ToRecords(f)); err != nil {
			return i, errors.Wrapf(err, "export %s", f.Filename)
		}
	}
	return ds.Len(), nil
}
