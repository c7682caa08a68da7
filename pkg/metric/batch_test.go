package metric

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unitSquare = "0,0,10,0,10,10,0,10\n"

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

func TestResolveDetection(t *testing.T) {
	tests := []struct {
		name     string
		detFiles []string
		gtName   string
		want     string
		found    bool
	}{
		{
			name:     "identical name wins",
			detFiles: []string{"gt_img1.txt", "img1.txt", "res_img1.txt"},
			gtName:   "gt_img1.txt",
			want:     "gt_img1.txt",
			found:    true,
		},
		{
			name:     "gt_ prefix stripped",
			detFiles: []string{"img1.txt", "res_img1.txt"},
			gtName:   "gt_img1.txt",
			want:     "img1.txt",
			found:    true,
		},
		{
			name:     "res_ prefix added",
			detFiles: []string{"res_img1.txt", "res_img2.txt"},
			gtName:   "gt_img1.txt",
			want:     "res_img1.txt",
			found:    true,
		},
		{
			name:     "res_ prefix without gt_ prefix",
			detFiles: []string{"res_page.txt"},
			gtName:   "page.txt",
			want:     "res_page.txt",
			found:    true,
		},
		{
			name:     "only the leading gt_ is stripped",
			detFiles: []string{"img_gt_1.txt"},
			gtName:   "gt_img_gt_1.txt",
			want:     "img_gt_1.txt",
			found:    true,
		},
		{
			name:     "nothing matches",
			detFiles: []string{"res_img2.txt"},
			gtName:   "gt_img1.txt",
			found:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			files := map[string]string{}
			for _, f := range tt.detFiles {
				files[f] = unitSquare
			}
			writeFiles(t, dir, files)

			got, ok := ResolveDetection(dir, tt.gtName)
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, filepath.Join(dir, tt.want), got)
			}
		})
	}
}

func TestResolveDetectionSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "img1.txt"), 0755))
	writeFiles(t, dir, map[string]string{"res_img1.txt": unitSquare})

	got, ok := ResolveDetection(dir, "gt_img1.txt")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "res_img1.txt"), got)
}

func TestListBoxFilesRegularOnly(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"gt_a.txt": unitSquare})
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.Symlink(filepath.Join(dir, "sub"), filepath.Join(dir, "gt_dirlink.txt")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "gt_a.txt"), filepath.Join(dir, "gt_filelink.txt")))
	require.NoError(t, os.Symlink(filepath.Join(dir, "missing"), filepath.Join(dir, "gt_dangling.txt")))

	names, err := listBoxFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"gt_a.txt", "gt_filelink.txt"}, names)
}

func TestEvaluateRowOutOfRangeCoordinate(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"gt.txt":  "0,0,4000000000,0,4000000000,4000000000,0,4000000000\n",
		"det.txt": "0,0,1,0,1,1,0,1\n",
	})

	row := EvaluateRow("img.jpg", filepath.Join(dir, "gt.txt"), filepath.Join(dir, "det.txt"), 0.5)
	assert.Equal(t, StatusMalformed, row.Status)
	assert.Equal(t, Metrics{}, row.Metrics)
	assert.Contains(t, row.Err, "outside")
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "img1.jpg", ImageName("gt_img1.txt"))
	assert.Equal(t, "page_01.jpg", ImageName("page_01.txt"))
	assert.Equal(t, "a.txt.b.jpg", ImageName("a.txt.b.txt"))
}

func TestRunnerRun(t *testing.T) {
	root := t.TempDir()
	gtDir := filepath.Join(root, "gt")
	detDir := filepath.Join(root, "det")

	writeFiles(t, gtDir, map[string]string{
		"gt_a.txt":     unitSquare,
		"gt_b.txt":     unitSquare + "50,50,60,50,60,60,50,60,text\n",
		"gt_c.txt":     unitSquare,
		"gt_d.txt":     "not,a,box\n",
		"gt_e.txt":     unitSquare,
		"notes.md":     "ignored",
		"gt_f.txt.bak": unitSquare,
	})
	writeFiles(t, detDir, map[string]string{
		"gt_a.txt":  unitSquare,
		"b.txt":     unitSquare,
		"res_d.txt": unitSquare,
		"res_e.txt": "",
	})
	require.NoError(t, os.Mkdir(filepath.Join(gtDir, "sub.txt"), 0755))

	report, err := Runner{GroundTruthDir: gtDir, DetectionDir: detDir, Threshold: 0.5}.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Rows, 5)

	byImage := map[string]Row{}
	var order []string
	for _, row := range report.Rows {
		byImage[row.ImageName] = row
		order = append(order, row.ImageName)
	}
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg"}, order)

	a := byImage["a.jpg"]
	assert.Equal(t, StatusOK, a.Status)
	assert.Equal(t, Metrics{TruePositive: 1, NumGroundTruth: 1, NumDetections: 1, Precision: 1, Recall: 1, FMeasure: 1}, a.Metrics)

	b := byImage["b.jpg"]
	assert.Equal(t, StatusOK, b.Status)
	assert.Equal(t, filepath.Join(detDir, "b.txt"), b.Detection)
	assert.Equal(t, 1, b.TruePositive)
	assert.Equal(t, 1.0, b.Precision)
	assert.Equal(t, 0.5, b.Recall)

	c := byImage["c.jpg"]
	assert.Equal(t, StatusMissingDetection, c.Status)
	assert.Equal(t, Metrics{}, c.Metrics)

	d := byImage["d.jpg"]
	assert.Equal(t, StatusMalformed, d.Status)
	assert.Equal(t, Metrics{}, d.Metrics)
	assert.NotEmpty(t, d.Err)

	e := byImage["e.jpg"]
	assert.Equal(t, StatusDegenerate, e.Status)
	assert.Equal(t, 1, e.NumGroundTruth)
	assert.Equal(t, 0, e.NumDetections)
	assert.Equal(t, 0.0, e.Recall)

	s := report.Summary()
	assert.Equal(t, 5, s.Files)
	assert.Equal(t, 2, s.ByStatus[StatusOK])
	assert.Equal(t, 1, s.ByStatus[StatusMissingDetection])
	assert.Equal(t, 1, s.ByStatus[StatusMalformed])
	assert.Equal(t, 1, s.ByStatus[StatusDegenerate])
	assert.InDelta(t, 1.0, s.MeanPrecision, 1e-12)
	assert.InDelta(t, 0.75, s.MeanRecall, 1e-12)
	assert.Equal(t, 2, s.TruePositive)
	assert.Equal(t, 4, s.NumGroundTruth)
	assert.Equal(t, 2, s.NumDetections)
	assert.InDelta(t, 1.0, s.Precision, 1e-12)
	assert.InDelta(t, 0.5, s.Recall, 1e-12)
}

func TestRunnerMissingDetectionCompletes(t *testing.T) {
	root := t.TempDir()
	gtDir := filepath.Join(root, "gt")
	detDir := filepath.Join(root, "det")
	writeFiles(t, gtDir, map[string]string{"gt_img1.txt": unitSquare})
	writeFiles(t, detDir, map[string]string{"res_img2.txt": unitSquare})

	report, err := Runner{GroundTruthDir: gtDir, DetectionDir: detDir, Threshold: 0.5}.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)

	row := report.Rows[0]
	assert.Equal(t, "img1.jpg", row.ImageName)
	assert.Equal(t, StatusMissingDetection, row.Status)
	assert.Equal(t, 0, row.TruePositive)
	assert.Equal(t, 0.0, row.Precision)
	assert.Equal(t, 0.0, row.Recall)
	assert.Equal(t, 0.0, row.FMeasure)
}

func TestRunnerErrors(t *testing.T) {
	root := t.TempDir()

	_, err := Runner{GroundTruthDir: filepath.Join(root, "nope"), DetectionDir: root, Threshold: 0.5}.Run(context.Background())
	assert.Error(t, err)

	_, err = Runner{GroundTruthDir: root, DetectionDir: root, Threshold: 2}.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidThreshold)

	writeFiles(t, root, map[string]string{"gt_a.txt": unitSquare})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Runner{GroundTruthDir: root, DetectionDir: root, Threshold: 0.5}.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReportWriteCSV(t *testing.T) {
	report := &Report{
		Threshold: 0.5,
		Rows: []Row{
			{ImageName: "a.jpg", Status: StatusOK, Metrics: Metrics{TruePositive: 1, Precision: 1, Recall: 0.5, FMeasure: 2.0 / 3.0}},
			{ImageName: "b.jpg", Status: StatusMissingDetection},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, false))
	assert.Equal(t,
		"image_name,true_positive,precision,recall,f_measure\n"+
			"a.jpg,1,1,0.5,0.6666666666666666\n"+
			"b.jpg,0,0,0,0\n",
		buf.String())

	buf.Reset()
	require.NoError(t, report.WriteCSV(&buf, true))
	assert.Equal(t,
		"image_name,true_positive,precision,recall,f_measure,status\n"+
			"a.jpg,1,1,0.5,0.6666666666666666,ok\n"+
			"b.jpg,0,0,0,0,missing_detection\n",
		buf.String())
}
