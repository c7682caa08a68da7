package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/lehigh-university-libraries/textdet/internal/utils"
	"github.com/lehigh-university-libraries/textdet/pkg/boxfile"
	"github.com/lehigh-university-libraries/textdet/pkg/components"
	"github.com/lehigh-university-libraries/textdet/pkg/detect"
	"github.com/lehigh-university-libraries/textdet/pkg/gcv"
	"github.com/lehigh-university-libraries/textdet/pkg/yandex"
)

// DetectConfig holds the parameters of a detection run. It can be loaded
// from a YAML run file with --config.
type DetectConfig struct {
	Images   string        `yaml:"images"`
	Out      string        `yaml:"out"`
	Detector string        `yaml:"detector"`
	Level    string        `yaml:"level"`
	Workers  int           `yaml:"workers"`
	Timeout  time.Duration `yaml:"timeout"`
}

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Run a text detector over images and write detection box files",
	Long: `Run a text detector over an image or a directory of images and write one
res_<image stem>.txt box file per image into --out, ready for "textdet eval".

Detectors:
  yandex      Yandex Cloud Vision (YC_OAUTH_TOKEN, YC_FOLDER_ID)
  gcv         Google Cloud Vision (application default credentials or GOOGLE_API_KEY)
  components  local connected component detector, boxes only

Example:
  textdet detect --images ./images --out ./yandex --detector yandex --level word --workers 4`,
	RunE: runDetect,
}

var (
	detectImages     string
	detectOut        string
	detectDetector   string
	detectLevel      string
	detectWorkers    int
	detectTimeout    time.Duration
	detectConfigPath string
)

var imageExts = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

func init() {
	RootCmd.AddCommand(detectCmd)

	detectCmd.Flags().StringVar(&detectImages, "images", "", "Image file or directory of images")
	detectCmd.Flags().StringVar(&detectOut, "out", "", "Directory for the res_*.txt box files")
	detectCmd.Flags().StringVar(&detectDetector, "detector", "components", "Detector to use: yandex, gcv, components")
	detectCmd.Flags().StringVar(&detectLevel, "level", string(detect.LevelWord), "Box granularity: word or line")
	detectCmd.Flags().IntVarP(&detectWorkers, "workers", "w", 1, "Number of images processed at once")
	detectCmd.Flags().DurationVar(&detectTimeout, "timeout", 2*time.Minute, "Timeout per image")
	detectCmd.Flags().StringVar(&detectConfigPath, "config", "", "YAML run file with the same parameters; flags given on the command line win")
}

func newDetectorRegistry() *detect.Registry {
	registry := detect.NewRegistry()
	registry.Register(yandex.NewDetector())
	registry.Register(gcv.New())
	registry.Register(components.New())
	return registry
}

func runDetect(cmd *cobra.Command, args []string) error {
	config, err := detectConfigFromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	d, err := newDetectorRegistry().Get(config.Detector)
	if err != nil {
		return err
	}

	written, err := runDetection(ctx, d, config)
	if err != nil {
		return utils.MaskSensitiveError(err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nDetection completed. %d box files saved to: %s\n", written, config.Out)
	return nil
}

func detectConfigFromFlags(flags *pflag.FlagSet) (DetectConfig, error) {
	config := DetectConfig{
		Detector: detectDetector,
		Level:    detectLevel,
		Workers:  detectWorkers,
		Timeout:  detectTimeout,
	}
	if detectConfigPath != "" {
		if err := loadYAMLConfig(detectConfigPath, &config); err != nil {
			return DetectConfig{}, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if detectConfigPath == "" || flagOverride(flags, "images") {
		config.Images = detectImages
	}
	if detectConfigPath == "" || flagOverride(flags, "out") {
		config.Out = detectOut
	}
	if flagOverride(flags, "detector") {
		config.Detector = detectDetector
	}
	if flagOverride(flags, "level") {
		config.Level = detectLevel
	}
	if flagOverride(flags, "workers") {
		config.Workers = detectWorkers
	}
	if flagOverride(flags, "timeout") {
		config.Timeout = detectTimeout
	}

	if config.Images == "" || config.Out == "" {
		return DetectConfig{}, fmt.Errorf("both --images and --out are required")
	}
	if config.Workers < 1 {
		return DetectConfig{}, fmt.Errorf("--workers must be at least 1, got %d", config.Workers)
	}
	return config, nil
}

// runDetection detects text in every image of config.Images with up to
// config.Workers images in flight. An image that fails is logged and
// skipped; the returned error then reports how many failed.
func runDetection(ctx context.Context, d detect.Detector, config DetectConfig) (int, error) {
	level, err := detect.ParseLevel(config.Level)
	if err != nil {
		return 0, err
	}
	dc := detect.Config{Detector: d.Name(), Level: level, Timeout: config.Timeout}
	if err := d.ValidateConfig(dc); err != nil {
		return 0, fmt.Errorf("invalid %s configuration: %w", d.Name(), err)
	}

	images, err := listImages(config.Images)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(config.Out, 0755); err != nil {
		return 0, fmt.Errorf("failed to create output directory: %w", err)
	}

	var written, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)
	for _, img := range images {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n, err := detectImage(gctx, d, dc, img, config.Out)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Error("Error detecting text", "image", img, "err", utils.MaskSensitiveError(err))
				failed.Add(1)
				return nil
			}
			slog.Info("Detected text", "image", filepath.Base(img), "boxes", n)
			written.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return int(written.Load()), err
	}
	if err := ctx.Err(); err != nil {
		return int(written.Load()), err
	}

	if n := failed.Load(); n > 0 {
		return int(written.Load()), fmt.Errorf("%d of %d images failed", n, len(images))
	}
	return int(written.Load()), nil
}

func detectImage(ctx context.Context, d detect.Detector, dc detect.Config, imagePath, outDir string) (int, error) {
	dets, err := d.Detect(ctx, dc, imagePath)
	if err != nil {
		return 0, err
	}
	out := filepath.Join(outDir, resultName(imagePath))
	if err := boxfile.WriteFile(out, detect.ToRecords(dets)); err != nil {
		return 0, err
	}
	return len(dets), nil
}

// resultName maps an image path to the detection file name eval looks for.
func resultName(imagePath string) string {
	base := filepath.Base(imagePath)
	return "res_" + strings.TrimSuffix(base, filepath.Ext(base)) + ".txt"
}

// listImages returns path itself when it is a file, otherwise the images
// directly inside it in name order.
func listImages(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var images []string
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		images = append(images, filepath.Join(path, e.Name()))
	}
	sort.Strings(images)
	if len(images) == 0 {
		return nil, fmt.Errorf("no images found in %s", path)
	}
	return images, nil
}

func isImage(name string) bool {
	return slices.Contains(imageExts, strings.ToLower(filepath.Ext(name)))
}
