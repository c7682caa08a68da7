package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/textdet/pkg/via"
)

var viaCmd = &cobra.Command{
	Use:   "via",
	Short: "Work with VGG Image Annotator CSV exports",
}

var viaCutCmd = &cobra.Command{
	Use:   "cut",
	Short: "Cut every annotated region out into its own image",
	Long: `Cut every annotated region of a VIA CSV export out of its image.

Rectangles are cropped, four point polygons are straightened with a
perspective warp and other polygons are masked and cropped to their bounds.
Each region is written as <image stem>-<region id><ext> in --out.

Example:
  textdet via cut --csv via_export.csv --images ./images --out ./regions --max-side 1024`,
	RunE: runViaCut,
}

var viaExportCmd = &cobra.Command{
	Use:   "export-gt",
	Short: "Write ground truth box files from a VIA CSV export",
	Long: `Write one gt_<image stem>.txt box file per image of a VIA CSV export, with
one line per region holding the clockwise corners of its bounding
rectangle followed by the region's text attribute, if any.

Example:
  textdet via export-gt --csv via_export.csv --out ./gt`,
	RunE: runViaExport,
}

var (
	viaCSVPath  string
	viaImageDir string
	viaOutDir   string
	viaMaxSide  int
)

func init() {
	RootCmd.AddCommand(viaCmd)
	viaCmd.AddCommand(viaCutCmd)
	viaCmd.AddCommand(viaExportCmd)

	viaCmd.PersistentFlags().StringVarP(&viaCSVPath, "csv", "c", "", "Path to the VIA CSV export (required)")
	viaCmd.PersistentFlags().StringVar(&viaOutDir, "out", "", "Output directory (required)")
	viaCutCmd.Flags().StringVar(&viaImageDir, "images", "./", "Directory holding the annotated images")
	viaCutCmd.Flags().IntVar(&viaMaxSide, "max-side", 0, "Shrink crops so neither side exceeds this many pixels (0 keeps full size)")

	for _, name := range []string{"csv", "out"} {
		if err := viaCmd.MarkPersistentFlagRequired(name); err != nil {
			panic(err)
		}
	}
}

func runViaCut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ds, err := via.ReadFile(viaCSVPath)
	if err != nil {
		return fmt.Errorf("failed to read VIA export: %w", err)
	}

	cutter := via.Cutter{ImageDir: viaImageDir, OutputDir: viaOutDir, MaxSide: viaMaxSide}
	written, err := cutter.Cut(ctx, ds)
	fmt.Fprintf(cmd.OutOrStdout(), "\nCut %d regions from %d images into: %s\n", written, ds.Len(), viaOutDir)
	return err
}

func runViaExport(cmd *cobra.Command, args []string) error {
	ds, err := via.ReadFile(viaCSVPath)
	if err != nil {
		return fmt.Errorf("failed to read VIA export: %w", err)
	}

	n, err := via.ExportGroundTruth(ds, viaOutDir)
	if err != nil {
		return fmt.Errorf("failed to export ground truth: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nWrote %d ground truth files to: %s\n", n, viaOutDir)
	return nil
}
