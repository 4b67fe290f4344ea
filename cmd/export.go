package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/priority"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the ranked areas as GeoJSON or XLSX",
	Long:  "Writes the ranked areas to a GeoJSON FeatureCollection of points (areas without a surveyed location are placed at the study-area anchor and flagged) or to an XLSX workbook with a projection sheet.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		records, th, err := rankingInputs(cmd)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")

		filtered := priority.FilterPriorities(records, th)

		var buf bytes.Buffer
		switch strings.ToLower(format) {
		case "geojson":
			data, err := priority.ExportGeoJSON(filtered, anchor())
			if err != nil {
				return err
			}
			buf.Write(data)
			if outPath == "" {
				outPath = priority.ExportFilename
			}
		case "xlsx":
			if err := priority.ExportXLSX(filtered, &buf); err != nil {
				return err
			}
			if outPath == "" {
				outPath = priority.ExportXLSXFilename
			}
		default:
			return eris.Errorf("export: unsupported format %q (want geojson or xlsx)", format)
		}

		if outPath == "-" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
			return eris.Wrapf(err, "export: write %s", outPath)
		}

		zap.L().Info("export written",
			zap.String("path", outPath),
			zap.String("format", format),
			zap.Int("areas", len(filtered)),
		)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d areas to %s\n", len(filtered), outPath)
		return nil
	},
}

func init() {
	addThresholdFlags(exportCmd)
	exportCmd.Flags().String("format", "geojson", "output format: geojson or xlsx")
	exportCmd.Flags().StringP("out", "o", "", "output path, - for stdout (default greengap_priorities.<format>)")
	rootCmd.AddCommand(exportCmd)
}
