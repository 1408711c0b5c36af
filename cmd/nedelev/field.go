package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yakkun/ned-elevation-api/internal/elevation"
	"github.com/yakkun/ned-elevation-api/internal/geodesy"
)

var fieldCmd = &cobra.Command{
	Use:   "field",
	Short: "Compute a curvature-referenced height field around a point",
	Long: `Fetch every tile a square grid around the point touches, then
populate the grid with heights referenced to the tangent plane at the
centre. Cells without data are written as -9999.

Examples:
  nedelev field --lat 40.0 --lon -105.3 --radius 20000 --cells 100
  nedelev field --lat 40.0 --lon -105.3 --radius 5000 --cells 50 --antenna 10 --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var spec elevation.FieldSpec
		spec.Centre.Lat, _ = cmd.Flags().GetFloat64("lat")
		spec.Centre.Lon, _ = cmd.Flags().GetFloat64("lon")
		spec.Radius, _ = cmd.Flags().GetFloat64("radius")
		spec.Cells, _ = cmd.Flags().GetInt("cells")
		spec.AntennaHeight, _ = cmd.Flags().GetFloat64("antenna")
		format, _ := cmd.Flags().GetString("format")
		if err := spec.Validate(); err != nil {
			return err
		}

		registry := newRegistry(config, logger)
		defer registry.Close()
		service := elevation.NewService(registry,
			elevation.WithWorkers(config.Performance.Workers),
			elevation.WithLogger(logger))

		field, err := service.HeightField(cmd.Context(), spec)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch format {
		case "json":
			return json.NewEncoder(out).Encode(field)
		case "grid":
			writeGrid(out, field)
		default:
			writeSummary(out, field)
		}
		return nil
	},
}

func writeSummary(w io.Writer, f *elevation.Field) {
	fmt.Fprintf(w, "Centre: %.6f, %.6f\n", f.Spec.Centre.Lat, f.Spec.Centre.Lon)
	fmt.Fprintf(w, "Centre height: %.2f meters\n", f.CentreHeight)
	fmt.Fprintf(w, "Cells: %d x %d, %.1f m apart\n", len(f.Heights), len(f.Heights), f.Spec.CellSize())
	fmt.Fprintf(w, "Mean height within %.0f m: %.2f meters\n", f.Spec.Radius, f.MeanHeight)
	fmt.Fprintf(w, "Range: %.2f .. %.2f meters\n", f.MinHeight, f.MaxHeight)
	fmt.Fprintf(w, "No-data cells: %d\n", f.NoData)
	edge := geodesy.Destination(f.Spec.Centre.Lat, f.Spec.Centre.Lon, 0, f.Spec.Radius)
	fmt.Fprintf(w, "Northern edge: %.6f, %.6f\n", edge.Lat, edge.Lon)
}

// writeGrid prints one line per row, northernmost first.
func writeGrid(w io.Writer, f *elevation.Field) {
	for row := len(f.Heights) - 1; row >= 0; row-- {
		for col, h := range f.Heights[row] {
			if col > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "%.2f", h)
		}
		fmt.Fprintln(w)
	}
}

func init() {
	rootCmd.AddCommand(fieldCmd)

	fieldCmd.Flags().Float64("lat", 0, "latitude of the centre (required)")
	fieldCmd.Flags().Float64("lon", 0, "longitude of the centre (required)")
	fieldCmd.Flags().Float64("radius", 10000, "distance from the centre to the grid edge in metres")
	fieldCmd.Flags().Int("cells", 100, "cells from the centre to the grid edge")
	fieldCmd.Flags().Float64("antenna", 0, "height added at the centre cell")
	fieldCmd.Flags().String("format", "summary", "output format: summary, grid or json")
	fieldCmd.MarkFlagRequired("lat")
	fieldCmd.MarkFlagRequired("lon")
}
