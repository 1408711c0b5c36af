package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yakkun/ned-elevation-api/internal/elevation"
	"github.com/yakkun/ned-elevation-api/internal/tile"
)

var heightCmd = &cobra.Command{
	Use:   "height",
	Short: "Get terrain elevation at a location",
	Long: `Get the interpolated terrain elevation at a geographic coordinate,
fetching the tiles it needs.

Examples:
  nedelev height --lat 40.0 --lon -105.3
  nedelev height --lat 40.0 --lon -105.3 --small-memory`,
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, _ := cmd.Flags().GetFloat64("lat")
		lon, _ := cmd.Flags().GetFloat64("lon")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		registry := newRegistry(config, logger)
		defer registry.Close()
		service := elevation.NewService(registry, elevation.WithLogger(logger))

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		elev, err := service.GetElevation(ctx, lat, lon)
		if err != nil {
			return fmt.Errorf("failed to get height: %w", err)
		}

		code := tile.CodeFor(lat, lon)
		t, err := registry.Tile(code)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Location: %.6f, %.6f\n", lat, lon)
		fmt.Fprintf(out, "Elevation: %.2f meters\n", elev)
		fmt.Fprintf(out, "Tile: %s (%d)\n", code, code)
		fmt.Fprintf(out, "Quadrant: %s\n", t.Quadrant(lat, lon))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(heightCmd)

	heightCmd.Flags().Float64("lat", 0, "latitude (required)")
	heightCmd.Flags().Float64("lon", 0, "longitude (required)")
	heightCmd.Flags().Duration("timeout", 30*time.Minute, "time allowed for fetching and lookup")
	heightCmd.MarkFlagRequired("lat")
	heightCmd.MarkFlagRequired("lon")
}
