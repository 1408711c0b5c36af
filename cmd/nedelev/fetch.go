package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yakkun/ned-elevation-api/internal/tile"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [tile...]",
	Short: "Download and unpack tiles",
	Long: `Make sure the named tiles are present in the data directory,
downloading and unpacking archives as needed. Tiles are named like
n41w106; --lat/--lon adds the tile holding that point.

Examples:
  nedelev fetch n41w106 n41w105
  nedelev fetch --lat 40.5 --lon -105.5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var codes []tile.Code
		for _, name := range args {
			c, err := tile.ParseBaseFilename(name)
			if err != nil {
				return err
			}
			codes = append(codes, c)
		}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			codes = append(codes, tile.CodeFor(lat, lon))
		}
		if len(codes) == 0 {
			return fmt.Errorf("no tiles given")
		}

		f := newFetcher(config, logger)
		if err := f.EnsureTiles(cmd.Context(), codes); err != nil {
			return err
		}
		for _, c := range codes {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c, c.LocalHeaderFilename(f.Dir()), c.LocalDataFilename(f.Dir()))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().Float64("lat", 0, "latitude of a point in the tile")
	fetchCmd.Flags().Float64("lon", 0, "longitude of a point in the tile")
}
