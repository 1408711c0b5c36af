package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yakkun/ned-elevation-api/internal/gridfloat"
	"github.com/yakkun/ned-elevation-api/internal/memstat"
	"github.com/yakkun/ned-elevation-api/internal/tile"
)

var infoCmd = &cobra.Command{
	Use:   "info [tile...]",
	Short: "Describe local tiles and available memory",
	Long: `Print the header values, bounds and invalid-cell count of each named
tile in the data directory, followed by the memory statistics used to
choose small-memory mode. Tiles are not downloaded.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, name := range args {
			c, err := tile.ParseBaseFilename(name)
			if err != nil {
				return err
			}
			dir := config.Data.Directory
			t, err := gridfloat.Open(c.LocalHeaderFilename(dir), c.LocalDataFilename(dir), true,
				gridfloat.WithLogger(logger.WithField("tile", name)))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Tile %s\n%s\n", c, t)
			t.Close()
		}

		advisor := &memstat.Advisor{
			Threshold: config.Data.MemoryThresholdMB * 1000 * 1000,
			Force:     config.Data.SmallMemory,
			Log:       logger,
		}
		avail, err := advisor.Available()
		if err != nil {
			fmt.Fprintf(out, "Memory statistics unavailable: %v\n", err)
			return nil
		}
		total, _ := advisor.Total()
		fmt.Fprintf(out, "Total memory        = %d MB\n", total/1000/1000)
		fmt.Fprintf(out, "Available memory    = %d MB\n", avail/1000/1000)
		fmt.Fprintf(out, "Small memory mode   = %t\n", advisor.SmallMemory())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
