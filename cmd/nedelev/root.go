package main

import (
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	config *Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "nedelev",
	Short: "Terrain heights from USGS NED 1/3 arc-second GridFloat tiles",
	Long: `nedelev answers terrain height queries from USGS National Elevation
Dataset tiles, downloading and unpacking them on first use.

It provides both CLI commands and an HTTP API for:
- Height lookup at a coordinate
- Curvature-referenced height fields around a point
- Tile download and inspection

Configuration is read from a YAML file, then environment variables, then
command-line flags, each overriding the one before.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := loadConfig(path)
		if err != nil {
			return err
		}
		applyFlags(cmd, c)

		l, err := newLogger(c)
		if err != nil {
			return err
		}
		config, logger = c, l
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "config/config.yaml", "path to config file")
	flags.StringP("data-dir", "d", "data", "directory holding tile files")
	flags.String("base-url", "", "remote directory holding tile archives")
	flags.Bool("small-memory", false, "read tiles from disk instead of loading them")
	flags.IntP("workers", "w", 0, "goroutines for height fields (0 = GOMAXPROCS)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}
