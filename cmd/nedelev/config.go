package main

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yakkun/ned-elevation-api/internal/elevation"
	"github.com/yakkun/ned-elevation-api/internal/fetch"
	"github.com/yakkun/ned-elevation-api/internal/memstat"
	"github.com/yakkun/ned-elevation-api/internal/tile"
)

type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		MaxHeaderBytes  int           `yaml:"max_header_bytes"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		MetricsInterval time.Duration `yaml:"metrics_interval"`
	} `yaml:"server"`
	Data struct {
		Directory         string   `yaml:"directory"`
		SmallMemory       bool     `yaml:"small_memory"`
		MemoryThresholdMB uint64   `yaml:"memory_threshold_mb"`
		Preload           []string `yaml:"preload"`
	} `yaml:"data"`
	Fetch struct {
		BaseURL string        `yaml:"base_url"`
		Timeout time.Duration `yaml:"timeout"`
		Retries uint64        `yaml:"retries"`
		Workers int           `yaml:"workers"`
	} `yaml:"fetch"`
	Performance struct {
		GOMAXPROCS int `yaml:"gomaxprocs"`
		Workers    int `yaml:"workers"`
	} `yaml:"performance"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func defaultConfig() *Config {
	config := &Config{}

	config.Server.Port = "8080"
	config.Server.ReadTimeout = 10 * time.Second
	config.Server.WriteTimeout = 5 * time.Minute
	config.Server.MaxHeaderBytes = 1 << 20
	config.Server.ShutdownTimeout = 30 * time.Second
	config.Server.MetricsInterval = time.Minute
	config.Data.Directory = "data"
	config.Data.MemoryThresholdMB = memstat.DefaultThreshold / 1000 / 1000
	config.Fetch.BaseURL = tile.DefaultRemoteDirectory
	config.Fetch.Timeout = 10 * time.Minute
	config.Fetch.Retries = 2
	config.Fetch.Workers = 4
	config.Performance.GOMAXPROCS = runtime.NumCPU()
	config.Log.Level = "info"
	config.Log.Format = "text"
	return config
}

// loadConfig reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(config); err != nil {
				return nil, fmt.Errorf("decoding %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	if port := os.Getenv("PORT"); port != "" {
		config.Server.Port = port
	}
	if dir := os.Getenv("NED_DATA_DIR"); dir != "" {
		config.Data.Directory = dir
	}
	if url := os.Getenv("NED_BASE_URL"); url != "" {
		config.Fetch.BaseURL = url
	}
	if v := os.Getenv("NED_SMALL_MEMORY"); v != "" {
		small, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("NED_SMALL_MEMORY: %w", err)
		}
		config.Data.SmallMemory = small
	}

	return config, nil
}

// applyFlags overrides config with the persistent flags the user set.
func applyFlags(cmd *cobra.Command, config *Config) {
	flags := cmd.Flags()
	if flags.Changed("data-dir") {
		config.Data.Directory, _ = flags.GetString("data-dir")
	}
	if flags.Changed("base-url") {
		config.Fetch.BaseURL, _ = flags.GetString("base-url")
	}
	if flags.Changed("small-memory") {
		config.Data.SmallMemory, _ = flags.GetBool("small-memory")
	}
	if flags.Changed("workers") {
		config.Performance.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("log-level") {
		config.Log.Level, _ = flags.GetString("log-level")
	}
}

func newLogger(config *Config) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(config.Log.Level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)

	switch config.Log.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", config.Log.Format)
	}
	return logger, nil
}

// newFetcher builds the tile fetcher described by config.
func newFetcher(config *Config, logger logrus.FieldLogger) *fetch.Fetcher {
	return fetch.New(fetch.Config{
		Dir:     config.Data.Directory,
		BaseURL: config.Fetch.BaseURL,
		Client:  newHTTPClient(config.Fetch.Timeout),
		Retries: config.Fetch.Retries,
		Workers: config.Fetch.Workers,
		Log:     logger,
	})
}

// newRegistry builds a registry that fetches tiles on demand and keeps them
// on disk when memory is short.
func newRegistry(config *Config, logger logrus.FieldLogger) *elevation.Registry {
	advisor := &memstat.Advisor{
		Threshold: config.Data.MemoryThresholdMB * 1000 * 1000,
		Force:     config.Data.SmallMemory,
		Log:       logger,
	}
	return elevation.NewRegistry(elevation.RegistryConfig{
		Fetcher: newFetcher(config, logger),
		Advisor: advisor,
		Log:     logger,
	})
}

// preloadCodes parses the configured tile names.
func preloadCodes(config *Config) ([]tile.Code, error) {
	codes := make([]tile.Code, 0, len(config.Data.Preload))
	for _, name := range config.Data.Preload {
		c, err := tile.ParseBaseFilename(name)
		if err != nil {
			return nil, err
		}
		codes = append(codes, c)
	}
	return codes, nil
}
