package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yakkun/ned-elevation-api/internal/elevation"
	"github.com/yakkun/ned-elevation-api/internal/handler"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP API server",
	Long: `Start an HTTP server that provides:
  - /elevation        height at ?lat=&lon=
  - /elevation/batch  heights for a POSTed list of points
  - /field            height field at ?lat=&lon=&radius=&cells=[&antenna=]
  - /tiles            loaded tiles
  - /health           health check`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			config.Server.Port, _ = cmd.Flags().GetString("port")
		}
		runtime.GOMAXPROCS(config.Performance.GOMAXPROCS)

		logger.Info("Starting elevation API server...")
		logger.WithField("dir", config.Data.Directory).Info("Tile directory")

		registry := newRegistry(config, logger)
		defer registry.Close()

		preload, err := preloadCodes(config)
		if err != nil {
			return err
		}
		if len(preload) > 0 {
			logger.WithField("tiles", len(preload)).Info("Preloading tiles")
			if err := registry.Load(cmd.Context(), preload); err != nil {
				logger.WithError(err).Fatal("Failed to preload tiles")
			}
		}

		service := elevation.NewService(registry,
			elevation.WithWorkers(config.Performance.Workers),
			elevation.WithLogger(logger))
		h := handler.NewHandler(service, logger)

		mux := http.NewServeMux()
		h.RegisterRoutes(mux)

		server := &http.Server{
			Addr:           ":" + config.Server.Port,
			Handler:        loggingMiddleware(logger, mux),
			ReadTimeout:    config.Server.ReadTimeout,
			WriteTimeout:   config.Server.WriteTimeout,
			MaxHeaderBytes: config.Server.MaxHeaderBytes,
		}

		if config.Server.MetricsInterval > 0 {
			go logMetrics(service, config.Server.MetricsInterval)
		}

		done := make(chan struct{})
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			<-quit
			logger.Info("Server is shutting down...")

			ctx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
			defer cancel()

			server.SetKeepAlivesEnabled(false)
			if err := server.Shutdown(ctx); err != nil {
				logger.WithError(err).Fatal("Could not gracefully shutdown the server")
			}
			close(done)
		}()

		logger.WithFields(logrus.Fields{
			"port":       config.Server.Port,
			"gomaxprocs": runtime.GOMAXPROCS(0),
		}).Info("Server is ready to handle requests")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatalf("Could not listen on :%s", config.Server.Port)
		}

		<-done
		logger.Info("Server stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "", "port to listen on (overrides config and PORT)")
}

func logMetrics(service *elevation.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		health := service.GetHealth()
		logger.WithFields(logrus.Fields{
			"status":     health.Status,
			"memory_mb":  health.MemoryMB,
			"goroutines": health.Goroutines,
			"uptime_s":   int(health.UptimeSeconds),
			"requests":   health.TotalRequests,
			"tiles":      health.TilesLoaded,
		}).Info("METRICS")
	}
}

func loggingMiddleware(logger logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(lw, r)

		logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      lw.statusCode,
			"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
			"remote_addr": r.RemoteAddr,
		}).Info("request")
	})
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lw *loggingResponseWriter) WriteHeader(code int) {
	lw.statusCode = code
	lw.ResponseWriter.WriteHeader(code)
}
