package elevation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yakkun/ned-elevation-api/internal/gridfloat"
	"github.com/yakkun/ned-elevation-api/internal/tile"
)

// maxTileLoads bounds how many tiles one query may pull in: the point's own
// tile and up to three neighbours at a corner.
const maxTileLoads = 4

// ErrOutOfRange is returned for coordinates that are not on the globe.
var ErrOutOfRange = errors.New("coordinates out of range")

type Service struct {
	registry  *Registry
	workers   int
	startTime time.Time
	requests  uint64
	mu        sync.RWMutex
	log       logrus.FieldLogger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWorkers sets the number of goroutines used for height fields.
func WithWorkers(n int) ServiceOption {
	return func(s *Service) { s.workers = n }
}

// WithLogger sets the service logger.
func WithLogger(log logrus.FieldLogger) ServiceOption {
	return func(s *Service) { s.log = log }
}

// NewService answers queries from registry, loading tiles as queries need
// them.
func NewService(registry *Registry, opts ...ServiceOption) *Service {
	s := &Service{
		registry:  registry,
		startTime: time.Now(),
		log:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry is the tile registry behind the service.
func (s *Service) Registry() *Registry { return s.registry }

func (s *Service) count(n int) {
	s.mu.Lock()
	s.requests += uint64(n)
	s.mu.Unlock()
}

func checkPoint(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return fmt.Errorf("%w: %g, %g", ErrOutOfRange, lat, lon)
	}
	return nil
}

// GetElevation returns the interpolated height at a point. A gridfloat
// NoData error means the point has no valid samples nearby.
func (s *Service) GetElevation(ctx context.Context, lat, lon float64) (float64, error) {
	s.count(1)
	return s.elevation(ctx, lat, lon)
}

func (s *Service) elevation(ctx context.Context, lat, lon float64) (float64, error) {
	if err := checkPoint(lat, lon); err != nil {
		return 0, err
	}
	for i := 0; ; i++ {
		h, err := s.registry.InterpolatedValue(lat, lon)
		var missing *MissingTileError
		if !errors.As(err, &missing) || i == maxTileLoads {
			return h, err
		}
		if err := s.registry.Load(ctx, []tile.Code{missing.Code}); err != nil {
			return 0, err
		}
	}
}

type BatchPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type ElevationResult struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Elevation float64 `json:"elevation"`
}

// GetBatchElevations answers every point; points without data get
// NoDataHeight, any other failure aborts the batch.
func (s *Service) GetBatchElevations(ctx context.Context, points []BatchPoint) ([]ElevationResult, error) {
	s.count(len(points))

	results := make([]ElevationResult, len(points))
	for i, p := range points {
		elev, err := s.elevation(ctx, p.Lat, p.Lon)
		if gridfloat.IsNoData(err) {
			elev = NoDataHeight
		} else if err != nil {
			return nil, fmt.Errorf("point %d: %w", i, err)
		}
		results[i] = ElevationResult{Lat: p.Lat, Lon: p.Lon, Elevation: elev}
	}
	return results, nil
}

// HeightField loads every tile the grid touches, then populates it.
func (s *Service) HeightField(ctx context.Context, spec FieldSpec) (*Field, error) {
	s.count(1)

	codes, err := NeededTiles(spec, s.workers)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"tiles": len(codes), "cells": spec.Cells}).Debug("height field tiles")
	if err := s.registry.Load(ctx, codes); err != nil {
		return nil, err
	}
	return s.registry.HeightField(ctx, spec, s.workers)
}

// TileInfo describes a loaded tile.
type TileInfo struct {
	Name        string  `json:"name"`
	Code        int     `json:"code"`
	SmallMemory bool    `json:"small_memory"`
	Invalid     int     `json:"invalid"`
	NCols       int     `json:"ncols"`
	NRows       int     `json:"nrows"`
	West        float64 `json:"west"`
	East        float64 `json:"east"`
	South       float64 `json:"south"`
	North       float64 `json:"north"`
}

// Tiles lists the loaded tiles.
func (s *Service) Tiles() []TileInfo {
	var infos []TileInfo
	for _, c := range s.registry.Codes() {
		t, err := s.registry.Tile(c)
		if err != nil {
			continue
		}
		infos = append(infos, TileInfo{
			Name:        c.BaseFilename(),
			Code:        int(c),
			SmallMemory: t.SmallMemory(),
			Invalid:     t.InvalidCount(),
			NCols:       t.NCols,
			NRows:       t.NRows,
			West:        t.West,
			East:        t.East,
			South:       t.South,
			North:       t.North,
		})
	}
	return infos
}

type HealthStatus struct {
	Status        string  `json:"status"`
	MemoryMB      int     `json:"memory_mb"`
	Goroutines    int     `json:"goroutines"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	TotalRequests uint64  `json:"total_requests"`
	TilesLoaded   int     `json:"tiles_loaded"`
}

func (s *Service) GetHealth() HealthStatus {
	s.mu.RLock()
	requests := s.requests
	s.mu.RUnlock()

	return HealthStatus{
		Status:        "ok",
		MemoryMB:      getMemoryUsageMB(),
		Goroutines:    getGoroutineCount(),
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		TotalRequests: requests,
		TilesLoaded:   s.registry.Len(),
	}
}

func getMemoryUsageMB() int {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return int(m.Alloc / 1024 / 1024)
}

func getGoroutineCount() int {
	return runtime.NumGoroutine()
}
