package elevation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yakkun/ned-elevation-api/internal/fetch"
	"github.com/yakkun/ned-elevation-api/internal/gridfloat"
	"github.com/yakkun/ned-elevation-api/internal/tile"
)

// ErrMissingTile matches any *MissingTileError.
var ErrMissingTile = errors.New("tile not loaded")

// MissingTileError reports a lookup into a tile the registry does not hold.
type MissingTileError struct {
	Code tile.Code
}

func (e *MissingTileError) Error() string {
	return fmt.Sprintf("tile %s not loaded", e.Code)
}

func (e *MissingTileError) Is(target error) bool { return target == ErrMissingTile }

// MemoryAdvisor decides whether the next tile should stay on disk.
type MemoryAdvisor interface {
	SmallMemory() bool
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Fetcher supplies tile files. Without one, Load only opens tiles that
	// already exist in Dir.
	Fetcher *fetch.Fetcher
	Dir     string
	Advisor MemoryAdvisor
	Log     logrus.FieldLogger
}

// Registry maps tile codes to open tiles. Lookups may run concurrently with
// each other and with Load.
type Registry struct {
	cfg RegistryConfig

	mu    sync.RWMutex
	tiles map[tile.Code]*gridfloat.Tile

	// serialises tile opening so each code is opened once
	loadMu sync.Mutex
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Fetcher != nil && cfg.Dir == "" {
		cfg.Dir = cfg.Fetcher.Dir()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Registry{cfg: cfg, tiles: make(map[tile.Code]*gridfloat.Tile)}
}

// Load makes every code available: missing files are fetched in parallel,
// then tiles not yet held are opened one at a time, each with its own
// memory decision.
func (r *Registry) Load(ctx context.Context, codes []tile.Code) error {
	var needed []tile.Code
	for _, c := range uniqueCodes(codes) {
		if _, err := r.Tile(c); err != nil {
			needed = append(needed, c)
		}
	}
	if len(needed) == 0 {
		return nil
	}

	if r.cfg.Fetcher != nil {
		if err := r.cfg.Fetcher.EnsureTiles(ctx, needed); err != nil {
			return err
		}
	}

	r.loadMu.Lock()
	defer r.loadMu.Unlock()
	for _, c := range needed {
		if _, err := r.Tile(c); err == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		small := r.cfg.Advisor != nil && r.cfg.Advisor.SmallMemory()
		log := r.cfg.Log.WithFields(logrus.Fields{"tile": c.BaseFilename(), "small_memory": small})
		t, err := gridfloat.Open(c.LocalHeaderFilename(r.cfg.Dir), c.LocalDataFilename(r.cfg.Dir), small, gridfloat.WithLogger(log))
		if err != nil {
			return fmt.Errorf("loading tile %s: %w", c, err)
		}
		log.WithField("invalid", t.InvalidCount()).Info("tile loaded")
		r.Insert(c, t)
	}
	return nil
}

// Reset drops every tile and loads codes, the way a new plot starts afresh.
func (r *Registry) Reset(ctx context.Context, codes []tile.Code) error {
	if err := r.Clear(); err != nil {
		return err
	}
	return r.Load(ctx, codes)
}

// Insert adds or replaces a tile. A query still holding the replaced tile
// reopens its data file and completes.
func (r *Registry) Insert(code tile.Code, t *gridfloat.Tile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.tiles[code]; ok && old != t {
		old.Close()
	}
	r.tiles[code] = t
}

// Clear closes and removes every tile.
func (r *Registry) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for c, t := range r.tiles {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.tiles, c)
	}
	return errors.Join(errs...)
}

// Close releases every tile.
func (r *Registry) Close() error { return r.Clear() }

// Tile returns the tile for code, or a *MissingTileError.
func (r *Registry) Tile(code tile.Code) (*gridfloat.Tile, error) {
	r.mu.RLock()
	t, ok := r.tiles[code]
	r.mu.RUnlock()
	if !ok {
		return nil, &MissingTileError{Code: code}
	}
	return t, nil
}

// Len is the number of tiles held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tiles)
}

// Codes lists the tiles held, in ascending order.
func (r *Registry) Codes() []tile.Code {
	r.mu.RLock()
	codes := make([]tile.Code, 0, len(r.tiles))
	for c := range r.tiles {
		codes = append(codes, c)
	}
	r.mu.RUnlock()
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}

// CellValue returns the raw sample at a point from whichever tile holds it.
func (r *Registry) CellValue(lat, lon float64) (float32, error) {
	t, err := r.Tile(tile.CodeFor(lat, lon))
	if err != nil {
		return 0, err
	}
	return t.CellValue(lat, lon)
}

// InterpolatedValue returns the interpolated height at a point. Neighbouring
// cells beyond the point's tile are read from the adjoining tiles, which
// must already be loaded.
func (r *Registry) InterpolatedValue(lat, lon float64) (float64, error) {
	t, err := r.Tile(tile.CodeFor(lat, lon))
	if err != nil {
		return 0, err
	}
	return t.Interpolate(lat, lon, r.CellValue)
}

func uniqueCodes(codes []tile.Code) []tile.Code {
	seen := make(map[tile.Code]bool, len(codes))
	out := make([]tile.Code, 0, len(codes))
	for _, c := range codes {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
