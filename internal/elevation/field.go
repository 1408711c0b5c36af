package elevation

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/yakkun/ned-elevation-api/internal/geodesy"
	"github.com/yakkun/ned-elevation-api/internal/gridfloat"
	"github.com/yakkun/ned-elevation-api/internal/tile"
)

// NoDataHeight marks a field cell whose height could not be interpolated.
const NoDataHeight = -9999

// FieldSpec describes a square grid of (2*Cells+1)^2 points centred on
// Centre, spaced Radius/Cells metres apart along both axes.
type FieldSpec struct {
	Centre geodesy.LatLong `json:"centre"`
	Radius float64         `json:"radius"`
	Cells  int             `json:"cells"`
	// AntennaHeight is added to the centre cell only.
	AntennaHeight float64 `json:"antenna_height"`
}

// CellSize is the spacing between neighbouring points in metres.
func (s FieldSpec) CellSize() float64 { return s.Radius / float64(s.Cells) }

// Validate rejects grids that cannot be laid out.
func (s FieldSpec) Validate() error {
	if s.Cells <= 0 {
		return fmt.Errorf("cells must be positive, got %d", s.Cells)
	}
	if !(s.Radius > 0) {
		return fmt.Errorf("radius must be positive, got %g", s.Radius)
	}
	if math.Abs(s.Centre.Lat) > 90 || math.Abs(s.Centre.Lon) > 180 {
		return fmt.Errorf("centre %g, %g out of range", s.Centre.Lat, s.Centre.Lon)
	}
	return nil
}

// point returns the location of the cell dx east and dy north of the centre
// and its distance from the centre.
func (s FieldSpec) point(dx, dy int) (geodesy.LatLong, float64) {
	d := math.Hypot(float64(dx), float64(dy)) * s.CellSize()
	if dx == 0 && dy == 0 {
		return s.Centre, 0
	}
	return geodesy.Destination(s.Centre.Lat, s.Centre.Lon, geodesy.BearingFromOffsets(dx, dy), d), d
}

// Field is a populated height grid. Heights[row][col] holds the
// curvature-referenced height of the point (col-Cells) cells east and
// (row-Cells) cells north of the centre, so row 0 is the southern edge.
type Field struct {
	Spec FieldSpec `json:"spec"`
	// CentreHeight is the raw interpolated height at the centre.
	CentreHeight float64     `json:"centre_height"`
	Heights      [][]float32 `json:"heights"`
	// MeanHeight averages the valid cells within Radius of the centre.
	// It and the range below are terrain only; the antenna height appears
	// in Heights at the centre cell and nowhere else.
	MeanHeight float64 `json:"mean_height"`
	MinHeight  float64 `json:"min_height"`
	MaxHeight  float64 `json:"max_height"`
	NoData     int     `json:"nodata"`
}

// At returns the height dx cells east and dy cells north of the centre.
func (f *Field) At(dx, dy int) float32 {
	return f.Heights[dy+f.Spec.Cells][dx+f.Spec.Cells]
}

// stripes calls fn for every row offset owned by worker w of n, so that
// rows are split between workers without overlap.
func stripes(cells, w, n int, fn func(dy int) error) error {
	for dy := -cells + w; dy <= cells; dy += n {
		if err := fn(dy); err != nil {
			return err
		}
	}
	return nil
}

func workerCount(workers, cells int) int {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if rows := 2*cells + 1; workers > rows {
		workers = rows
	}
	return workers
}

// NeededTiles lists the tiles covering every point of the grid, centre
// tile included, in ascending order.
func NeededTiles(spec FieldSpec, workers int) ([]tile.Code, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	workers = workerCount(workers, spec.Cells)

	var mu sync.Mutex
	set := map[tile.Code]bool{tile.CodeFor(spec.Centre.Lat, spec.Centre.Lon): true}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			local := make(map[tile.Code]bool)
			stripes(spec.Cells, w, workers, func(dy int) error {
				for dx := -spec.Cells; dx <= spec.Cells; dx++ {
					p, _ := spec.point(dx, dy)
					local[tile.CodeFor(p.Lat, p.Lon)] = true
				}
				return nil
			})
			mu.Lock()
			for c := range local {
				set[c] = true
			}
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	codes := make([]tile.Code, 0, len(set))
	for c := range set {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes, nil
}

// HeightField populates a Field from tiles already in the registry. Points
// without valid data get NoDataHeight; a point in a tile the registry does
// not hold aborts the whole field with a *MissingTileError.
func (r *Registry) HeightField(ctx context.Context, spec FieldSpec, workers int) (*Field, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	centre, err := r.InterpolatedValue(spec.Centre.Lat, spec.Centre.Lon)
	if err != nil {
		return nil, fmt.Errorf("centre height: %w", err)
	}

	n := spec.Cells
	size := 2*n + 1
	field := &Field{Spec: spec, CentreHeight: centre, Heights: make([][]float32, size)}
	for i := range field.Heights {
		field.Heights[i] = make([]float32, size)
	}

	workers = workerCount(workers, n)
	// per-worker partials; each worker owns its own slot and rows
	sums := make([]float64, workers)
	counts := make([]float64, workers)
	nodata := make([]int, workers)
	valid := make([][]float64, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		g.Go(func() error {
			return stripes(n, w, workers, func(dy int) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				row := field.Heights[dy+n]
				for dx := -n; dx <= n; dx++ {
					p, d := spec.point(dx, dy)
					raw, err := r.InterpolatedValue(p.Lat, p.Lon)
					if gridfloat.IsNoData(err) {
						r.cfg.Log.WithFields(logrus.Fields{"dx": dx, "dy": dy, "lat": p.Lat, "lon": p.Lon}).
							WithError(err).Debug("no height for field cell")
						row[dx+n] = NoDataHeight
						nodata[w]++
						continue
					}
					if err != nil {
						return fmt.Errorf("field cell %d,%d: %w", dx, dy, err)
					}

					h := geodesy.ReferencedHeight(raw, d)
					if dx == 0 && dy == 0 {
						row[dx+n] = float32(h + spec.AntennaHeight)
					} else {
						row[dx+n] = float32(h)
					}
					valid[w] = append(valid[w], h)
					if d <= spec.Radius {
						sums[w] += h
						counts[w]++
					}
				}
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range nodata {
		field.NoData += c
	}
	if total := floats.Sum(counts); total > 0 {
		field.MeanHeight = floats.Sum(sums) / total
	}
	var all []float64
	for _, v := range valid {
		all = append(all, v...)
	}
	if len(all) > 0 {
		field.MinHeight = floats.Min(all)
		field.MaxHeight = floats.Max(all)
	}

	r.cfg.Log.WithFields(logrus.Fields{
		"cells":  size * size,
		"nodata": field.NoData,
		"mean":   field.MeanHeight,
	}).Debug("height field populated")
	return field, nil
}
