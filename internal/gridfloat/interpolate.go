package gridfloat

import (
	"fmt"

	"github.com/yakkun/ned-elevation-api/internal/geodesy"
	"gonum.org/v1/gonum/floats"
)

// Quadrant locates a point within its cell relative to the cell centre.
type Quadrant int

const (
	// Q0 is within a metre of the centre; no interpolation is needed.
	Q0 Quadrant = iota
	Q1          // north-east
	Q2          // north-west
	Q3          // south-west
	Q4          // south-east
)

func (q Quadrant) String() string {
	return fmt.Sprintf("Q%d", int(q))
}

// centreRadius is the distance, in metres, inside which a point is treated
// as lying on its cell centre.
const centreRadius = 1.0

// neighbour offsets (row, col) of the three cells that, with the cell
// itself, surround a point in each quadrant. Rows increase southwards.
var neighbours = [...][3][2]int{
	Q1: {{0, 1}, {-1, 0}, {-1, 1}},
	Q2: {{0, -1}, {-1, 0}, {-1, -1}},
	Q3: {{0, -1}, {1, 0}, {1, -1}},
	Q4: {{0, 1}, {1, 0}, {1, 1}},
}

// Quadrant classifies the point against the centre of its cell.
func (t *Tile) Quadrant(lat, lon float64) Quadrant {
	cLat, cLon := t.CellCentre(t.IndexPair(lat, lon))
	if geodesy.Distance(cLat, cLon, lat, lon) < centreRadius {
		return Q0
	}

	switch {
	case lat >= cLat && lon >= cLon:
		return Q1
	case lat >= cLat && lon <= cLon:
		return Q2
	case lat <= cLat && lon <= cLon:
		return Q3
	}
	return Q4
}

// OutsideFunc resolves the value of a neighbouring cell that lies beyond
// the tile, given the neighbour's centre.
type OutsideFunc func(lat, lon float64) (float32, error)

// InterpolatedValue estimates the height at a point inside the tile.
// Neighbours beyond the tile's edge count as NODATA.
func (t *Tile) InterpolatedValue(lat, lon float64) (float64, error) {
	return t.Interpolate(lat, lon, nil)
}

// Interpolate estimates the height at a point inside the tile as the
// inverse-distance-weighted mean of the point's cell and the three cells
// adjoining it in the direction of its quadrant. Cells holding NODATA are
// left out. Neighbours beyond the tile edge are resolved with outside, or
// treated as NODATA when outside is nil.
func (t *Tile) Interpolate(lat, lon float64, outside OutsideFunc) (float64, error) {
	if !t.InTile(lat, lon) {
		return 0, newError(KindNoData, nil, "%f, %f is outside the tile", lat, lon)
	}

	row, col := t.IndexPair(lat, lon)
	q := t.Quadrant(lat, lon)

	if q == Q0 {
		v, err := t.CellValueAt(row, col)
		if err != nil {
			return 0, err
		}
		if !t.Valid(v) {
			return 0, newError(KindNoData, nil, "Q0: insufficient data when interpolating at %f, %f", lat, lon)
		}
		return float64(v), nil
	}

	cells := [4][2]int{{row, col}}
	for i, d := range neighbours[q] {
		cells[i+1] = [2]int{row + d[0], col + d[1]}
	}

	heights := make([]float64, 0, len(cells))
	weights := make([]float64, 0, len(cells))
	for _, c := range cells {
		v, cLat, cLon, err := t.neighbour(c[0], c[1], outside)
		if err != nil {
			return 0, err
		}
		if !t.Valid(v) {
			continue
		}
		heights = append(heights, float64(v))
		weights = append(weights, 1/geodesy.Distance(cLat, cLon, lat, lon))
	}

	sum := floats.Sum(weights)
	if sum == 0 {
		return 0, newError(KindNoData, nil, "%s: insufficient data when interpolating at %f, %f", q, lat, lon)
	}
	return floats.Dot(heights, weights) / sum, nil
}

func (t *Tile) neighbour(row, col int, outside OutsideFunc) (v float32, lat, lon float64, err error) {
	lat, lon = t.CellCentre(row, col)
	if row >= 0 && row < t.NRows && col >= 0 && col < t.NCols {
		v, err = t.CellValueAt(row, col)
		return v, lat, lon, err
	}
	if outside == nil {
		return float32(t.Sentinel()), lat, lon, nil
	}
	v, err = outside(lat, lon)
	return v, lat, lon, err
}
