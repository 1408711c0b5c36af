package gridfloat_test

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/yakkun/ned-elevation-api/internal/gridfloat"
	"github.com/yakkun/ned-elevation-api/internal/gridfloat/gridfloattest"
)

func TestQuadrant(t *testing.T) {
	tile := scenarioTile(t, false)
	lat, lon := tile.CellCentre(1, 1)
	d := tile.CellSize / 4

	tests := []struct {
		name     string
		lat, lon float64
		want     gridfloat.Quadrant
	}{
		{"centre", lat, lon, gridfloat.Q0},
		{"within a metre", lat + 0.000005, lon - 0.000005, gridfloat.Q0},
		{"north-east", lat + d, lon + d, gridfloat.Q1},
		{"north-west", lat + d, lon - d, gridfloat.Q2},
		{"south-west", lat - d, lon - d, gridfloat.Q3},
		{"south-east", lat - d, lon + d, gridfloat.Q4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tile.Quadrant(tt.lat, tt.lon); got != tt.want {
				t.Errorf("Quadrant() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInterpolatedValueAtCentre(t *testing.T) {
	values := rampValues(6, 6)
	values[14] = nodata
	for _, sm := range []bool{false, true} {
		tile := openTile(t, gridfloattest.Header(6, 6, -106, 40, 1.0/6), values, sm)
		for r := 0; r < 6; r++ {
			for c := 0; c < 6; c++ {
				want, _ := tile.CellValueAt(r, c)
				lat, lon := tile.CellCentre(r, c)
				got, err := tile.InterpolatedValue(lat, lon)
				if !tile.Valid(want) {
					if !gridfloat.IsNoData(err) {
						t.Errorf("(%d,%d): NODATA centre gave %v, %v", r, c, got, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("(%d,%d): %v", r, c, err)
				}
				if got != float64(want) {
					t.Errorf("(%d,%d): InterpolatedValue = %v, want exactly %v", r, c, got, want)
				}
			}
		}
	}
}

func TestScenario(t *testing.T) {
	for _, sm := range []bool{false, true} {
		tile := scenarioTile(t, sm)

		lat, lon := tile.CellCentre(1, 1)
		got, err := tile.InterpolatedValue(lat, lon)
		if err != nil || got != 1000 {
			t.Errorf("centre of (1,1) = %v, %v; want 1000", got, err)
		}

		// the corner shared by (0,0), (0,1), (1,0) and (1,1)
		corner := [2]float64{lat + tile.CellSize/2, lon - tile.CellSize/2}
		got, err = tile.InterpolatedValue(corner[0], corner[1])
		if err != nil {
			t.Fatalf("corner: %v", err)
		}
		if math.Abs(got-1000) > 1e-9 {
			t.Errorf("corner = %v, want 1000", got)
		}
	}
}

// Each quadrant's neighbourhood includes the NODATA cell (2,2); all of them
// must leave it out.
func TestInterpolationFiltersNoDataInEveryQuadrant(t *testing.T) {
	values := gridfloattest.Fill(25, 1000)
	values[2*5+2] = nodata

	tests := []struct {
		row, col int
		dlat     float64
		dlon     float64
		want     gridfloat.Quadrant
	}{
		{3, 1, +1, +1, gridfloat.Q1},
		{3, 3, +1, -1, gridfloat.Q2},
		{1, 3, -1, -1, gridfloat.Q3},
		{1, 1, -1, +1, gridfloat.Q4},
	}

	for _, sm := range []bool{false, true} {
		tile := openTile(t, gridfloattest.Header(5, 5, -106, 40, 0.1), values, sm)
		for _, tt := range tests {
			t.Run(tt.want.String(), func(t *testing.T) {
				lat, lon := tile.CellCentre(tt.row, tt.col)
				lat += tt.dlat * tile.CellSize / 4
				lon += tt.dlon * tile.CellSize / 4

				if q := tile.Quadrant(lat, lon); q != tt.want {
					t.Fatalf("Quadrant() = %v, want %v", q, tt.want)
				}
				got, err := tile.InterpolatedValue(lat, lon)
				if err != nil {
					t.Fatalf("InterpolatedValue() error = %v", err)
				}
				if math.Abs(got-1000) > 1e-9 {
					t.Errorf("InterpolatedValue() = %v, want 1000", got)
				}
			})
		}
	}
}

func TestInterpolationWeights(t *testing.T) {
	// two valid cells in a Q1 neighbourhood: the result lies between them and
	// nearer the closer cell
	values := gridfloattest.Fill(9, nodata)
	values[1*3+1] = 100 // the query cell
	values[1*3+2] = 200 // its eastern neighbour
	tile := openTile(t, gridfloattest.Header(3, 3, -106, 40, 0.1), values, false)

	lat, lon := tile.CellCentre(1, 1)
	got, err := tile.InterpolatedValue(lat+0.01, lon+0.01)
	if err != nil {
		t.Fatal(err)
	}
	if got <= 100 || got >= 150 {
		t.Errorf("InterpolatedValue() = %v, want in (100, 150)", got)
	}
}

func TestInterpolationAllNoData(t *testing.T) {
	tile := openTile(t, gridfloattest.Header(4, 4, -106, 40, 0.1), gridfloattest.Fill(16, nodata), false)

	lat, lon := tile.CellCentre(1, 1)
	for _, q := range []struct {
		name     string
		lat, lon float64
	}{
		{"Q0", lat, lon},
		{"Q1", lat + 0.02, lon + 0.02},
		{"Q2", lat + 0.02, lon - 0.02},
		{"Q3", lat - 0.02, lon - 0.02},
		{"Q4", lat - 0.02, lon + 0.02},
	} {
		_, err := tile.InterpolatedValue(q.lat, q.lon)
		if !gridfloat.IsNoData(err) {
			t.Errorf("%s: error = %v, want NODATA", q.name, err)
			continue
		}
		var gerr *gridfloat.Error
		if !errors.As(err, &gerr) || gerr.Kind != gridfloat.KindNoData {
			t.Errorf("%s: error %v is not a *gridfloat.Error", q.name, err)
		}
		if !strings.Contains(err.Error(), q.name+":") {
			t.Errorf("%s: message %q does not name the quadrant", q.name, err)
		}
	}
}

func TestInterpolationOutsideTile(t *testing.T) {
	tile := scenarioTile(t, false)
	if _, err := tile.InterpolatedValue(50, -100); !gridfloat.IsNoData(err) {
		t.Errorf("error = %v, want NODATA", err)
	}
}

func TestInterpolateOutsideFunc(t *testing.T) {
	tile := openTile(t, gridfloattest.Header(2, 2, -106, 40, 0.1), gridfloattest.Fill(4, 500), false)

	// north-east of the north-east cell: three neighbours lie beyond the tile
	lat, lon := tile.CellCentre(0, 1)
	lat += 0.02
	lon += 0.02

	got, err := tile.InterpolatedValue(lat, lon)
	if err != nil || math.Abs(got-500) > 1e-9 {
		t.Errorf("without outside func = %v, %v; want 500", got, err)
	}

	var calls int
	got, err = tile.Interpolate(lat, lon, func(nlat, nlon float64) (float32, error) {
		calls++
		if tile.InTile(nlat, nlon) {
			t.Errorf("outside func called for in-tile centre %v, %v", nlat, nlon)
		}
		return 700, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("outside func called %d times, want 3", calls)
	}
	if got <= 500 || got >= 700 {
		t.Errorf("Interpolate() = %v, want between 500 and 700", got)
	}

	boom := errors.New("boom")
	if _, err := tile.Interpolate(lat, lon, func(float64, float64) (float32, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Errorf("error = %v, want boom", err)
	}
}

func BenchmarkInterpolatedValue(b *testing.B) {
	for _, sm := range []bool{false, true} {
		name := "InMemory"
		if sm {
			name = "SmallMemory"
		}
		b.Run(name, func(b *testing.B) {
			tile := openTile(b, gridfloattest.Header(64, 64, -106, 40, 1.0/64), rampValues(64, 64), sm)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				lat := 40.01 + float64(i%97)*0.0098
				lon := -105.99 + float64(i%89)*0.0109
				tile.InterpolatedValue(lat, lon)
			}
		})
	}
}
