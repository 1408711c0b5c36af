package handler

import (
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/yakkun/ned-elevation-api/internal/elevation"
	"github.com/yakkun/ned-elevation-api/internal/gridfloat/gridfloattest"
	"github.com/yakkun/ned-elevation-api/internal/tile"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	dir := t.TempDir()
	values := gridfloattest.Fill(100, 1000)
	for i := 0; i < 20; i++ {
		values[i] = gridfloattest.NoData // rows 0 and 1
	}
	gridfloattest.WriteCode(t, dir, tile.Code(41106), 10, values)

	r := elevation.NewRegistry(elevation.RegistryConfig{Dir: dir, Log: log})
	t.Cleanup(func() { r.Close() })
	service := elevation.NewService(r, elevation.WithLogger(log))

	mux := http.NewServeMux()
	NewHandler(service, log).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleElevation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		query      string
		wantStatus int
	}{
		{"ok", http.MethodGet, "lat=40.45&lon=-105.55", http.StatusOK},
		{"missing lon", http.MethodGet, "lat=40.45", http.StatusBadRequest},
		{"invalid lat", http.MethodGet, "lat=north&lon=-105.55", http.StatusBadRequest},
		{"out of range", http.MethodGet, "lat=91&lon=-105.55", http.StatusBadRequest},
		{"no data", http.MethodGet, "lat=40.93&lon=-105.55", http.StatusNotFound},
		{"tile unavailable", http.MethodGet, "lat=35&lon=-100", http.StatusInternalServerError},
		{"wrong method", http.MethodPost, "lat=40.45&lon=-105.55", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, srv.URL+"/elevation?"+tt.query, nil)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var result elevation.ElevationResult
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				t.Fatal(err)
			}
			if math.Abs(result.Elevation-1000) > 1e-6 {
				t.Errorf("elevation = %v, want 1000", result.Elevation)
			}
		})
	}
}

func TestHandleBatchElevation(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       []float64
	}{
		{
			name:       "ok",
			body:       `{"points":[{"lat":40.45,"lon":-105.55},{"lat":40.93,"lon":-105.55}]}`,
			wantStatus: http.StatusOK,
			want:       []float64{1000, elevation.NoDataHeight},
		},
		{"invalid body", `{"points":`, http.StatusBadRequest, nil},
		{"no points", `{"points":[]}`, http.StatusBadRequest, nil},
		{"too many points", `{"points":[` + strings.Repeat(`{"lat":40.5,"lon":-105.5},`, 1000) + `{"lat":40.5,"lon":-105.5}]}`, http.StatusBadRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/elevation/batch", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.want == nil {
				return
			}
			var body struct {
				Results []elevation.ElevationResult `json:"results"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if len(body.Results) != len(tt.want) {
				t.Fatalf("%d results, want %d", len(body.Results), len(tt.want))
			}
			for i, r := range body.Results {
				if math.Abs(r.Elevation-tt.want[i]) > 1e-6 {
					t.Errorf("result %d = %v, want %v", i, r.Elevation, tt.want[i])
				}
			}
		})
	}
}

func TestHandleField(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"ok", "lat=40.5&lon=-105.5&radius=1000&cells=4&antenna=10", http.StatusOK},
		{"missing radius", "lat=40.5&lon=-105.5&cells=4", http.StatusBadRequest},
		{"zero cells", "lat=40.5&lon=-105.5&radius=1000&cells=0", http.StatusBadRequest},
		{"too many cells", "lat=40.5&lon=-105.5&radius=1000&cells=501", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/field?" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var field elevation.Field
			if err := json.NewDecoder(resp.Body).Decode(&field); err != nil {
				t.Fatal(err)
			}
			if len(field.Heights) != 9 {
				t.Errorf("%d rows, want 9", len(field.Heights))
			}
			if got := field.At(0, 0); math.Abs(float64(got)-1010) > 1e-3 {
				t.Errorf("centre = %v, want 1010", got)
			}
		})
	}
}

func TestHandleTilesAndHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/tiles")
	if err != nil {
		t.Fatal(err)
	}
	var tiles struct {
		Tiles []elevation.TileInfo `json:"tiles"`
	}
	json.NewDecoder(resp.Body).Decode(&tiles)
	resp.Body.Close()
	if tiles.Tiles == nil || len(tiles.Tiles) != 0 {
		t.Errorf("tiles before any query = %v, want empty list", tiles.Tiles)
	}

	resp, err = http.Get(srv.URL + "/elevation?lat=40.45&lon=-105.55")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var health elevation.HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health.Status != "ok" || health.TotalRequests != 1 || health.TilesLoaded != 1 {
		t.Errorf("health = %+v", health)
	}
}
