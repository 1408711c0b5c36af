package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yakkun/ned-elevation-api/internal/elevation"
	"github.com/yakkun/ned-elevation-api/internal/gridfloat"
)

const (
	maxBatchPoints = 1000
	maxFieldCells  = 500
)

type Handler struct {
	service *elevation.Service
	log     logrus.FieldLogger
}

func NewHandler(service *elevation.Service, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		service: service,
		log:     log,
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/elevation", h.handleElevation)
	mux.HandleFunc("/elevation/batch", h.handleBatchElevation)
	mux.HandleFunc("/field", h.handleField)
	mux.HandleFunc("/tiles", h.handleTiles)
	mux.HandleFunc("/health", h.handleHealth)
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, elevation.ErrOutOfRange):
		return http.StatusBadRequest
	case gridfloat.IsNoData(err):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func floatParam(r *http.Request, name string) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, fmt.Errorf("Missing %s parameter", name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("Invalid %s parameter", name)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (h *Handler) handleElevation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	lat, err := floatParam(r, "lat")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lon, err := floatParam(r, "lon")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	elev, err := h.service.GetElevation(r.Context(), lat, lon)
	if err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{"lat": lat, "lon": lon}).Debug("elevation query failed")
		http.Error(w, fmt.Sprintf("Error: %v", err), statusFor(err))
		return
	}

	writeJSON(w, elevation.ElevationResult{
		Lat:       lat,
		Lon:       lon,
		Elevation: elev,
	})

	h.log.WithFields(logrus.Fields{
		"lat":       lat,
		"lon":       lon,
		"elevation": elev,
		"duration":  time.Since(start),
	}).Debug("GET /elevation")
}

func (h *Handler) handleBatchElevation(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request struct {
		Points []elevation.BatchPoint `json:"points"`
	}

	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if len(request.Points) == 0 {
		http.Error(w, "No points provided", http.StatusBadRequest)
		return
	}

	if len(request.Points) > maxBatchPoints {
		http.Error(w, fmt.Sprintf("Too many points (max %d)", maxBatchPoints), http.StatusBadRequest)
		return
	}

	results, err := h.service.GetBatchElevations(r.Context(), request.Points)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error: %v", err), statusFor(err))
		return
	}

	writeJSON(w, struct {
		Results []elevation.ElevationResult `json:"results"`
	}{
		Results: results,
	})

	h.log.WithFields(logrus.Fields{
		"points":   len(request.Points),
		"duration": time.Since(start),
	}).Debug("POST /elevation/batch")
}

func (h *Handler) handleField(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var spec elevation.FieldSpec
	var err error
	if spec.Centre.Lat, err = floatParam(r, "lat"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if spec.Centre.Lon, err = floatParam(r, "lon"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if spec.Radius, err = floatParam(r, "radius"); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cells, err := strconv.Atoi(r.URL.Query().Get("cells"))
	if err != nil {
		http.Error(w, "Invalid cells parameter", http.StatusBadRequest)
		return
	}
	spec.Cells = cells
	if r.URL.Query().Has("antenna") {
		if spec.AntennaHeight, err = floatParam(r, "antenna"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := spec.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if spec.Cells > maxFieldCells {
		http.Error(w, fmt.Sprintf("Too many cells (max %d)", maxFieldCells), http.StatusBadRequest)
		return
	}

	field, err := h.service.HeightField(r.Context(), spec)
	if err != nil {
		h.log.WithError(err).WithField("centre", spec.Centre).Warn("height field failed")
		http.Error(w, fmt.Sprintf("Error: %v", err), statusFor(err))
		return
	}

	writeJSON(w, field)

	h.log.WithFields(logrus.Fields{
		"cells":    spec.Cells,
		"nodata":   field.NoData,
		"duration": time.Since(start),
	}).Debug("GET /field")
}

func (h *Handler) handleTiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tiles := h.service.Tiles()
	if tiles == nil {
		tiles = []elevation.TileInfo{}
	}
	writeJSON(w, struct {
		Tiles []elevation.TileInfo `json:"tiles"`
	}{
		Tiles: tiles,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, h.service.GetHealth())
}
