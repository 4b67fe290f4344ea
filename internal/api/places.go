package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/resilience"
	"github.com/citypulse-labs/citypulse/internal/tiles"
	"github.com/citypulse-labs/citypulse/pkg/amenity"
	"github.com/citypulse-labs/citypulse/pkg/geocode"
)

type hospitalsResponse struct {
	BBox      amenity.BBox       `json:"bbox"`
	Count     int                `json:"count"`
	Hospitals []amenity.Hospital `json:"hospitals"`
}

type gapsResponse struct {
	BBox     amenity.BBox  `json:"bbox"`
	RadiusKm float64       `json:"radiusKm"`
	Gaps     []amenity.Gap `json:"gaps"`
}

func (s *Server) geocode(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	place, err := s.deps.Geocoder.Search(r.Context(), q)
	if err != nil {
		if errors.Is(err, geocode.ErrNoMatch) {
			writeError(w, http.StatusNotFound, "location not found")
			return
		}
		writeUpstreamError(w, "geocode", err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

func (s *Server) hospitals(w http.ResponseWriter, r *http.Request) {
	bbox, err := bboxFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	found, err := s.deps.Amenities.Hospitals(r.Context(), bbox)
	if err != nil {
		writeUpstreamError(w, "hospitals", err)
		return
	}
	if found == nil {
		found = []amenity.Hospital{}
	}
	writeJSON(w, http.StatusOK, hospitalsResponse{BBox: bbox, Count: len(found), Hospitals: found})
}

func (s *Server) coverageGaps(w http.ResponseWriter, r *http.Request) {
	bbox, err := bboxFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var radius float64
	if v := r.URL.Query().Get("radius_km"); v != "" {
		radius, err = strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "radius_km must be a number")
			return
		}
	}
	radius = amenity.ClampRadiusKm(radius)

	gaps, err := s.deps.Amenities.CoverageGaps(r.Context(), bbox, radius)
	if err != nil {
		writeUpstreamError(w, "coverage gaps", err)
		return
	}
	if gaps == nil {
		gaps = []amenity.Gap{}
	}
	writeJSON(w, http.StatusOK, gapsResponse{BBox: bbox, RadiusKm: radius, Gaps: gaps})
}

// bboxFromQuery reads ?south=&west=&north=&east=.
func bboxFromQuery(r *http.Request) (amenity.BBox, error) {
	q := r.URL.Query()
	var vals [4]float64
	for i, key := range []string{"south", "west", "north", "east"} {
		raw := q.Get(key)
		if raw == "" {
			return amenity.BBox{}, errBadRequest(key + " is required")
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return amenity.BBox{}, errBadRequest(key + " must be a number")
		}
		vals[i] = f
	}
	b := amenity.BBox{South: vals[0], West: vals[1], North: vals[2], East: vals[3]}
	if err := b.Validate(); err != nil {
		return b, errBadRequest("invalid bounding box")
	}
	return b, nil
}

func writeUpstreamError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, amenity.ErrInvalidBBox):
		writeError(w, http.StatusBadRequest, "invalid bounding box")
	case errors.Is(err, resilience.ErrCircuitOpen):
		w.Header().Set("Retry-After", "30")
		writeError(w, http.StatusServiceUnavailable, what+" service temporarily unavailable")
	default:
		zap.L().Warn("api: upstream request failed", zap.String("service", what), zap.Error(err))
		writeError(w, http.StatusBadGateway, what+" lookup failed")
	}
}

func (s *Server) layers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"layers":      s.deps.Tiles.Catalog().Layers(),
		"ndviMinYear": tiles.MinNDVIYear,
		"ndviMaxYear": tiles.MaxNDVIYear,
	})
}
