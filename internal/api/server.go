// Package api exposes the adjacency resolver, the priority engine and the
// supporting map services over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/boundary"
	"github.com/citypulse-labs/citypulse/internal/priority"
	"github.com/citypulse-labs/citypulse/internal/session"
	"github.com/citypulse-labs/citypulse/internal/tiles"
	"github.com/citypulse-labs/citypulse/pkg/amenity"
	"github.com/citypulse-labs/citypulse/pkg/geocode"
)

// Amenities finds hospitals and coverage gaps. *amenity.Client satisfies it.
type Amenities interface {
	Hospitals(ctx context.Context, bbox amenity.BBox) ([]amenity.Hospital, error)
	CoverageGaps(ctx context.Context, bbox amenity.BBox, radiusKm float64) ([]amenity.Gap, error)
}

// Deps are the services the API is built on.
type Deps struct {
	Boundaries *boundary.Registry
	Records    []priority.AreaRecord
	Thresholds priority.Thresholds
	Anchor     priority.Location
	Sessions   *session.Store
	Geocoder   geocode.Client
	Amenities  Amenities
	Tiles      *tiles.Proxy

	// CORSOrigins defaults to all origins when empty.
	CORSOrigins []string
}

// Server holds the API dependencies.
type Server struct {
	deps Deps
}

// NewServer creates a server. Zero Thresholds and Anchor select the package
// defaults.
func NewServer(d Deps) *Server {
	if d.Thresholds == (priority.Thresholds{}) {
		d.Thresholds = priority.DefaultThresholds()
	}
	if d.Anchor == (priority.Location{}) {
		d.Anchor = priority.DefaultAnchor
	}
	if len(d.CORSOrigins) == 0 {
		d.CORSOrigins = []string{"*"}
	}
	return &Server{deps: d}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		ExposedHeaders: []string{"Content-Disposition", "X-Cache"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Get("/countries/search", s.searchCountry)
		r.Get("/countries/neighbors", s.countryNeighbors)

		r.Get("/priorities", s.listPriorities)
		r.Get("/priorities/projection", s.projection)
		r.Get("/priorities/export.geojson", s.exportGeoJSON)
		r.Get("/priorities/export.xlsx", s.exportXLSX)
		r.Get("/priorities/{id}/impact", s.recordImpact)

		r.Post("/sessions", s.createSession)
		r.Get("/sessions/{id}", s.getSession)
		r.Delete("/sessions/{id}", s.deleteSession)
		r.Put("/sessions/{id}/thresholds", s.setSessionThresholds)
		r.Post("/sessions/{id}/target", s.setSessionTarget)

		r.Get("/geocode", s.geocode)
		r.Get("/hospitals", s.hospitals)
		r.Get("/coverage-gaps", s.coverageGaps)

		r.Get("/layers", s.layers)
	})

	r.Route("/tiles", func(r chi.Router) {
		r.Get("/stats", s.deps.Tiles.StatsHandler)
		r.Handle("/*", http.StripPrefix("/tiles", s.deps.Tiles))
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	loaded := "loading"
	if s.deps.Boundaries.Ready() {
		loaded = "loaded"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"boundaries": loaded,
	})
}

// thresholdsFromQuery reads ?vegetation=&access=, falling back to the
// server defaults for absent parameters.
func (s *Server) thresholdsFromQuery(r *http.Request) (priority.Thresholds, error) {
	th := s.deps.Thresholds
	q := r.URL.Query()

	if v := q.Get("vegetation"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return th, errBadRequest("vegetation must be a number")
		}
		th.VegetationPercentileCutoff = f
	}
	if v := q.Get("access"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return th, errBadRequest("access must be a number")
		}
		th.ParkAccessPercentCutoff = f
	}
	if err := th.Validate(); err != nil {
		return th, errBadRequest(err.Error())
	}
	return th, nil
}

// badRequest carries a client-facing validation message.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func errBadRequest(msg string) error { return &badRequest{msg: msg} }

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
