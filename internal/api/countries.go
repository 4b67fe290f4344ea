package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/citypulse-labs/citypulse/internal/adjacency"
	"github.com/citypulse-labs/citypulse/internal/boundary"
)

// countrySummary is the wire form of a feature. BBox is
// [minLon, minLat, maxLon, maxLat].
type countrySummary struct {
	Index int         `json:"index"`
	Code  string      `json:"code,omitempty"`
	Name  string      `json:"name"`
	BBox  *[4]float64 `json:"bbox,omitempty"`
}

type neighborsResponse struct {
	Target    countrySummary   `json:"target"`
	Neighbors []countrySummary `json:"neighbors"`
}

func summarize(f adjacency.Feature) countrySummary {
	cs := countrySummary{Index: f.Index, Code: f.Code, Name: f.Label()}
	if b, ok := f.Bounds(); ok {
		cs.BBox = &[4]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	}
	return cs
}

func summarizeAll(fs []adjacency.Feature) []countrySummary {
	out := make([]countrySummary, len(fs))
	for i, f := range fs {
		out[i] = summarize(f)
	}
	return out
}

// collection returns the loaded boundaries or writes 503.
func (s *Server) collection(w http.ResponseWriter) (adjacency.Collection, bool) {
	c, err := s.deps.Boundaries.Collection()
	if err != nil {
		if errors.Is(err, boundary.ErrNotLoaded) {
			w.Header().Set("Retry-After", "5")
			writeError(w, http.StatusServiceUnavailable, "country boundaries are still loading")
			return nil, false
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return c, true
}

func (s *Server) searchCountry(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	c, ok := s.collection(w)
	if !ok {
		return
	}

	f, err := adjacency.FindFeature(c, q)
	if err != nil {
		writeFeatureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summarize(f))
}

func (s *Server) countryNeighbors(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	c, ok := s.collection(w)
	if !ok {
		return
	}

	res, err := adjacency.Neighbors(c, q)
	if err != nil {
		writeFeatureError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, neighborsResponse{
		Target:    summarize(res.Target),
		Neighbors: summarizeAll(res.Neighbors),
	})
}

func writeFeatureError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, adjacency.ErrNotFound):
		writeError(w, http.StatusNotFound, "no country matches the query")
	case errors.Is(err, adjacency.ErrAmbiguousOrMissing):
		writeError(w, http.StatusNotFound, "country is not part of the loaded dataset")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
