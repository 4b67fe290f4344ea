package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/priority"
)

type prioritiesResponse struct {
	Thresholds priority.Thresholds        `json:"thresholds"`
	Count      int                        `json:"count"`
	Priorities []priority.AreaRecord      `json:"priorities"`
	Impact     priority.ActionImpact      `json:"impact"`
	Projection []priority.ProjectionPoint `json:"projection"`
}

type impactResponse struct {
	Record priority.AreaRecord   `json:"record"`
	Impact priority.ActionImpact `json:"impact"`
	Known  bool                  `json:"known"`
}

func newPrioritiesResponse(th priority.Thresholds, filtered []priority.AreaRecord) prioritiesResponse {
	if filtered == nil {
		filtered = []priority.AreaRecord{}
	}
	return prioritiesResponse{
		Thresholds: th,
		Count:      len(filtered),
		Priorities: filtered,
		Impact:     priority.TotalImpact(filtered),
		Projection: priority.ProjectImpact(filtered),
	}
}

// filtered parses thresholds and ranks the dataset, writing 400 on bad input.
func (s *Server) filtered(w http.ResponseWriter, r *http.Request) ([]priority.AreaRecord, priority.Thresholds, bool) {
	th, err := s.thresholdsFromQuery(r)
	if err != nil {
		var br *badRequest
		if errors.As(err, &br) {
			writeError(w, http.StatusBadRequest, br.msg)
		} else {
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return nil, th, false
	}
	return priority.FilterPriorities(s.deps.Records, th), th, true
}

func (s *Server) listPriorities(w http.ResponseWriter, r *http.Request) {
	filtered, th, ok := s.filtered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newPrioritiesResponse(th, filtered))
}

func (s *Server) projection(w http.ResponseWriter, r *http.Request) {
	filtered, _, ok := s.filtered(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, priority.ProjectImpact(filtered))
}

func (s *Server) recordImpact(w http.ResponseWriter, r *http.Request) {
	rec, ok := priority.FindRecord(s.deps.Records, chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown area id")
		return
	}
	writeJSON(w, http.StatusOK, impactResponse{
		Record: rec,
		Impact: priority.SimulateIntervention(rec),
		Known:  rec.RecommendedAction.Known(),
	})
}

func (s *Server) exportGeoJSON(w http.ResponseWriter, r *http.Request) {
	filtered, _, ok := s.filtered(w, r)
	if !ok {
		return
	}
	data, err := priority.ExportGeoJSON(filtered, s.deps.Anchor)
	if err != nil {
		zap.L().Error("api: geojson export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+priority.ExportFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	filtered, _, ok := s.filtered(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := priority.ExportXLSX(filtered, &buf); err != nil {
		zap.L().Error("api: xlsx export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+priority.ExportXLSXFilename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}
