package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/citypulse-labs/citypulse/internal/adjacency"
	"github.com/citypulse-labs/citypulse/internal/priority"
	"github.com/citypulse-labs/citypulse/internal/session"
)

const maxBodyBytes = 1 << 20

type sessionResponse struct {
	session.Session
	Impact     priority.ActionImpact      `json:"impact"`
	Projection []priority.ProjectionPoint `json:"projection"`
}

type targetRequest struct {
	Query string `json:"query"`
}

type targetResponse struct {
	Session   sessionResponse  `json:"session"`
	Target    countrySummary   `json:"target"`
	Neighbors []countrySummary `json:"neighbors"`
}

func newSessionResponse(sess session.Session) sessionResponse {
	return sessionResponse{
		Session:    sess,
		Impact:     priority.TotalImpact(sess.Filtered),
		Projection: priority.ProjectImpact(sess.Filtered),
	}
}

func (s *Server) createSession(w http.ResponseWriter, _ *http.Request) {
	sess := s.deps.Sessions.Create()
	zap.L().Debug("api: session created", zap.String("session", sess.ID))
	writeJSON(w, http.StatusCreated, newSessionResponse(sess))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	s.deps.Sessions.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setSessionThresholds(w http.ResponseWriter, r *http.Request) {
	var th priority.Thresholds
	if err := decodeBody(w, r, &th); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := th.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess, err := s.deps.Sessions.SetThresholds(chi.URLParam(r, "id"), th)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess))
}

func (s *Server) setSessionTarget(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Sessions.Get(id); err != nil {
		writeSessionError(w, err)
		return
	}

	var req targetRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	c, ok := s.collection(w)
	if !ok {
		return
	}
	res, err := adjacency.Neighbors(c, req.Query)
	if err != nil {
		writeFeatureError(w, err)
		return
	}

	names := make([]string, len(res.Neighbors))
	for i, n := range res.Neighbors {
		names[i] = n.Label()
	}
	sess, err := s.deps.Sessions.SetTarget(id, res.Target.Code, res.Target.Label(), names)
	if err != nil {
		writeSessionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, targetResponse{
		Session:   newSessionResponse(sess),
		Target:    summarize(res.Target),
		Neighbors: summarizeAll(res.Neighbors),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found or expired")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
