package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/relayd/internal/protocol"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	active, err := s.sessions.ActiveSessions(r.Context())
	if err != nil {
		s.logger.Error("failed to count sessions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to count sessions")
		return
	}

	resp := HealthzResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		Actions:        len(s.actions.Actions()),
		ActiveSessions: active,
	}
	if s.dispatch != nil {
		stats := s.dispatch.Stats()
		resp.Dispatch = &stats
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleActions handles GET /v1/actions.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ActionsResponse{Actions: s.actions.Actions()})
}

// handleEventSnapshot handles GET /v1/events?since=N.
func (s *Server) handleEventSnapshot(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}

	evs := s.events.SnapshotSince(since)
	resp := EventsResponse{Events: evs, LastID: since}
	if len(evs) > 0 {
		resp.LastID = evs[len(evs)-1].ID
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleNotify handles POST /v1/notify.
func (s *Server) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Type = strings.TrimSpace(req.Type)
	if req.Type == "" {
		s.writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	if err := protocol.ValidateTopic(req.Topic); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.publisher.Publish(req.Type, req.Data, req.Topic); err != nil {
		s.logger.Error("notify failed", "type", req.Type, "topic", req.Topic, "error", err)
		if errors.Is(err, protocol.ErrInvalidTopic) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to publish notification")
		return
	}

	s.logger.Info("notification triggered via API", "type", req.Type, "topic", req.Topic)
	respondJSON(w, http.StatusAccepted, NotifyResponse{
		Status: "published",
		Type:   req.Type,
		Topic:  req.Topic,
	})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
