package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// handleHealth returns 200 while the broker session is up and 503 otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.source.HealthCheck(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// StatsResponse is the body of GET /api/v1/stats.
type StatsResponse struct {
	Timestamp         string `json:"timestamp"`
	Version           string `json:"version"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	State             string `json:"state"`
	LastError         string `json:"last_error,omitempty"`
	Destinations      int    `json:"destinations"`
	Subscriptions     int    `json:"subscriptions"`
	PendingSends      int    `json:"pending_sends"`
	FramesIn          uint64 `json:"frames_in"`
	FramesOut         uint64 `json:"frames_out"`
	MessagesDelivered uint64 `json:"messages_delivered"`
	DroppedFrames     uint64 `json:"dropped_frames"`
	ConsumerErrors    uint64 `json:"consumer_errors"`
	ReconnectAttempts uint64 `json:"reconnect_attempts"`
	Reconnects        uint64 `json:"reconnects"`
}

// handleStats returns the messaging client's counters.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	st := s.source.Stats()
	resp := StatsResponse{
		Timestamp:         time.Now().UTC().Format(time.RFC3339),
		Version:           s.version,
		UptimeSeconds:     int64(time.Since(s.started).Seconds()),
		State:             st.State.String(),
		Destinations:      st.Destinations,
		Subscriptions:     st.Subscriptions,
		PendingSends:      st.PendingSends,
		FramesIn:          st.FramesIn,
		FramesOut:         st.FramesOut,
		MessagesDelivered: st.MessagesDelivered,
		DroppedFrames:     st.DroppedFrames,
		ConsumerErrors:    st.ConsumerErrors,
		ReconnectAttempts: st.ReconnectAttempts,
		Reconnects:        st.Reconnects,
	}
	if err := s.source.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
