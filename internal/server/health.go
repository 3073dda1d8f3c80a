package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const healthQueryTimeout = 2 * time.Second

func registerRoutes(mux *http.ServeMux, s *Server) {
	mux.Handle("/ws", s.hub)
	mux.Handle("/metrics", s.metrics.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
	})
}

type healthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	Connections     int    `json:"connections"`
	Readings        int64  `json:"readings"`
	Sensors         int64  `json:"sensors"`
	NewestTimestamp *int64 `json:"newestTimestamp,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthQueryTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: s.version, Connections: s.hub.ConnectionCount()}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "health check query failed", "error", err)
		resp.Status = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.Readings = stats.Readings
	resp.Sensors = stats.Sensors
	resp.NewestTimestamp = stats.NewestTimestamp
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
