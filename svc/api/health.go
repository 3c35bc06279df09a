package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"pasteline/svc/util"
)

type HealthResponse struct {
	Status string `json:"status"`
}
type ReadyResponse struct {
	Ready   bool   `json:"ready"`
	Backend string `json:"backend"`
}

// HealthzResponse mirrors the public probe consumed by the paste UI.
type HealthzResponse struct {
	OK bool `json:"ok"`
}

const pingTimeout = 500 * time.Millisecond

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

func (s *Server) Ready(w http.ResponseWriter, r *http.Request) {
	resp := ReadyResponse{Ready: true, Backend: "up"}
	if err := s.ping(r.Context()); err != nil {
		util.Error().Err(err).Msg("backend health check failed")
		resp.Ready = false
		resp.Backend = "down"
	}
	w.Header().Set("Content-Type", "application/json")
	if !resp.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(resp)
}

// Healthz reports backend reachability. It never reads or writes paste keys.
func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	ok := s.ping(r.Context()) == nil
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(HealthzResponse{OK: ok})
}

func (s *Server) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.paste.Ping(ctx)
}
