// Package webapi exposes the small HTTP surface SPEC_FULL.md carries as
// ambient infrastructure even though the spec itself puts the
// configuration-and-schema API out of scope (spec §1 "Non-goals"): GET
// the live config, POST a replacement, and GET the set of metric names
// the current config would produce.
package webapi

import (
	"encoding/json"
	"net/http"

	"github.com/AnomalyAI/anomalyd/internal/config"
	"github.com/AnomalyAI/anomalyd/pkg/logging"
)

// ConfigService is the subset of *orchestrator.Orchestrator this
// package depends on, kept as an interface so tests can supply a fake
// without pulling in the orchestrator's opensearch/state dependencies.
type ConfigService interface {
	Current() config.Config
	ApplyConfig(config.Config) error
}

// Server serves the config and schema routes under a prefix.
type Server struct {
	svc ConfigService
	log *logging.Logger
}

// New builds a Server.
func New(svc ConfigService, log *logging.Logger) *Server {
	return &Server{svc: svc, log: log}
}

// Handler mounts the routes under prefix (e.g.
// "/api/jaeger-anomaly-detection") on a fresh ServeMux.
func (s *Server) Handler(prefix string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(prefix+"/config", s.handleConfig)
	mux.HandleFunc(prefix+"/prometheus-schema", s.handleSchema)
	return mux
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.svc.Current())
	case http.MethodPost:
		var cfg config.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := cfg.Validate(); err != nil {
			s.writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		if err := s.svc.ApplyConfig(cfg); err != nil {
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.writeJSON(w, http.StatusOK, successResponse{Status: "updated"})
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSchema reports, grouped by span configuration, each metric's base
// name and the suffixes its enabled statistics emit, as JSON. Label keys
// and metric types are not part of the response.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, buildSchema(s.svc.Current()))
}

type successResponse struct {
	Status string `json:"status"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil && s.log != nil {
		s.log.Warn("webapi: encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

type errorResponse struct {
	Error string `json:"error"`
}
