// Package api serves the status of the last evaluation over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/hydropool/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// LastSummary returns the last finished evaluation.
	LastSummary() (types.Summary, bool)

	// Ready reports whether evaluations can run.
	Ready(ctx context.Context) error
}

// Server wires HTTP routes for the status API.
type Server struct {
	healthHandler *HealthHandler
	poolsHandler  *PoolsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler: NewHealthHandler(deps),
		poolsHandler:  NewPoolsHandler(deps),
	}
}

// Routes returns the router with every route attached.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", MetricsHandler())
	r.Route("/v1/pools", func(r chi.Router) {
		r.Get("/", s.poolsHandler.HandleList)
		r.Get("/{id}", s.poolsHandler.HandleGet)
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
