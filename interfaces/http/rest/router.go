// Package rest serves the read-only view of a session to UIs
package rest

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"graphscape/application/connection"
	"graphscape/application/reconciler"
	"graphscape/domain/core/aggregates"
	"graphscape/domain/core/valueobjects"
	"graphscape/domain/services"
	"graphscape/interfaces/http/rest/middleware"
	pkgerrors "graphscape/pkg/errors"
)

// SessionReader is the part of a session the read boundary may see
type SessionReader interface {
	ID() string
	State() connection.State
	ConnectionError() error
	Err() error
	Streaming() bool
	Snapshot() *aggregates.Snapshot
	LastResult() *reconciler.Result
	Assess(target valueobjects.StructureTarget) services.Assessment
}

// Options toggles optional routes and middleware. Nil handlers leave their
// route unregistered.
type Options struct {
	EnableCORS     bool
	Metrics        middleware.HTTPObserver
	MetricsHandler http.Handler
	WebSocket      http.HandlerFunc
}

// Router creates and configures the HTTP router
type Router struct {
	session SessionReader
	logger  *zap.Logger
	opts    Options
}

// NewRouter creates a new router instance
func NewRouter(session SessionReader, logger *zap.Logger, opts Options) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		session: session,
		logger:  logger,
		opts:    opts,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))
	if rt.opts.Metrics != nil {
		router.Use(middleware.Metrics(rt.opts.Metrics))
	}

	if rt.opts.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	router.Get("/healthz", rt.healthCheck)
	if rt.opts.MetricsHandler != nil {
		router.Method(http.MethodGet, "/metrics", rt.opts.MetricsHandler)
	}
	if rt.opts.WebSocket != nil {
		router.Get("/ws", rt.opts.WebSocket)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/connection", rt.getConnection)
		r.Route("/graph", func(r chi.Router) {
			r.Get("/", rt.getGraph)
			r.Get("/assessment", rt.getAssessment)
		})
	})

	return router
}

// healthCheck reports process liveness; backend state is informational
func (rt *Router) healthCheck(w http.ResponseWriter, _ *http.Request) {
	status := "healthy"
	if rt.session.Err() != nil {
		status = "degraded"
	}
	rt.respondJSON(w, http.StatusOK, map[string]string{
		"status":     status,
		"sessionId":  rt.session.ID(),
		"connection": string(rt.session.State()),
	})
}

// ConnectionResponse is the body of GET /api/v1/connection
type ConnectionResponse struct {
	SessionID string `json:"sessionId"`
	State     string `json:"state"`
	Error     string `json:"error,omitempty"`
	Fatal     string `json:"fatal,omitempty"`
	Streaming bool   `json:"streaming"`
}

func (rt *Router) getConnection(w http.ResponseWriter, _ *http.Request) {
	resp := ConnectionResponse{
		SessionID: rt.session.ID(),
		State:     string(rt.session.State()),
		Streaming: rt.session.Streaming(),
	}
	if err := rt.session.ConnectionError(); err != nil {
		resp.Error = err.Error()
	}
	if err := rt.session.Err(); err != nil {
		resp.Fatal = err.Error()
	}
	rt.respondJSON(w, http.StatusOK, resp)
}

// GraphResponse is the body of GET /api/v1/graph
type GraphResponse struct {
	Graph      *aggregates.Snapshot `json:"graph"`
	LastResult *reconciler.Result   `json:"lastResult,omitempty"`
	Streaming  bool                 `json:"streaming"`
}

func (rt *Router) getGraph(w http.ResponseWriter, _ *http.Request) {
	rt.respondJSON(w, http.StatusOK, GraphResponse{
		Graph:      rt.session.Snapshot(),
		LastResult: rt.session.LastResult(),
		Streaming:  rt.session.Streaming(),
	})
}

// getAssessment handles GET /api/v1/graph/assessment?target=<name>. Without a
// target the last structuring target is used.
func (rt *Router) getAssessment(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("target")
	target := valueobjects.ParseStructureTarget(name)
	if name != "" && target == valueobjects.StructureTargetUnspecified && !strings.EqualFold(name, "unspecified") {
		rt.respondError(w, pkgerrors.NewValidationError("unknown structure target '"+name+"'"))
		return
	}
	rt.respondJSON(w, http.StatusOK, rt.session.Assess(target))
}

func (rt *Router) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		rt.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (rt *Router) respondError(w http.ResponseWriter, err error) {
	status := pkgerrors.HTTPStatusOf(err)
	body := map[string]interface{}{"error": err.Error()}
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		body = map[string]interface{}{"error": appErr}
	}
	rt.respondJSON(w, status, body)
}
