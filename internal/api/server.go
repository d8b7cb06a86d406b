// Package api is the command surface of the tab manager: a REST API over
// the lifecycle manager plus a websocket event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/tabhost/internal/lifecycle"
	"github.com/shehryarbajwa/tabhost/internal/loop"
	"github.com/shehryarbajwa/tabhost/internal/metrics"
	"github.com/shehryarbajwa/tabhost/internal/persist"
	"github.com/shehryarbajwa/tabhost/internal/ratelimit"
	"github.com/shehryarbajwa/tabhost/internal/settings"
	"github.com/shehryarbajwa/tabhost/pkg/models"
)

// Options are the dependencies of a Server
type Options struct {
	Manager  *lifecycle.Manager
	Loop     *loop.Loop
	Hub      *Hub
	Sessions *persist.SessionStore
	// SessionWriter is silenced after a restore so the restored document
	// survives until restart
	SessionWriter *persist.Coalescer[models.SessionDocument]
	Settings      *settings.Service
	Metrics       *metrics.Metrics
	// Limiter may be nil to disable rate limiting
	Limiter *ratelimit.Limiter
	Logger  *zap.Logger
	Now     func() time.Time
}

// Server holds dependencies for HTTP handlers
type Server struct {
	manager  *lifecycle.Manager
	loop     *loop.Loop
	hub      *Hub
	sessions *persist.SessionStore
	writer   *persist.Coalescer[models.SessionDocument]
	settings *settings.Service
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	log      *zap.Logger
	now      func() time.Time
}

// NewServer creates the HTTP layer
func NewServer(opts Options) *Server {
	s := &Server{
		manager:  opts.Manager,
		loop:     opts.Loop,
		hub:      opts.Hub,
		sessions: opts.Sessions,
		writer:   opts.SessionWriter,
		settings: opts.Settings,
		metrics:  opts.Metrics,
		limiter:  opts.Limiter,
		log:      opts.Logger,
		now:      opts.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("api")
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Router configures all HTTP routes
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/v1").Subrouter()

	// commands are rate limited; the event stream is not
	cmd := api.PathPrefix("").Subrouter()
	if s.limiter != nil {
		cmd.Use(RateLimitMiddleware(s.limiter))
	}

	cmd.HandleFunc("/tabs", s.CreateTab).Methods("POST")
	cmd.HandleFunc("/tabs", s.ListTabs).Methods("GET")
	cmd.HandleFunc("/tabs/{id}", s.GetTab).Methods("GET")
	cmd.HandleFunc("/tabs/{id}", s.CloseTab).Methods("DELETE")
	cmd.HandleFunc("/tabs/{id}/activate", s.ActivateTab).Methods("POST")
	cmd.HandleFunc("/tabs/{id}/shared", s.ToggleShared).Methods("POST")
	cmd.HandleFunc("/tabs/{id}/clear", s.ClearTab).Methods("POST")
	cmd.HandleFunc("/tabs/{id}/hibernate", s.HibernateTab).Methods("POST")
	cmd.HandleFunc("/tabs/{id}/wake", s.WakeTab).Methods("POST")
	cmd.HandleFunc("/tabs/{id}/navigate", s.NavigateTab).Methods("POST")
	cmd.HandleFunc("/tabs/{id}/back", s.GoBack).Methods("POST")
	cmd.HandleFunc("/tabs/{id}/forward", s.GoForward).Methods("POST")
	cmd.HandleFunc("/tabs/{id}/reload", s.ReloadTab).Methods("POST")
	cmd.HandleFunc("/tabs/{id}/history/{index:[0-9]+}", s.GoToIndex).Methods("POST")
	cmd.HandleFunc("/tabs/{id}/zoom", s.SetZoom).Methods("PUT")
	cmd.HandleFunc("/tabs/{id}/ungroup", s.RemoveFromGroup).Methods("POST")

	cmd.HandleFunc("/layout", s.GetLayout).Methods("GET")
	cmd.HandleFunc("/layout", s.UpdateLayout).Methods("PUT")
	cmd.HandleFunc("/layout/move", s.MoveTab).Methods("POST")
	cmd.HandleFunc("/groups", s.CreateGroup).Methods("POST")
	cmd.HandleFunc("/groups/{id}", s.UpdateGroup).Methods("PATCH")
	cmd.HandleFunc("/groups/{id}", s.Ungroup).Methods("DELETE")

	cmd.HandleFunc("/settings", s.GetSettings).Methods("GET")
	cmd.HandleFunc("/settings", s.UpdateSettings).Methods("PUT")
	cmd.HandleFunc("/session/backup", s.DownloadBackup).Methods("GET")
	cmd.HandleFunc("/session/restore", s.RestoreBackup).Methods("POST")

	if s.hub != nil {
		api.HandleFunc("/events", s.hub.ServeWS).Methods("GET")
	}
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
	r.HandleFunc("/healthz", s.Health).Methods("GET")
	// preflight requests only need the CORS headers
	r.Methods("OPTIONS").HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	r.Use(corsMiddleware)
	r.Use(loggingMiddleware(s.log))

	return r
}

// Health handles GET /healthz
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.loop.Done():
		http.Error(w, "control loop stopped", http.StatusServiceUnavailable)
		return
	default:
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// do runs fn on the control loop. Engine work fn starts must outlive the
// request, so fn gets a context that is not cancelled with it.
func (s *Server) do(r *http.Request, fn func(ctx context.Context) error) error {
	ctx := context.WithoutCancel(r.Context())
	return s.loop.Do(r.Context(), func() error { return fn(ctx) })
}

// writeError maps an error from the control loop to a response
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrUnknownTab), errors.Is(err, errUnknownGroup):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, loop.ErrStopped):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
	default:
		s.log.Error("command failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
