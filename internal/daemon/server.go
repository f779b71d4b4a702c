// Package daemon exposes the reconciliation engine over a local HTTP
// surface and runs the background sync loop.
package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/keysync/internal/config"
	"github.com/felixgeelhaar/keysync/internal/events"
	"github.com/felixgeelhaar/keysync/internal/pet"
	"github.com/felixgeelhaar/keysync/internal/reconcile"
)

// Connectivity is the advisory view of the remote endpoint. It informs
// the health report only; no write is ever gated on it.
type Connectivity interface {
	Ping(ctx context.Context) error
	Online() bool
}

// Deps holds the services the server exposes.
type Deps struct {
	Config       *config.LocalConfig
	Engine       *reconcile.Engine
	Pets         *pet.Manager
	Connectivity Connectivity
	Producer     *events.Producer // nil disables result events
	Logger       *slog.Logger
}

// Server is the keysync daemon HTTP server.
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux

	engine   *reconcile.Engine
	pets     *pet.Manager
	remote   Connectivity
	producer *events.Producer
	logger   *slog.Logger

	syncKick chan struct{}
	done     chan struct{}
}

// NewServer wires the routes and middleware chain.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      deps.Config,
		router:   http.NewServeMux(),
		engine:   deps.Engine,
		pets:     deps.Pets,
		remote:   deps.Connectivity,
		producer: deps.Producer,
		logger:   logger,
		syncKick: make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	s.setupRoutes()

	handler := recoveryMiddleware(logger, loggingMiddleware(logger, correlationIDMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         deps.Config.Daemon.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /v1/health", s.handleHealth)
	s.router.HandleFunc("POST /v1/results", s.handleRecordResult)
	s.router.HandleFunc("GET /v1/results", s.handleListResults)
	s.router.HandleFunc("GET /v1/stats", s.handleStats)
	s.router.HandleFunc("GET /v1/pet", s.handlePet)
	s.router.HandleFunc("POST /v1/sync", s.handleSync)
}

// Start runs the background sync loop and serves HTTP until Shutdown.
func (s *Server) Start() error {
	go s.syncLoop()

	s.logger.Info("starting keysync daemon",
		"addr", s.server.Addr,
		"sync_interval", s.cfg.Sync.Interval(),
	)
	return s.server.ListenAndServe()
}

// Shutdown stops the sync loop and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down daemon")
	close(s.done)
	return s.server.Shutdown(ctx)
}

// syncLoop replays the pending queue on a timer and on demand after a
// write that missed the remote store.
func (s *Server) syncLoop() {
	ticker := time.NewTicker(s.cfg.Sync.Interval())
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		case <-s.syncKick:
		}

		if s.engine.PendingCount() == 0 {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		s.engine.SyncPending(ctx)
		cancel()
	}
}

// kickSync schedules an immediate sync pass without blocking.
func (s *Server) kickSync() {
	select {
	case s.syncKick <- struct{}{}:
	default:
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]any{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}
