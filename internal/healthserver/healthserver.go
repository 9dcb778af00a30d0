// Package healthserver wraps a plain net/http server exposing a liveness
// endpoint for the long-running daemons.
package healthserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/lyzr/workflowcore/internal/logger"
)

// HealthChecker is the narrow interface a daemon's bootstrap.Components
// satisfies.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server serves GET /healthz, reporting 200 when check succeeds and 503
// with the error otherwise.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// New builds a Server bound to :port that reports check's result at
// /healthz.
func New(name string, port int, check HealthChecker, log *logger.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := check.Health(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Start serves in the background until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) {
	go func() {
		s.log.Info("health server starting", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("health server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("health server shutdown failed", "error", err)
		}
	}()
}
