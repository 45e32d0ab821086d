package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/heavy-aggregator/internal/harvest"
	"github.com/JakeFAU/heavy-aggregator/internal/metrics"
	"github.com/JakeFAU/heavy-aggregator/internal/middleware"
)

// CheckpointReader exposes a copy of the checkpoint document.
type CheckpointReader interface {
	Snapshot() map[string]any
}

// Server serves read-only harvest status.
type Server struct {
	router     chi.Router
	checkpoint CheckpointReader
	logger     *zap.Logger

	mu      sync.RWMutex
	active  string
	reports []harvest.Report
}

// NewServer constructs a Server with middleware and routes.
func NewServer(checkpoint CheckpointReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{checkpoint: checkpoint, logger: logger.Named("api")}

	r := chi.NewRouter()
	r.Use(middleware.Recover(s.logger))
	r.Use(middleware.Logging(s.logger))
	r.Use(middleware.Metrics)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Get("/checkpoint", s.getCheckpoint)
		r.Get("/runs", s.getRuns)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetActive records the source currently being harvested ("" when idle).
func (s *Server) SetActive(source string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = source
}

// RecordReport appends a finished run.
func (s *Server) RecordReport(report harvest.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("status server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown status server: %w", err)
		}
		return nil
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	active := s.active
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "active_source": active})
}

func (s *Server) getCheckpoint(w http.ResponseWriter, _ *http.Request) {
	if s.checkpoint == nil {
		writeError(w, http.StatusServiceUnavailable, "checkpoint store not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.checkpoint.Snapshot())
}

func (s *Server) getRuns(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	runs := append([]harvest.Report{}, s.reports...)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
