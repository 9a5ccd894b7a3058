// Package status exposes a small read-only HTTP JSON surface reporting the
// Orchestrator's last decisions, cooldown state, and last-failure reason per
// action kind. It fills the seam the spec's HTTP dashboard would read from
// without implementing the dashboard itself.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-io/pulse/pkg/cooldown"
	"github.com/pulse-io/pulse/pkg/decisionlog"
)

// Source supplies the live state status.Server reports. The Orchestrator
// satisfies this with its own decision log and cooldown ledger.
type Source interface {
	RecentDecisions(n int) []decisionlog.Decision
	CooldownSnapshot() map[cooldown.Scope]time.Time
	CurrentReplicas() int32
}

// Server serves /healthz, /readyz, and /status on its own net/http.Server,
// following the teacher's webhook server shape (mux, Start/Shutdown with a
// bounded grace period).
type Server struct {
	server *http.Server
	logger *zap.Logger
	source Source

	mu            sync.RWMutex
	lastFailure   map[string]string
}

// Config configures the status server.
type Config struct {
	Addr   string
	Source Source
	Logger *zap.Logger
}

// NewServer builds a Server ready to Start.
func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{
		logger:      cfg.Logger,
		source:      cfg.Source,
		lastFailure: make(map[string]string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleHealthz)
	mux.HandleFunc("/status", s.handleStatus)

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start runs the HTTP server until ctx is cancelled, satisfying
// sigs.k8s.io/controller-runtime/pkg/manager.Runnable.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("status server starting", zap.String("addr", s.server.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down status server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// RecordFailure records the last-seen failure reason for an action kind
// (e.g. "replica", "node", "oom"), per spec.md §7's user-visible-failures
// requirement. A successful action clears the recorded failure.
func (s *Server) RecordFailure(kind string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.lastFailure, kind)
		return
	}
	s.lastFailure[kind] = err.Error()
}

type statusResponse struct {
	CurrentReplicas int32                     `json:"current_replicas"`
	RecentDecisions []decisionlog.Decision    `json:"recent_decisions"`
	Cooldowns       map[string]string         `json:"cooldowns"`
	LastFailures    map[string]string         `json:"last_failures,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.source == nil {
		http.Error(w, "status source not configured", http.StatusServiceUnavailable)
		return
	}

	snapshot := s.source.CooldownSnapshot()
	cooldowns := make(map[string]string, len(snapshot))
	now := time.Now()
	for scope, until := range snapshot {
		if until.After(now) {
			cooldowns[string(scope)] = until.Format(time.RFC3339)
		}
	}

	s.mu.RLock()
	failures := make(map[string]string, len(s.lastFailure))
	for k, v := range s.lastFailure {
		failures[k] = v
	}
	s.mu.RUnlock()

	resp := statusResponse{
		CurrentReplicas: s.source.CurrentReplicas(),
		RecentDecisions: s.source.RecentDecisions(20),
		Cooldowns:       cooldowns,
		LastFailures:    failures,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("failed to encode status response", zap.Error(err))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, "ok")
}
