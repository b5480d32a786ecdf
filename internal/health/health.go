package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okibe/mailgram/internal/intake"
	"github.com/okibe/mailgram/internal/logger"
)

// CycleRunner is the slice of the pipeline the HTTP surface needs.
type CycleRunner interface {
	RunCycle(ctx context.Context) (intake.CycleResult, error)
	Snapshot() intake.Stats
}

// WatcherStatus is the connection loop's view for the status page.
type WatcherStatus struct {
	State      string `json:"state"`
	Reconnects int    `json:"reconnects"`
}

// Server exposes the operational surface: liveness, counters and a
// manual mailbox check.
type Server struct {
	pipeline CycleRunner
	watcher  func() WatcherStatus

	// lifetime outlives any single request; manual checks run on it so
	// a request deadline or a closed connection cannot abort a cycle
	// after messages were already marked seen
	lifetime context.Context
	log      logger.Logger
}

func NewServer(lifetime context.Context, pipeline CycleRunner, watcher func() WatcherStatus) *Server {
	if lifetime == nil {
		lifetime = context.Background()
	}

	return &Server{
		pipeline: pipeline,
		watcher:  watcher,
		lifetime: lifetime,
		log:      logger.GetLogger(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(2 * time.Minute))
		r.Get("/healthz", s.handleHealthz)
		r.Get("/status", s.handleStatus)
	})

	// no timeout here: a check legitimately runs as long as its render
	// budgets allow
	r.Post("/check", s.handleCheck)

	return r
}

type statusResponse struct {
	Watcher WatcherStatus `json:"watcher"`
	Intake  intake.Stats  `json:"intake"`
}

type checkResponse struct {
	Fetched   int `json:"fetched"`
	Delivered int `json:"delivered"`
	Degraded  int `json:"degraded"`
	Skipped   int `json:"skipped"`
	Failures  int `json:"failures"`
}

// handleHealthz is liveness plus the one thing an orchestrator should
// restart us for: a watcher that gave up reconnecting.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	if s.watcher().State == "failed" {
		http.Error(w, "mailbox watcher failed", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.respondJSON(w, http.StatusOK, statusResponse{
		Watcher: s.watcher(),
		Intake:  s.pipeline.Snapshot(),
	})
}

func (s *Server) handleCheck(w http.ResponseWriter, _ *http.Request) {
	result, err := s.pipeline.RunCycle(s.lifetime)
	if err != nil {
		s.log.Errorw("manual check failed",
			"error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	s.respondJSON(w, http.StatusOK, checkResponse{
		Fetched:   result.Fetched,
		Delivered: result.Delivered,
		Degraded:  result.Degraded,
		Skipped:   result.Skipped,
		Failures:  result.Failures,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Errorw("could not write response",
			"error", err)
	}
}
