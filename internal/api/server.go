package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"mediabatch/internal/core/domain"
	"mediabatch/internal/service"
)

const (
	maxBodyBytes = 64 << 10

	kindMethodNotAllowed = "method-not-allowed"
)

// JobRunner executes acquisition jobs. *service.Orchestrator implements it.
type JobRunner interface {
	RunJob(ctx context.Context, req service.JobRequest) (*domain.JobResult, error)
	ListItems(ctx context.Context, listing domain.ListingReference, window domain.PageWindow) (*domain.ListResult, error)
}

// Options configures the HTTP server.
type Options struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	MaxPageSize int
	// MaxListingItems caps page_index*page_size. Zero only guards overflow.
	MaxListingItems int
	DefaultPageSize int
	DefaultMode     domain.DeliveryMode
}

// Server exposes the job pipeline over HTTP.
type Server struct {
	runner JobRunner
	opts   Options
	logger *slog.Logger
	server *http.Server
}

// NewServer creates a new Server.
func NewServer(runner JobRunner, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 10
	}
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = min(3, opts.MaxPageSize)
	}
	if opts.DefaultMode == "" {
		opts.DefaultMode = domain.DeliveryDirect
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}

	s := &Server{
		runner: runner,
		opts:   opts,
		logger: logger.With(slog.String("component", "api-server")),
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: opts.ReadHeaderTimeout,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       opts.IdleTimeout,
	}
	return s
}

// Handler returns the routed handler, wrapped with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/jobs", s.handleJobs)
	mux.HandleFunc("/jobs/list", s.handleList)
	return s.logRequests(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()
	s.logger.Info("api server listening", slog.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, http.StatusMethodNotAllowed, kindMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, kindMethodNotAllowed, "method not allowed")
		return
	}
	req, err := s.decodeJob(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, string(domain.FailureInvalidInput), err.Error())
		return
	}

	result, err := s.runner.RunJob(r.Context(), req)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, kindMethodNotAllowed, "method not allowed")
		return
	}
	req, err := s.decodeJob(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, string(domain.FailureInvalidInput), err.Error())
		return
	}

	result, err := s.runner.ListItems(r.Context(), req.Listing, req.Window)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

// writeFailure maps job-fatal failures onto status codes.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var jobErr *domain.JobError
	if !errors.As(err, &jobErr) {
		if errors.Is(err, domain.ErrInvalidInput) {
			s.writeError(w, http.StatusBadRequest, string(domain.FailureInvalidInput), err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, string(domain.FailureInternal), err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch jobErr.Kind {
	case domain.FailureInvalidInput, domain.FailureNoItems:
		status = http.StatusBadRequest
	case domain.FailureUpstream, domain.FailureAllItemsFailed:
		status = http.StatusBadGateway
	}
	s.writeError(w, status, string(jobErr.Kind), jobErr.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, kind, message string) {
	s.writeJSON(w, status, map[string]string{"error": message, "kind": kind})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request completed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}
