// Package api is the HTTP façade over the workflow orchestrator. Handlers
// pass query parameters through as given and translate workflow errors to
// status codes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"listingscout/internal/listings"
	"listingscout/internal/logging"
	"listingscout/internal/workflow"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Runner is the part of the orchestrator the façade drives.
type Runner interface {
	SearchOnly(ctx context.Context, query string) ([]string, error)
	NavigateOnly(ctx context.Context, location string) ([]listings.Record, error)
	FullWorkflow(ctx context.Context, query, location string) (*workflow.Result, error)
	Scrape(ctx context.Context, query, location string) ([]listings.Record, error)
}

var _ Runner = (*workflow.Orchestrator)(nil)

// Server routes façade requests to a Runner.
type Server struct {
	runner Runner
	logger *zap.Logger
	router *mux.Router
}

// NewServer builds the router.
func NewServer(runner Runner, logger *zap.Logger) *Server {
	s := &Server{
		runner: runner,
		logger: logging.OrNop(logger),
		router: mux.NewRouter(),
	}
	s.router.Use(s.requestLog)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	// Registered on the root router: a subrouter answers a wrong method with 404.
	s.router.HandleFunc("/api/scrape", s.handleScrape).Methods(http.MethodGet)
	s.router.HandleFunc("/api/test-search", s.handleSearch).Methods(http.MethodGet)
	s.router.HandleFunc("/api/test-zillow", s.handleNavigate).Methods(http.MethodGet)
	s.router.HandleFunc("/api/test-workflow", s.handleWorkflow).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, readTimeout, writeTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	s.logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-errCh
	return nil
}

type requestIDKey struct{}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		s.logger.Info("Request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.runner.Scrape(r.Context(), q.Get("query"), q.Get("location"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(records))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	links, err := s.runner.SearchOnly(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if links == nil {
		links = []string{}
	}
	s.writeJSON(w, http.StatusOK, map[string][]string{"links": links})
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	records, err := s.runner.NavigateOnly(r.Context(), r.URL.Query().Get("location"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, nonNil(records))
}

func (s *Server) handleWorkflow(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.runner.FullWorkflow(r.Context(), q.Get("query"), q.Get("location"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res.ListingData = nonNil(res.ListingData)
	if res.GoogleLinks == nil {
		res.GoogleLinks = []string{}
	}
	s.writeJSON(w, http.StatusOK, res)
}

func nonNil(records []listings.Record) []listings.Record {
	if records == nil {
		return []listings.Record{}
	}
	return records
}

// statusFor maps a workflow error to its response code.
func statusFor(err error) int {
	if errors.Is(err, workflow.ErrBusy) {
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	s.logger.Warn("Request failed", zap.String("request_id", id), zap.String("path", r.URL.Path), zap.Error(err))
	s.writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("Response write failed", zap.Error(err))
	}
}
