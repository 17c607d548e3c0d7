// Package api exposes the HTTP interface for the scan service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenlix/aeoscan/internal/metrics"
	"github.com/xenlix/aeoscan/internal/scan"
)

// Enqueuer hands accepted jobs to the background pipeline. The dispatcher
// satisfies this.
type Enqueuer interface {
	Enqueue(ctx context.Context, item scan.QueueItem) error
}

// Config holds the handful of knobs the HTTP layer needs.
type Config struct {
	RequestTimeout time.Duration
	JobTTL         time.Duration
}

// Server wires HTTP handlers to the job store and dispatcher.
type Server struct {
	router   chi.Router
	store    scan.JobStore
	enqueuer Enqueuer
	idGen    scan.IDGenerator
	clock    scan.Clock
	premium  scan.PremiumChecker
	cfg      Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	store scan.JobStore,
	enqueuer Enqueuer,
	idGen scan.IDGenerator,
	clock scan.Clock,
	premium scan.PremiumChecker,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.JobTTL == 0 {
		cfg.JobTTL = 24 * time.Hour
	}
	s := &Server{
		store:    store,
		enqueuer: enqueuer,
		idGen:    idGen,
		clock:    clock,
		premium:  premium,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/scans", func(r chi.Router) {
			r.Post("/", s.submitScan)
			r.Route("/{scan_id}", func(r chi.Router) {
				r.Get("/status", s.getStatus)
				r.Get("/teaser", s.getTeaser)
				r.Get("/full", s.getFull)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// A store round trip proves the backend is reachable. ErrNotFound is a
	// healthy answer.
	if _, err := s.store.GetJob(r.Context(), "readiness-probe"); err != nil && !errors.Is(err, scan.ErrNotFound) {
		writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitScanRequest struct {
	URL string `json:"url"`
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	var req submitScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	target := strings.TrimSpace(req.URL)
	if target == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	if err := scan.ValidateTargetURL(target); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate scan id failed")
		return
	}
	now := s.clock.Now()
	job := scan.Job{
		ID:        jobID,
		URL:       target,
		State:     scan.StateQueued,
		Created:   now,
		Updated:   now,
		ExpiresAt: now.Add(s.cfg.JobTTL),
	}
	if err := s.store.CreateJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, "create scan failed")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	item := scan.QueueItem{
		JobID:     jobID,
		URL:       target,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.enqueuer.Enqueue(queueCtx, item); err != nil {
		s.logger.Error("enqueue scan failed", zap.String("scan_id", jobID), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "scan queue unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"scan_id": jobID,
		"status":  job.State.ExternalStatus(),
	})
}

type statusResponse struct {
	ScanID   string `json:"scan_id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Step     string `json:"step,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ScanID:   job.ID,
		Status:   job.State.ExternalStatus(),
		Progress: job.Progress,
		Step:     string(job.Step),
		Error:    job.ErrorText,
	})
}

func (s *Server) getTeaser(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	// A published teaser stays readable even if the job later failed.
	if job.Teaser == nil {
		if job.State.ExternalStatus() == "failed" {
			writeError(w, http.StatusConflict, job.ErrorText)
			return
		}
		writeError(w, http.StatusTooEarly, "teaser not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id": job.ID,
		"status":  job.State.ExternalStatus(),
		"teaser":  job.Teaser,
	})
}

func (s *Server) getFull(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	if !s.premium.IsPremium(r.Context(), bearerToken(r)) {
		writeError(w, http.StatusPaymentRequired, "full report requires a premium token")
		return
	}
	if job.Full == nil {
		if job.State.ExternalStatus() == "failed" {
			writeError(w, http.StatusConflict, job.ErrorText)
			return
		}
		writeError(w, http.StatusTooEarly, "full report not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"scan_id": job.ID,
		"status":  job.State.ExternalStatus(),
		"full":    job.Full,
	})
}

func (s *Server) lookupJob(w http.ResponseWriter, r *http.Request) (scan.Job, bool) {
	jobID := chi.URLParam(r, "scan_id")
	job, err := s.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			writeError(w, http.StatusNotFound, "scan not found")
		} else {
			s.logger.Error("get scan failed", zap.String("scan_id", jobID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load scan")
		}
		return scan.Job{}, false
	}
	return job, true
}

// bearerToken pulls the premium token from Authorization: Bearer or the
// X-API-Key header.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.Header.Get("X-API-Key")
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
