// Package server provides the HTTP API of the plasmid sequencing service.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"goa.design/clue/log"

	"github.com/jonathan/bulk-plasmid-seq/internal/runs"
	"github.com/jonathan/bulk-plasmid-seq/internal/server/ratelimit"
)

// ModelLister lists the consensus models offered to clients.
type ModelLister interface {
	Models(ctx context.Context) ([]string, error)
}

// OffsetFinder locates restriction enzyme cut sites in a reference session.
type OffsetFinder interface {
	Offsets(ctx context.Context, serverID, enzymes string) (json.RawMessage, error)
}

// Server represents the HTTP server
type Server struct {
	httpServer     *http.Server
	svc            *runs.Service
	models         ModelLister
	cutSites       OffsetFinder
	rateLimiter    *ratelimit.Limiter
	corsOrigin     string
	maxUploadBytes int64
}

// Config holds server configuration
type Config struct {
	Port           int
	CORSOrigin     string
	RateLimit      *ratelimit.Config
	MaxUploadBytes int64 // Zero means unlimited
}

// New creates a new server instance. ctx carries the logger used for
// request logs.
func New(ctx context.Context, cfg Config, svc *runs.Service, models ModelLister, cutSites OffsetFinder) *Server {
	s := &Server{
		svc:            svc,
		models:         models,
		cutSites:       cutSites,
		rateLimiter:    ratelimit.NewLimiter(cfg.RateLimit),
		corsOrigin:     cfg.CORSOrigin,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Staging
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("DELETE /api/delete", s.handleDelete)
	mux.HandleFunc("POST /api/check-format", s.handleCheckFormat)

	// Runs and jobs
	mux.HandleFunc("POST /api/runs", s.handleSubmitRun)
	mux.HandleFunc("POST /api/runs/restore", s.handleRestoreRun)
	mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)
	mux.HandleFunc("GET /api/jobs/{id}/events", s.handleJobEvents)
	mux.HandleFunc("DELETE /api/jobs/{id}", s.handleCancelJob)

	// Results
	mux.HandleFunc("POST /api/results/prepare", s.handlePrepareResults)
	mux.HandleFunc("GET /api/results/download", s.handleDownloadResults)
	mux.HandleFunc("GET /api/results/file", s.handleResultFile)

	// Helper scripts
	mux.HandleFunc("POST /api/models", s.handleModels)
	mux.HandleFunc("POST /api/enzymes/offsets", s.handleEnzymeOffsets)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.withLogging(ctx, s.withRateLimit(s.withCORS(mux))),
		ReadTimeout:  10 * time.Minute, // Large read uploads
		WriteTimeout: 0,                // Event streams stay open until the job ends
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped request handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves requests until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		log.Infof(ctx, "server starting on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Infof(ctx, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.rateLimiter.Stop()
	log.Infof(ctx, "server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// withRateLimit adds rate limiting middleware
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(s.extractClientID(r), r.URL.Path, r.Method)
		s.setRateLimitHeaders(w, info)
		if !allowed {
			s.rateLimitResponse(w, r, info)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging installs the request logger and logs every request
func (s *Server) withLogging(ctx context.Context, next http.Handler) http.Handler {
	logged := log.HTTP(ctx)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Event streams keep the raw writer so they can flush.
		if strings.HasSuffix(r.URL.Path, "/events") {
			log.Info(ctx, log.KV{K: "msg", V: "event stream opened"}, log.KV{K: "path", V: r.URL.Path})
			next.ServeHTTP(w, r.WithContext(log.WithContext(r.Context(), ctx)))
			return
		}
		logged.ServeHTTP(w, r)
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Errorf(context.Background(), err, "error encoding JSON response")
	}
}

// errorResponse writes the classified error as {"error", "kind"}
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error(r.Context(), err, log.KV{K: "path", V: r.URL.Path})
	}
	s.jsonResponse(w, status, ErrorResponse{Error: err.Error(), Kind: string(ErrorKind(err))})
}

// extractClientID extracts the client identifier from the request.
func (s *Server) extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// setRateLimitHeaders sets standard rate limit headers on the response.
func (s *Server) setRateLimitHeaders(w http.ResponseWriter, info ratelimit.Info) {
	if info.Limit > 0 {
		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
	}
}

// rateLimitResponse writes a 429 Too Many Requests response with rate limit information.
func (s *Server) rateLimitResponse(w http.ResponseWriter, r *http.Request, info ratelimit.Info) {
	response := map[string]any{
		"error":     "Rate limit exceeded. Please try again later.",
		"kind":      "rate_limited",
		"limit":     info.Limit,
		"remaining": info.Remaining,
		"reset_at":  info.ResetTime.Format(time.RFC3339),
	}
	if info.RetryAfter > 0 {
		response["retry_after"] = int(info.RetryAfter.Seconds())
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(info.RetryAfter.Seconds())))
	}

	log.Warn(r.Context(), log.KV{K: "msg", V: "rate limit exceeded"}, log.KV{K: "client", V: s.extractClientID(r)},
		log.KV{K: "path", V: r.URL.Path}, log.KV{K: "limit", V: info.Limit})

	s.jsonResponse(w, http.StatusTooManyRequests, response)
}
