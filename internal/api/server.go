// Package api exposes the HTTP interface for the claim verification service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sedamusic/claim-verifier/internal/claims"
	"github.com/sedamusic/claim-verifier/internal/config"
	"github.com/sedamusic/claim-verifier/internal/service"
)

// Server wires HTTP handlers to the verifier service.
type Server struct {
	router   chi.Router
	verifier *service.Verifier
	validate *validator.Validate
	logger   *zap.Logger
	cfg      config.Config
}

// NewServer constructs a Server with middleware and routes. Admin routes sit
// behind the API key when auth is enabled; user routes trust the X-User-ID
// header the platform gateway injects.
func NewServer(verifier *service.Verifier, cfg config.Config, logger *zap.Logger) *Server {
	s := &Server{
		verifier: verifier,
		validate: validator.New(),
		logger:   logger,
		cfg:      cfg,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/claims", func(r chi.Router) {
			r.Post("/", s.startClaim)
			r.Route("/{request_id}", func(r chi.Router) {
				r.Get("/", s.getClaim)
				r.Post("/submit", s.submitClaim)
			})
		})
		r.Route("/admin", func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Get("/claims", s.adminQueue)
			r.Route("/claims/{request_id}", func(r chi.Router) {
				r.Post("/approve", s.adminApprove)
				r.Post("/deny", s.adminDeny)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

type startClaimRequest struct {
	ArtistName string `json:"artist_name" validate:"required,min=1,max=200"`
}

func (s *Server) startClaim(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req startClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "artist_name is required")
		return
	}
	created, err := s.verifier.StartClaim(r.Context(), userID, req.ArtistName)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, created)
}

type submitClaimRequest struct {
	TargetURL string `json:"target_url" validate:"required,url"`
	ClaimCode string `json:"claim_code" validate:"required"`
}

func (s *Server) submitClaim(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	var req submitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "target_url and claim_code are required")
		return
	}
	requestID := chi.URLParam(r, "request_id")
	if err := s.verifier.Submit(r.Context(), userID, requestID, req.TargetURL, req.ClaimCode); err != nil {
		s.writeServiceError(w, err)
		return
	}
	// The stored status is crawling; the response advertises "processing"
	// because the crawl mechanics are not part of the public contract.
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{
		"request_id": requestID,
		"status":     "processing",
	})
}

func (s *Server) getClaim(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	req, err := s.verifier.GetRequest(r.Context(), userID, chi.URLParam(r, "request_id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, req)
}

func (s *Server) adminQueue(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	queue, err := s.verifier.AdminQueue(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if queue == nil {
		queue = []claims.VerificationRequest{}
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"claims": queue})
}

type adminApproveRequest struct {
	Notes string `json:"notes"`
}

func (s *Server) adminApprove(w http.ResponseWriter, r *http.Request) {
	var req adminApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	approved, err := s.verifier.AdminApprove(r.Context(), chi.URLParam(r, "request_id"), req.Notes)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, approved)
}

type adminDenyRequest struct {
	Reason string `json:"reason" validate:"required,min=10"`
}

func (s *Server) adminDeny(w http.ResponseWriter, r *http.Request) {
	var req adminDenyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, "reason must be at least 10 characters")
		return
	}
	denied, err := s.verifier.AdminDeny(r.Context(), chi.URLParam(r, "request_id"), req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, denied)
}

// requireUser pulls the authenticated user from the gateway header.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		s.writeError(w, http.StatusUnauthorized, "missing user identity")
		return "", false
	}
	return userID, true
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, claims.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, claims.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, claims.ErrConflictingRequest), errors.Is(err, claims.ErrInvalidState):
		status = http.StatusConflict
	case errors.Is(err, claims.ErrCodeMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, claims.ErrExpired):
		status = http.StatusGone
	case errors.Is(err, service.ErrInvalidTargetURL), errors.Is(err, service.ErrReasonTooShort):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
		s.writeError(w, status, "internal server error")
		return
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(s.logger, w, status, map[string]string{"error": msg})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
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
					writeJSON(logger, w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
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

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type requestIDKey struct{}

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
