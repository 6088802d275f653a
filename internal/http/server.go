// Package http exposes the tracker over a JSON API. Every data route is
// scoped to the session's owner; the middleware chain adds request IDs,
// structured request logging, security headers, and rate limiting on
// mutating methods.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"tally/internal/identity"
	"tally/internal/services"
	"tally/internal/session"
	"tally/internal/storage"
)

const sessionCookie = "session"

type ctxKey string

const requestIDKey ctxKey = "request_id"

// Options tunes the server; zero values fall back to defaults.
type Options struct {
	SessionTTL         time.Duration
	RateLimitPerMinute int
}

type Server struct {
	http.Server

	ledger       *storage.Ledger
	auth         *identity.Service
	sessions     session.Store
	transactions *services.TransactionService
	queries      *services.QueryService

	sessionTTL  time.Duration
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, ledger *storage.Ledger, auth *identity.Service, sessions session.Store, transactions *services.TransactionService, queries *services.QueryService, opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 60
	}

	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		ledger:       ledger,
		auth:         auth,
		sessions:     sessions,
		transactions: transactions,
		queries:      queries,
		sessionTTL:   opts.SessionTTL,
		rateLimiter:  newRateLimiter(opts.RateLimitPerMinute),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /api/register", s.withCommon(s.handleRegister))
	mux.HandleFunc("POST /api/login", s.withCommon(s.handleLogin))
	mux.HandleFunc("POST /api/logout", s.withCommon(s.handleLogout))
	mux.HandleFunc("GET /api/profile", s.withCommon(s.withAuth(s.handleProfile)))

	mux.HandleFunc("GET /api/accounts", s.withCommon(s.withAuth(s.handleListAccounts)))
	mux.HandleFunc("POST /api/accounts", s.withCommon(s.withAuth(s.handleCreateAccount)))

	mux.HandleFunc("GET /api/categories", s.withCommon(s.withAuth(s.handleListCategories)))
	mux.HandleFunc("POST /api/categories", s.withCommon(s.withAuth(s.handleCreateCategory)))

	mux.HandleFunc("GET /api/transactions", s.withCommon(s.withAuth(s.handleListTransactions)))
	mux.HandleFunc("POST /api/transactions", s.withCommon(s.withAuth(s.handleCreateTransaction)))
	mux.HandleFunc("PUT /api/transactions/{id}", s.withCommon(s.withAuth(s.handleUpdateTransaction)))
	mux.HandleFunc("DELETE /api/transactions/{id}", s.withCommon(s.withAuth(s.handleDeleteTransaction)))

	return s
}

// Shutdown gracefully shuts down the server and the rate limiter cleanup
// goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// withCommon adds request IDs, request logging, security headers, and rate
// limiting on mutating methods.
func (s *Server) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		clientIP := extractClientIP(r)

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		if isMutating(r.Method) && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			respondError(ctx, w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

// withAuth resolves the session cookie to an owner and rejects the request
// with 401 when there is no valid session.
func (s *Server) withAuth(next func(w http.ResponseWriter, r *http.Request, ownerID int64)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			respondError(r.Context(), w, http.StatusUnauthorized, "authentication required")
			return
		}
		ownerID, err := s.sessions.Lookup(r.Context(), cookie.Value)
		if err != nil {
			respondError(r.Context(), w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r, ownerID)
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.ledger.Ping(ctx); err != nil {
		slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
