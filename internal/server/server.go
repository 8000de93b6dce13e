// Package server implements the ck-sync dev server: the HTTP contract
// the ck client speaks, backed by a sqlite token and record store. One
// record per user, bearer-token auth, asserted identity must match the
// token subject.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Error codes carried in the error body.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeInternal     = "internal"
)

type contextKey int

const (
	ctxKeyTokenUser contextKey = iota
	ctxKeyRequestID
	ctxKeyLogger
)

// Server is the HTTP server for ck-sync.
type Server struct {
	config Config
	http   *http.Server
	store  *DB
}

// NewServer creates a Server with the given config and store.
func NewServer(cfg Config, store *DB) *Server {
	s := &Server{config: cfg, store: store}
	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Routes builds the HTTP handler with all routes and middleware.
// Exported so tests can drive the full stack through httptest.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /save", s.requireAuth(s.handleSave))
	mux.HandleFunc("GET /load", s.requireAuth(s.handleLoad))

	return chain(mux,
		recoveryMiddleware,
		requestIDMiddleware,
		loggerMiddleware,
		loggingMiddleware,
		maxBytesMiddleware(s.config.MaxBodyBytes),
	)
}

// handleHealth returns a health check response, pinging the store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// saveRequest mirrors the client save body.
type saveRequest struct {
	UserID    string          `json:"userId"`
	UserEmail string          `json:"userEmail"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"`
}

// handleSave persists the caller's record. The asserted userId must
// match the token subject; on mismatch nothing is written.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "missing userId")
		return
	}
	user := tokenUserFrom(r.Context())
	if req.UserID != user.UserID {
		logFor(r.Context()).Warn("save identity mismatch", "asserted", req.UserID)
		writeError(w, http.StatusForbidden, ErrCodeForbidden, "userId does not match token")
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "missing data")
		return
	}

	ts := req.Timestamp
	if ts == "" {
		ts = time.Now().UTC().Format(time.RFC3339)
	}
	if err := s.store.PutRecord(user.UserID, req.Data, ts); err != nil {
		logFor(r.Context()).Error("put record", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "storage failure")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   "saved",
		"timestamp": ts,
		"userId":    user.UserID,
	})
}

// handleLoad returns the caller's record, or a null data payload when
// nothing has been saved yet.
func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "missing userId")
		return
	}
	user := tokenUserFrom(r.Context())
	if userID != user.UserID {
		logFor(r.Context()).Warn("load identity mismatch", "asserted", userID)
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "userId does not match token")
		return
	}

	rec, ok, err := s.store.GetRecord(user.UserID)
	if err != nil {
		logFor(r.Context()).Error("get record", "err", err)
		writeError(w, http.StatusInternalServerError, ErrCodeInternal, "storage failure")
		return
	}

	resp := map[string]any{
		"success":   true,
		"data":      nil,
		"timestamp": "",
		"userId":    user.UserID,
	}
	if ok {
		resp["data"] = rec.Data
		resp["timestamp"] = rec.Timestamp
	}
	writeJSON(w, http.StatusOK, resp)
}

// requireAuth verifies the Bearer token and injects the resolved user
// into the context before calling the inner handler.
func (s *Server) requireAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid authorization format")
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		user, err := s.store.VerifyToken(token)
		if err != nil {
			logFor(r.Context()).Error("verify token", "err", err)
			writeError(w, http.StatusInternalServerError, ErrCodeInternal, "failed to verify token")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyTokenUser, user)
		ctx = context.WithValue(ctx, ctxKeyLogger, logFor(ctx).With("uid", user.UserID))
		handler(w, r.WithContext(ctx))
	}
}

// tokenUserFrom returns the authenticated user from the request context.
func tokenUserFrom(ctx context.Context) *TokenUser {
	u, _ := ctx.Value(ctxKeyTokenUser).(*TokenUser)
	return u
}

func getRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// logFor returns the context-scoped logger, falling back to the default logger.
func logFor(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKeyLogger).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// recoveryMiddleware catches panics and returns a 500 response.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logFor(r.Context()).Error("panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requestIDMiddleware generates a unique request ID and adds it to the
// context and response headers.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := generateRequestID()
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggerMiddleware creates a per-request logger with the request ID.
func loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := slog.Default().With("rid", getRequestID(r.Context()))
		ctx := context.WithValue(r.Context(), ctxKeyLogger, l)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusCapture wraps ResponseWriter to capture the status code.
type statusCapture struct {
	http.ResponseWriter
	code int
}

func (sc *statusCapture) WriteHeader(code int) {
	sc.code = code
	sc.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs each request with method, path, status, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sc := &statusCapture{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sc, r)
		logFor(r.Context()).Info("req",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sc.code,
			"dur", time.Since(start).String(),
		)
	})
}

// maxBytesMiddleware limits request body size to prevent abuse.
func maxBytesMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// chain applies middleware in order (first applied is outermost).
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// apiError is the error body shape.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a JSON error response with the given HTTP status code.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, apiError{Code: code, Message: message})
}

// writeJSON writes a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("write json response", "err", err)
	}
}

// generateRequestID creates a random hex string for request tracing.
func generateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
}
