package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/medicare/appointment-scheduling/internal/scheduling"
)

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	callerKey    contextKey = "caller"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs each request with method, path, status and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.statusCode).
			Dur("duration", time.Since(start)).
			Str("request_id", GetRequestID(r.Context())).
			Msg("http request")
	})
}

// TimeoutMiddleware bounds all downstream persistence work per request.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityMiddleware lifts the authenticated caller out of the headers the
// auth collaborator sets upstream. The core trusts this input.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		idStr := r.Header.Get("X-User-ID")
		roleStr := r.Header.Get("X-User-Role")
		if idStr == "" || roleStr == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_identity", "X-User-ID must be a valid UUID")
			return
		}

		role := scheduling.Role(roleStr)
		switch role {
		case scheduling.RolePatient, scheduling.RoleDoctor, scheduling.RoleAdmin:
		default:
			writeError(w, http.StatusUnauthorized, "invalid_identity", "unknown role")
			return
		}

		ctx := context.WithValue(r.Context(), callerKey, scheduling.Caller{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireIdentity rejects requests that carry no caller identity.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CallerFromContext(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "missing_identity", "X-User-ID and X-User-Role headers are required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func CallerFromContext(ctx context.Context) (scheduling.Caller, bool) {
	c, ok := ctx.Value(callerKey).(scheduling.Caller)
	return c, ok
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
