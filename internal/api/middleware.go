package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dbsentinel/dbsentinel/internal/auth"
)

// contextKey is an unexported type for context keys defined in this package.
type contextKey int

const contextKeyPrincipal contextKey = iota

// Authenticate validates the bearer token present in the Authorization
// header against verifier and, on success, stores the resolved
// auth.Principal in the request context for RequireRole and handlers to
// read via principalFromCtx.
//
// Token format: "Authorization: Bearer <token>"
func Authenticate(verifier auth.TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				ErrUnauthorized(w)
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				ErrUnauthorized(w)
				return
			}

			principal, err := verifier.Verify(r.Context(), parts[1])
			if err != nil {
				ErrUnauthorized(w)
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyPrincipal, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns a middleware that allows the request to proceed only
// if the authenticated principal has role (backup:admin always passes, per
// auth.Principal.HasRole). Must run after Authenticate in the chain.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := principalFromCtx(r.Context())
			if !ok {
				// Should never happen if Authenticate runs first.
				ErrUnauthorized(w)
				return
			}
			if !principal.HasRole(role) {
				ErrForbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger returns a Chi-compatible middleware that logs each request
// with method, path, status, latency, and request id.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("remote_addr", r.RemoteAddr),
			)
		})
	}
}

// principalFromCtx retrieves the auth.Principal stored by Authenticate.
// The bool is false for an unauthenticated request.
func principalFromCtx(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(contextKeyPrincipal).(auth.Principal)
	return p, ok
}
