package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ayolclub/travel-auth/internal/domain"
	"github.com/ayolclub/travel-auth/internal/http/response"
	"github.com/ayolclub/travel-auth/internal/security"
	"github.com/ayolclub/travel-auth/internal/service"
)

type contextKey string

const (
	SessionContextKey contextKey = "session"
)

// LoadSession attaches the session named by the cookie, if any. Requests
// without a valid session pass through anonymous.
func LoadSession(resolver service.SessionResolver, cookies *security.CookieManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := cookies.SessionToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			sess, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if !errors.Is(err, service.ErrUnauthenticated) {
					slog.WarnContext(r.Context(), "session lookup failed", "error", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), SessionContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession rejects anonymous requests with 401. It must run after
// LoadSession.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := SessionFromContext(r.Context()); !ok {
			response.Error(w, r, http.StatusUnauthorized, service.ErrUnauthenticated.Message, nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func SessionFromContext(ctx context.Context) (*domain.Session, bool) {
	s, ok := ctx.Value(SessionContextKey).(*domain.Session)
	return s, ok && s != nil
}
