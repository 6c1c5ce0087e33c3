package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/petermazzocco/go-blog-api/pkg/logger"
	"github.com/petermazzocco/go-blog-api/pkg/response"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}

// Authenticate rejects requests without a live token and stores the user and raw token
// on the request context.
func Authenticate(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := BearerToken(r)
			if !ok {
				response.Error(w, http.StatusUnauthorized, response.MsgUnauthorized)
				return
			}
			user, _, err := tokens.Validate(r.Context(), raw)
			if err != nil {
				if !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrTokenExpired) &&
					!errors.Is(err, ErrTokenRevoked) {
					logger.FromContext(r.Context()).Error("token validation failed", "error", err)
					response.Error(w, http.StatusInternalServerError, response.MsgInternal)
					return
				}
				response.Error(w, http.StatusUnauthorized, response.MsgUnauthorized)
				return
			}
			ctx := WithToken(WithUser(r.Context(), user), raw)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through only if the authenticated user holds one of roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				response.Error(w, http.StatusUnauthorized, response.MsgUnauthorized)
				return
			}
			actor := ActorFromUser(user)
			for _, role := range roles {
				if actor.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, http.StatusForbidden, response.MsgUnauthorized)
		})
	}
}
