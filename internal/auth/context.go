package auth

import (
	"context"

	"github.com/petermazzocco/go-blog-api/models"
)

type userKey struct{}

type tokenKey struct{}

func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey{}).(*models.User)
	return user, ok && user != nil
}

// WithToken stores the raw bearer token so logout can revoke it.
func WithToken(ctx context.Context, raw string) context.Context {
	return context.WithValue(ctx, tokenKey{}, raw)
}

func TokenFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(tokenKey{}).(string)
	return raw, ok && raw != ""
}
