package accounts

import (
	"context"

	"github.com/goliatone/go-router"
)

// DefaultContextKey is the router locals key jwtware stores claims under
const DefaultContextKey = "user"

type ctxKey int

const (
	userCtxKey ctxKey = iota
	claimsCtxKey
)

func ctxValue[T any](ctx context.Context, key ctxKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

func UserFromContext(ctx context.Context) (*User, bool) {
	return ctxValue[*User](ctx, userCtxKey)
}

// WithClaimsContext stores verified claims for code that only sees a
// context.Context
func WithClaimsContext(ctx context.Context, claims AuthClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

func GetClaims(ctx context.Context) (AuthClaims, bool) {
	return ctxValue[AuthClaims](ctx, claimsCtxKey)
}

// GetRouterClaims reads the claims jwtware left in the router locals. An
// empty key means DefaultContextKey.
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	claims, ok := ctx.Locals(key).(AuthClaims)
	return claims, ok
}

// IsAtLeast is false when ctx carries no claims
func IsAtLeast(ctx context.Context, minTier Tier) bool {
	claims, ok := GetClaims(ctx)
	return ok && claims.IsAtLeast(minTier.String())
}
