package accounts

import (
	"context"

	"github.com/goliatone/go-accounts/middleware/jwtware"
	"github.com/goliatone/go-router"
)

// ValidationListener runs after an access token verifies and before the
// route handler. An error rejects the request.
type ValidationListener = jwtware.ValidationListener

// ContextEnricherAdapter adapts jwtware.AuthClaims to accounts.AuthClaims and
// stores them in the standard context.
func ContextEnricherAdapter(c context.Context, claims jwtware.AuthClaims) context.Context {
	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return c
	}
	return WithClaimsContext(c, authClaims)
}

// MiddlewareValidator exposes v to jwtware
func MiddlewareValidator(v TokenValidator) jwtware.TokenValidator {
	return jwtware.TokenValidatorFunc(func(tokenString string) (jwtware.AuthClaims, error) {
		claims, err := v.Validate(tokenString)
		if err != nil {
			return nil, err
		}
		return claims, nil
	})
}

// ProtectedRoute verifies access tokens with v, runs listeners in order and
// stores the claims under contextKey.
func ProtectedRoute(v TokenValidator, contextKey string, errorHandler func(router.Context, error) error, listeners ...ValidationListener) router.MiddlewareFunc {
	cfg := jwtware.Config{
		TokenValidator:      MiddlewareValidator(v),
		ErrorHandler:        errorHandler,
		ContextKey:          contextKey,
		ContextEnricher:     ContextEnricherAdapter,
		ValidationListeners: append([]ValidationListener(nil), listeners...),
	}
	return jwtware.New(cfg)
}
