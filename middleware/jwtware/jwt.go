// Package jwtware verifies bearer access tokens for go-router handlers.
//
// Tokens are checked either by a TokenValidator supplied by the caller or by
// the built in RS256 validator, which resolves keys from a static key, a kid
// keyed map or remote JWK Sets.
package jwtware

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
)

// DefaultAudience is the audience tag of access tokens
const DefaultAudience = "access"

const (
	defaultContextKey = "user"
	defaultAuthScheme = "Bearer"
)

var (
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
	// ErrInsufficientTier is returned when the token tier is below MinimumRole
	ErrInsufficientTier = errors.New("access denied")
)

// TokenValidator checks a raw token and returns its claims
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

type TokenValidatorFunc func(tokenString string) (AuthClaims, error)

func (f TokenValidatorFunc) Validate(tokenString string) (AuthClaims, error) {
	return f(tokenString)
}

// AuthClaims is the view of verified claims handlers read from the context
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
}

// ValidationListener runs after a token verifies and before the tier check.
// Returning an error rejects the request.
type ValidationListener func(ctx router.Context, claims AuthClaims) error

type Config struct {
	// Filter skips the middleware when it returns true
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler

	// TokenValidator verifies tokens. When nil the RS256 validator is built
	// from KeyFunc, JWKSetURLs, SigningKeys or SigningKey, in that order.
	TokenValidator TokenValidator
	KeyFunc        jwt.Keyfunc
	JWKSetURLs     []string
	SigningKeys    map[string]SigningKey
	SigningKey     SigningKey
	// Audience required by the RS256 validator, "access" by default
	Audience string

	// ContextKey stores the claims in the router locals, "user" by default
	ContextKey string
	// TokenLookup lists the token sources as "source:name" pairs separated
	// by commas. Sources are header, query, param and cookie.
	TokenLookup string
	AuthScheme  string

	// MinimumRole rejects tokens whose tier ranks below it
	MinimumRole string

	// ContextEnricher copies the claims into the request context.Context
	ContextEnricher     func(c context.Context, claims AuthClaims) context.Context
	ValidationListeners []ValidationListener
}

type SigningKey struct {
	JWTAlg string
	Key    any
}

func New(config ...Config) router.MiddlewareFunc {
	return func(_ router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := ExtractRawTokenFromContext(ctx, extractors)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			claims, err := cfg.TokenValidator.Validate(raw)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			for _, listener := range cfg.ValidationListeners {
				if listener == nil {
					continue
				}
				if err := listener(ctx, claims); err != nil {
					return cfg.ErrorHandler(ctx, err)
				}
			}

			if cfg.MinimumRole != "" && !claims.IsAtLeast(cfg.MinimumRole) {
				return cfg.ErrorHandler(ctx, fmt.Errorf("%w: minimum role %q required", ErrInsufficientTier, cfg.MinimumRole))
			}

			ctx.Locals(cfg.ContextKey, claims)

			if cfg.ContextEnricher != nil {
				ctx.SetContext(cfg.ContextEnricher(ctx.Context(), claims))
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

// GetDefaultConfig fills the zero values of the first config. It panics
// when no way to verify tokens is configured.
func GetDefaultConfig(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = defaultErrorHandler
	}

	if cfg.Audience == "" {
		cfg.Audience = DefaultAudience
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = defaultContextKey
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = "header:" + router.HeaderAuthorization
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = defaultAuthScheme
	}

	if cfg.TokenValidator == nil {
		keyFunc, err := resolveKeyfunc(cfg)
		if err != nil {
			panic("jwtware: " + err.Error())
		}
		cfg.KeyFunc = keyFunc
		cfg.TokenValidator = NewKeyfuncValidator(keyFunc, cfg.Audience)
	}

	return cfg
}

func defaultErrorHandler(c router.Context, err error) error {
	switch {
	case errors.Is(err, ErrJWTMissingOrMalformed):
		return c.Status(router.StatusBadRequest).SendString(ErrJWTMissingOrMalformed.Error())
	case errors.Is(err, ErrInsufficientTier):
		return c.Status(router.StatusForbidden).SendString("Insufficient permissions")
	}
	return c.Status(router.StatusUnauthorized).SendString("Invalid or expired token")
}
