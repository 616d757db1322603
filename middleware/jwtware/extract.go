package jwtware

import (
	"strings"

	"github.com/goliatone/go-router"
)

// JWTExtractor reads a raw token from the request
type JWTExtractor func(c router.Context) (string, error)

// GetExtractors parses a lookup such as
// "header:Authorization,query:token,cookie:jwt". Unknown sources are
// ignored.
func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	scheme := defaultAuthScheme
	if len(authSchemes) > 0 {
		scheme = strings.TrimSpace(authSchemes[0])
	}

	var extractors []JWTExtractor
	for _, part := range strings.Split(tokenLookup, ",") {
		source, name, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)

		switch strings.TrimSpace(source) {
		case "header":
			extractors = append(extractors, fromHeader(name, scheme))
		case "query":
			extractors = append(extractors, nonEmpty(func(c router.Context) string { return c.Query(name, "") }))
		case "param":
			extractors = append(extractors, nonEmpty(func(c router.Context) string { return c.Param(name) }))
		case "cookie":
			extractors = append(extractors, nonEmpty(func(c router.Context) string { return c.Cookies(name) }))
		}
	}
	return extractors
}

// ExtractRawTokenFromContext returns the first token found by extractors
func ExtractRawTokenFromContext(ctx router.Context, extractors []JWTExtractor) (string, error) {
	for _, extract := range extractors {
		if raw, err := extract(ctx); err == nil && raw != "" {
			return raw, nil
		}
	}
	return "", ErrJWTMissingOrMalformed
}

func fromHeader(header, scheme string) JWTExtractor {
	return func(c router.Context) (string, error) {
		value := strings.TrimSpace(c.GetString(header, ""))
		if scheme == "" {
			if value == "" {
				return "", ErrJWTMissingOrMalformed
			}
			return value, nil
		}
		n := len(scheme)
		if len(value) <= n+1 || !strings.EqualFold(value[:n], scheme) || value[n] != ' ' {
			return "", ErrJWTMissingOrMalformed
		}
		token := strings.TrimSpace(value[n:])
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

func nonEmpty(read func(router.Context) string) JWTExtractor {
	return func(c router.Context) (string, error) {
		if token := read(c); token != "" {
			return token, nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}
