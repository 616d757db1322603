package jwtware

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

var errNoKeys = errors.New("one of TokenValidator, KeyFunc, JWKSetURLs, SigningKeys or SigningKey is required")

// resolveKeyfunc picks the key source for the RS256 validator
func resolveKeyfunc(cfg Config) (jwt.Keyfunc, error) {
	if cfg.KeyFunc != nil {
		return cfg.KeyFunc, nil
	}

	given := givenKeys(cfg.SigningKeys)

	if len(cfg.JWKSetURLs) > 0 {
		opts := keyfuncOptions(given)
		remote := make(map[string]keyfunc.Options, len(cfg.JWKSetURLs))
		for _, u := range cfg.JWKSetURLs {
			remote[u] = opts
		}
		multi, err := keyfunc.GetMultiple(remote, keyfunc.MultipleOptions{
			KeySelector: keyfunc.KeySelectorFirst,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to load JWK Sets: %w", err)
		}
		return multi.Keyfunc, nil
	}

	if len(given) > 0 {
		return keyfunc.NewGiven(given).Keyfunc, nil
	}

	if cfg.SigningKey.Key != nil {
		return staticKeyfunc(cfg.SigningKey), nil
	}

	return nil, errNoKeys
}

func givenKeys(keys map[string]SigningKey) map[string]keyfunc.GivenKey {
	if len(keys) == 0 {
		return nil
	}
	out := make(map[string]keyfunc.GivenKey, len(keys))
	for kid, key := range keys {
		out[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{
			Algorithm: key.JWTAlg,
		})
	}
	return out
}

func keyfuncOptions(given map[string]keyfunc.GivenKey) keyfunc.Options {
	return keyfunc.Options{
		GivenKeys: given,
		RefreshErrorHandler: func(err error) {
			log.Printf("jwtware: JWK Set refresh failed: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	}
}

func staticKeyfunc(key SigningKey) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if key.JWTAlg == "" {
			return key.Key, nil
		}
		alg, _ := token.Header["alg"].(string)
		if alg != key.JWTAlg {
			return nil, fmt.Errorf("unexpected signing method %q, want %q", alg, key.JWTAlg)
		}
		return key.Key, nil
	}
}
