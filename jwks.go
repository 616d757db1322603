package accounts

import (
	"crypto/rsa"
	"encoding/json"
	"errors"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// PublicKeySet returns the JWK Set that publishes pub under kid so other
// services can verify our tokens.
func PublicKeySet(pub *rsa.PublicKey, kid string) (jwk.Set, error) {
	if pub == nil {
		return nil, withCause(ErrConfiguration, errors.New("public key is required"), nil)
	}

	key, err := jwk.PublicKeyOf(pub)
	if err != nil {
		return nil, withCause(ErrConfiguration, err, nil)
	}

	if kid == "" {
		kid = DefaultKeyID
	}

	if err := key.Set(jwk.KeyIDKey, kid); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}

	set := jwk.NewSet()
	if err := set.AddKey(key); err != nil {
		return nil, err
	}
	return set, nil
}

// JWKSDocument is PublicKeySet encoded as JSON
func JWKSDocument(pub *rsa.PublicKey, kid string) ([]byte, error) {
	set, err := PublicKeySet(pub, kid)
	if err != nil {
		return nil, err
	}
	return json.Marshal(set)
}
