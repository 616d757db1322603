package accounts

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"math/big"
	"strings"
)

// DefaultPublicExponent is the base64url encoding of 65537
const DefaultPublicExponent = "AQAB"

// KeyMaterial describes where the RSA key pair comes from. Either the JWK
// style components or PEM blocks may be given.
type KeyMaterial struct {
	// Modulus is the base64url encoded modulus (n)
	Modulus string
	// PublicExponent is the base64url encoded exponent (e), defaults to AQAB
	PublicExponent string
	// PrivateExponent is the base64url encoded private exponent (d)
	PrivateExponent string

	PrivateKeyPEM string
	PublicKeyPEM  string
}

// HasPrivateKey reports whether signing material was provided.
func (m KeyMaterial) HasPrivateKey() bool {
	return strings.TrimSpace(m.PrivateExponent) != "" || strings.TrimSpace(m.PrivateKeyPEM) != ""
}

// Load resolves the key pair. The private key is nil when only public
// material is present.
func (m KeyMaterial) Load() (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if strings.TrimSpace(m.PrivateKeyPEM) != "" {
		priv, err := parseRSAPrivateKey(m.PrivateKeyPEM)
		if err != nil {
			return nil, nil, withCause(ErrConfiguration, err, map[string]any{"key": "private_pem"})
		}
		return priv, &priv.PublicKey, nil
	}

	if strings.TrimSpace(m.Modulus) != "" {
		pub, err := publicKeyFromComponents(m.Modulus, m.PublicExponent)
		if err != nil {
			return nil, nil, withCause(ErrConfiguration, err, map[string]any{"key": "modulus"})
		}
		if strings.TrimSpace(m.PrivateExponent) == "" {
			return nil, pub, nil
		}
		priv, err := privateKeyFromComponents(pub, m.PrivateExponent)
		if err != nil {
			return nil, nil, withCause(ErrConfiguration, err, map[string]any{"key": "private_exponent"})
		}
		return priv, pub, nil
	}

	if strings.TrimSpace(m.PublicKeyPEM) != "" {
		pub, err := parseRSAPublicKey(m.PublicKeyPEM)
		if err != nil {
			return nil, nil, withCause(ErrConfiguration, err, map[string]any{"key": "public_pem"})
		}
		return nil, pub, nil
	}

	return nil, nil, withCause(ErrConfiguration, fmt.Errorf("no key material provided"), nil)
}

// EncodeKeyComponents returns the base64url n, e and d of key.
func EncodeKeyComponents(key *rsa.PrivateKey) (n, e, d string) {
	enc := base64.RawURLEncoding
	n = enc.EncodeToString(key.N.Bytes())
	e = enc.EncodeToString(big.NewInt(int64(key.E)).Bytes())
	d = enc.EncodeToString(key.D.Bytes())
	return n, e, d
}

func publicKeyFromComponents(n, e string) (*rsa.PublicKey, error) {
	if strings.TrimSpace(e) == "" {
		e = DefaultPublicExponent
	}

	nb, err := decodeSegment(n)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eb, err := decodeSegment(e)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}

	exp := new(big.Int).SetBytes(eb)
	if !exp.IsInt64() || exp.Int64() < 3 || exp.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("unsupported public exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nb),
		E: int(exp.Int64()),
	}, nil
}

// privateKeyFromComponents rebuilds a full private key from n, e and d by
// recovering the prime factors of n.
func privateKeyFromComponents(pub *rsa.PublicKey, d string) (*rsa.PrivateKey, error) {
	db, err := decodeSegment(d)
	if err != nil {
		return nil, fmt.Errorf("decode private exponent: %w", err)
	}

	D := new(big.Int).SetBytes(db)
	p, q, err := recoverPrimes(pub.N, big.NewInt(int64(pub.E)), D)
	if err != nil {
		return nil, err
	}

	key := &rsa.PrivateKey{
		PublicKey: *pub,
		D:         D,
		Primes:    []*big.Int{p, q},
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	key.Precompute()
	return key, nil
}

// recoverPrimes factors n given a valid (e, d) pair.
func recoverPrimes(n, e, d *big.Int) (*big.Int, *big.Int, error) {
	one := big.NewInt(1)
	two := big.NewInt(2)
	nMinusOne := new(big.Int).Sub(n, one)

	k := new(big.Int).Mul(d, e)
	k.Sub(k, one)
	if k.Bit(0) == 1 {
		return nil, nil, fmt.Errorf("private exponent does not match public key")
	}

	r := new(big.Int).Set(k)
	t := 0
	for r.Bit(0) == 0 {
		r.Rsh(r, 1)
		t++
	}

	limit := new(big.Int).Sub(n, big.NewInt(3))
	for i := 0; i < 128; i++ {
		g, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, nil, err
		}
		g.Add(g, two)

		y := new(big.Int).Exp(g, r, n)
		if y.Cmp(one) == 0 || y.Cmp(nMinusOne) == 0 {
			continue
		}

		for j := 0; j < t; j++ {
			x := new(big.Int).Exp(y, two, n)
			if x.Cmp(one) == 0 {
				p := new(big.Int).GCD(nil, nil, new(big.Int).Sub(y, one), n)
				q := new(big.Int).Div(n, p)
				if p.Cmp(one) == 0 || q.Cmp(one) == 0 {
					break
				}
				if p.Cmp(q) < 0 {
					p, q = q, p
				}
				return p, q, nil
			}
			if x.Cmp(nMinusOne) == 0 {
				break
			}
			y = x
		}
	}

	return nil, nil, fmt.Errorf("unable to recover prime factors from key components")
}

func decodeSegment(s string) ([]byte, error) {
	s = strings.TrimRight(strings.TrimSpace(s), "=")
	return base64.RawURLEncoding.DecodeString(s)
}

func parseRSAPrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("invalid PEM private key")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("unsupported private key type")
	default:
		return nil, fmt.Errorf("unsupported private key type %s", block.Type)
	}
}

func parseRSAPublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("invalid PEM public key")
	}
	switch block.Type {
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("not an RSA public key")
		}
		return rsaKey, nil
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported public key type %s", block.Type)
	}
}
