package accounts

import (
	"crypto/rand"
	"errors"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// RandomPasswordLength is the length of passwords produced by RandomPassword
const RandomPasswordLength = 8

const passwordAlphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var hashCost = passwordHashCost

// HashPassword returns the bcrypt hash of password
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), hashCost())
	return string(h), err
}

// ComparePasswordAndHash returns ErrMismatchedHashAndPassword, possibly
// wrapping the bcrypt error, when password does not match hash
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return withCause(ErrMismatchedHashAndPassword, err, nil)
	}
	return nil
}

// RandomPassword returns a cleartext password of the given length drawn
// from an alphabet without ambiguous characters.
func RandomPassword(length int) (string, error) {
	if length <= 0 {
		length = RandomPasswordLength
	}

	max := big.NewInt(int64(len(passwordAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = passwordAlphabet[n.Int64()]
	}
	return string(out), nil
}
