//go:build race

package accounts

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// race builds are slow enough already
	return bcrypt.DefaultCost
}
