package accounts

import "golang.org/x/crypto/bcrypt"

func init() {
	hashCost = func() int { return bcrypt.MinCost }
}
