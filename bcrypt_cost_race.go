//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// race builds are several times slower, keep hashing cheap so the
// concurrent registration tests stay inside the default timeout.
func passwordHashCost() int {
	return bcrypt.MinCost
}
