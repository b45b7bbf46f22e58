//go:build race

package auth

import "golang.org/x/crypto/bcrypt"

// Race builds hash with the library default so slow instrumented runs stay
// inside test timeouts.
func passwordHashCost() int {
	return bcrypt.DefaultCost
}
