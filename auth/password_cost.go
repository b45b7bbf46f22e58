//go:build !race

package auth

const storedPasswordCost = 12

func passwordHashCost() int {
	return storedPasswordCost
}
