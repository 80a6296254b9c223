package auth

import "golang.org/x/crypto/bcrypt"

// fallbackBcryptCost is applied when the configured cost is outside
// bcrypt's accepted range, so a bad AUTH_BCRYPT_COST value degrades to a
// sane hash instead of breaking registration.
const fallbackBcryptCost = 12

// HashPassword hashes a plaintext password with the configured cost.
func HashPassword(password string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = fallbackBcryptCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword verifies a password against its stored hash.
func ComparePassword(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
