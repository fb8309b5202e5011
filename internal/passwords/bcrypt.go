package passwords

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	defaultBCryptCost = 12
	bcryptMaxLength   = 72
)

// bcryptHasher hashes the raw password without a SHA-256 pre-hash, which is
// what the legacy account import produced.
type bcryptHasher struct {
	cost int
}

func (h *bcryptHasher) Algorithm() string { return BCrypt }

func (h *bcryptHasher) Encode(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword(truncateBCrypt(password), h.cost)
	if err != nil {
		return "", err
	}
	return BCrypt + "$" + string(hashed), nil
}

func (h *bcryptHasher) Verify(password, encoded string) bool {
	return bcrypt.CompareHashAndPassword([]byte(rawBCrypt(encoded)), truncateBCrypt(password)) == nil
}

func (h *bcryptHasher) MustUpdate(encoded string) bool {
	cost, err := bcrypt.Cost([]byte(rawBCrypt(encoded)))
	if err != nil {
		return true
	}
	return cost != h.cost
}

func rawBCrypt(encoded string) string {
	if raw, ok := strings.CutPrefix(encoded, BCrypt+"$"); ok {
		return raw
	}
	return encoded
}

// isLegacyBCrypt matches bare modular-crypt bcrypt values stored without an algorithm prefix.
func isLegacyBCrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

// truncateBCrypt mirrors bcrypt implementations that silently ignore bytes past 72.
func truncateBCrypt(password string) []byte {
	b := []byte(password)
	if len(b) > bcryptMaxLength {
		b = b[:bcryptMaxLength]
	}
	return b
}
