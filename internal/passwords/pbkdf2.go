package passwords

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"hash"
	"math"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const defaultPBKDF2Iterations = 260000

// minSaltEntropy is the number of random bits a salt must carry before
// MustUpdate stops asking for a rehash.
const minSaltEntropy = 128

type pbkdf2Hasher struct {
	algorithm  string
	iterations int
	digest     func() hash.Hash
	keyLen     int
}

func newPBKDF2SHA256(iterations int) *pbkdf2Hasher {
	return &pbkdf2Hasher{algorithm: PBKDF2SHA256, iterations: iterations, digest: sha256.New, keyLen: sha256.Size}
}

func newPBKDF2SHA1(iterations int) *pbkdf2Hasher {
	return &pbkdf2Hasher{algorithm: PBKDF2SHA1, iterations: iterations, digest: sha1.New, keyLen: sha1.Size}
}

func (h *pbkdf2Hasher) Algorithm() string { return h.algorithm }

func (h *pbkdf2Hasher) Encode(password string) (string, error) {
	salt, err := randomString(saltLength)
	if err != nil {
		return "", err
	}
	return h.encode(password, salt, h.iterations), nil
}

func (h *pbkdf2Hasher) encode(password, salt string, iterations int) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, h.keyLen, h.digest)
	return fmt.Sprintf("%s$%d$%s$%s", h.algorithm, iterations, salt, base64.StdEncoding.EncodeToString(key))
}

func (h *pbkdf2Hasher) decode(encoded string) (iterations int, salt string, ok bool) {
	parts := strings.SplitN(encoded, "$", 4)
	if len(parts) != 4 || parts[0] != h.algorithm {
		return 0, "", false
	}
	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return 0, "", false
	}
	return iterations, parts[2], true
}

func (h *pbkdf2Hasher) Verify(password, encoded string) bool {
	iterations, salt, ok := h.decode(encoded)
	if !ok {
		return false
	}
	candidate := h.encode(password, salt, iterations)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(encoded)) == 1
}

func (h *pbkdf2Hasher) MustUpdate(encoded string) bool {
	iterations, salt, ok := h.decode(encoded)
	if !ok {
		return true
	}
	return iterations != h.iterations || saltTooWeak(salt)
}

func saltTooWeak(salt string) bool {
	bits := float64(len(salt)) * math.Log2(float64(len(saltAlphabet)))
	return bits < minSaltEntropy
}
