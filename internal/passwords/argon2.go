package passwords

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2KeyLen = 32

type argon2Params struct {
	time    uint32
	memory  uint32
	threads uint8
}

var defaultArgon2Params = argon2Params{time: 2, memory: 102400, threads: 8}

type argon2Hasher struct {
	params argon2Params
}

// argon2Hash is a decoded "argon2$<variant>$v=19$m=..,t=..,p=..$<salt>$<hash>" value.
type argon2Hash struct {
	variant string
	version int
	params  argon2Params
	salt    []byte
	key     []byte
}

func (h *argon2Hasher) Algorithm() string { return Argon2 }

func (h *argon2Hasher) Encode(password string) (string, error) {
	salt, err := randomString(saltLength)
	if err != nil {
		return "", err
	}
	p := h.params
	key := argon2.IDKey([]byte(password), []byte(salt), p.time, p.memory, p.threads, argon2KeyLen)
	return fmt.Sprintf("%s$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		Argon2, argon2.Version, p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString([]byte(salt)),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *argon2Hasher) Verify(password, encoded string) bool {
	decoded, ok := decodeArgon2(encoded)
	if !ok {
		return false
	}

	p := decoded.params
	keyLen := uint32(len(decoded.key))
	var key []byte
	switch decoded.variant {
	case "argon2id":
		key = argon2.IDKey([]byte(password), decoded.salt, p.time, p.memory, p.threads, keyLen)
	case "argon2i":
		key = argon2.Key([]byte(password), decoded.salt, p.time, p.memory, p.threads, keyLen)
	default:
		return false
	}
	return subtle.ConstantTimeCompare(key, decoded.key) == 1
}

func (h *argon2Hasher) MustUpdate(encoded string) bool {
	decoded, ok := decodeArgon2(encoded)
	if !ok {
		return true
	}
	return decoded.variant != "argon2id" ||
		decoded.version != argon2.Version ||
		decoded.params != h.params
}

// decodeArgon2 also accepts the older layout without the version segment.
func decodeArgon2(encoded string) (argon2Hash, bool) {
	rest, found := strings.CutPrefix(encoded, Argon2+"$")
	if !found {
		return argon2Hash{}, false
	}
	parts := strings.Split(rest, "$")

	var out argon2Hash
	switch len(parts) {
	case 5:
		if _, err := fmt.Sscanf(parts[1], "v=%d", &out.version); err != nil {
			return argon2Hash{}, false
		}
		parts = append(parts[:1], parts[2:]...)
	case 4:
		out.version = 0x10
	default:
		return argon2Hash{}, false
	}

	out.variant = parts[0]
	var threads uint32
	if _, err := fmt.Sscanf(parts[1], "m=%d,t=%d,p=%d", &out.params.memory, &out.params.time, &threads); err != nil {
		return argon2Hash{}, false
	}
	if threads == 0 || threads > 255 {
		return argon2Hash{}, false
	}
	out.params.threads = uint8(threads)

	var err error
	if out.salt, err = base64.RawStdEncoding.DecodeString(parts[2]); err != nil {
		return argon2Hash{}, false
	}
	if out.key, err = base64.RawStdEncoding.DecodeString(parts[3]); err != nil || len(out.key) == 0 {
		return argon2Hash{}, false
	}
	return out, true
}
