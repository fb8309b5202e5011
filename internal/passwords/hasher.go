package passwords

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Algorithm names accepted in the hasher chain.
const (
	PBKDF2SHA256 = "pbkdf2_sha256"
	PBKDF2SHA1   = "pbkdf2_sha1"
	Argon2       = "argon2"
	BCrypt       = "bcrypt"
)

// UnusablePrefix marks a password that can never verify.
const UnusablePrefix = "!"

const (
	saltLength     = 22
	unusableLength = 40
	saltAlphabet   = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Hasher encodes and verifies passwords for a single algorithm.
type Hasher interface {
	Algorithm() string
	Encode(password string) (string, error)
	Verify(password, encoded string) bool
	// MustUpdate reports whether encoded was produced with outdated parameters.
	MustUpdate(encoded string) bool
}

// Algorithms lists every hasher name the chain understands.
func Algorithms() []string {
	return []string{PBKDF2SHA256, PBKDF2SHA1, Argon2, BCrypt}
}

// Option tunes hasher work factors.
type Option func(*chainOptions)

type chainOptions struct {
	pbkdf2Iterations int
	bcryptCost       int
	argon2           argon2Params
}

// WithPBKDF2Iterations overrides the PBKDF2 iteration count.
func WithPBKDF2Iterations(n int) Option {
	return func(o *chainOptions) {
		o.pbkdf2Iterations = n
	}
}

// WithBCryptCost overrides the bcrypt cost factor.
func WithBCryptCost(cost int) Option {
	return func(o *chainOptions) {
		o.bcryptCost = cost
	}
}

// WithArgon2Params overrides the argon2id time, memory (KiB) and parallelism parameters.
func WithArgon2Params(time, memory uint32, threads uint8) Option {
	return func(o *chainOptions) {
		o.argon2.time = time
		o.argon2.memory = memory
		o.argon2.threads = threads
	}
}

// Chain is the ordered hasher preference list. The first hasher encodes new
// passwords; every hasher in the list may verify existing ones.
type Chain struct {
	hashers []Hasher
	byAlgo  map[string]Hasher
}

// NewChain builds the chain from configured names, preserving order.
func NewChain(names []string, opts ...Option) (*Chain, error) {
	if len(names) == 0 {
		return nil, ErrEmptyChain
	}

	o := chainOptions{
		pbkdf2Iterations: defaultPBKDF2Iterations,
		bcryptCost:       defaultBCryptCost,
		argon2:           defaultArgon2Params,
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Chain{byAlgo: make(map[string]Hasher, len(names))}
	for _, name := range names {
		var h Hasher
		switch name {
		case PBKDF2SHA256:
			h = newPBKDF2SHA256(o.pbkdf2Iterations)
		case PBKDF2SHA1:
			h = newPBKDF2SHA1(o.pbkdf2Iterations)
		case Argon2:
			h = &argon2Hasher{params: o.argon2}
		case BCrypt:
			h = &bcryptHasher{cost: o.bcryptCost}
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownHasher, name)
		}
		if _, dup := c.byAlgo[name]; dup {
			continue
		}
		c.hashers = append(c.hashers, h)
		c.byAlgo[name] = h
	}
	return c, nil
}

// Preferred returns the hasher used for new passwords.
func (c *Chain) Preferred() Hasher {
	return c.hashers[0]
}

// Make encodes password with the preferred hasher.
func (c *Chain) Make(password string) (string, error) {
	return c.Preferred().Encode(password)
}

// MakeUnusable returns an encoded value no password will ever match.
func (c *Chain) MakeUnusable() (string, error) {
	suffix, err := randomString(unusableLength)
	if err != nil {
		return "", err
	}
	return UnusablePrefix + suffix, nil
}

// IsUsable reports whether encoded can ever verify.
func IsUsable(encoded string) bool {
	return encoded != "" && !strings.HasPrefix(encoded, UnusablePrefix)
}

// Check verifies password against encoded. needsRehash is true when the
// password matched but was encoded by a non-preferred hasher or with outdated
// parameters; callers should then store the result of Make.
func (c *Chain) Check(password, encoded string) (matched, needsRehash bool, err error) {
	if !IsUsable(encoded) {
		return false, false, nil
	}

	h, err := c.identify(encoded)
	if err != nil {
		return false, false, err
	}

	if !h.Verify(password, encoded) {
		return false, false, nil
	}

	preferred := c.Preferred()
	if h.Algorithm() != preferred.Algorithm() {
		return true, true, nil
	}
	return true, preferred.MustUpdate(encoded), nil
}

// identify picks the configured hasher owning encoded.
func (c *Chain) identify(encoded string) (Hasher, error) {
	algo := algorithmOf(encoded)
	h, ok := c.byAlgo[algo]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	return h, nil
}

func algorithmOf(encoded string) string {
	if isLegacyBCrypt(encoded) {
		return BCrypt
	}
	algo, _, _ := strings.Cut(encoded, "$")
	return algo
}

func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(saltAlphabet)))
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate random string: %w", err)
		}
		b.WriteByte(saltAlphabet[idx.Int64()])
	}
	return b.String(), nil
}
