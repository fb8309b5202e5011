// Package sessions stores server side session state keyed by a random cookie value.
package sessions

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	keyLength   = 32
	keyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

var (
	// ErrNotFound is returned for unknown or expired session keys.
	ErrNotFound = errors.New("session not found")
)

// Data is the JSON serialisable content of a session.
type Data map[string]any

// Store persists sessions.
type Store interface {
	Load(ctx context.Context, key string) (Data, error)
	Save(ctx context.Context, key string, data Data, expiry time.Time) error
	Delete(ctx context.Context, key string) error
	ClearExpired(ctx context.Context) (int64, error)
}

// NewKey returns a fresh 32 character session key.
func NewKey() (string, error) {
	max := big.NewInt(int64(len(keyAlphabet)))
	buf := make([]byte, keyLength)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate session key: %w", err)
		}
		buf[i] = keyAlphabet[idx.Int64()]
	}
	return string(buf), nil
}

// ValidKey reports whether key could have been produced by NewKey.
func ValidKey(key string) bool {
	if len(key) != keyLength {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

func cloneData(src Data) Data {
	out := make(Data, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
