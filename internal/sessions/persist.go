package sessions

import (
	"context"
	"fmt"
	"time"
)

// Commit writes s back to store. A flushed session is deleted and, when it
// still holds data, saved under a new key. An emptied session is deleted. It
// returns the key the client must keep, or "" when the cookie should be removed.
func Commit(ctx context.Context, store Store, s *Session, expiry time.Time) (string, error) {
	key, data, flushed := s.snapshot()

	if key != "" && (flushed || len(data) == 0) {
		if err := store.Delete(ctx, key); err != nil {
			return "", fmt.Errorf("delete session: %w", err)
		}
		key = ""
	}

	if len(data) == 0 {
		s.assignKey("")
		return "", nil
	}

	if key == "" {
		newKey, err := NewKey()
		if err != nil {
			return "", err
		}
		key = newKey
	}

	if err := store.Save(ctx, key, data, expiry); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	s.assignKey(key)
	return key, nil
}
