// Package auth authenticates users against the user table and keeps the
// logged in user in the session.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/database"
	"github.com/planetterp/planetterp/internal/metrics"
	"github.com/planetterp/planetterp/internal/models"
	"github.com/planetterp/planetterp/internal/passwords"
	"github.com/planetterp/planetterp/internal/sessions"
)

// BackendModel authenticates against the user table.
const BackendModel = "model"

// Session keys owned by this package.
const (
	SessionUserID  = "_auth_user_id"
	SessionBackend = "_auth_user_backend"
	SessionHash    = "_auth_user_hash"
)

var (
	// ErrInvalidCredentials hides whether the username or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUnknownBackend is returned for authentication backends that are not built in.
	ErrUnknownBackend = errors.New("unknown authentication backend")
)

// Backends lists the supported authentication backend names.
func Backends() []string {
	return []string{BackendModel}
}

// ModelBackend checks credentials with the configured hasher chain and
// upgrades stored hashes that are no longer preferred.
type ModelBackend struct {
	users   *database.Users
	hashers *passwords.Chain
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// BackendOption configures a ModelBackend.
type BackendOption func(*ModelBackend)

// WithMetrics counts password hash upgrades.
func WithMetrics(m *metrics.Metrics) BackendOption {
	return func(b *ModelBackend) {
		b.metrics = m
	}
}

// NewModelBackend builds the default backend.
func NewModelBackend(users *database.Users, hashers *passwords.Chain, logger *zap.Logger, opts ...BackendOption) *ModelBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &ModelBackend{users: users, hashers: hashers, logger: logger}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Hashers returns the chain used to check and encode passwords.
func (b *ModelBackend) Hashers() *passwords.Chain {
	return b.hashers
}

// Authenticate returns the active user matching username and password.
func (b *ModelBackend) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	user, err := b.users.ByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		// Hash anyway so missing users take as long as wrong passwords.
		_, _ = b.hashers.Make(password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	ok, needsRehash, err := b.hashers.Check(password, user.Password)
	if err != nil && !errors.Is(err, passwords.ErrUnknownAlgorithm) {
		return nil, fmt.Errorf("check password: %w", err)
	}
	if !ok || !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	if needsRehash {
		encoded, err := b.hashers.Make(password)
		if err == nil {
			err = b.users.SetPassword(ctx, user.ID, encoded)
		}
		if err != nil {
			b.logger.Warn("password upgrade failed", zap.Uint64("user_id", user.ID), zap.Error(err))
		} else {
			user.Password = encoded
			b.metrics.RecordPasswordUpgrade(b.hashers.Preferred().Algorithm())
			b.logger.Info("password hash upgraded",
				zap.Uint64("user_id", user.ID),
				zap.String("algorithm", b.hashers.Preferred().Algorithm()))
		}
	}
	return user, nil
}

// Get loads a user by ID.
func (b *ModelBackend) Get(ctx context.Context, id uint64) (*models.User, error) {
	return b.users.Get(ctx, id)
}

// SessionAuthHash derives the value stored in the session that invalidates
// logins once the password changes.
func SessionAuthHash(secret string, user *models.User) string {
	mac := hmac.New(sha256.New, []byte("planetterp.auth.session:"+secret))
	mac.Write([]byte(user.Password))
	return hex.EncodeToString(mac.Sum(nil))
}

// Login records user in the session under a fresh key and stamps LastLogin.
// Data left by a different user, or by the same user under a stale password
// hash, is dropped rather than carried over.
func (b *ModelBackend) Login(ctx context.Context, s *sessions.Session, secret string, user *models.User) error {
	id := strconv.FormatUint(user.ID, 10)
	hash := SessionAuthHash(secret, user)
	prev := s.GetString(SessionUserID)
	if prev != "" && (prev != id || s.GetString(SessionHash) != hash) {
		s.Flush()
	} else {
		s.CycleKey()
	}
	s.Set(SessionUserID, id)
	s.Set(SessionBackend, BackendModel)
	s.Set(SessionHash, hash)

	now := time.Now()
	if err := b.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		return err
	}
	user.LastLogin = &now
	return nil
}

// Logout drops the whole session.
func Logout(s *sessions.Session) {
	s.Flush()
}

// FromSession resolves the user recorded in s. It returns nil, nil for
// anonymous sessions and for sessions whose password hash no longer matches.
func (b *ModelBackend) FromSession(ctx context.Context, s *sessions.Session, secret string) (*models.User, error) {
	raw := s.GetString(SessionUserID)
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		s.Flush()
		return nil, nil
	}

	user, err := b.Get(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		s.Flush()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	want := SessionAuthHash(secret, user)
	if !hmac.Equal([]byte(want), []byte(s.GetString(SessionHash))) || !user.IsActive {
		s.Flush()
		return nil, nil
	}
	return user, nil
}

type contextKey struct{}

// WithUser attaches user to ctx.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the authenticated user, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *models.User {
	user, _ := ctx.Value(contextKey{}).(*models.User)
	return user
}
