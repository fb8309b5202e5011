package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/database"
	"github.com/planetterp/planetterp/internal/metrics"
	"github.com/planetterp/planetterp/internal/models"
	"github.com/planetterp/planetterp/internal/passwords"
	"github.com/planetterp/planetterp/internal/sessions"
)

const testSecret = "test-secret-key"

type fixture struct {
	users   *database.Users
	backend *ModelBackend
	hashers *passwords.Chain
}

func newFixture(t *testing.T, hashers ...string) fixture {
	t.Helper()
	db, err := database.Open(config.Database{
		Engine:       config.EngineSQLite,
		Name:         filepath.Join(t.TempDir(), "auth.db"),
		MaxOpenConns: 1,
	}, database.WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	if err := database.Migrate(context.Background(), db, &models.User{}); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	chain, err := passwords.NewChain(hashers, passwords.WithPBKDF2Iterations(10), passwords.WithBCryptCost(4))
	if err != nil {
		t.Fatalf("NewChain returned error: %v", err)
	}
	users := database.NewUsers(db)
	return fixture{
		users:   users,
		backend: NewModelBackend(users, chain, zaptest.NewLogger(t), WithMetrics(metrics.New())),
		hashers: chain,
	}
}

func (f fixture) createUser(t *testing.T, username, encoded string, active bool) *models.User {
	t.Helper()
	user := &models.User{Username: username, Password: encoded, IsActive: active, DateJoined: time.Now()}
	if err := f.users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return user
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passwords.PBKDF2SHA256)

	encoded, err := f.hashers.Make("correct horse battery")
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}
	f.createUser(t, "active", encoded, true)
	f.createUser(t, "inactive", encoded, false)

	if user, err := f.backend.Authenticate(ctx, "active", "correct horse battery"); err != nil || user.Username != "active" {
		t.Fatalf("expected active user, got %v, %v", user, err)
	}

	cases := []struct {
		name, username, password string
	}{
		{"wrong password", "active", "nope"},
		{"unknown user", "ghost", "correct horse battery"},
		{"inactive user", "inactive", "correct horse battery"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.backend.Authenticate(ctx, tc.username, tc.password); !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	}
}

func TestAuthenticateUpgradesLegacyHash(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passwords.PBKDF2SHA256, passwords.BCrypt)

	legacy, err := passwords.NewChain([]string{passwords.BCrypt}, passwords.WithBCryptCost(4))
	if err != nil {
		t.Fatalf("NewChain returned error: %v", err)
	}
	encoded, err := legacy.Make("terrapin pride")
	if err != nil {
		t.Fatalf("Make returned error: %v", err)
	}
	user := f.createUser(t, "legacy", encoded, true)

	if _, err := f.backend.Authenticate(ctx, "legacy", "terrapin pride"); err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}

	stored, err := f.users.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !strings.HasPrefix(stored.Password, passwords.PBKDF2SHA256+"$") {
		t.Fatalf("expected hash upgraded to pbkdf2_sha256, got %q", stored.Password)
	}
}

func TestLoginAndFromSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passwords.PBKDF2SHA256)
	encoded, _ := f.hashers.Make("secret words")
	user := f.createUser(t, "terp", encoded, true)

	s := sessions.New("existing", sessions.Data{"cart": "x"})
	if err := f.backend.Login(ctx, s, testSecret, user); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if user.LastLogin == nil {
		t.Fatalf("expected LastLogin to be set")
	}

	got, err := f.backend.FromSession(ctx, s, testSecret)
	if err != nil || got == nil || got.ID != user.ID {
		t.Fatalf("expected logged in user, got %v, %v", got, err)
	}

	// A password change invalidates the session.
	newHash, _ := f.hashers.Make("other words")
	if err := f.users.SetPassword(ctx, user.ID, newHash); err != nil {
		t.Fatalf("SetPassword returned error: %v", err)
	}
	got, err = f.backend.FromSession(ctx, s, testSecret)
	if err != nil || got != nil {
		t.Fatalf("expected anonymous after password change, got %v, %v", got, err)
	}
	if !s.Empty() {
		t.Fatalf("expected session to be flushed")
	}
}

func TestLoginAsAnotherUserDropsSessionData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passwords.PBKDF2SHA256)
	encoded, _ := f.hashers.Make("secret words")
	alice := f.createUser(t, "alice", encoded, true)
	bob := f.createUser(t, "bob", encoded, true)

	s := sessions.New("shared", nil)
	if err := f.backend.Login(ctx, s, testSecret, alice); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	s.Set("cart", "alice-private")

	if err := f.backend.Login(ctx, s, testSecret, bob); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if _, ok := s.Get("cart"); ok {
		t.Fatalf("expected previous user's data to be dropped")
	}
	got, err := f.backend.FromSession(ctx, s, testSecret)
	if err != nil || got == nil || got.ID != bob.ID {
		t.Fatalf("expected bob in session, got %v, %v", got, err)
	}
}

func TestLoginAgainAsSameUserKeepsSessionData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, passwords.PBKDF2SHA256)
	encoded, _ := f.hashers.Make("secret words")
	user := f.createUser(t, "terp", encoded, true)

	s := sessions.New("shared", nil)
	if err := f.backend.Login(ctx, s, testSecret, user); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	s.Set("cart", "x")
	if err := f.backend.Login(ctx, s, testSecret, user); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if s.GetString("cart") != "x" {
		t.Fatalf("expected session data to survive a repeated login")
	}
}

func TestLogoutFlushesSession(t *testing.T) {
	s := sessions.New("key", sessions.Data{SessionUserID: "1"})
	Logout(s)
	if !s.Empty() || !s.Modified() {
		t.Fatalf("expected flushed session")
	}
}

func TestFromSessionAnonymous(t *testing.T) {
	f := newFixture(t, passwords.PBKDF2SHA256)
	got, err := f.backend.FromSession(context.Background(), sessions.New("", nil), testSecret)
	if err != nil || got != nil {
		t.Fatalf("expected anonymous, got %v, %v", got, err)
	}
}

func TestUserContext(t *testing.T) {
	if UserFromContext(context.Background()) != nil {
		t.Fatalf("expected nil user")
	}
	user := &models.User{Username: "terp"}
	if got := UserFromContext(WithUser(context.Background(), user)); got != user {
		t.Fatalf("expected user from context")
	}
}
