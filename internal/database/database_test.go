package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open(config.Database{
		Engine:       config.EngineSQLite,
		Name:         filepath.Join(t.TempDir(), "test.db"),
		MaxOpenConns: 1,
	}, WithLocation(time.UTC))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })

	if err := Migrate(context.Background(), db, &models.User{}, &models.Session{}, &models.Site{}); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	return db
}

func TestOpenRejectsUnknownEngine(t *testing.T) {
	if _, err := Open(config.Database{Engine: "oracle", Name: "x"}); !errors.Is(err, ErrUnsupportedEngine) {
		t.Fatalf("expected ErrUnsupportedEngine, got %v", err)
	}
}

func TestSQLiteForeignKeysOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	gdb, err := Open(config.Database{
		Engine: config.EngineSQLite,
		Name:   filepath.Join(t.TempDir(), "fk.db"),
	})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { _ = Close(gdb) })

	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("DB returned error: %v", err)
	}
	// Hold both connections so the pool cannot hand back the same one.
	first, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn returned error: %v", err)
	}
	defer first.Close()
	second, err := sqlDB.Conn(ctx)
	if err != nil {
		t.Fatalf("Conn returned error: %v", err)
	}
	defer second.Close()

	for i, conn := range []*sql.Conn{first, second} {
		var enabled int
		if err := conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled); err != nil {
			t.Fatalf("connection %d: PRAGMA returned error: %v", i, err)
		}
		if enabled != 1 {
			t.Fatalf("connection %d: expected foreign keys on, got %d", i, enabled)
		}
	}
}

func TestUsersRepository(t *testing.T) {
	ctx := context.Background()
	users := NewUsers(openTestDB(t))

	user := &models.User{Username: "testudo", Email: "testudo@umd.edu", Password: "!", IsActive: true}
	if err := users.Create(ctx, user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if user.ID == 0 {
		t.Fatalf("expected ID to be assigned")
	}

	got, err := users.ByUsername(ctx, "testudo")
	if err != nil {
		t.Fatalf("ByUsername returned error: %v", err)
	}
	if got.ID != user.ID || got.Email != "testudo@umd.edu" {
		t.Fatalf("unexpected user %+v", got)
	}

	if err := users.SetPassword(ctx, user.ID, "pbkdf2_sha256$1$salt$hash"); err != nil {
		t.Fatalf("SetPassword returned error: %v", err)
	}
	got, err = users.Get(ctx, user.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Password != "pbkdf2_sha256$1$salt$hash" {
		t.Fatalf("password not updated: %q", got.Password)
	}

	if _, err := users.Get(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := users.SetPassword(ctx, 9999, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestEnsureSiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	if err := EnsureSite(ctx, db, 1, "example.com", "Example"); err != nil {
		t.Fatalf("EnsureSite returned error: %v", err)
	}
	if err := EnsureSite(ctx, db, 1, "planetterp.com", "PlanetTerp"); err != nil {
		t.Fatalf("EnsureSite returned error: %v", err)
	}

	var sites []models.Site
	if err := db.Find(&sites).Error; err != nil {
		t.Fatalf("query sites: %v", err)
	}
	if len(sites) != 1 || sites[0].Domain != "planetterp.com" || sites[0].Name != "PlanetTerp" {
		t.Fatalf("unexpected sites %+v", sites)
	}
}
