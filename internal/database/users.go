package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/planetterp/planetterp/internal/models"
)

// Users reads and writes accounts.
type Users struct {
	db *gorm.DB
}

// NewUsers returns a user repository backed by db.
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

// Get loads a user by primary key.
func (u *Users) Get(ctx context.Context, id uint64) (*models.User, error) {
	var user models.User
	if err := u.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// ByUsername loads a user by username.
func (u *Users) ByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := u.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

// Create inserts user and fills its ID.
func (u *Users) Create(ctx context.Context, user *models.User) error {
	if err := u.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user %q: %w", user.Username, err)
	}
	return nil
}

// SetPassword stores an already encoded password.
func (u *Users) SetPassword(ctx context.Context, id uint64, encoded string) error {
	res := u.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("password", encoded)
	if res.Error != nil {
		return fmt.Errorf("set password for user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastLogin records a successful login.
func (u *Users) TouchLastLogin(ctx context.Context, id uint64, at time.Time) error {
	res := u.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("last_login", at)
	if res.Error != nil {
		return fmt.Errorf("touch last login for user %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of accounts, optionally only superusers.
func (u *Users) Count(ctx context.Context, superusersOnly bool) (int64, error) {
	q := u.db.WithContext(ctx).Model(&models.User{})
	if superusersOnly {
		q = q.Where("is_superuser = ?", true)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
