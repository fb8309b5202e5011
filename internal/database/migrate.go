package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/planetterp/planetterp/internal/models"
)

// Migrate creates or updates the tables of the given models.
func Migrate(ctx context.Context, db *gorm.DB, dst ...any) error {
	if len(dst) == 0 {
		return nil
	}
	if err := db.WithContext(ctx).AutoMigrate(dst...); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// EnsureSite creates or updates the site row identified by id.
func EnsureSite(ctx context.Context, db *gorm.DB, id uint, domain, name string) error {
	var site models.Site
	err := db.WithContext(ctx).
		Where(models.Site{ID: id}).
		Assign(models.Site{Domain: domain, Name: name}).
		FirstOrCreate(&site).Error
	if err != nil {
		return fmt.Errorf("ensure site %d: %w", id, err)
	}
	return nil
}
