package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/planetterp/planetterp/internal/application"
	"github.com/planetterp/planetterp/internal/apps"
	"github.com/planetterp/planetterp/internal/checks"
	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/database"
	"github.com/planetterp/planetterp/internal/mail"
	"github.com/planetterp/planetterp/internal/models"
	"github.com/planetterp/planetterp/internal/passwords"
	"github.com/planetterp/planetterp/internal/sessions"
	"github.com/planetterp/planetterp/internal/static"
)

var (
	errPasswordRequired = errors.New("password is required")
	errUserExists       = errors.New("user already exists")
	errNoRecipients     = errors.New("no recipients given")
)

// commands implements the management commands other than serve.
type commands struct {
	settings config.Settings
	logger   *zap.Logger
	out      io.Writer
}

func (c commands) printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

func (c commands) check() error {
	issues := checks.Run(c.settings)
	for _, issue := range issues {
		c.printf("%s\n", issue)
	}
	switch len(issues) {
	case 0:
		c.printf("System check identified no issues.\n")
	case 1:
		c.printf("System check identified 1 issue.\n")
	default:
		c.printf("System check identified %d issues.\n", len(issues))
	}
	return issues.Err()
}

func (c commands) withDB(fn func(db *gorm.DB) error) error {
	db, err := application.OpenDatabase(c.settings, c.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			c.logger.Warn("closing database failed", zap.Error(err))
		}
	}()
	return fn(db)
}

func (c commands) migrate(ctx context.Context) error {
	return c.withDB(func(db *gorm.DB) error {
		if err := application.Migrate(ctx, c.settings, db); err != nil {
			return err
		}
		c.printf("Migrated apps: %v\n", c.settings.InstalledApps)
		return nil
	})
}

func (c commands) collectStatic(ctx context.Context, dryRun, clear bool) error {
	installed, err := apps.Resolve(c.settings.InstalledApps)
	if err != nil {
		return err
	}
	root := c.settings.Path(c.settings.Static.Root)
	finder := static.NewFinder(c.settings, installed)

	result, err := static.Collect(ctx, finder, root, static.CollectOptions{DryRun: dryRun, Clear: clear}, c.logger)
	if err != nil {
		return err
	}
	verb := "copied"
	if dryRun {
		verb = "would be copied"
	}
	c.printf("%d static files %s to %q, %d unmodified.\n", len(result.Copied), verb, root, len(result.Unmodified))
	return nil
}

// encodePassword validates password against user unless skip is set and
// encodes it with the preferred hasher.
func (c commands) encodePassword(password string, user models.User, skip bool) (string, error) {
	if password == "" {
		return "", errPasswordRequired
	}
	if !skip {
		validators, err := passwords.ValidatorsFromSettings(c.settings.PasswordValidators)
		if err != nil {
			return "", err
		}
		if err := validators.Validate(password, user.Attributes()); err != nil {
			return "", err
		}
	}
	hashers, err := passwords.NewChain(c.settings.PasswordHashers)
	if err != nil {
		return "", err
	}
	return hashers.Make(password)
}

func (c commands) createSuperuser(ctx context.Context, username, email, password string, skip bool) error {
	user := models.User{
		Username:    username,
		Email:       email,
		IsActive:    true,
		IsStaff:     true,
		IsSuperuser: true,
		DateJoined:  time.Now().In(c.settings.Location()),
	}
	encoded, err := c.encodePassword(password, user, skip)
	if err != nil {
		return err
	}
	user.Password = encoded

	return c.withDB(func(db *gorm.DB) error {
		users := database.NewUsers(db)
		if _, err := users.ByUsername(ctx, username); err == nil {
			return fmt.Errorf("%w: %q", errUserExists, username)
		} else if !errors.Is(err, database.ErrNotFound) {
			return err
		}
		if err := users.Create(ctx, &user); err != nil {
			return err
		}
		c.printf("Superuser %q created.\n", username)
		return nil
	})
}

func (c commands) changePassword(ctx context.Context, username, password string, skip bool) error {
	return c.withDB(func(db *gorm.DB) error {
		users := database.NewUsers(db)
		user, err := users.ByUsername(ctx, username)
		if err != nil {
			return fmt.Errorf("user %q: %w", username, err)
		}
		encoded, err := c.encodePassword(password, *user, skip)
		if err != nil {
			return err
		}
		if err := users.SetPassword(ctx, user.ID, encoded); err != nil {
			return err
		}
		c.printf("Password changed successfully for user %q.\n", username)
		return nil
	})
}

func (c commands) sendTestEmail(ctx context.Context, to []string, admins bool) error {
	mailer, err := mail.New(c.settings.Email, c.settings.Admins, c.logger)
	if err != nil {
		return err
	}
	if len(to) == 0 && !admins {
		return errNoRecipients
	}

	host, _ := os.Hostname()
	subject := fmt.Sprintf("Test email from %s on %s", host, time.Now().In(c.settings.Location()).Format(time.RFC1123Z))
	body := "If you're reading this, it was successful."

	if len(to) > 0 {
		if err := mailer.Send(ctx, mail.Message{To: to, Subject: subject, Body: body}); err != nil {
			return err
		}
	}
	if admins {
		if err := mailer.MailAdmins(ctx, subject, body); err != nil {
			return err
		}
	}
	c.printf("Test email sent.\n")
	return nil
}

func (c commands) diffSettings() error {
	changes, err := config.Diff(c.settings)
	if err != nil {
		return err
	}
	for _, change := range changes {
		c.printf("%s = %s  ### default: %s\n", change.Key, change.Value, change.Default)
	}
	return nil
}

func (c commands) clearSessions(ctx context.Context) error {
	return c.withDB(func(db *gorm.DB) error {
		removed, err := sessions.NewDBStore(db).ClearExpired(ctx)
		if err != nil {
			return err
		}
		c.printf("Removed %d expired sessions.\n", removed)
		return nil
	})
}
