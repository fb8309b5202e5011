// Package checks inspects loaded settings before the server starts. Errors
// stop serve and migrate; warnings are only logged.
package checks

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/planetterp/planetterp/internal/api"
	"github.com/planetterp/planetterp/internal/apps"
	"github.com/planetterp/planetterp/internal/auth"
	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/database"
	"github.com/planetterp/planetterp/internal/mail"
	"github.com/planetterp/planetterp/internal/middleware"
	"github.com/planetterp/planetterp/internal/passwords"
	"github.com/planetterp/planetterp/internal/templates"
)

const minSecretKeyLength = 50

// Level grades an Issue.
type Level int

const (
	Warning Level = iota + 1
	Error
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Issue is one problem found in the settings.
type Issue struct {
	ID      string
	Level   Level
	Message string
	Hint    string
}

func (i Issue) String() string {
	s := fmt.Sprintf("%s %s: %s", i.Level, i.ID, i.Message)
	if i.Hint != "" {
		s += " HINT: " + i.Hint
	}
	return s
}

// Issues is the result of Run.
type Issues []Issue

// Errors returns only the error-level issues.
func (is Issues) Errors() Issues {
	var out Issues
	for _, i := range is {
		if i.Level >= Error {
			out = append(out, i)
		}
	}
	return out
}

// Err joins every error-level issue, or returns nil.
func (is Issues) Err() error {
	var errs []error
	for _, i := range is.Errors() {
		errs = append(errs, errors.New(i.String()))
	}
	return errors.Join(errs...)
}

type check func(s config.Settings) Issues

var registry = []check{
	checkSecretKey,
	checkDebug,
	checkDatabases,
	checkApps,
	checkMiddleware,
	checkAuth,
	checkPasswords,
	checkTemplates,
	checkREST,
	checkI18N,
	checkEmail,
	checkStatic,
}

// Run executes every registered check against s.
func Run(s config.Settings) Issues {
	var out Issues
	for _, c := range registry {
		out = append(out, c(s)...)
	}
	return out
}

func checkSecretKey(s config.Settings) Issues {
	switch {
	case s.SecretKey == "":
		return Issues{{ID: "security.E001", Level: Error,
			Message: "SECRET_KEY must not be empty.",
			Hint:    "Set PLANETTERP_SECRET_KEY in the environment or the .env file."}}
	case len(s.SecretKey) < minSecretKeyLength || strings.HasPrefix(s.SecretKey, "insecure"):
		return Issues{{ID: "security.W009", Level: Warning,
			Message: fmt.Sprintf("SECRET_KEY has less than %d characters or looks generated for development.", minSecretKeyLength)}}
	}
	return nil
}

func checkDebug(s config.Settings) Issues {
	if s.Debug {
		return nil
	}
	var out Issues
	if len(s.AllowedHosts) == 0 {
		out = append(out, Issue{ID: "security.E002", Level: Error,
			Message: "ALLOWED_HOSTS must not be empty when DEBUG is false."})
	}
	if s.Security.HSTSSeconds == 0 {
		out = append(out, Issue{ID: "security.W004", Level: Warning,
			Message: "HSTS_SECONDS is not set; browsers may connect over plain HTTP."})
	}
	if !s.Security.SessionCookieSecure {
		out = append(out, Issue{ID: "security.W012", Level: Warning,
			Message: "SESSION_COOKIE_SECURE is false; the session cookie can be sent over HTTP."})
	}
	if len(s.Admins) == 0 {
		out = append(out, Issue{ID: "mail.W001", Level: Warning,
			Message: "ADMINS is empty; server errors will not be reported by email."})
	}
	return out
}

func checkDatabases(s config.Settings) Issues {
	db, ok := s.Databases[config.DefaultDatabase]
	if !ok {
		return Issues{{ID: "database.E001", Level: Error,
			Message: fmt.Sprintf("DATABASES must define %q.", config.DefaultDatabase)}}
	}
	var out Issues
	for _, alias := range sortedAliases(s.Databases) {
		if _, err := database.DSN(s.Databases[alias], s.Location()); err != nil {
			out = append(out, Issue{ID: "database.E002", Level: Error,
				Message: fmt.Sprintf("database %q: %v", alias, err),
				Hint:    "Supported engines: " + strings.Join(database.Engines(), ", ")})
		}
	}
	if db.Engine == config.EngineSQLite && !s.Debug {
		out = append(out, Issue{ID: "database.W001", Level: Warning,
			Message: "The default database uses sqlite with DEBUG disabled."})
	}
	return out
}

func checkApps(s config.Settings) Issues {
	if _, err := apps.Resolve(s.InstalledApps); err != nil {
		return Issues{{ID: "apps.E001", Level: Error, Message: err.Error(),
			Hint: "Known apps: " + strings.Join(apps.Labels(), ", ")}}
	}
	return nil
}

func checkMiddleware(s config.Settings) Issues {
	var out Issues
	if err := middleware.ValidateOrder(s.Middleware); err != nil {
		out = append(out, Issue{ID: "middleware.E001", Level: Error, Message: err.Error(),
			Hint: "Known middleware: " + strings.Join(middleware.Names(), ", ")})
	}
	for _, name := range s.Middleware {
		if name == middleware.Sessions && !s.HasApp("sessions") {
			out = append(out, Issue{ID: "middleware.E002", Level: Error,
				Message: "the sessions middleware requires the sessions app."})
		}
	}
	return out
}

func checkAuth(s config.Settings) Issues {
	var out Issues
	known := auth.Backends()
	for _, name := range s.AuthenticationBackends {
		if !contains(known, name) {
			out = append(out, Issue{ID: "auth.E001", Level: Error,
				Message: fmt.Sprintf("%v: %q", auth.ErrUnknownBackend, name)})
		}
	}
	if contains(s.Middleware, middleware.Auth) {
		if !s.HasApp("auth") {
			out = append(out, Issue{ID: "auth.E002", Level: Error,
				Message: "the auth middleware requires the auth app."})
		}
		if !s.HasApp("home") {
			out = append(out, Issue{ID: "auth.E003", Level: Error,
				Message: fmt.Sprintf("AUTH_USER_MODEL %q refers to the home app, which is not installed.", s.AuthUserModel)})
		}
	}
	return out
}

func checkPasswords(s config.Settings) Issues {
	var out Issues
	if _, err := passwords.NewChain(s.PasswordHashers); err != nil {
		out = append(out, Issue{ID: "passwords.E001", Level: Error, Message: err.Error(),
			Hint: "Known hashers: " + strings.Join(passwords.Algorithms(), ", ")})
	}
	if _, err := passwords.ValidatorsFromSettings(s.PasswordValidators); err != nil {
		out = append(out, Issue{ID: "passwords.E002", Level: Error, Message: err.Error(),
			Hint: "Known validators: " + strings.Join(passwords.ValidatorNames(), ", ")})
	}
	return out
}

func checkTemplates(s config.Settings) Issues {
	var out Issues
	for i, backend := range s.Templates {
		if backend.Backend != templates.BackendHTML {
			out = append(out, Issue{ID: "templates.E001", Level: Error,
				Message: fmt.Sprintf("TEMPLATES[%d]: %v: %q", i, templates.ErrUnknownBackend, backend.Backend)})
		}
		for _, name := range backend.Options.ContextProcessors {
			if !contains(templates.Processors(), name) {
				out = append(out, Issue{ID: "templates.E002", Level: Error,
					Message: fmt.Sprintf("TEMPLATES[%d]: %v: %q", i, templates.ErrUnknownProcessor, name)})
			}
		}
	}
	return out
}

func checkREST(s config.Settings) Issues {
	var out Issues
	if len(s.REST.RendererClasses) == 0 {
		out = append(out, Issue{ID: "api.E001", Level: Error, Message: "at least one renderer is required."})
	}
	for _, name := range s.REST.RendererClasses {
		if !contains(api.RendererNames(), name) {
			out = append(out, Issue{ID: "api.E002", Level: Error,
				Message: fmt.Sprintf("%v: %q", api.ErrUnknownRenderer, name)})
		}
	}
	for _, name := range s.REST.ParserClasses {
		if !contains(api.ParserNames(), name) {
			out = append(out, Issue{ID: "api.E003", Level: Error,
				Message: fmt.Sprintf("%v: %q", api.ErrUnknownParser, name)})
		}
	}
	return out
}

func checkI18N(s config.Settings) Issues {
	var out Issues
	if s.I18N.UseTZ && s.I18N.TimeZone != "" {
		if _, err := time.LoadLocation(s.I18N.TimeZone); err != nil {
			out = append(out, Issue{ID: "i18n.E001", Level: Error,
				Message: fmt.Sprintf("TIME_ZONE %q cannot be loaded: %v", s.I18N.TimeZone, err)})
		}
	}
	if s.I18N.DateFormat == "" {
		out = append(out, Issue{ID: "i18n.W001", Level: Warning, Message: "DATE_FORMAT is empty."})
	} else if _, err := strftime.Layout(s.I18N.DateFormat); err != nil {
		out = append(out, Issue{ID: "i18n.W002", Level: Warning,
			Message: fmt.Sprintf("DATE_FORMAT %q has no time layout equivalent: %v", s.I18N.DateFormat, err)})
	}
	return out
}

func checkEmail(s config.Settings) Issues {
	if !contains(mail.Backends(), s.Email.Backend) {
		return Issues{{ID: "mail.E001", Level: Error,
			Message: fmt.Sprintf("%v: %q", mail.ErrUnknownBackend, s.Email.Backend),
			Hint:    "Known backends: " + strings.Join(mail.Backends(), ", ")}}
	}
	var out Issues
	if s.Email.UseTLS && s.Email.UseSSL {
		out = append(out, Issue{ID: "mail.E002", Level: Error,
			Message: "EMAIL_USE_TLS and EMAIL_USE_SSL are mutually exclusive."})
	}
	if s.Email.Backend == mail.BackendSMTP && s.Email.HostUser != "" && s.Email.HostPassword == "" {
		out = append(out, Issue{ID: "mail.W002", Level: Warning,
			Message: "EMAIL_HOST_USER is set without EMAIL_HOST_PASSWORD."})
	}
	return out
}

func checkStatic(s config.Settings) Issues {
	var out Issues
	if strings.Trim(s.Static.URL, "/") == "" {
		out = append(out, Issue{ID: "static.E001", Level: Error,
			Message: "STATIC_URL must name a path below the site root.",
			Hint:    `Set STATIC_URL to a prefix such as "static/".`})
	}
	if !s.Debug && s.Static.Root == "" {
		out = append(out, Issue{ID: "static.W001", Level: Warning,
			Message: "STATIC_ROOT is not set; static files are not served with DEBUG disabled."})
	}
	root := s.Path(s.Static.Root)
	for _, dir := range s.Static.Dirs {
		if root != "" && s.Path(dir) == root {
			out = append(out, Issue{ID: "static.E002", Level: Error,
				Message: "STATICFILES_DIRS must not contain STATIC_ROOT."})
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func sortedAliases(dbs map[string]config.Database) []string {
	out := make([]string, 0, len(dbs))
	for alias := range dbs {
		out = append(out, alias)
	}
	sort.Strings(out)
	return out
}
