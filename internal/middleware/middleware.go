// Package middleware builds the ordered request chain named in the settings
// and the ambient stack the server wraps around it.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/auth"
	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/sessions"
)

// Middleware names accepted in Settings.Middleware.
const (
	Security     = "security"
	Sessions     = "sessions"
	CORS         = "cors"
	Common       = "common"
	CSRF         = "csrf"
	Auth         = "auth"
	Messages     = "messages"
	Clickjacking = "clickjacking"
)

var (
	// ErrUnknownMiddleware is returned for names missing from the registry.
	ErrUnknownMiddleware = errors.New("unknown middleware")
	// ErrOrdering is returned when a middleware runs before one it depends on.
	ErrOrdering = errors.New("middleware ordering")
	// ErrMissingDependency is returned when Deps lacks a value a middleware needs.
	ErrMissingDependency = errors.New("middleware dependency missing")
)

// Middleware wraps a handler.
type Middleware func(http.Handler) http.Handler

// Deps are the collaborators the configured middleware draw on.
type Deps struct {
	Settings config.Settings
	Logger   *zap.Logger
	Sessions sessions.Store
	Auth     *auth.ModelBackend
	Clock    func() time.Time
}

type factory func(Deps) (Middleware, error)

var registry = map[string]factory{
	Security:     newSecurity,
	Sessions:     newSessions,
	CORS:         newCORS,
	Common:       newCommon,
	CSRF:         newCSRF,
	Auth:         newAuth,
	Messages:     newMessages,
	Clickjacking: newClickjacking,
}

// requires lists, per middleware, those that must appear earlier in the chain.
var requires = map[string][]string{
	Auth:     {Sessions},
	Messages: {Sessions},
}

// Names returns the registered middleware names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ValidateOrder rejects unknown or duplicate names and unmet ordering dependencies.
func ValidateOrder(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := registry[name]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMiddleware, name)
		}
		if seen[name] {
			return fmt.Errorf("%w: %q listed twice", ErrOrdering, name)
		}
		for _, dep := range requires[name] {
			if !seen[dep] {
				return fmt.Errorf("%w: %q must come after %q", ErrOrdering, name, dep)
			}
		}
		seen[name] = true
	}
	return nil
}

// Build composes names into one Middleware; the first name is the outermost,
// so it sees the request first and the response last.
func Build(names []string, deps Deps) (Middleware, error) {
	if err := ValidateOrder(names); err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	chain := make([]Middleware, 0, len(names))
	for _, name := range names {
		mw, err := registry[name](deps)
		if err != nil {
			return nil, fmt.Errorf("build %s middleware: %w", name, err)
		}
		chain = append(chain, mw)
	}
	return Chain(chain...), nil
}

// Chain composes mws with the first one outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
