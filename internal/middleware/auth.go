package middleware

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/auth"
	"github.com/planetterp/planetterp/internal/sessions"
)

// newAuth resolves the logged in user from the session.
func newAuth(d Deps) (Middleware, error) {
	if d.Auth == nil {
		return nil, fmt.Errorf("%w: authentication backend", ErrMissingDependency)
	}
	backend := d.Auth
	secret := d.Settings.SecretKey
	logger := d.Logger

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := sessions.FromContext(r.Context())
			if sess == nil {
				next.ServeHTTP(w, r)
				return
			}
			user, err := backend.FromSession(r.Context(), sess, secret)
			if err != nil {
				logger.Warn("session user lookup failed", zap.Error(err))
			}
			if user != nil {
				r = r.WithContext(auth.WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}
