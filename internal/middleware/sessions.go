package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/sessions"
)

func newSessions(d Deps) (Middleware, error) {
	if d.Sessions == nil {
		return nil, fmt.Errorf("%w: session store", ErrMissingDependency)
	}
	store := d.Sessions
	sec := d.Settings.Security
	logger := d.Logger
	clock := d.Clock

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			var (
				key  string
				data sessions.Data
			)
			cookie, err := r.Cookie(sec.SessionCookieName)
			hadCookie := err == nil
			if hadCookie && sessions.ValidKey(cookie.Value) {
				loaded, err := store.Load(ctx, cookie.Value)
				switch {
				case err == nil:
					key, data = cookie.Value, loaded
				case errors.Is(err, sessions.ErrNotFound):
				default:
					logger.Warn("session load failed", zap.Error(err))
				}
			}
			sess := sessions.New(key, data)

			bw := newBeforeWriter(w, func() {
				w.Header().Add("Vary", "Cookie")
				if !sess.Modified() {
					return
				}
				expiry := clock().Add(sec.SessionCookieAge)
				newKey, err := sessions.Commit(ctx, store, sess, expiry)
				if err != nil {
					logger.Error("session save failed", zap.Error(err))
					return
				}
				if newKey == "" {
					if hadCookie {
						http.SetCookie(w, &http.Cookie{
							Name:   sec.SessionCookieName,
							Value:  "",
							Path:   "/",
							MaxAge: -1,
						})
					}
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     sec.SessionCookieName,
					Value:    newKey,
					Path:     "/",
					Expires:  expiry,
					MaxAge:   int(sec.SessionCookieAge.Seconds()),
					Secure:   sec.SessionCookieSecure,
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			})
			next.ServeHTTP(bw, r.WithContext(sessions.WithSession(ctx, sess)))
			bw.fire()
		})
	}, nil
}
