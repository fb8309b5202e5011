package middleware

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// CSRFFormField is the form field read when the header is absent.
	CSRFFormField = "csrfmiddlewaretoken"

	csrfTokenLength = 32
	csrfCookieAge   = 365 * 24 * time.Hour
)

type csrfContextKey struct{}

// CSRFToken returns the token templates embed in forms, or "" without the csrf middleware.
func CSRFToken(ctx context.Context) string {
	token, _ := ctx.Value(csrfContextKey{}).(string)
	return token
}

func newCSRF(d Deps) (Middleware, error) {
	sec := d.Settings.Security
	logger := d.Logger
	hosts := d.Settings.AllowedHosts
	if len(hosts) == 0 && d.Settings.Debug {
		hosts = debugHosts
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(sec.CSRFCookieName); err == nil && validCSRFToken(c.Value) {
				token = c.Value
			}
			issued := false
			if token == "" {
				fresh, err := newCSRFToken()
				if err != nil {
					logger.Error("csrf token generation failed", zap.Error(err))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
					return
				}
				token, issued = fresh, true
			}

			if !csrfSafe(r.Method) && !csrfExempt(r.URL.Path, sec.CSRFExemptPrefixes) {
				if reason := csrfReject(r, token, issued, sec.CSRFHeaderName, hosts); reason != "" {
					logger.Warn("csrf verification failed",
						zap.String("reason", reason),
						zap.String("path", r.URL.Path))
					http.Error(w, "Forbidden (403)\nCSRF verification failed. "+reason, http.StatusForbidden)
					return
				}
			}

			if issued {
				http.SetCookie(w, &http.Cookie{
					Name:     sec.CSRFCookieName,
					Value:    token,
					Path:     "/",
					Expires:  time.Now().Add(csrfCookieAge),
					MaxAge:   int(csrfCookieAge.Seconds()),
					Secure:   sec.SessionCookieSecure,
					SameSite: http.SameSiteLaxMode,
				})
				w.Header().Add("Vary", "Cookie")
			}
			ctx := context.WithValue(r.Context(), csrfContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, nil
}

// csrfReject returns why an unsafe request fails verification, or "".
func csrfReject(r *http.Request, token string, issued bool, header string, hosts []string) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" || (!strings.EqualFold(u.Host, r.Host) && !HostAllowed(hostDomain(u.Host), hosts)) {
			return "Origin checking failed."
		}
	}
	if issued {
		return "CSRF cookie not set."
	}

	submitted := r.Header.Get(header)
	if submitted == "" {
		submitted = r.PostFormValue(CSRFFormField)
	}
	if submitted == "" {
		return "CSRF token missing."
	}
	if subtle.ConstantTimeCompare([]byte(submitted), []byte(token)) != 1 {
		return "CSRF token incorrect."
	}
	return ""
}

func csrfSafe(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}

func csrfExempt(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func newCSRFToken() (string, error) {
	buf := make([]byte, csrfTokenLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func validCSRFToken(token string) bool {
	if len(token) != csrfTokenLength {
		return false
	}
	_, err := hex.DecodeString(token)
	return err == nil
}
