package middleware

import (
	"net/http"
	"strconv"
)

func newSecurity(d Deps) (Middleware, error) {
	sec := d.Settings.Security
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secure := r.TLS != nil
			if sec.SSLRedirect && !secure {
				http.Redirect(w, r, "https://"+r.Host+r.URL.RequestURI(), http.StatusMovedPermanently)
				return
			}

			h := w.Header()
			if sec.ContentTypeNosniff {
				h.Set("X-Content-Type-Options", "nosniff")
			}
			if sec.ReferrerPolicy != "" {
				h.Set("Referrer-Policy", sec.ReferrerPolicy)
			}
			if sec.HSTSSeconds > 0 && secure {
				value := "max-age=" + strconv.Itoa(sec.HSTSSeconds)
				if sec.HSTSIncludeSubdomains {
					value += "; includeSubDomains"
				}
				h.Set("Strict-Transport-Security", value)
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}
