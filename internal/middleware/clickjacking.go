package middleware

import "net/http"

// newClickjacking sets X-Frame-Options unless the handler already chose one.
func newClickjacking(d Deps) (Middleware, error) {
	value := d.Settings.Security.XFrameOptions
	if value == "" {
		value = "DENY"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bw := newBeforeWriter(w, func() {
				if w.Header().Get("X-Frame-Options") == "" {
					w.Header().Set("X-Frame-Options", value)
				}
			})
			next.ServeHTTP(bw, r)
			bw.fire()
		})
	}, nil
}
