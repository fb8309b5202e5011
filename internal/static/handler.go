package static

import (
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/planetterp/planetterp/internal/config"
)

// MountPath returns the router prefix for the static URL, or "" when the
// static URL points to another host or names no path below the site root.
func MountPath(staticURL string) string {
	if strings.Contains(staticURL, "://") {
		return ""
	}
	trimmed := strings.Trim(staticURL, "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed + "/"
}

// Handler serves assets below the static mount path. In debug mode files come
// straight from the finder; otherwise from the collected static root.
func Handler(s config.Settings, finder *Finder, logger *zap.Logger) http.Handler {
	prefix := MountPath(s.Static.URL)
	if !s.Debug {
		if s.Static.Root == "" {
			logger.Warn("static root not configured; static files will not be served")
			return http.NotFoundHandler()
		}
		root := http.Dir(s.Path(s.Static.Root))
		return http.StripPrefix(prefix, noDirListing(http.FileServer(root)))
	}

	return http.StripPrefix(prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		file, err := finder.Find(r.URL.Path)
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			logger.Error("static lookup failed", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "Server Error (500)", http.StatusInternalServerError)
			return
		}
		http.ServeFile(w, r, filepath.Clean(file.Path))
	}))
}

func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}
