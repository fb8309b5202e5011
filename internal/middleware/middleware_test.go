package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/sessions"
)

func testSettings(t *testing.T) config.Settings {
	t.Helper()
	s := config.Default(t.TempDir())
	s.SecretKey = "test-secret"
	return s
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Settings: testSettings(t),
		Logger:   zaptest.NewLogger(t),
		Sessions: sessions.NewMemoryStore(),
	}
}

// serve runs one request against h on an allowed host.
func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	if req.Host == "example.com" {
		req.Host = "localhost:8080"
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestValidateOrder(t *testing.T) {
	t.Parallel()

	if err := ValidateOrder(config.Default("/srv").Middleware); err != nil {
		t.Fatalf("default middleware rejected: %v", err)
	}

	cases := []struct {
		name  string
		names []string
		want  error
	}{
		{"unknown", []string{"security", "gzip"}, ErrUnknownMiddleware},
		{"duplicate", []string{"sessions", "sessions"}, ErrOrdering},
		{"auth before sessions", []string{"auth", "sessions"}, ErrOrdering},
		{"messages without sessions", []string{"messages"}, ErrOrdering},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateOrder(tc.names); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestBuildRequiresDependencies(t *testing.T) {
	deps := testDeps(t)
	deps.Sessions = nil
	if _, err := Build([]string{Sessions}, deps); !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency for sessions, got %v", err)
	}

	deps = testDeps(t)
	if _, err := Build([]string{Sessions, Auth}, deps); !errors.Is(err, ErrMissingDependency) {
		t.Fatalf("expected ErrMissingDependency for auth, got %v", err)
	}
}

func TestChainRunsFirstOutermost(t *testing.T) {
	t.Parallel()

	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name+">")
				next.ServeHTTP(w, r)
				order = append(order, "<"+name)
			})
		}
	}
	h := Chain(tag("a"), tag("b"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}))
	serve(h, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := strings.Join(order, " "); got != "a> b> handler <b <a" {
		t.Fatalf("unexpected order %q", got)
	}
}

func TestNamesCoversDefaults(t *testing.T) {
	t.Parallel()

	known := make(map[string]bool)
	for _, name := range Names() {
		known[name] = true
	}
	for _, name := range config.Default("/srv").Middleware {
		if !known[name] {
			t.Fatalf("default middleware %q not registered", name)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	deps := testDeps(t)
	mw, err := Build([]string{Security}, deps)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	rec := serve(mw(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected nosniff, got %q", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got != "same-origin" {
		t.Fatalf("expected same-origin, got %q", got)
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS must not be sent over plain HTTP")
	}
}

func TestSecuritySSLRedirect(t *testing.T) {
	deps := testDeps(t)
	deps.Settings.Security.SSLRedirect = true
	mw, err := Build([]string{Security}, deps)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "http://planetterp.com/courses?x=1", nil)
	rec := serve(mw(okHandler()), req)

	if rec.Code != http.StatusMovedPermanently {
		t.Fatalf("expected 301, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://planetterp.com/courses?x=1" {
		t.Fatalf("unexpected redirect %q", loc)
	}
}

func TestClickjacking(t *testing.T) {
	deps := testDeps(t)
	mw, err := Build([]string{Clickjacking}, deps)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	rec := serve(mw(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected DENY, got %q", got)
	}

	custom := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.WriteHeader(http.StatusOK)
	})
	rec = serve(mw(custom), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("X-Frame-Options"); got != "SAMEORIGIN" {
		t.Fatalf("expected handler value to win, got %q", got)
	}
}

func TestCORS(t *testing.T) {
	deps := testDeps(t)
	deps.Settings.Security.CORSAllowedOrigins = []string{"https://umd.edu"}
	mw, err := Build([]string{CORS}, deps)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	h := mw(okHandler())

	preflight := httptest.NewRequest(http.MethodOptions, "/api/v1/site", nil)
	preflight.Header.Set("Origin", "https://umd.edu")
	preflight.Header.Set("Access-Control-Request-Method", "GET")
	rec := serve(h, preflight)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://umd.edu" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	other := httptest.NewRequest(http.MethodGet, "/api/v1/site", nil)
	other.Header.Set("Origin", "https://evil.example")
	rec = serve(h, other)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected CORS headers for foreign origin")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected request to pass through, got %d", rec.Code)
	}
}

func TestCORSWildcard(t *testing.T) {
	mw, err := Build([]string{CORS}, testDeps(t))
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	rec := serve(mw(okHandler()), httptest.NewRequest(http.MethodGet, "/", nil))
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin, got %q", got)
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}
