package application

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap/zaptest"

	"github.com/planetterp/planetterp/internal/apps"
	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/mail"
	"github.com/planetterp/planetterp/internal/models"
)

// projectRoot walks up from the working directory to the module root, where
// the templates and static directories live.
func projectRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("unable to locate go.mod")
		}
		dir = parent
	}
}

func baseTestSettings(t *testing.T) config.Settings {
	t.Helper()
	s := config.Default(projectRoot(t))
	s.SecretKey = strings.Repeat("s", 64)
	s.Databases = map[string]config.Database{
		config.DefaultDatabase: {
			Engine:       config.EngineSQLite,
			Name:         filepath.Join(t.TempDir(), "app.db"),
			MaxOpenConns: 1,
		},
	}
	s.Email.Backend = mail.BackendLocmem
	s.Server = config.Server{
		Port:                ":0",
		ShutdownGracePeriod: 50 * time.Millisecond,
		ReadHeaderTimeout:   20 * time.Millisecond,
		WriteTimeout:        30 * time.Millisecond,
		IdleTimeout:         40 * time.Millisecond,
		EnableMetrics:       true,
	}
	return s
}

func newTestApp(t *testing.T, s config.Settings) *App {
	t.Helper()
	app, err := New(s, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	if err := Migrate(context.Background(), s, app.DB()); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}
	return app
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Host = "localhost"
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func TestNewInitializesDependencies(t *testing.T) {
	app := newTestApp(t, baseTestSettings(t))

	if app.server == nil || app.router == nil || app.handler == nil || app.templates == nil {
		t.Fatalf("expected server, router, handler and templates to be initialized")
	}
	if app.Server() != app.server {
		t.Fatalf("Server accessor did not return underlying instance")
	}
	if app.Hashers().Preferred().Algorithm() != "pbkdf2_sha256" {
		t.Fatalf("unexpected preferred hasher %s", app.Hashers().Preferred().Algorithm())
	}
	if len(app.Validators()) != 4 {
		t.Fatalf("expected 4 validators, got %d", len(app.Validators()))
	}
	if app.Auth() == nil || app.Sessions() == nil || app.Mailer() == nil || app.Users() == nil {
		t.Fatalf("expected auth, sessions, mailer and users to be initialized")
	}
}

func TestNewServerAppliesConfig(t *testing.T) {
	cfg := baseTestSettings(t).Server
	cfg.Port = "9090"
	handler := http.NewServeMux()

	server := NewServer(cfg, handler)
	if server.Addr != ":9090" {
		t.Fatalf("expected address :9090, got %s", server.Addr)
	}
	if server.Handler != handler {
		t.Fatalf("expected handler to be applied")
	}
	if server.ReadHeaderTimeout != cfg.ReadHeaderTimeout ||
		server.WriteTimeout != cfg.WriteTimeout ||
		server.IdleTimeout != cfg.IdleTimeout {
		t.Fatalf("server timeouts do not match configuration")
	}
}

func TestRouterServesHomeStaticAndAPI(t *testing.T) {
	app := newTestApp(t, baseTestSettings(t))
	h := app.Handler()

	home := get(t, h, "/")
	if home.Code != http.StatusOK {
		t.Fatalf("expected home status 200, got %d: %s", home.Code, home.Body.String())
	}
	body := home.Body.String()
	if !strings.Contains(body, "<title>PlanetTerp</title>") {
		t.Fatalf("expected site name in home page, got %s", body)
	}
	if !strings.Contains(body, `name="csrfmiddlewaretoken"`) {
		t.Fatalf("expected csrf input in home page")
	}
	if !strings.Contains(body, `href="/static/css/site.css"`) {
		t.Fatalf("expected static link in home page")
	}
	if home.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected clickjacking header, got %q", home.Header().Get("X-Frame-Options"))
	}
	if home.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}

	css := get(t, h, "/static/css/site.css")
	if css.Code != http.StatusOK || !strings.Contains(css.Body.String(), ".site-header") {
		t.Fatalf("expected stylesheet, got %d", css.Code)
	}
	js := get(t, h, "/static/api/password.js")
	if js.Code != http.StatusOK {
		t.Fatalf("expected app static file, got %d", js.Code)
	}

	health := get(t, h, "/api/health")
	if health.Code != http.StatusOK || !strings.Contains(health.Body.String(), `"database":"ok"`) {
		t.Fatalf("unexpected health response %d: %s", health.Code, health.Body.String())
	}

	site := get(t, h, "/api/v1/site")
	if site.Code != http.StatusOK || !strings.Contains(site.Body.String(), `"name":"PlanetTerp"`) {
		t.Fatalf("unexpected site response %d: %s", site.Code, site.Body.String())
	}

	metrics := get(t, h, "/metrics")
	if metrics.Code != http.StatusOK {
		t.Fatalf("expected metrics status 200, got %d", metrics.Code)
	}
	if !strings.Contains(metrics.Body.String(), `planetterp_http_requests_total{code="200",method="GET",route="/api/health"}`) {
		t.Fatalf("expected request counter for /api/health, got %s", metrics.Body.String())
	}
}

func TestRouterPasswordValidationSkipsCSRF(t *testing.T) {
	app := newTestApp(t, baseTestSettings(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/password/validate",
		strings.NewReader(`{"password":"password"}`))
	req.Host = "localhost"
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	app.Handler().ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), "This password is too common.") {
		t.Fatalf("expected common password error, got %s", resp.Body.String())
	}
}

func TestRouterRejectsDisallowedHost(t *testing.T) {
	app := newTestApp(t, baseTestSettings(t))

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Host = "evil.example.org"
	resp := httptest.NewRecorder()
	app.Handler().ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestSettingsChangedAfterNewDoNotLeak(t *testing.T) {
	s := baseTestSettings(t)
	app := newTestApp(t, s)

	for i := range s.AllowedHosts {
		s.AllowedHosts[i] = "evil.example.org"
	}
	s.InstalledApps[0] = "tampered"

	if resp := get(t, app.Handler(), "/api/health"); resp.Code != http.StatusOK {
		t.Fatalf("expected status 200 for localhost, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Host = "evil.example.org"
	resp := httptest.NewRecorder()
	app.Handler().ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for tampered host, got %d", resp.Code)
	}
	if app.settings.InstalledApps[0] == "tampered" {
		t.Fatalf("expected app settings to be isolated from the caller")
	}
}

func TestMetricsDisabled(t *testing.T) {
	s := baseTestSettings(t)
	s.Server.EnableMetrics = false
	app := newTestApp(t, s)

	if resp := get(t, app.Handler(), "/metrics"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestMigrateSeedsSite(t *testing.T) {
	s := baseTestSettings(t)
	s.SiteDomain = "staging.planetterp.com"
	app := newTestApp(t, s)

	var site models.Site
	if err := app.DB().First(&site, s.SiteID).Error; err != nil {
		t.Fatalf("load site: %v", err)
	}
	if site.Domain != "staging.planetterp.com" || site.Name != "PlanetTerp" {
		t.Fatalf("unexpected site %+v", site)
	}
}

func TestPanicsAreMailedToAdmins(t *testing.T) {
	s := baseTestSettings(t)
	s.Debug = false
	s.AllowedHosts = []string{"localhost"}
	s.Admins = []config.Admin{{Name: "Ops", Email: "ops@planetterp.com"}}
	outbox := mail.NewLocmemBackend()

	app, err := New(s, zaptest.NewLogger(t),
		WithMailOptions(mail.WithBackend(mail.BackendLocmem, outbox)),
		WithRoutes(func(r chi.Router) {
			r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
		}),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })

	resp := get(t, app.Handler(), "/boom")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}
	sent := outbox.Outbox()
	if len(sent) != 1 {
		t.Fatalf("expected 1 admin mail, got %d", len(sent))
	}
	if !strings.Contains(sent[0].Subject, "GET /boom") || !strings.Contains(sent[0].Body, "boom") {
		t.Fatalf("unexpected admin mail %+v", sent[0])
	}
}

func TestNewRejectsUnknownApp(t *testing.T) {
	s := baseTestSettings(t)
	s.InstalledApps = append(s.InstalledApps, "polls")

	if _, err := New(s, zaptest.NewLogger(t)); !errors.Is(err, apps.ErrUnknownApp) {
		t.Fatalf("expected ErrUnknownApp, got %v", err)
	}
}

func TestHandlerOverListener(t *testing.T) {
	app := newTestApp(t, baseTestSettings(t))

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}
}
