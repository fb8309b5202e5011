package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/planetterp/planetterp/internal/api"
	"github.com/planetterp/planetterp/internal/apps"
	"github.com/planetterp/planetterp/internal/auth"
	"github.com/planetterp/planetterp/internal/config"
	"github.com/planetterp/planetterp/internal/database"
	"github.com/planetterp/planetterp/internal/mail"
	"github.com/planetterp/planetterp/internal/metrics"
	"github.com/planetterp/planetterp/internal/middleware"
	"github.com/planetterp/planetterp/internal/passwords"
	"github.com/planetterp/planetterp/internal/sessions"
	"github.com/planetterp/planetterp/internal/static"
	"github.com/planetterp/planetterp/internal/templates"
)

// HomeTemplate is rendered for the site root.
const HomeTemplate = "home/index.html"

// App encapsulates the application dependencies and HTTP server.
type App struct {
	settings   config.Settings
	installed  []apps.App
	db         *gorm.DB
	users      *database.Users
	hashers    *passwords.Chain
	validators passwords.Validators
	auth       *auth.ModelBackend
	sessions   sessions.Store
	mailer     *mail.Mailer
	metrics    *metrics.Metrics
	templates  *templates.Engine
	finder     *static.Finder
	handler    *api.Handler
	router     http.Handler
	logger     *zap.Logger
	server     *http.Server
}

// Option customises New.
type Option func(*options)

type options struct {
	db         *gorm.DB
	mailOpts   []mail.Option
	sessionsFn func(*gorm.DB) sessions.Store
	routes     []func(chi.Router)
}

// WithDB reuses an open connection instead of dialing the default database.
func WithDB(db *gorm.DB) Option {
	return func(o *options) {
		o.db = db
	}
}

// WithMailOptions forwards options to the mailer, e.g. a test backend.
func WithMailOptions(opts ...mail.Option) Option {
	return func(o *options) {
		o.mailOpts = append(o.mailOpts, opts...)
	}
}

// WithMemorySessions keeps sessions in process memory.
func WithMemorySessions() Option {
	return func(o *options) {
		o.sessionsFn = func(*gorm.DB) sessions.Store { return sessions.NewMemoryStore() }
	}
}

// WithRoutes mounts extra routes behind the full middleware stack.
func WithRoutes(fn func(r chi.Router)) Option {
	return func(o *options) {
		o.routes = append(o.routes, fn)
	}
}

// New initializes the application with all dependencies from the provided settings.
// The settings are copied, so later changes by the caller never reach the app.
func New(s config.Settings, logger *zap.Logger, opts ...Option) (*App, error) {
	s = s.Clone()
	o := options{
		sessionsFn: func(db *gorm.DB) sessions.Store { return sessions.NewDBStore(db) },
	}
	for _, opt := range opts {
		opt(&o)
	}

	installed, err := apps.Resolve(s.InstalledApps)
	if err != nil {
		return nil, fmt.Errorf("resolve installed apps: %w", err)
	}

	db := o.db
	if db == nil {
		db, err = OpenDatabase(s, logger)
		if err != nil {
			return nil, err
		}
	}

	hashers, err := passwords.NewChain(s.PasswordHashers)
	if err != nil {
		return nil, fmt.Errorf("password hashers: %w", err)
	}
	validators, err := passwords.ValidatorsFromSettings(s.PasswordValidators)
	if err != nil {
		return nil, fmt.Errorf("password validators: %w", err)
	}

	m := metrics.New()
	users := database.NewUsers(db)
	backend := auth.NewModelBackend(users, hashers, logger, auth.WithMetrics(m))

	mailer, err := mail.New(s.Email, s.Admins, logger, append([]mail.Option{mail.WithMetrics(m)}, o.mailOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("mail: %w", err)
	}

	var engine *templates.Engine
	if len(s.Templates) > 0 {
		engine, err = templates.New(s.Templates[0], s, installed, logger)
		if err != nil {
			return nil, fmt.Errorf("templates: %w", err)
		}
	}

	handler, err := api.NewHandler(s,
		api.WithValidators(validators),
		api.WithLogger(logger),
		api.WithHealthCheck(func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	app := &App{
		settings:   s,
		installed:  installed,
		db:         db,
		users:      users,
		hashers:    hashers,
		validators: validators,
		auth:       backend,
		sessions:   o.sessionsFn(db),
		mailer:     mailer,
		metrics:    m,
		templates:  engine,
		finder:     static.NewFinder(s, installed),
		handler:    handler,
		logger:     logger,
	}

	router, err := app.buildRouter(o.routes)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}
	app.router = router
	app.server = NewServer(s.Server, router)

	return app, nil
}

// OpenDatabase connects to the default database. Relative sqlite paths are
// resolved against the base directory.
func OpenDatabase(s config.Settings, logger *zap.Logger) (*gorm.DB, error) {
	dbCfg := s.DefaultDB()
	if dbCfg.Engine == config.EngineSQLite && dbCfg.Name != ":memory:" {
		dbCfg.Name = s.Path(dbCfg.Name)
	}
	db, err := database.Open(dbCfg,
		database.WithDebug(s.Debug),
		database.WithLocation(s.Location()),
	)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", config.DefaultDatabase, err)
	}
	logger.Debug("database opened", zap.String("engine", dbCfg.Engine), zap.String("name", dbCfg.Name))
	return db, nil
}

// Migrate creates the tables of every installed app and seeds the current site.
func Migrate(ctx context.Context, s config.Settings, db *gorm.DB) error {
	installed, err := apps.Resolve(s.InstalledApps)
	if err != nil {
		return err
	}
	if err := database.Migrate(ctx, db, apps.Models(installed)...); err != nil {
		return err
	}
	if !s.HasApp("sites") {
		return nil
	}
	return database.EnsureSite(ctx, db, uint(s.SiteID), s.SiteDomain, s.SiteName)
}

func (a *App) buildRouter(extra []func(chi.Router)) (http.Handler, error) {
	s := a.settings

	chain, err := middleware.Build(s.Middleware, middleware.Deps{
		Settings: s,
		Logger:   a.logger,
		Sessions: a.sessions,
		Auth:     a.auth,
	})
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RateLimit(
		middleware.NewTokenBucketLimiter(s.Server.RateLimitRPS, s.Server.RateLimitBurst), a.metrics))
	if s.Server.EnableRequestLogging {
		r.Use(middleware.Logging(a.logger))
	}
	r.Use(middleware.Instrument(a.metrics))
	r.Use(middleware.Recovery(a.logger, a.mailer, s.Debug, a.metrics))
	r.Use(chain)

	if s.Server.EnableMetrics {
		r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	}

	if mount := static.MountPath(s.Static.URL); mount != "" {
		r.Handle(mount+"*", static.Handler(s, a.finder, a.logger))
	}

	a.handler.Routes(r)
	for _, fn := range extra {
		fn(r)
	}

	if a.templates != nil {
		r.Method(http.MethodGet, "/", a.templates.Page(HomeTemplate, map[string]any{
			"site_name": s.SiteName,
		}))
	}

	return r, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Server, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// DB returns the default database connection.
func (a *App) DB() *gorm.DB {
	return a.db
}

// Users returns the user repository.
func (a *App) Users() *database.Users {
	return a.users
}

// Hashers returns the configured password hasher chain.
func (a *App) Hashers() *passwords.Chain {
	return a.hashers
}

// Validators returns the configured password validators.
func (a *App) Validators() passwords.Validators {
	return a.validators
}

// Auth returns the authentication backend.
func (a *App) Auth() *auth.ModelBackend {
	return a.auth
}

// Sessions returns the session store.
func (a *App) Sessions() sessions.Store {
	return a.sessions
}

// Mailer returns the configured mailer.
func (a *App) Mailer() *mail.Mailer {
	return a.mailer
}

// Close releases the database connection pool.
func (a *App) Close() error {
	return database.Close(a.db)
}
