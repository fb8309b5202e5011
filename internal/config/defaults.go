package config

import "time"

// Database engines understood by the database package.
const (
	EngineMySQL    = "mysql"
	EnginePostgres = "postgres"
	EngineSQLite   = "sqlite"
	EngineLibSQL   = "libsql"
)

const (
	defaultPort           = "8080"
	defaultRateLimitRPS   = 25.0
	defaultRateLimitBurst = 50
	defaultMySQLPort      = "3306"
	defaultMySQLCharset   = "utf8mb4"
	twoWeeks              = 14 * 24 * time.Hour
)

// Default returns the settings literals of the site rooted at baseDir.
// Secret values are left empty; they come from the environment.
func Default(baseDir string) Settings {
	return Settings{
		BaseDir: baseDir,
		Debug:   true,
		AllowedHosts: []string{
			"planetterp.com",
			"api.planetterp.com",
			"localhost",
			"127.0.0.1",
		},

		SiteID:     1,
		SiteDomain: "planetterp.com",
		SiteName:   "PlanetTerp",

		LoginURL:               "login",
		AuthUserModel:          "home.User",
		AuthenticationBackends: []string{"model"},

		InstalledApps: []string{
			"admin",
			"auth",
			"contenttypes",
			"sessions",
			"messages",
			"staticfiles",
			// only necessary for sitemaps
			"sites",
			"sitemaps",
			"home",
			"crispy_forms",
			"django_tables2",
			"rest_framework",
			"api",
		},

		Middleware: []string{
			"security",
			"sessions",
			"cors",
			"common",
			"csrf",
			"auth",
			"messages",
			"clickjacking",
		},

		Templates: []TemplateBackend{
			{
				Backend: "html",
				Dirs:    []string{"home/templates"},
				AppDirs: true,
				Options: TemplateOptions{
					ContextProcessors: []string{"debug", "request", "auth", "messages"},
				},
			},
		},

		// just good ol' json, no browsable pages
		REST: REST{
			RendererClasses: []string{"json"},
			ParserClasses:   []string{"json"},
		},

		Databases: map[string]Database{
			DefaultDatabase: {
				Engine:  EngineMySQL,
				Name:    "planetterp",
				Host:    "localhost",
				Port:    defaultMySQLPort,
				Options: map[string]string{"charset": defaultMySQLCharset},
			},
		},

		// Legacy accounts were hashed with plain bcrypt (no sha256 pre-hash),
		// so bcrypt stays in the chain as a verification-only fallback.
		PasswordHashers: []string{
			"pbkdf2_sha256",
			"pbkdf2_sha1",
			"argon2",
			"bcrypt",
		},

		PasswordValidators: []PasswordValidator{
			{Name: "user_attribute_similarity"},
			{Name: "minimum_length"},
			{Name: "common"},
			{Name: "numeric"},
		},

		I18N: I18N{
			LanguageCode: "en-us",
			TimeZone:     "UTC",
			UseI18N:      true,
			UseL10N:      false,
			UseTZ:        true,
			DateFormat:   "%m/%d/%Y",
		},

		Static: Static{
			URL: "static/",
			Dirs: []string{
				"planetterp/static",
				"api/static",
			},
			IgnorePatterns: []string{"CVS", ".*", "*~"},
		},

		DefaultAutoField: "BigAutoField",

		UI: UI{
			CrispyTemplatePack: "bootstrap4",
			TablesTemplate:     "django_tables2/bootstrap4.html",
		},

		Email: Email{
			Backend:       "smtp",
			Host:          "smtp.gmail.com",
			Port:          587,
			UseTLS:        true,
			SubjectPrefix: "[PlanetTerp] ",
			Timeout:       30 * time.Second,
		},

		Security: Security{
			ContentTypeNosniff: true,
			ReferrerPolicy:     "same-origin",
			XFrameOptions:      "DENY",
			SessionCookieName:  "sessionid",
			SessionCookieAge:   twoWeeks,
			CSRFCookieName:     "csrftoken",
			CSRFHeaderName:     "X-CSRFToken",
			CSRFExemptPrefixes: []string{"/api/"},
			CORSAllowedOrigins: []string{"*"},
		},

		Server: Server{
			Port:                 defaultPort,
			ReadHeaderTimeout:    5 * time.Second,
			WriteTimeout:         15 * time.Second,
			IdleTimeout:          60 * time.Second,
			ShutdownGracePeriod:  10 * time.Second,
			EnableRequestLogging: true,
			EnableMetrics:        true,
			RateLimitRPS:         defaultRateLimitRPS,
			RateLimitBurst:       defaultRateLimitBurst,
		},
	}
}
