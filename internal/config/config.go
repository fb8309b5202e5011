package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultDatabase is the alias every deployment must define.
const DefaultDatabase = "default"

// Settings aggregates every configuration block consumed at process start.
// Precedence: CLI flags > Environment variables (.env included) > YAML config > Defaults
type Settings struct {
	BaseDir      string   `yaml:"base_dir"`
	SecretKey    string   `yaml:"secret_key"`
	Debug        bool     `yaml:"debug"`
	AllowedHosts []string `yaml:"allowed_hosts"`
	Admins       []Admin  `yaml:"admins"`

	SiteID     int    `yaml:"site_id"`
	SiteDomain string `yaml:"site_domain"`
	SiteName   string `yaml:"site_name"`

	LoginURL               string   `yaml:"login_url"`
	AuthUserModel          string   `yaml:"auth_user_model"`
	AuthenticationBackends []string `yaml:"authentication_backends"`

	InstalledApps []string          `yaml:"installed_apps"`
	Middleware    []string          `yaml:"middleware"`
	Templates     []TemplateBackend `yaml:"templates"`
	REST          REST              `yaml:"rest"`

	Databases map[string]Database `yaml:"databases"`

	PasswordHashers    []string            `yaml:"password_hashers"`
	PasswordValidators []PasswordValidator `yaml:"password_validators"`

	I18N             I18N     `yaml:"i18n"`
	Static           Static   `yaml:"static"`
	DefaultAutoField string   `yaml:"default_auto_field"`
	UI               UI       `yaml:"ui"`
	Email            Email    `yaml:"email"`
	Security         Security `yaml:"security"`
	Server           Server   `yaml:"server"`
}

// Admin receives error reports when the server runs with Debug disabled.
type Admin struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Database describes one connection handed to the ORM.
type Database struct {
	Engine       string            `yaml:"engine"`
	Name         string            `yaml:"name"`
	User         string            `yaml:"user"`
	Password     string            `yaml:"password"`
	Host         string            `yaml:"host"`
	Port         string            `yaml:"port"`
	Options      map[string]string `yaml:"options"`
	ConnMaxAge   time.Duration     `yaml:"conn_max_age"`
	MaxOpenConns int               `yaml:"max_open_conns"`
	MaxIdleConns int               `yaml:"max_idle_conns"`
}

// TemplateBackend binds a template engine to its search directories.
type TemplateBackend struct {
	Backend string          `yaml:"backend"`
	Dirs    []string        `yaml:"dirs"`
	AppDirs bool            `yaml:"app_dirs"`
	Options TemplateOptions `yaml:"options"`
}

// TemplateOptions holds backend specific options.
type TemplateOptions struct {
	ContextProcessors []string `yaml:"context_processors"`
	Layouts           []string `yaml:"layouts"`
}

// REST selects the renderers and parsers of the JSON API.
type REST struct {
	RendererClasses []string `yaml:"renderer_classes"`
	ParserClasses   []string `yaml:"parser_classes"`
}

// PasswordValidator names one password policy check and its options.
type PasswordValidator struct {
	Name           string   `yaml:"name"`
	MinLength      int      `yaml:"min_length,omitempty"`
	MaxSimilarity  float64  `yaml:"max_similarity,omitempty"`
	UserAttributes []string `yaml:"user_attributes,omitempty"`
}

// I18N groups language and time zone settings.
type I18N struct {
	LanguageCode string `yaml:"language_code"`
	TimeZone     string `yaml:"time_zone"`
	UseI18N      bool   `yaml:"use_i18n"`
	UseL10N      bool   `yaml:"use_l10n"`
	UseTZ        bool   `yaml:"use_tz"`
	DateFormat   string `yaml:"date_format"`
}

// Static locates static assets.
type Static struct {
	URL            string   `yaml:"url"`
	Dirs           []string `yaml:"dirs"`
	Root           string   `yaml:"root"`
	IgnorePatterns []string `yaml:"ignore_patterns"`
}

// UI carries the CSS framework choices exposed to templates.
type UI struct {
	CrispyTemplatePack string `yaml:"crispy_template_pack"`
	TablesTemplate     string `yaml:"tables_template"`
}

// Email configures outgoing mail delivery.
type Email struct {
	Backend       string        `yaml:"backend"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	UseTLS        bool          `yaml:"use_tls"`
	UseSSL        bool          `yaml:"use_ssl"`
	HostUser      string        `yaml:"host_user"`
	HostPassword  string        `yaml:"host_password"`
	DefaultFrom   string        `yaml:"default_from"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Timeout       time.Duration `yaml:"timeout"`
}

// Security configures the security, session, csrf, cors and clickjacking middleware.
type Security struct {
	ContentTypeNosniff    bool          `yaml:"content_type_nosniff"`
	ReferrerPolicy        string        `yaml:"referrer_policy"`
	HSTSSeconds           int           `yaml:"hsts_seconds"`
	HSTSIncludeSubdomains bool          `yaml:"hsts_include_subdomains"`
	SSLRedirect           bool          `yaml:"ssl_redirect"`
	XFrameOptions         string        `yaml:"x_frame_options"`
	SessionCookieName     string        `yaml:"session_cookie_name"`
	SessionCookieAge      time.Duration `yaml:"session_cookie_age"`
	SessionCookieSecure   bool          `yaml:"session_cookie_secure"`
	CSRFCookieName        string        `yaml:"csrf_cookie_name"`
	CSRFHeaderName        string        `yaml:"csrf_header_name"`
	CSRFExemptPrefixes    []string      `yaml:"csrf_exempt_prefixes"`
	CORSAllowedOrigins    []string      `yaml:"cors_allowed_origins"`
}

// Server configures the HTTP listener and the ambient middleware around the chain.
type Server struct {
	Port                 string        `yaml:"port"`
	ReadHeaderTimeout    time.Duration `yaml:"read_header_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	ShutdownGracePeriod  time.Duration `yaml:"shutdown_grace_period"`
	EnableRequestLogging bool          `yaml:"enable_request_logging"`
	EnableMetrics        bool          `yaml:"enable_metrics"`
	RateLimitRPS         float64       `yaml:"rate_limit_rps"`
	RateLimitBurst       int           `yaml:"rate_limit_burst"`
}

// CLIOverrides holds command-line flag overrides.
type CLIOverrides struct {
	ConfigFile     string
	EnvFile        string
	BaseDir        *string
	Port           *string
	Debug          *bool
	RateLimitRPS   *float64
	RateLimitBurst *int
}

// Load resolves settings from defaults, an optional YAML file, the environment
// (optionally seeded from a .env file) and CLI overrides, in that order.
func Load(overrides *CLIOverrides) (Settings, error) {
	baseDir, err := resolveBaseDir(overrides)
	if err != nil {
		return Settings{}, err
	}
	cfg := Default(baseDir)

	if overrides != nil && overrides.ConfigFile != "" {
		if err := applyYAMLFile(&cfg, overrides.ConfigFile); err != nil {
			return Settings{}, fmt.Errorf("load YAML config: %w", err)
		}
	}

	env, err := newEnvironment(envFile(overrides))
	if err != nil {
		return Settings{}, fmt.Errorf("load env file: %w", err)
	}
	if err := applyEnvConfig(&cfg, env); err != nil {
		return Settings{}, err
	}

	if overrides != nil {
		applyCLIOverrides(&cfg, overrides)
	}

	normalize(&cfg)

	if err := validateSettings(cfg); err != nil {
		return Settings{}, err
	}

	return cfg, nil
}

// Path resolves p against BaseDir unless it is already absolute.
func (s Settings) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(s.BaseDir, p)
}

// DefaultDB returns the default database descriptor.
func (s Settings) DefaultDB() Database {
	return s.Databases[DefaultDatabase]
}

// HasApp reports whether label is installed.
func (s Settings) HasApp(label string) bool {
	for _, app := range s.InstalledApps {
		if app == label {
			return true
		}
	}
	return false
}

// Location returns the configured time zone. Local time is used when UseTZ is
// off and UTC when the zone cannot be loaded.
func (s Settings) Location() *time.Location {
	if !s.I18N.UseTZ || s.I18N.TimeZone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(s.I18N.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Clone returns a deep copy so callers can never mutate shared settings.
func (s Settings) Clone() Settings {
	out := s
	out.AllowedHosts = cloneStrings(s.AllowedHosts)
	out.Admins = append([]Admin(nil), s.Admins...)
	out.AuthenticationBackends = cloneStrings(s.AuthenticationBackends)
	out.InstalledApps = cloneStrings(s.InstalledApps)
	out.Middleware = cloneStrings(s.Middleware)
	out.PasswordHashers = cloneStrings(s.PasswordHashers)
	out.REST = REST{
		RendererClasses: cloneStrings(s.REST.RendererClasses),
		ParserClasses:   cloneStrings(s.REST.ParserClasses),
	}

	out.Templates = make([]TemplateBackend, len(s.Templates))
	for i, tpl := range s.Templates {
		tpl.Dirs = cloneStrings(tpl.Dirs)
		tpl.Options.ContextProcessors = cloneStrings(tpl.Options.ContextProcessors)
		tpl.Options.Layouts = cloneStrings(tpl.Options.Layouts)
		out.Templates[i] = tpl
	}

	out.PasswordValidators = make([]PasswordValidator, len(s.PasswordValidators))
	for i, v := range s.PasswordValidators {
		v.UserAttributes = cloneStrings(v.UserAttributes)
		out.PasswordValidators[i] = v
	}

	out.Databases = cloneDatabases(s.Databases)

	out.Static.Dirs = cloneStrings(s.Static.Dirs)
	out.Static.IgnorePatterns = cloneStrings(s.Static.IgnorePatterns)
	out.Security.CSRFExemptPrefixes = cloneStrings(s.Security.CSRFExemptPrefixes)
	out.Security.CORSAllowedOrigins = cloneStrings(s.Security.CORSAllowedOrigins)
	return out
}

func resolveBaseDir(overrides *CLIOverrides) (string, error) {
	dir := strings.TrimSpace(os.Getenv(envPrefix + "BASE_DIR"))
	if overrides != nil && overrides.BaseDir != nil && *overrides.BaseDir != "" {
		dir = *overrides.BaseDir
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve base dir: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve base dir: %w", err)
	}
	return abs, nil
}

func envFile(overrides *CLIOverrides) string {
	if overrides == nil {
		return ""
	}
	return overrides.EnvFile
}

// applyYAMLFile decodes the file on top of cfg; absent keys keep their current value.
// Each databases alias is merged onto the descriptor already present under that
// alias unless the file switches it to another engine.
func applyYAMLFile(cfg *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var raw struct {
		Databases map[string]yaml.Node `yaml:"databases"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}

	current := cloneDatabases(cfg.Databases)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}
	if raw.Databases == nil {
		cfg.Databases = current
		return nil
	}

	for alias, node := range raw.Databases {
		db, err := mergeDatabase(current[alias], &node)
		if err != nil {
			return fmt.Errorf("parse YAML: databases.%s: %w", alias, err)
		}
		current[alias] = db
	}
	cfg.Databases = current
	return nil
}

func mergeDatabase(base Database, node *yaml.Node) (Database, error) {
	var head struct {
		Engine string `yaml:"engine"`
	}
	if err := node.Decode(&head); err != nil {
		return Database{}, err
	}
	if head.Engine != "" && NormalizeEngine(head.Engine) != NormalizeEngine(base.Engine) {
		base = Database{}
	}
	if base.Options == nil {
		base.Options = map[string]string{}
	}
	if err := node.Decode(&base); err != nil {
		return Database{}, err
	}
	return base, nil
}

func cloneDatabases(src map[string]Database) map[string]Database {
	out := make(map[string]Database, len(src))
	for alias, db := range src {
		opts := make(map[string]string, len(db.Options))
		for k, v := range db.Options {
			opts[k] = v
		}
		db.Options = opts
		out[alias] = db
	}
	return out
}

// environment looks keys up in the process environment first, then in the .env file.
type environment struct {
	dotenv map[string]string
}

func newEnvironment(path string) (environment, error) {
	if path == "" {
		return environment{}, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return environment{}, err
	}
	return environment{dotenv: values}, nil
}

func (e environment) get(key string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(e.dotenv[key])
}

func applyCLIOverrides(cfg *Settings, overrides *CLIOverrides) {
	if overrides.Port != nil && *overrides.Port != "" {
		cfg.Server.Port = *overrides.Port
	}

	if overrides.Debug != nil {
		cfg.Debug = *overrides.Debug
	}

	if overrides.RateLimitRPS != nil && *overrides.RateLimitRPS >= 0 {
		cfg.Server.RateLimitRPS = *overrides.RateLimitRPS
	}

	if overrides.RateLimitBurst != nil && *overrides.RateLimitBurst >= 0 {
		cfg.Server.RateLimitBurst = *overrides.RateLimitBurst
	}
}

// normalize fills derived values after every source has been applied.
func normalize(cfg *Settings) {
	if cfg.Email.DefaultFrom == "" {
		cfg.Email.DefaultFrom = cfg.Email.HostUser
	}

	for alias, db := range cfg.Databases {
		cfg.Databases[alias] = normalizeDatabase(db)
	}

	if cfg.Static.URL != "" && !strings.HasSuffix(cfg.Static.URL, "/") {
		cfg.Static.URL += "/"
	}
}

func normalizeDatabase(db Database) Database {
	db.Engine = NormalizeEngine(db.Engine)
	if db.Options == nil {
		db.Options = map[string]string{}
	}
	switch db.Engine {
	case EngineMySQL:
		if db.Port == "" {
			db.Port = defaultMySQLPort
		}
		if db.Options["charset"] == "" {
			db.Options["charset"] = defaultMySQLCharset
		}
	case EnginePostgres:
		if db.Port == "" {
			db.Port = "5432"
		}
	}
	return db
}

// validateSettings rejects values no consumer could make sense of.
func validateSettings(cfg Settings) error {
	if cfg.Server.RateLimitRPS < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS must be >= 0")
	}
	if cfg.Server.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_BURST must be >= 0")
	}
	if _, ok := cfg.Databases[DefaultDatabase]; !ok {
		return fmt.Errorf("databases must define %q", DefaultDatabase)
	}
	if cfg.Email.Port <= 0 || cfg.Email.Port > 65535 {
		return fmt.Errorf("email port out of range: %d", cfg.Email.Port)
	}
	if len(cfg.PasswordHashers) == 0 {
		return fmt.Errorf("password hashers cannot be empty")
	}
	return nil
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	out := make([]string, len(src))
	copy(out, src)
	return out
}
