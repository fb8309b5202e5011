package config

import (
	"fmt"
	"net/mail"
	"strconv"
	"strings"
)

// envPrefix namespaces every variable of the secrets module.
const envPrefix = "PLANETTERP_"

// applyEnvConfig forwards the values of the external secrets module.
func applyEnvConfig(cfg *Settings, env environment) error {
	if v := env.get(envPrefix + "SECRET_KEY"); v != "" {
		cfg.SecretKey = v
	}

	if v := env.get(envPrefix + "DEBUG"); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %sDEBUG: %w", envPrefix, err)
		}
		cfg.Debug = debug
	}

	if v := env.get(envPrefix + "ALLOWED_HOSTS"); v != "" {
		cfg.AllowedHosts = splitList(v)
	}

	if v := env.get(envPrefix + "ADMINS"); v != "" {
		admins, err := parseAdmins(v)
		if err != nil {
			return fmt.Errorf("parse %sADMINS: %w", envPrefix, err)
		}
		cfg.Admins = admins
	}

	applyDatabaseEnv(cfg, env)

	if v := env.get(envPrefix + "STATIC_ROOT"); v != "" {
		cfg.Static.Root = v
	}

	if v := env.get(envPrefix + "EMAIL_BACKEND"); v != "" {
		cfg.Email.Backend = v
	}
	if v := env.get(envPrefix + "EMAIL_HOST_USER"); v != "" {
		cfg.Email.HostUser = v
	}
	if v := env.get(envPrefix + "EMAIL_HOST_PASSWORD"); v != "" {
		cfg.Email.HostPassword = v
	}
	if v := env.get(envPrefix + "DEFAULT_FROM_EMAIL"); v != "" {
		cfg.Email.DefaultFrom = v
	}

	port := env.get(envPrefix + "PORT")
	if port == "" {
		port = env.get("PORT")
	}
	if port != "" {
		cfg.Server.Port = port
	}

	if rps := env.get(envPrefix + "RATE_LIMIT_RPS"); rps != "" {
		if value, err := strconv.ParseFloat(rps, 64); err == nil && value >= 0 {
			cfg.Server.RateLimitRPS = value
		}
	}

	if burst := env.get(envPrefix + "RATE_LIMIT_BURST"); burst != "" {
		if value, err := strconv.Atoi(burst); err == nil && value >= 0 {
			cfg.Server.RateLimitBurst = value
		}
	}

	return nil
}

func applyDatabaseEnv(cfg *Settings, env environment) {
	db, exists := cfg.Databases[DefaultDatabase]
	changed := false

	set := func(key string, dst *string) {
		if v := env.get(envPrefix + key); v != "" {
			*dst = v
			changed = true
		}
	}
	set("DB_ENGINE", &db.Engine)
	set("DB_NAME", &db.Name)
	set("DB_USER", &db.User)
	set("DB_PASSWORD", &db.Password)
	set("DB_HOST", &db.Host)
	set("DB_PORT", &db.Port)

	if !changed && !exists {
		return
	}
	if cfg.Databases == nil {
		cfg.Databases = map[string]Database{}
	}
	cfg.Databases[DefaultDatabase] = db
}

// NormalizeEngine maps engine aliases, including dotted backend paths such as
// "django.db.backends.mysql", onto the engine names of this package.
func NormalizeEngine(engine string) string {
	engine = strings.ToLower(strings.TrimSpace(engine))
	if idx := strings.LastIndex(engine, "."); idx >= 0 {
		engine = engine[idx+1:]
	}
	switch engine {
	case "postgresql", "postgresql_psycopg2", "pgx":
		return EnginePostgres
	case "sqlite3":
		return EngineSQLite
	case "turso":
		return EngineLibSQL
	}
	return engine
}

// parseAdmins accepts an RFC 5322 address list: "Jane <jane@example.com>, ops@example.com".
func parseAdmins(raw string) ([]Admin, error) {
	addrs, err := mail.ParseAddressList(raw)
	if err != nil {
		return nil, err
	}
	admins := make([]Admin, 0, len(addrs))
	for _, addr := range addrs {
		admins = append(admins, Admin{Name: addr.Name, Email: addr.Address})
	}
	return admins, nil
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
