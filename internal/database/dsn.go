package database

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/planetterp/planetterp/internal/config"
)

// DSN renders the driver specific connection string of db.
func DSN(db config.Database, loc *time.Location) (string, error) {
	if db.Name == "" {
		return "", ErrMissingName
	}
	if loc == nil {
		loc = time.UTC
	}

	switch config.NormalizeEngine(db.Engine) {
	case config.EngineMySQL:
		return mysqlDSN(db, loc), nil
	case config.EnginePostgres:
		return postgresDSN(db, loc), nil
	case config.EngineSQLite:
		return sqliteDSN(db), nil
	case config.EngineLibSQL:
		return db.Name, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedEngine, db.Engine)
}

// mysqlDSN treats a host starting with "/" as a unix socket path.
func mysqlDSN(db config.Database, loc *time.Location) string {
	cfg := mysql.NewConfig()
	cfg.User = db.User
	cfg.Passwd = db.Password
	cfg.DBName = db.Name
	cfg.ParseTime = true
	cfg.Loc = loc

	host := db.Host
	if host == "" {
		host = "127.0.0.1"
	}
	if strings.HasPrefix(host, "/") {
		cfg.Net = "unix"
		cfg.Addr = host
	} else {
		cfg.Net = "tcp"
		port := db.Port
		if port == "" {
			port = "3306"
		}
		cfg.Addr = net.JoinHostPort(host, port)
	}

	if len(db.Options) > 0 {
		cfg.Params = make(map[string]string, len(db.Options))
		for k, v := range db.Options {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

func postgresDSN(db config.Database, loc *time.Location) string {
	pairs := map[string]string{
		"dbname":   db.Name,
		"TimeZone": loc.String(),
		"sslmode":  "disable",
	}
	if db.Host != "" {
		pairs["host"] = db.Host
	}
	if db.Port != "" {
		pairs["port"] = db.Port
	}
	if db.User != "" {
		pairs["user"] = db.User
	}
	if db.Password != "" {
		pairs["password"] = db.Password
	}
	for k, v := range db.Options {
		pairs[k] = v
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+pgQuote(pairs[k]))
	}
	return strings.Join(parts, " ")
}

// pgQuote quotes libpq keyword values containing spaces, quotes or backslashes.
func pgQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// sqliteDSN turns foreign keys on for every connection unless the options
// set them explicitly.
func sqliteDSN(db config.Database) string {
	values := url.Values{}
	for k, v := range db.Options {
		values.Set(k, v)
	}
	if !values.Has("_foreign_keys") && !values.Has("_fk") {
		values.Set("_foreign_keys", "1")
	}
	sep := "?"
	if strings.Contains(db.Name, "?") {
		sep = "&"
	}
	return db.Name + sep + values.Encode()
}
