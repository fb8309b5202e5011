package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	libsql "github.com/tursodatabase/libsql-client-go/libsql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/planetterp/planetterp/internal/config"
)

// Engines lists the supported database engines.
func Engines() []string {
	return []string{config.EngineMySQL, config.EnginePostgres, config.EngineSQLite, config.EngineLibSQL}
}

// Option configures Open.
type Option func(*openOptions)

type openOptions struct {
	debug bool
	loc   *time.Location
}

// WithDebug logs every SQL statement.
func WithDebug(enabled bool) Option {
	return func(o *openOptions) {
		o.debug = enabled
	}
}

// WithLocation sets the time zone used to parse and store timestamps.
func WithLocation(loc *time.Location) Option {
	return func(o *openOptions) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// Open connects to the database described by db and applies its pool settings.
func Open(db config.Database, opts ...Option) (*gorm.DB, error) {
	o := openOptions{loc: time.UTC}
	for _, opt := range opts {
		opt(&o)
	}

	gormConfig := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().In(o.loc) },
	}
	if o.debug {
		gormConfig.Logger = logger.Default.LogMode(logger.Info)
	}

	dialector, conn, err := dialectorFor(db, o.loc)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("access connection pool: %w", err)
	}
	if db.ConnMaxAge > 0 {
		sqlDB.SetConnMaxLifetime(db.ConnMaxAge)
	}
	if db.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(db.MaxOpenConns)
	}
	if db.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(db.MaxIdleConns)
	}

	// The sqlite DSN enables foreign keys on every pooled connection; libsql
	// has no DSN switch, so it is set on the connection at hand.
	if config.NormalizeEngine(db.Engine) == config.EngineLibSQL {
		if _, err := sqlDB.Exec("PRAGMA foreign_keys = ON"); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	return gdb, nil
}

// Close releases the underlying connection pool.
func Close(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(db config.Database, loc *time.Location) (gorm.Dialector, *sql.DB, error) {
	engine := config.NormalizeEngine(db.Engine)
	dsn, err := DSN(db, loc)
	if err != nil {
		return nil, nil, err
	}

	switch engine {
	case config.EngineMySQL:
		return gormmysql.Open(dsn), nil, nil
	case config.EnginePostgres:
		return postgres.Open(dsn), nil, nil
	case config.EngineSQLite:
		return sqlite.Open(dsn), nil, nil
	case config.EngineLibSQL:
		connector, err := libsqlConnector(db)
		if err != nil {
			return nil, nil, err
		}
		conn := sql.OpenDB(connector)
		return sqlite.New(sqlite.Config{
			DriverName: "libsql",
			Conn:       conn,
			DSN:        dsn,
		}), conn, nil
	}
	return nil, nil, fmt.Errorf("%w: %q", ErrUnsupportedEngine, db.Engine)
}

func libsqlConnector(db config.Database) (driver.Connector, error) {
	token := db.Options["auth_token"]
	if token == "" {
		token = db.Password
	}

	var (
		connector driver.Connector
		err       error
	)
	if token != "" {
		connector, err = libsql.NewConnector(db.Name, libsql.WithAuthToken(token))
	} else {
		connector, err = libsql.NewConnector(db.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create libsql connector: %w", err)
	}
	return connector, nil
}
