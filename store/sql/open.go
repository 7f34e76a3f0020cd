package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"
	"time"

	loginmigrations "github.com/goliatone/go-login/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// PersistenceConfig satisfies the persistence client configuration.
type PersistenceConfig struct {
	Driver         string        `koanf:"driver" mapstructure:"driver"`
	Server         string        `koanf:"server" mapstructure:"server"`
	Debug          bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout    time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
	OtelIdentifier string        `koanf:"otel_identifier" mapstructure:"otel_identifier"`
	MaxOpenConns   int           `koanf:"max_open_conns" mapstructure:"max_open_conns"`
	SkipMigrations bool          `koanf:"skip_migrations" mapstructure:"skip_migrations"`
}

func (c PersistenceConfig) GetDebug() bool {
	return c.Debug
}

func (c PersistenceConfig) GetDriver() string {
	return c.Driver
}

func (c PersistenceConfig) GetServer() string {
	return c.Server
}

func (c PersistenceConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c PersistenceConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-login"
	}
	return c.OtelIdentifier
}

// Open connects to the configured database, registers the login migrations
// for its dialect and applies them unless SkipMigrations is set.
func Open(ctx context.Context, cfg PersistenceConfig) (*persistence.Client, error) {
	dialect, migrationDialect, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Server) == "" {
		return nil, fmt.Errorf("sqlstore: server dsn is required")
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	} else if cfg.Driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	if cfg.SkipMigrations {
		return client, nil
	}
	if err := Migrate(ctx, client, migrationDialect); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Migrate registers the embedded migrations for dialect on client and runs
// them.
func Migrate(ctx context.Context, client *persistence.Client, dialect string) error {
	if client == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	_, err := loginmigrations.Register(ctx, func(_ context.Context, candidate string, _ string, fsys fs.FS) error {
		if candidate != dialect {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, loginmigrations.WithDialects(dialect))
	if err != nil {
		return fmt.Errorf("sqlstore: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}

func dialectFor(driver string) (schema.Dialect, string, error) {
	switch strings.TrimSpace(driver) {
	case DriverSQLite:
		return sqlitedialect.New(), loginmigrations.DialectSQLite, nil
	case DriverPostgres:
		return pgdialect.New(), loginmigrations.DialectPostgres, nil
	default:
		return nil, "", fmt.Errorf("sqlstore: unsupported driver %q", driver)
	}
}
