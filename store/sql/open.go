package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-marketplace/migrations"
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

// DatabaseConfig satisfies the persistence client configuration contract.
type DatabaseConfig struct {
	Driver         string
	DSN            string
	Debug          bool
	PingTimeout    time.Duration
	OtelIdentifier string
	MaxOpenConns   int
	// AutoMigrate applies the embedded migrations after opening.
	AutoMigrate bool
}

func (c DatabaseConfig) GetDebug() bool {
	return c.Debug
}

func (c DatabaseConfig) GetDriver() string {
	return c.Driver
}

func (c DatabaseConfig) GetServer() string {
	return c.DSN
}

func (c DatabaseConfig) GetPingTimeout() time.Duration {
	if c.PingTimeout <= 0 {
		return 5 * time.Second
	}
	return c.PingTimeout
}

func (c DatabaseConfig) GetOtelIdentifier() string {
	if strings.TrimSpace(c.OtelIdentifier) == "" {
		return "go-marketplace"
	}
	return c.OtelIdentifier
}

// OpenSQLite opens a sqlite database. SQLite allows one writer, so the pool
// is capped at a single connection unless MaxOpenConns says otherwise.
func OpenSQLite(ctx context.Context, dsn string, autoMigrate bool) (*persistence.Client, error) {
	return Open(ctx, DatabaseConfig{
		Driver:       DriverSQLite,
		DSN:          dsn,
		MaxOpenConns: 1,
		AutoMigrate:  autoMigrate,
	})
}

func OpenPostgres(ctx context.Context, dsn string, autoMigrate bool) (*persistence.Client, error) {
	return Open(ctx, DatabaseConfig{
		Driver:      DriverPostgres,
		DSN:         dsn,
		AutoMigrate: autoMigrate,
	})
}

func Open(ctx context.Context, cfg DatabaseConfig) (*persistence.Client, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("sqlstore: database dsn is required")
	}
	var (
		dialect         schema.Dialect
		migrationTarget string
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverSQLite, "sqlite":
		cfg.Driver = DriverSQLite
		dialect = sqlitedialect.New()
		migrationTarget = migrations.DialectSQLite
	case DriverPostgres, "postgresql", "pg":
		cfg.Driver = DriverPostgres
		dialect = pgdialect.New()
		migrationTarget = migrations.DialectPostgres
	default:
		return nil, fmt.Errorf("sqlstore: unsupported database driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	client, err := persistence.New(cfg, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlstore: new persistence client: %w", err)
	}
	if !cfg.AutoMigrate {
		return client, nil
	}
	if err := Migrate(ctx, client, migrationTarget); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Migrate registers the embedded migrations of one dialect on the client and
// applies them.
func Migrate(ctx context.Context, client *persistence.Client, dialect string) error {
	if client == nil {
		return fmt.Errorf("sqlstore: persistence client is required")
	}
	_, err := migrations.Register(ctx, func(_ context.Context, source migrations.Source) error {
		client.RegisterSQLMigrations(source.FS)
		return nil
	}, dialect)
	if err != nil {
		return fmt.Errorf("sqlstore: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		return fmt.Errorf("sqlstore: migrate: %w", err)
	}
	return nil
}
