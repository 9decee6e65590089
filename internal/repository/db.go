package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/avast/retry-go/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/lab-report-parser/internal/common"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DB bundles the ent SQL driver with the pgx pool backing it, when there is one.
type DB struct {
	Driver  *entsql.Driver
	Dialect string
	pool    *pgxpool.Pool
	logger  *slog.Logger
}

// Open connects to the configured database. Postgres goes through a pgx pool
// wrapped as *sql.DB; sqlite uses modernc.org/sqlite with a single connection.
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case DriverPostgres:
		return openPostgres(ctx, cfg, logger)
	case DriverSQLite, "":
		return openSQLite(ctx, cfg, logger)
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported database driver %q", cfg.Driver), common.ErrInvalidInput)
	}
}

// OpenInMemory returns a private in-memory sqlite database with the schema applied.
func OpenInMemory(ctx context.Context, logger *slog.Logger) (*DB, error) {
	db, err := Open(ctx, common.DatabaseConfig{Driver: DriverSQLite, DSN: "file::memory:?_pragma=foreign_keys(1)"}, logger)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func openPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("db.connect.start", "driver", DriverPostgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("db.connect.failed", "error", err)
		return nil, common.NewAppError("DB_ERROR", "parse dsn", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "lab-report-parser"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = 10 * time.Second
	}

	var pool *pgxpool.Pool
	err = retry.Do(
		func() error {
			dctx, cancel := context.WithTimeout(ctx, dial)
			defer cancel()
			p, err := pgxpool.NewWithConfig(dctx, pc)
			if err != nil {
				return err
			}
			if err := p.Ping(dctx); err != nil {
				p.Close()
				return err
			}
			pool = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(500*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("db.connect.retry", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		logger.Error("db.connect.failed", "error", err)
		return nil, common.NewAppError("DB_ERROR", "connect to postgres", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}

	drv := entsql.OpenDB(dialect.Postgres, stdlib.OpenDBFromPool(pool))
	logger.Info("db.connect.ok", "driver", DriverPostgres)
	return &DB{Driver: drv, Dialect: dialect.Postgres, pool: pool, logger: logger}, nil
}

func openSQLite(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = "file:labreport.db?_pragma=busy_timeout(5000)"
	}
	logger.Info("db.connect.start", "driver", DriverSQLite, "dsn", dsn)
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, common.NewAppError("DB_ERROR", "open sqlite", err)
	}
	// one writer; also keeps a :memory: database alive and shared
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		logger.Error("db.connect.failed", "error", err)
		return nil, common.NewAppError("DB_ERROR", "ping sqlite", fmt.Errorf("%w: %v", common.ErrDatabase, err))
	}
	logger.Info("db.connect.ok", "driver", DriverSQLite)
	return &DB{Driver: entsql.OpenDB(dialect.SQLite, sqlDB), Dialect: dialect.SQLite, logger: logger}, nil
}

// Close closes the driver and the pool behind it.
func (db *DB) Close() {
	if db == nil {
		return
	}
	if err := db.Driver.Close(); err != nil {
		db.logger.Error("db.close.failed", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	db.logger.Info("db.close.ok")
}

// HealthCheck pings the database, bounded by timeout when positive.
func (db *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if db.pool != nil {
		return db.pool.Ping(ctx)
	}
	return db.Driver.DB().PingContext(ctx)
}

func (db *DB) builder() *entsql.DialectBuilder {
	return entsql.Dialect(db.Dialect)
}
