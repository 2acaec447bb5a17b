package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/4wpdev/4wp-polylang-api-sync/internal/config"
)

var (
	ErrNoRows = sql.ErrNoRows

	errPoolClosed = errors.New("database pool is not initialized")
)

// querier runs raw SQL with $n placeholders. Pool and the transaction
// handle passed to WithTx both satisfy it.
type querier interface {
	QueryRow(ctx context.Context, query string, args ...any) *sql.Row
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Exec(ctx context.Context, query string, args ...any) (int64, error)
}

// conn adapts a gorm handle, pooled or transactional, to querier.
type conn struct {
	gdb *gorm.DB
}

func (c conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.gdb.WithContext(ctx).Raw(query, args...).Row()
}

func (c conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.gdb.WithContext(ctx).Raw(query, args...).Rows()
}

// Exec returns the number of affected rows.
func (c conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res := c.gdb.WithContext(ctx).Exec(query, args...)
	return res.RowsAffected, res.Error
}

// Pool is the Postgres-backed host store.
type Pool struct {
	conn
	sqlDB  *sql.DB
	logger zerolog.Logger
}

func NewPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:  logger.Default.LogMode(gormLogLevel(cfg.LogLevel, cfg.Environment)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get gorm sql db: %w", err)
	}
	applyConnLimits(sqlDB, cfg.DBMinConns, cfg.DBMaxConns)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pool := &Pool{
		conn:   conn{gdb: gdb},
		sqlDB:  sqlDB,
		logger: log.With().Str("component", "db").Logger(),
	}
	if err := pool.autoMigrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto-migrate schema: %w", err)
	}
	return pool, nil
}

func applyConnLimits(sqlDB *sql.DB, minConns, maxConns int32) {
	maxOpen := int(maxConns)
	if maxOpen <= 0 {
		maxOpen = 8
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(max(1, min(int(minConns), maxOpen)))
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
}

// WithTx runs fn inside one transaction. It commits only when fn returns
// nil; an error or panic rolls everything back.
func (p *Pool) WithTx(ctx context.Context, fn func(tx querier) error) error {
	if p == nil || p.gdb == nil {
		return errPoolClosed
	}
	return p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(conn{gdb: tx})
	})
}

func (p *Pool) Ping(ctx context.Context) error {
	if p == nil || p.sqlDB == nil {
		return errPoolClosed
	}
	return p.sqlDB.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

// GORM exposes the model-level handle used for audit rows and migrations.
func (p *Pool) GORM() *gorm.DB {
	if p == nil {
		return nil
	}
	return p.gdb
}

func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows)
}

// gormLogLevel maps LOG_LEVEL onto gorm's SQL logger. Statements are only
// traced at debug.
func gormLogLevel(appLogLevel, environment string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(appLogLevel)) {
	case "trace", "debug":
		return logger.Info
	case "", "info", "warn", "warning":
		return logger.Warn
	case "error":
		return logger.Error
	case "silent", "disabled":
		return logger.Silent
	}
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		return logger.Warn
	}
	return logger.Error
}
