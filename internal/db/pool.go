// Package db is the Postgres layer: a gorm-backed connection pool exposing
// a thin raw-SQL surface, schema migration, and the query/write models the
// engine and the read paths run against.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"horse.fit/narratives/internal/config"
)

// ErrNoRows is the no-result sentinel for raw queries; test with IsNoRows.
var ErrNoRows = sql.ErrNoRows

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, ErrNoRows)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLSTATE 23505") || strings.Contains(msg, "duplicate key value")
}

// CommandTag reports the outcome of a write statement.
type CommandTag struct {
	rowsAffected int64
}

func (c CommandTag) RowsAffected() int64 { return c.rowsAffected }

// Row and Rows wrap database/sql scanning so query code never touches
// gorm directly. A nil receiver scans as ErrNoRows.
type Row struct {
	row *sql.Row
}

func (r *Row) Scan(dest ...any) error {
	if r == nil || r.row == nil {
		return ErrNoRows
	}
	return r.row.Scan(dest...)
}

type Rows struct {
	rows *sql.Rows
}

func (r *Rows) Next() bool {
	return r != nil && r.rows != nil && r.rows.Next()
}

func (r *Rows) Scan(dest ...any) error {
	if r == nil || r.rows == nil {
		return ErrNoRows
	}
	return r.rows.Scan(dest...)
}

func (r *Rows) Err() error {
	if r == nil || r.rows == nil {
		return nil
	}
	return r.rows.Err()
}

func (r *Rows) Close() {
	if r != nil && r.rows != nil {
		_ = r.rows.Close()
	}
}

// session is the shared raw-SQL core; Pool and transactions both run
// statements through it with $n placeholders.
type session struct {
	db *gorm.DB
}

func (s session) queryRow(ctx context.Context, query string, args ...any) *Row {
	if s.db == nil {
		return &Row{}
	}
	return &Row{row: s.db.WithContext(ctx).Raw(query, args...).Row()}
}

func (s session) query(ctx context.Context, query string, args ...any) (*Rows, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database session is not initialized")
	}
	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, err
	}
	return &Rows{rows: rows}, nil
}

func (s session) exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	if s.db == nil {
		return CommandTag{}, fmt.Errorf("database session is not initialized")
	}
	res := s.db.WithContext(ctx).Exec(query, args...)
	return CommandTag{rowsAffected: res.RowsAffected}, res.Error
}

// TxOptions is reserved for isolation tuning; the default level is used
// for every transaction today.
type TxOptions struct{}

// Tx is one database transaction. Rollback after Commit is a no-op, so
// callers can always defer it.
type Tx interface {
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	Exec(ctx context.Context, query string, args ...any) (CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type gormTx struct {
	session
}

func (t *gormTx) QueryRow(ctx context.Context, query string, args ...any) *Row {
	return t.queryRow(ctx, query, args...)
}

func (t *gormTx) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	return t.query(ctx, query, args...)
}

func (t *gormTx) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	return t.exec(ctx, query, args...)
}

func (t *gormTx) Commit(ctx context.Context) error {
	return t.db.WithContext(ctx).Commit().Error
}

func (t *gormTx) Rollback(ctx context.Context) error {
	return t.db.WithContext(ctx).Rollback().Error
}

// Pool owns the database handle. It migrates the schema on construction
// so every command and the API server start against current tables.
type Pool struct {
	session
	sqlDB *sql.DB
}

func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:  logger.Default.LogMode(gormLogLevel(cfg.LogLevel, cfg.Environment)),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql db: %w", err)
	}
	configureConnLimits(sqlDB, cfg)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	pool := &Pool{session: session{db: gdb}, sqlDB: sqlDB}
	if err := pool.autoMigrate(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto-migrate schema: %w", err)
	}
	return pool, nil
}

func configureConnLimits(sqlDB *sql.DB, cfg *config.Config) {
	maxOpen := int(cfg.DBMaxConns)
	if maxOpen <= 0 {
		maxOpen = 8
	}
	minIdle := int(cfg.DBMinConns)
	if minIdle < 1 {
		minIdle = 1
	}
	if minIdle > maxOpen {
		minIdle = maxOpen
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(minIdle)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
}

func (p *Pool) BeginTx(ctx context.Context, _ TxOptions) (Tx, error) {
	if p == nil || p.db == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	tx := p.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormTx{session: session{db: tx}}, nil
}

func (p *Pool) QueryRow(ctx context.Context, query string, args ...any) *Row {
	if p == nil {
		return &Row{}
	}
	return p.queryRow(ctx, query, args...)
}

func (p *Pool) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	if p == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	return p.query(ctx, query, args...)
}

func (p *Pool) Exec(ctx context.Context, query string, args ...any) (CommandTag, error) {
	if p == nil {
		return CommandTag{}, fmt.Errorf("database pool is not initialized")
	}
	return p.exec(ctx, query, args...)
}

func (p *Pool) Close() error {
	if p == nil || p.sqlDB == nil {
		return nil
	}
	return p.sqlDB.Close()
}

var gormLogLevels = map[string]logger.LogLevel{
	"trace":   logger.Info,
	"debug":   logger.Info,
	"info":    logger.Warn,
	"warn":    logger.Warn,
	"warning": logger.Warn,
	"":        logger.Warn,
	"error":   logger.Error,
	"silent":  logger.Silent,
}

func gormLogLevel(appLogLevel, environment string) logger.LogLevel {
	if level, ok := gormLogLevels[strings.ToLower(strings.TrimSpace(appLogLevel))]; ok {
		return level
	}
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		return logger.Warn
	}
	return logger.Error
}
