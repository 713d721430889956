package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/25x8/coinledger/internal/coinledger/logger"
	"github.com/25x8/coinledger/internal/coinledger/models"
	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const defaultTxAttempts = 4

// Repository is the storage layer of the ledger. Every method takes an
// optional transaction; nil runs the statement on the shared pool.
type Repository struct {
	db          *gorm.DB
	log         *logger.Logger
	txAttempts  uint
	txBaseDelay time.Duration
}

// NewRepository creates a repository. InitDB must be called before use.
func NewRepository(log *logger.Logger) *Repository {
	return &Repository{
		log:         log.With("repo", "Repository"),
		txAttempts:  defaultTxAttempts,
		txBaseDelay: 20 * time.Millisecond,
	}
}

// InitDB opens the database connection and migrates the schema
func (r *Repository) InitDB(driver, databaseURI string) error {
	gormCfg := &gorm.Config{
		Logger: gormlogger.New(gormWriter{r.log}, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverPostgres:
		var connCfg *pgx.ConnConfig
		connCfg, err = pgx.ParseConfig(databaseURI)
		if err != nil {
			return fmt.Errorf("parse database URI: %w", err)
		}
		sqlDB := stdlib.OpenDB(*connCfg)
		if err = sqlDB.Ping(); err != nil {
			sqlDB.Close()
			return err
		}
		db, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormCfg)
	case DriverSQLite:
		db, err = gorm.Open(sqlite.Open(databaseURI), gormCfg)
		if err == nil {
			// sqlite serializes writers; a single connection keeps
			// transactions from failing with SQLITE_LOCKED
			var sqlDB *sql.DB
			if sqlDB, err = db.DB(); err == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return err
	}
	r.db = db

	if err := r.migrate(); err != nil {
		r.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	r.log.Info("database ready", "driver", driver)
	return nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// DB exposes the underlying handle, mostly for tests
func (r *Repository) DB() *gorm.DB {
	return r.db
}

func (r *Repository) migrate() error {
	return r.db.AutoMigrate(
		&models.AccountBalance{},
		&models.Transaction{},
		&models.Quest{},
		&models.QuestProgress{},
		&models.Referral{},
		&models.RewardClaim{},
	)
}

// Transaction runs fn in a database transaction. Transient failures
// (serialization, deadlock, lock timeout, sqlite busy) roll back and rerun
// fn with exponential backoff, so fn must not leak state between attempts.
func (r *Repository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		err := r.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return struct{}{}, nil
		}
		if IsTransient(err) {
			r.log.Warn("transient storage error, retrying", "attempt", attempt, "error", err)
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.txBaseDelay
	b.MaxInterval = 20 * r.txBaseDelay
	_, err := backoff.Retry(ctx, op, backoff.WithBackOff(b), backoff.WithMaxTries(r.txAttempts))
	return err
}

// IsTransient reports whether err is a storage failure worth retrying
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		return false
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		return sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked
	}
	return false
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db.WithContext(ctx)
	}
	return tx.WithContext(ctx)
}

// gormWriter routes gorm's own logging into the service logger
type gormWriter struct {
	log *logger.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.SugaredLogger.Warnf(format, args...)
}
