package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const defaultBusyTimeout = 5 * time.Second

type SQLiteRepository struct {
	db            *sql.DB
	readDB        *sql.DB
	queries       *Queries
	schemaVersion uint
}

// NewSQLiteRepository opens (creating if needed) the database at dbPath and
// migrates it. Write transactions begin IMMEDIATE so the writer lock is
// taken up front and waits at most busyTimeout. A second pool opens
// query-only connections with deferred transactions for WithReadTx.
func NewSQLiteRepository(dbPath string, busyTimeout time.Duration) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}

	dsn := buildDSN(dbPath, busyTimeout)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dsn)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	readDB, err := sql.Open("sqlite", buildReadDSN(dbPath, busyTimeout))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite read pool: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(2)
	readDB.SetConnMaxLifetime(time.Hour)

	slog.Info("SQLite repository ready", "path", dbPath, "busy_timeout", busyTimeout, "schema_version", version)

	return &SQLiteRepository{
		db:            db,
		readDB:        readDB,
		queries:       New(db),
		schemaVersion: version,
	}, nil
}

func buildDSN(dbPath string, busyTimeout time.Duration) string {
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		dbPath, busyTimeout.Milliseconds())
}

func buildReadDSN(dbPath string, busyTimeout time.Duration) string {
	return fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)&_pragma=query_only(1)",
		dbPath, busyTimeout.Milliseconds())
}

func (r *SQLiteRepository) Close() error {
	var errs []error
	if r.readDB != nil {
		errs = append(errs, r.readDB.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// SchemaVersion is the migration version applied when the repository opened.
func (r *SQLiteRepository) SchemaVersion() uint {
	return r.schemaVersion
}

// Queries returns the non-transactional query set for reads.
func (r *SQLiteRepository) Queries() *Queries {
	return r.queries
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// WithTx runs fn inside one transaction. Any error or panic from fn rolls
// back every write fn made; otherwise the transaction commits.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(q *Queries) error) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapError(err, "transaction"))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", mapError(err, "transaction"))
	}
	return nil
}

// WithReadTx runs fn in a deferred, query-only transaction. Every read in
// fn sees one WAL snapshot and the writer lock is never taken.
func (r *SQLiteRepository) WithReadTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.readDB.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read transaction: %w", mapError(err, "transaction"))
	}
	defer tx.Rollback()

	return fn(r.queries.WithTx(tx))
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
