package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/go-logr/logr"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"dyndnsd/internal/vault"
)

// ErrPoolExhausted is returned when no connection becomes available
// within the acquire timeout.
var ErrPoolExhausted = errors.New("database: connection pool exhausted")

const defaultPoolSize = 5

// Store owns all persisted state: zones, records, IP state, update
// history, credentials and app settings. Every query runs on a
// connection acquired through withConn, so the pool is the only
// shared resource.
type Store struct {
	db             *sql.DB
	vault          *vault.Vault
	log            logr.Logger
	acquireTimeout time.Duration
}

type Options struct {
	PoolSize       int
	AcquireTimeout time.Duration
}

// Open connects, configures a fixed-size pool and applies embedded
// migrations. The vault is used to decrypt credentials on read and
// encrypt them on write.
func Open(log logr.Logger, dsn string, v *vault.Vault, migrationsFS fs.FS, opts Options) (*Store, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = 10 * time.Second
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(opts.PoolSize)
	db.SetMaxIdleConns(opts.PoolSize)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db, migrationsFS); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	log.Info("database initialized", "pool_size", opts.PoolSize)

	return &Store{
		db:             db,
		vault:          v,
		log:            log,
		acquireTimeout: opts.AcquireTimeout,
	}, nil
}

func runMigrations(db *sql.DB, migrationsFS fs.FS) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", d, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("an error occurred while syncing the database: %w", err)
	}
	return nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// withConn acquires a pooled connection, blocking up to the acquire
// timeout, validates it with a ping and returns it to the pool on
// exit. All store queries funnel through here.
func (s *Store) withConn(ctx context.Context, fn func(context.Context, *sql.Conn) error) error {
	acquireCtx, cancel := context.WithTimeout(ctx, s.acquireTimeout)
	conn, err := s.db.Conn(acquireCtx)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: no connection available within %s", ErrPoolExhausted, s.acquireTimeout)
		}
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	// Cheap liveness probe; database/sql replaces broken connections
	// on the next acquisition.
	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("connection validation failed: %w", err)
	}

	return fn(ctx, conn)
}

// withTx runs fn inside a transaction on a pooled connection and
// rolls back on any error before the connection goes back to the pool.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	return s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, query, args...)
		return err
	})
}

// GetSetting reads a value from the app_config key/value table.
// Missing keys return an empty string.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.withConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, "SELECT value FROM app_config WHERE key = $1", key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	return s.exec(ctx,
		"INSERT INTO app_config (key, value) VALUES ($1, $2) ON CONFLICT(key) DO UPDATE SET value = $2",
		key, value,
	)
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return s.exec(ctx, "DELETE FROM app_config WHERE key = $1", key)
}
