package eventstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx driver for database/sql

	"github.com/riakgu/strym/pkg/apperr"
)

//go:embed migrations
var migrationsFS embed.FS

// Config holds connection pool settings for the event store.
type Config struct {
	DatabaseURL string
	PoolSize    int // maps to db.SetMaxOpenConns
}

// Store is the EventStore: append-only persistence for log events with
// indexed filter fields, full-text search on message, and time-bucketed
// aggregation.
//
// Grounded on the teacher's pkg/database.Client — same pgx/stdlib +
// golang-migrate wiring — generalized from Ent's generated driver to
// direct database/sql queries since no code generation step is available
// here.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL, configures the pool, and applies embedded
// migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 20
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an already-open *sql.DB (migrations assumed applied by
// the caller). Used by integration tests against a per-test schema.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying connection pool for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func runMigrations(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "strym", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	// Don't call m.Close() — it closes the driver, which would close the
	// shared *sql.DB passed via postgres.WithInstance.
	return sourceDriver.Close()
}

// HealthStatus mirrors database/sql's pool statistics plus a ping result.
type HealthStatus struct {
	Status          string `json:"status"`
	ResponseTime    int64  `json:"response_time_ms"` // milliseconds
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
}

// Health pings the database and reports pool statistics.
func (s *Store) Health(ctx context.Context) (*HealthStatus, error) {
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return &HealthStatus{Status: "unhealthy", ResponseTime: time.Since(start).Milliseconds()}, err
	}
	stats := s.db.Stats()
	return &HealthStatus{
		Status:          "healthy",
		ResponseTime:    time.Since(start).Milliseconds(),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
	}, nil
}

// wrapDBError maps any non-nil raw sql error into a Database apperr.
// Callers that handle a specific error (e.g. sql.ErrNoRows) check for it
// before calling this.
func wrapDBError(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Database(err)
}
