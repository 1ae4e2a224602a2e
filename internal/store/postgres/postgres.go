// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/alfredjeanlab/reflex/internal/model"
	"github.com/alfredjeanlab/reflex/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateListener(ctx context.Context, l *model.Listener) error {
	return queryCreateListener(ctx, s.db, l)
}

func (s *PostgresStore) GetListener(ctx context.Context, id string) (*model.Listener, error) {
	return queryGetListener(ctx, s.db, id)
}

func (s *PostgresStore) ListListeners(ctx context.Context, filter store.ListenerFilter) ([]*model.Listener, error) {
	return queryListListeners(ctx, s.db, filter)
}

func (s *PostgresStore) EnabledListenersBySource(ctx context.Context, src model.SourceID) ([]*model.Listener, error) {
	return queryEnabledListenersBySource(ctx, s.db, src)
}

func (s *PostgresStore) SetListenerEnabled(ctx context.Context, id string, enabled bool) error {
	return querySetListenerEnabled(ctx, s.db, id, enabled)
}

func (s *PostgresStore) DeleteListener(ctx context.Context, id string) error {
	return queryDeleteListener(ctx, s.db, id)
}

func (s *PostgresStore) AcquireFire(ctx context.Context, id string, now time.Time) (bool, error) {
	return queryAcquireFire(ctx, s.db, id, now)
}

func (s *PostgresStore) CreateTask(ctx context.Context, t *model.Task) error {
	return queryCreateTask(ctx, s.db, t)
}

func (s *PostgresStore) GetTask(ctx context.Context, id string) (*model.Task, error) {
	return queryGetTask(ctx, s.db, id)
}

func (s *PostgresStore) ClaimTask(ctx context.Context, id string, now time.Time) (bool, error) {
	return queryClaimTask(ctx, s.db, id, now)
}

func (s *PostgresStore) MarkTaskSucceeded(ctx context.Context, id string, attempts int, now time.Time) error {
	return queryMarkTask(ctx, s.db, id, model.TaskSucceeded, attempts, "", now)
}

func (s *PostgresStore) MarkTaskRetrying(ctx context.Context, id string, attempts int, lastError string, now time.Time) error {
	return queryMarkTask(ctx, s.db, id, model.TaskRetrying, attempts, lastError, now)
}

func (s *PostgresStore) MarkTaskFailed(ctx context.Context, id string, attempts int, lastError string, now time.Time) error {
	return queryMarkTask(ctx, s.db, id, model.TaskFailed, attempts, lastError, now)
}

func (s *PostgresStore) RequeueRunningTasks(ctx context.Context, now time.Time) ([]string, error) {
	return queryRequeueRunningTasks(ctx, s.db, now)
}

func (s *PostgresStore) ListTasks(ctx context.Context, status model.TaskStatus, limit int) ([]*model.Task, error) {
	return queryListTasks(ctx, s.db, status, limit)
}

func (s *PostgresStore) RecordAudit(ctx context.Context, e *model.AuditEntry) error {
	return queryRecordAudit(ctx, s.db, e)
}

func (s *PostgresStore) ListAudit(ctx context.Context, since time.Time, limit int) ([]*model.AuditEntry, error) {
	return queryListAudit(ctx, s.db, since, limit)
}

func (s *PostgresStore) AppendMessage(ctx context.Context, m *model.Message) error {
	return queryAppendMessage(ctx, s.db, m)
}

func (s *PostgresStore) GetMessagesAfter(ctx context.Context, conversationID string, iface model.InterfaceType, cursor time.Time) ([]*model.Message, error) {
	return queryGetMessagesAfter(ctx, s.db, conversationID, iface, cursor)
}
