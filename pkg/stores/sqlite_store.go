package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/wavectl/wavectl/pkg/engine"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Connection-level setting.
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded FS.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CreateRun inserts a run header.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *RunRecord) error {
	query := `
		INSERT INTO runs (id, registry, status, started_at, completed_at, error, warnings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.Registry,
		run.Status,
		run.StartedAt,
		run.CompletedAt,
		run.Error,
		run.Warnings,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// UpdateRunStatus settles a run's terminal fields.
func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, id, status string, errMsg, warnings *string) error {
	query := `
		UPDATE runs
		SET status = ?, error = ?, warnings = ?, completed_at = ?, updated_at = ?
		WHERE id = ?
	`

	now := time.Now()
	result, err := s.db.ExecContext(ctx, query, status, errMsg, warnings, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to update run status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("run not found: %s", id)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `
		SELECT id, registry, status, started_at, completed_at, error, warnings, created_at, updated_at
		FROM runs
		WHERE id = ?
	`
	return s.scanRun(s.db.QueryRowContext(ctx, query, id), id)
}

// LatestRun retrieves the most recently started run.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*RunRecord, error) {
	query := `
		SELECT id, registry, status, started_at, completed_at, error, warnings, created_at, updated_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1
	`
	return s.scanRun(s.db.QueryRowContext(ctx, query), "latest")
}

func (s *SQLiteStore) scanRun(row *sql.Row, id string) (*RunRecord, error) {
	run := &RunRecord{}
	err := row.Scan(
		&run.ID,
		&run.Registry,
		&run.Status,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Error,
		&run.Warnings,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns lists runs newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit, offset int) ([]*RunRecord, error) {
	query := `
		SELECT id, registry, status, started_at, completed_at, error, warnings, created_at, updated_at
		FROM runs
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		run := &RunRecord{}
		err := rows.Scan(
			&run.ID,
			&run.Registry,
			&run.Status,
			&run.StartedAt,
			&run.CompletedAt,
			&run.Error,
			&run.Warnings,
			&run.CreatedAt,
			&run.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

// UpsertComponent inserts or updates a component's state within a run.
func (s *SQLiteStore) UpsertComponent(ctx context.Context, record *ComponentRecord) error {
	query := `
		INSERT INTO component_statuses (run_id, name, state, attempts, detail, deploy_order, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, name) DO UPDATE SET
			state = excluded.state,
			attempts = excluded.attempts,
			detail = excluded.detail,
			deploy_order = CASE WHEN excluded.deploy_order >= 0 THEN excluded.deploy_order ELSE component_statuses.deploy_order END,
			updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		record.RunID,
		record.Name,
		record.State,
		record.Attempts,
		record.Detail,
		record.DeployOrder,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert component status: %w", err)
	}
	return nil
}

// ListComponentsByRun lists a run's components in deploy order, with
// never-deployed components last.
func (s *SQLiteStore) ListComponentsByRun(ctx context.Context, runID string) ([]*ComponentRecord, error) {
	query := `
		SELECT run_id, name, state, attempts, detail, deploy_order, updated_at
		FROM component_statuses
		WHERE run_id = ?
		ORDER BY CASE WHEN deploy_order >= 0 THEN deploy_order ELSE 1000000 END ASC, name ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list component statuses: %w", err)
	}
	defer rows.Close()

	records := []*ComponentRecord{}
	for rows.Next() {
		record := &ComponentRecord{}
		err := rows.Scan(
			&record.RunID,
			&record.Name,
			&record.State,
			&record.Attempts,
			&record.Detail,
			&record.DeployOrder,
			&record.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan component status: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating component statuses: %w", err)
	}
	return records, nil
}

// AppendEvent appends to a run's event log.
func (s *SQLiteStore) AppendEvent(ctx context.Context, event *EventRecord) error {
	query := `
		INSERT INTO events (run_id, component, message, timestamp)
		VALUES (?, ?, ?, ?)
	`

	result, err := s.db.ExecContext(ctx, query,
		event.RunID,
		event.Component,
		event.Message,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get event ID: %w", err)
	}
	event.ID = id
	return nil
}

// ListEventsByRun lists a run's events oldest first.
func (s *SQLiteStore) ListEventsByRun(ctx context.Context, runID string) ([]*EventRecord, error) {
	query := `
		SELECT id, run_id, component, message, timestamp
		FROM events
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*EventRecord{}
	for rows.Next() {
		event := &EventRecord{}
		err := rows.Scan(
			&event.ID,
			&event.RunID,
			&event.Component,
			&event.Message,
			&event.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}
	return events, nil
}

// AcquireActiveRun claims the single active-run slot. The primary key
// check on the slot column makes the insert fail while another run holds
// it, which is what turns concurrent runs into a clean rejection.
func (s *SQLiteStore) AcquireActiveRun(ctx context.Context, runID string) error {
	query := `INSERT INTO active_run (slot, run_id, acquired_at) VALUES (1, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query, runID, time.Now()); err != nil {
		holder := "unknown"
		row := s.db.QueryRowContext(ctx, `SELECT run_id FROM active_run WHERE slot = 1`)
		_ = row.Scan(&holder)
		return engine.NewPermanentError(
			fmt.Sprintf("a deployment run is already active (run %s)", holder), err,
		).WithCode(engine.ErrCodeRunActive)
	}
	return nil
}

// ReleaseActiveRun releases the slot held by runID. Releasing a slot not
// held is a no-op.
func (s *SQLiteStore) ReleaseActiveRun(ctx context.Context, runID string) error {
	query := `DELETE FROM active_run WHERE slot = 1 AND run_id = ?`

	if _, err := s.db.ExecContext(ctx, query, runID); err != nil {
		return fmt.Errorf("failed to release active run: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
