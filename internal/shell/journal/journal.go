// Package journal records mutating invocations in a local SQLite
// database. The journal is strictly write-only with respect to the
// composition path: no stage reads it to make a decision, so every run
// stays independent of previous runs.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/homelab-sh/homelab/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Error Types
// =============================================================================

var (
	ErrConnectionFailed = errors.New("journal database connection failed")
	ErrMigrationFailed  = errors.New("journal migration failed")
	ErrWriteFailed      = errors.New("journal write failed")
)

// =============================================================================
// Recorder Interface
// =============================================================================

// Recorder persists invocation records.
type Recorder interface {
	Record(ctx context.Context, rec domain.InvocationRecord) error
	Recent(ctx context.Context, limit int) ([]domain.InvocationRecord, error)
	Close() error
}

// =============================================================================
// SQLite Journal
// =============================================================================

// SQLiteJournal implements Recorder using SQLite.
type SQLiteJournal struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the journal database and runs
// migrations.
func Open(dsn string) (*SQLiteJournal, error) {
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}
	return &SQLiteJournal{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// invocationRow is the database shape of an InvocationRecord.
type invocationRow struct {
	ID         string    `db:"id"`
	Command    string    `db:"command"`
	Target     string    `db:"target"`
	Fragments  string    `db:"fragments"`
	Services   string    `db:"services"`
	Outcome    string    `db:"outcome"`
	Error      string    `db:"error"`
	StartedAt  time.Time `db:"started_at"`
	DurationMS int64     `db:"duration_ms"`
}

// Record persists one invocation. A zero ID gets a fresh UUID.
func (j *SQLiteJournal) Record(ctx context.Context, rec domain.InvocationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	fragments, err := json.Marshal(rec.Fragments)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	services, err := json.Marshal(rec.Services)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	row := invocationRow{
		ID:         rec.ID,
		Command:    rec.Command,
		Target:     rec.Target,
		Fragments:  string(fragments),
		Services:   string(services),
		Outcome:    string(rec.Outcome),
		Error:      rec.Error,
		StartedAt:  rec.StartedAt.UTC(),
		DurationMS: rec.Duration.Milliseconds(),
	}

	const q = `INSERT INTO invocations
		(id, command, target, fragments, services, outcome, error, started_at, duration_ms)
		VALUES (:id, :command, :target, :fragments, :services, :outcome, :error, :started_at, :duration_ms)`
	if _, err := j.db.NamedExecContext(ctx, q, row); err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return nil
}

// Recent returns the most recent invocations, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]domain.InvocationRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows []invocationRow
	const q = `SELECT id, command, target, fragments, services, outcome, error, started_at, duration_ms
		FROM invocations ORDER BY started_at DESC, id LIMIT ?`
	if err := j.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("journal read: %w", err)
	}

	out := make([]domain.InvocationRecord, 0, len(rows))
	for _, row := range rows {
		rec := domain.InvocationRecord{
			ID:        row.ID,
			Command:   row.Command,
			Target:    row.Target,
			Outcome:   domain.InvocationOutcome(row.Outcome),
			Error:     row.Error,
			StartedAt: row.StartedAt,
			Duration:  time.Duration(row.DurationMS) * time.Millisecond,
		}
		// Stored as JSON arrays; a decode failure leaves the lists
		// empty rather than failing the whole listing.
		_ = json.Unmarshal([]byte(row.Fragments), &rec.Fragments)
		_ = json.Unmarshal([]byte(row.Services), &rec.Services)
		out = append(out, rec)
	}
	return out, nil
}

// =============================================================================
// No-Op Recorder
// =============================================================================

// NoopRecorder discards records. Used when the journal is disabled.
type NoopRecorder struct{}

// NewNoopRecorder creates a recorder that does nothing.
func NewNoopRecorder() *NoopRecorder {
	return &NoopRecorder{}
}

// Record does nothing.
func (NoopRecorder) Record(ctx context.Context, rec domain.InvocationRecord) error {
	return nil
}

// Recent returns no records.
func (NoopRecorder) Recent(ctx context.Context, limit int) ([]domain.InvocationRecord, error) {
	return nil, nil
}

// Close does nothing.
func (NoopRecorder) Close() error {
	return nil
}
