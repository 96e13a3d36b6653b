package audit

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
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// HistorySink persists audit events to a local SQLite database so past
// plays can be inspected after the fact.
type HistorySink struct {
	db   *sql.DB
	path string
}

// NewHistorySink creates a sink backed by the database at path. Init
// must be called before recording.
func NewHistorySink(path string) (*HistorySink, error) {
	if path == "" {
		return nil, fmt.Errorf("history database path is required")
	}
	return &HistorySink{path: path}, nil
}

// Init opens the database, enables WAL mode, and applies migrations.
func (s *HistorySink) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping history database: %w", err)
	}

	s.db = db
	return s.migrate()
}

func (s *HistorySink) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Record inserts the event.
func (s *HistorySink) Record(ctx context.Context, event Event) error {
	if s.db == nil {
		return fmt.Errorf("history database not initialized")
	}

	query := `
		INSERT INTO events (kind, time, play_id, environment, op, instance, service, ship, outcome, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		string(event.Kind),
		event.Time.UTC().Format(time.RFC3339Nano),
		event.PlayID,
		event.Environment,
		event.Op,
		event.Instance,
		event.Service,
		event.Ship,
		event.Outcome,
		event.Error,
		event.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Recent returns the newest events, most recent first.
func (s *HistorySink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s.db == nil {
		return nil, fmt.Errorf("history database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT kind, time, play_id, environment, op, instance, service, ship, outcome, error, duration_ms
		FROM events
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var kind, ts string
		var durationMS int64
		if err := rows.Scan(&kind, &ts, &event.PlayID, &event.Environment, &event.Op,
			&event.Instance, &event.Service, &event.Ship, &event.Outcome, &event.Error, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		event.Kind = Kind(kind)
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			event.Time = parsed
		}
		event.Duration = time.Duration(durationMS) * time.Millisecond
		events = append(events, event)
	}
	return events, rows.Err()
}

// Close closes the database.
func (s *HistorySink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
