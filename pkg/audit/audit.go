// Package audit persists a durable record of reaped tasks — the
// information a zombie carries is freed the moment its parent calls Wait,
// so anything that wants to inspect scheduling history after the fact
// needs it written down somewhere first.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/bfsched/kernel/internal/config"
)

// Entry is one reaped task.
type Entry struct {
	PID        int       `db:"pid"`
	Name       string    `db:"name"`
	Niceness   int       `db:"niceness"`
	ParentPID  int       `db:"parent_pid"`
	ExitTick   int64     `db:"exit_tick"`
	RecordedAt time.Time `db:"recorded_at"`
}

// Sink persists Entries to Postgres. A Sink built from a disabled or empty
// config holds no connection at all: Record becomes a no-op so callers
// never need an `if auditing enabled` branch of their own.
type Sink struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewSink connects to cfg.DSN and configures the pool per cfg. If auditing
// is disabled or no DSN is set, it returns a no-op Sink and a nil error.
func NewSink(cfg config.AuditConfig, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.Enabled || cfg.DSN == "" {
		return &Sink{logger: logger}, nil
	}

	db, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("audit: connect: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("audit: ping: %w", err)
	}

	logger.Info("audit sink connected")
	return &Sink{db: db, logger: logger}, nil
}

// Enabled reports whether this Sink actually writes anywhere.
func (s *Sink) Enabled() bool {
	return s.db != nil
}

// Record inserts e. Safe to call on a no-op Sink.
func (s *Sink) Record(ctx context.Context, e Entry) error {
	if s.db == nil {
		return nil
	}
	e.RecordedAt = time.Now()
	const query = `
		INSERT INTO reaped_tasks (pid, name, niceness, parent_pid, exit_tick, recorded_at)
		VALUES (:pid, :name, :niceness, :parent_pid, :exit_tick, :recorded_at)`
	if _, err := s.db.NamedExecContext(ctx, query, e); err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Recent returns the most recently recorded entries, newest first, for the
// admin API's postmortem /audit endpoint. Returns an empty slice on a
// no-op Sink.
func (s *Sink) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return []Entry{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT pid, name, niceness, parent_pid, exit_tick, recorded_at
		FROM reaped_tasks
		ORDER BY recorded_at DESC
		LIMIT $1`
	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries, query, limit); err != nil {
		return nil, fmt.Errorf("audit: recent: %w", err)
	}
	return entries, nil
}

// Close releases the underlying connection pool, if any.
func (s *Sink) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
