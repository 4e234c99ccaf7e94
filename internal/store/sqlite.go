package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/me/uthreads/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == ":memory:" {
		// Every connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

// CreateRun inserts run. An empty ID is filled with a new "run_" id.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	if run.ID == "" {
		run.ID = "run_" + uuid.New().String()
	}
	if run.State == "" {
		run.State = model.RunStateRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, scenario, state, quantum_ns, max_threads, threads, total_quantums, dropped_events, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Scenario, string(run.State), int64(run.Quantum), run.MaxThreads,
		run.Threads, run.TotalQuantums, run.Dropped,
		run.StartedAt.Format(time.RFC3339Nano), formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the final counters of run and marks it FINISHED.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	run.State = model.RunStateFinished
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", run.ID)

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET state = ?, threads = ?, total_quantums = ?, dropped_events = ?, finished_at = ?
		 WHERE id = ?`,
		string(run.State), run.Threads, run.TotalQuantums, run.Dropped, formatTime(run.FinishedAt), run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NewNotFoundError("run", run.ID)
	}
	return nil
}

// GetRun returns nil, nil when no run has the given id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns returns runs newest first, optionally filtered by scenario name.
func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var whereClauses []string
	var args []any
	if opts.Scenario != "" {
		whereClauses = append(whereClauses, "scenario = ?")
		args = append(args, opts.Scenario)
	}
	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs`+whereSQL+` ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// DeleteRun removes a run and, through the foreign key, its events.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "runs", "id", id)
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return model.NewNotFoundError("run", id)
	}
	return nil
}

// --- Events ---

// AppendEvents stores a batch of events for runID in one transaction.
func (s *SQLiteStore) AppendEvents(ctx context.Context, runID string, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "insert", "table", "events", "run_id", runID, "count", len(events))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (run_id, seq, kind, tid, peer, total, quantums, reason, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, runID, ev.Seq, string(ev.Kind), int(ev.TID), int(ev.Peer),
			ev.Total, ev.Quantums, string(ev.Reason), ev.At.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("insert event %d of run %s: %w", ev.Seq, runID, err)
		}
	}
	return tx.Commit()
}

// ListEvents returns a page of runID's events in sequence order, optionally
// filtered by kind.
func (s *SQLiteStore) ListEvents(ctx context.Context, runID string, opts model.ListOptions) ([]model.Event, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "run_id", runID, "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	whereSQL := " WHERE run_id = ?"
	args := []any{runID}
	if opts.Kind != "" {
		whereSQL += " AND kind = ?"
		args = append(args, opts.Kind)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, kind, tid, peer, total, quantums, reason, at FROM events`+whereSQL+
			` ORDER BY seq LIMIT ? OFFSET ?`,
		append(args, opts.Limit, opts.Offset)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var kind, reason, at string
		var tid, peer int
		if err := rows.Scan(&ev.Seq, &kind, &tid, &peer, &ev.Total, &ev.Quantums, &reason, &at); err != nil {
			return nil, 0, err
		}
		ev.Kind = model.EventKind(kind)
		ev.TID = model.ThreadID(tid)
		ev.Peer = model.ThreadID(peer)
		ev.Reason = model.SwitchReason(reason)
		ev.At, _ = time.Parse(time.RFC3339Nano, at)
		events = append(events, ev)
	}
	return events, total, rows.Err()
}

// --- helpers ---

const runColumns = `id, scenario, state, quantum_ns, max_threads, threads, total_quantums, dropped_events, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.Run, error) {
	var run model.Run
	var state, startedAt string
	var quantum int64
	var finishedAt *string

	if err := row.Scan(&run.ID, &run.Scenario, &state, &quantum, &run.MaxThreads,
		&run.Threads, &run.TotalQuantums, &run.Dropped, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.State = model.RunState(state)
	run.Quantum = time.Duration(quantum)
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if finishedAt != nil {
		t, _ := time.Parse(time.RFC3339Nano, *finishedAt)
		run.FinishedAt = &t
	}
	return &run, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339Nano)
	return &s
}
