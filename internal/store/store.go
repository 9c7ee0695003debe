// Package store persists benchmark reports in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Registers the "sqlite" driver.

	"github.com/born-ml/born-bench/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id              TEXT    NOT NULL,
	model               TEXT    NOT NULL,
	variant             TEXT    NOT NULL,
	dataset             TEXT    NOT NULL,
	summary             TEXT    NOT NULL,
	param_count         INTEGER NOT NULL,
	train_ns            INTEGER NOT NULL,
	train_batches       INTEGER NOT NULL,
	train_steps         INTEGER NOT NULL,
	train_score         REAL    NOT NULL,
	avg_forward_ms      REAL    NOT NULL,
	avg_backward_ms     REAL    NOT NULL,
	forward_count       INTEGER NOT NULL,
	backward_count      INTEGER NOT NULL,
	started_at          INTEGER NOT NULL,
	finished_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_run ON reports(run_id);
`

const columns = `run_id, model, variant, dataset, summary, param_count,
	train_ns, train_batches, train_steps, train_score,
	avg_forward_ms, avg_backward_ms, forward_count, backward_count,
	started_at, finished_at`

// Store is a report history backed by a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Emit saves r; it makes Store a report.Sink.
func (s *Store) Emit(ctx context.Context, r *report.Report) error {
	return s.Save(ctx, r)
}

// Save inserts a finalized report.
func (s *Store) Save(ctx context.Context, r *report.Report) error {
	if !r.Sealed() {
		return fmt.Errorf("store: save %s: report not finalized", r.Model)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO reports (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Model, r.Variant, r.Dataset, r.Summary, r.ParamCount,
		int64(r.Duration), r.Batches, r.Steps, float64(r.Score),
		r.AvgForwardMillis, r.AvgBackwardMillis, r.ForwardCount, r.BackwardCount,
		r.StartedAt.UnixNano(), r.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("store: save %s: %w", r.Model, err)
	}
	return nil
}

// List returns the most recent reports first, at most limit (0 for all).
func (s *Store) List(ctx context.Context, limit int) ([]*report.Report, error) {
	query := `SELECT ` + columns + ` FROM reports ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// ByRun returns the reports of one run in insertion order.
func (s *Store) ByRun(ctx context.Context, runID string) ([]*report.Report, error) {
	return s.query(ctx, `SELECT `+columns+` FROM reports WHERE run_id = ? ORDER BY id`, runID)
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*report.Report, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	var out []*report.Report
	for rows.Next() {
		var (
			id                  report.Identity
			tr                  report.Training
			m                   report.Metrics
			trainNS             int64
			score               float64
			started, finishedAt int64
		)
		if err := rows.Scan(
			&id.RunID, &id.Model, &id.Variant, &id.Dataset, &id.Summary, &id.ParamCount,
			&trainNS, &tr.Batches, &tr.Steps, &score,
			&m.AvgForwardMillis, &m.AvgBackwardMillis, &m.ForwardCount, &m.BackwardCount,
			&started, &finishedAt,
		); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		tr.Duration = time.Duration(trainNS)
		tr.Score = float32(score)

		r := report.New(id, time.Unix(0, started))
		if err := r.SetTraining(tr); err != nil {
			return nil, err
		}
		if err := r.Finalize(m, time.Unix(0, finishedAt)); err != nil {
			return nil, fmt.Errorf("store: load %s: %w", id.Model, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
