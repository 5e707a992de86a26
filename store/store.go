package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lucasjlepore/activity-harmonics/harmonics"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS harmonic_runs (
    run_id      uuid PRIMARY KEY,
    source      text NOT NULL,
    n_harmonics integer NOT NULL,
    windows     integer NOT NULL,
    failed      integer NOT NULL,
    created_at  timestamptz NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS harmonic_features (
    run_id       uuid NOT NULL REFERENCES harmonic_runs (run_id) ON DELETE CASCADE,
    window_label text NOT NULL,
    group_key    text NOT NULL,
    row_index    integer NOT NULL,
    ts           timestamptz NOT NULL,
    detail       text NOT NULL,
    feature      text NOT NULL,
    value        double precision NOT NULL
);
CREATE INDEX IF NOT EXISTS harmonic_features_run_window_idx ON harmonic_features (run_id, window_label);`

var featureColumns = []string{"run_id", "window_label", "group_key", "row_index", "ts", "detail", "feature", "value"}

// Store writes harmonic feature tables to Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the run and feature tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Run is one row of harmonic_runs.
type Run struct {
	ID        uuid.UUID
	Source    string
	Harmonics int
	Windows   int
	Failed    int
}

// InsertRun records a run before its features are written.
func (s *Store) InsertRun(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO harmonic_runs (run_id, source, n_harmonics, windows, failed)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (run_id) DO UPDATE
SET windows = EXCLUDED.windows,
    failed = EXCLUDED.failed`,
		run.ID, run.Source, run.Harmonics, run.Windows, run.Failed)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// InsertFeatures copies table in long format: one row per (tick, feature).
func (s *Store) InsertFeatures(ctx context.Context, runID uuid.UUID, table *harmonics.FeatureTable) (int64, error) {
	rows := FeatureRows(runID, table)
	if len(rows) == 0 {
		return 0, nil
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{"harmonic_features"}, featureColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return n, fmt.Errorf("copy features: %w", err)
	}
	return n, nil
}

// FeatureRows flattens table into copy rows in column order.
func FeatureRows(runID uuid.UUID, table *harmonics.FeatureTable) [][]any {
	if table.Empty() {
		return nil
	}
	out := make([][]any, 0, len(table.Rows)*len(table.Columns))
	for _, row := range table.Rows {
		label := row.Window
		for _, col := range table.Columns {
			v, ok := row.Values[col]
			if !ok {
				continue
			}
			out = append(out, []any{runID, label, row.Group, row.Index, row.Timestamp, row.Detail, col, v})
		}
	}
	return out
}
