package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/shopnlp/pkg/shopnlp/internalerr"
	"github.com/cognicore/shopnlp/pkg/shopnlp/linear"
	"github.com/cognicore/shopnlp/pkg/shopnlp/store"
)

// timeLayout sorts lexically in time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database with WAL mode enabled.
func OpenSQLite(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w: %w", path, internalerr.ErrStoreUnavailable, err)
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// initSchema creates tables if they don't exist
func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS params (
	stage TEXT NOT NULL,
	feature TEXT NOT NULL,
	class INTEGER NOT NULL,
	value REAL NOT NULL,
	PRIMARY KEY(stage, feature, class)
);

CREATE TABLE IF NOT EXISTS training_runs (
	id TEXT PRIMARY KEY,
	component TEXT NOT NULL,
	kind TEXT NOT NULL,
	iterations INTEGER NOT NULL,
	examples INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	losses TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// ReplaceParams swaps every parameter row of stage in one transaction.
func (s *sqliteStore) ReplaceParams(ctx context.Context, stage string, params []linear.Param) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM params WHERE stage = ?`, stage); err != nil {
		return err
	}

	if len(params) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO params (stage, feature, class, value) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, p := range params {
			for class, v := range p.Values {
				if _, err := stmt.ExecContext(ctx, stage, p.Feature, class, v); err != nil {
					return fmt.Errorf("param %s/%s[%d]: %w", stage, p.Feature, class, err)
				}
			}
		}
	}

	return tx.Commit()
}

// Params returns the rows of stage ordered by feature.
func (s *sqliteStore) Params(ctx context.Context, stage string) ([]linear.Param, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT feature, class, value
FROM params
WHERE stage = ?
ORDER BY feature, class;
`, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []linear.Param
	for rows.Next() {
		var (
			feature string
			class   int
			value   float64
		)
		if err := rows.Scan(&feature, &class, &value); err != nil {
			return nil, err
		}
		if n := len(out); n == 0 || out[n-1].Feature != feature {
			out = append(out, linear.Param{Feature: feature})
		}
		last := &out[len(out)-1]
		if class != len(last.Values) {
			return nil, fmt.Errorf("param %s/%s: class %d out of sequence", stage, feature, class)
		}
		last.Values = append(last.Values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// AddRun inserts a training run. IDs are unique.
func (s *sqliteStore) AddRun(ctx context.Context, r store.Run) error {
	losses, err := json.Marshal(r.Losses)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO training_runs (id, component, kind, iterations, examples, skipped, losses, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);
`, r.ID, r.Component, r.Kind, r.Iterations, r.Examples, r.Skipped, string(losses),
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("run %s: %w", r.ID, err)
	}
	return nil
}

// Runs returns every run, oldest first.
func (s *sqliteStore) Runs(ctx context.Context) ([]store.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, component, kind, iterations, examples, skipped, losses, started_at, finished_at
FROM training_runs
ORDER BY started_at, id;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Run
	for rows.Next() {
		var (
			r                 store.Run
			losses            string
			started, finished string
		)
		if err := rows.Scan(&r.ID, &r.Component, &r.Kind, &r.Iterations, &r.Examples, &r.Skipped, &losses, &started, &finished); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(losses), &r.Losses); err != nil {
			return nil, fmt.Errorf("run %s losses: %w", r.ID, err)
		}
		if r.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, err
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
