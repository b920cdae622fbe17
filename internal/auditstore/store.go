// Package auditstore provides SQLite-backed persistence for goal run
// audit records: run snapshots, gate results, walk-forward analyses,
// scorecards, and reflexion records.
package auditstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/goalguard/internal/gates"
	"github.com/fyrsmithlabs/goalguard/internal/goalrun"
	"github.com/fyrsmithlabs/goalguard/internal/orchestrator"
	"github.com/fyrsmithlabs/goalguard/internal/reflexion"
	"github.com/fyrsmithlabs/goalguard/internal/scorecard"
	"github.com/fyrsmithlabs/goalguard/internal/walkforward"
)

// Store is the SQLite audit store. It satisfies the orchestrator's
// AuditSink contract and adds read-side queries for the ops API.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for concurrent readers alongside the single writer.
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		goal TEXT NOT NULL,
		risk_preference TEXT,
		state TEXT NOT NULL,
		reflexion_count INTEGER NOT NULL DEFAULT 0,
		snapshot TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS gate_results (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		gate TEXT NOT NULL,
		passed INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		passed INTEGER NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS scorecards (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		band TEXT NOT NULL,
		score REAL NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE TABLE IF NOT EXISTS reflexions (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		iteration INTEGER NOT NULL,
		failure_class TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);

	CREATE INDEX IF NOT EXISTS idx_gate_results_run_id ON gate_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_analyses_run_id ON analyses(run_id);
	CREATE INDEX IF NOT EXISTS idx_scorecards_run_id ON scorecards(run_id);
	CREATE INDEX IF NOT EXISTS idx_reflexions_run_id ON reflexions(run_id);
	CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveRun upserts the full run snapshot. The controller calls it after
// every transition, so the stored snapshot always reflects the latest
// history and tool-call log.
func (s *Store) SaveRun(ctx context.Context, run *goalrun.GoalRun) error {
	snapshot, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, goal, risk_preference, state, reflexion_count, snapshot, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state = excluded.state,
		   reflexion_count = excluded.reflexion_count,
		   snapshot = excluded.snapshot,
		   updated_at = excluded.updated_at`,
		run.ID, run.Goal, run.RiskPreference, string(run.State), run.ReflexionCount,
		string(snapshot), run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// SaveGateResult appends a gate evaluation record.
func (s *Store) SaveGateResult(ctx context.Context, runID string, res gates.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal gate result: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO gate_results (id, run_id, gate, passed, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), runID, res.Gate, boolInt(res.Passed), string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert gate result: %w", err)
	}
	return nil
}

// SaveAnalysis appends a walk-forward analysis record.
func (s *Store) SaveAnalysis(ctx context.Context, runID string, a walkforward.Analysis) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, run_id, passed, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), runID, boolInt(a.Passed), string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// SaveScorecard appends a readiness scorecard record.
func (s *Store) SaveScorecard(ctx context.Context, runID string, card scorecard.Scorecard) error {
	payload, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("marshal scorecard: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO scorecards (id, run_id, band, score, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), runID, string(card.Band), card.Score, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert scorecard: %w", err)
	}
	return nil
}

// SaveReflexion appends a reflexion record.
func (s *Store) SaveReflexion(ctx context.Context, runID string, rec reflexion.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal reflexion record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reflexions (id, run_id, iteration, failure_class, payload, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), runID, rec.Iteration, string(rec.Plan.FailureClass), string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert reflexion record: %w", err)
	}
	return nil
}

// LoadRun retrieves the latest snapshot of a run. It returns nil with no
// error when the run is unknown.
func (s *Store) LoadRun(ctx context.Context, id string) (*goalrun.GoalRun, error) {
	var snapshot string
	err := s.db.QueryRowContext(ctx, `SELECT snapshot FROM runs WHERE id = ?`, id).Scan(&snapshot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	var run goalrun.GoalRun
	if err := json.Unmarshal([]byte(snapshot), &run); err != nil {
		return nil, fmt.Errorf("unmarshal run snapshot: %w", err)
	}
	return &run, nil
}

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID             string        `json:"id"`
	Goal           string        `json:"goal"`
	State          goalrun.State `json:"state"`
	ReflexionCount int           `json:"reflexion_count"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// ListRuns returns run summaries, newest first, optionally filtered by
// state.
func (s *Store) ListRuns(ctx context.Context, state string) ([]RunSummary, error) {
	query := `SELECT id, goal, state, reflexion_count, created_at, updated_at FROM runs`
	var args []any
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.Goal, &r.State, &r.ReflexionCount, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Reflexions returns the reflexion records of one run in iteration order.
func (s *Store) Reflexions(ctx context.Context, runID string) ([]reflexion.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM reflexions WHERE run_id = ? ORDER BY iteration ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query reflexions: %w", err)
	}
	defer rows.Close()

	var out []reflexion.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan reflexion record: %w", err)
		}
		var rec reflexion.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal reflexion record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GateResults returns the gate evaluation records of one run in insertion
// order.
func (s *Store) GateResults(ctx context.Context, runID string) ([]gates.Result, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM gate_results WHERE run_id = ? ORDER BY created_at ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query gate results: %w", err)
	}
	defer rows.Close()

	var out []gates.Result
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan gate result: %w", err)
		}
		var res gates.Result
		if err := json.Unmarshal([]byte(payload), &res); err != nil {
			return nil, fmt.Errorf("unmarshal gate result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// LatestScorecard returns the most recent scorecard of a run, or nil when
// none was recorded.
func (s *Store) LatestScorecard(ctx context.Context, runID string) (*scorecard.Scorecard, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM scorecards WHERE run_id = ? ORDER BY created_at DESC LIMIT 1`, runID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query scorecard: %w", err)
	}

	var card scorecard.Scorecard
	if err := json.Unmarshal([]byte(payload), &card); err != nil {
		return nil, fmt.Errorf("unmarshal scorecard: %w", err)
	}
	return &card, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ orchestrator.AuditSink = (*Store)(nil)
