// Package store persists workflow run history in an embedded libSQL
// database. Recording happens after a run completes; the engine itself
// never reads intermediate state back from here.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/graphrun/pkg/schema"
)

// RunStore records completed workflow runs in libSQL.
type RunStore struct {
	db *sql.DB
}

// NewRunStore opens a libSQL database at the given path. The path
// should be a file URI, e.g. "file:/path/to/runs.db".
func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs; some return rows so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &RunStore{db: db}, nil
}

// Close closes the database.
func (s *RunStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *RunStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// SaveRun persists a run outcome and its node results in one transaction.
func (s *RunStore) SaveRun(ctx context.Context, result *schema.RunResult) error {
	finalOutput, err := nullableJSON(result.FinalOutput)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal final output: %s", err.Error()).WithCause(err)
	}
	var runErr sql.NullString
	if result.Error != nil {
		raw, err := json.Marshal(result.Error)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "marshal run error: %s", err.Error()).WithCause(err)
		}
		runErr = sql.NullString{String: string(raw), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "begin tx: %s", err.Error()).WithCause(err)
	}
	defer tx.Rollback()

	runID := uuid.New().String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, workflow_id, success, final_output, error, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, result.WorkflowID, boolInt(result.Success),
		finalOutput, runErr, result.StartedAt, nullTime(result.CompletedAt),
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "insert run: %s", err.Error()).WithCause(err)
	}

	for _, nodeID := range sortedKeys(result.Results) {
		nr := result.Results[nodeID]
		outputs, err := nullableJSON(nr.Outputs)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "marshal outputs of node %s: %s", nodeID, err.Error()).WithCause(err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO node_results (run_id, node_id, node_type, success, outputs, error, executed_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, nr.NodeID, nr.NodeType, boolInt(nr.Success), outputs, nullStr(nr.Error), nr.Timestamp,
		)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "insert node result %s: %s", nodeID, err.Error()).WithCause(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "commit run: %s", err.Error()).WithCause(err)
	}
	return nil
}

// GetRun returns a recorded run with its node results.
func (s *RunStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	rec := &RunRecord{}
	var (
		success               int
		finalOutput, errJSON  sql.NullString
		completedAt           sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, success, final_output, error, started_at, completed_at
		 FROM runs WHERE id = ?`, runID,
	).Scan(&rec.ID, &rec.WorkflowID, &success, &finalOutput, &errJSON, &rec.StartedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %s not found", runID)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "query run: %s", err.Error()).WithCause(err)
	}
	rec.Success = success != 0
	rec.FinalOutput = jsonOrNil(finalOutput)
	rec.Error = jsonOrNil(errJSON)
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, node_type, success, outputs, error, executed_at
		 FROM node_results WHERE run_id = ? ORDER BY executed_at, node_id`, runID)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "query node results: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			nr       NodeResultRecord
			nSuccess int
			outputs  sql.NullString
			nodeErr  sql.NullString
		)
		if err := rows.Scan(&nr.NodeID, &nr.NodeType, &nSuccess, &outputs, &nodeErr, &nr.ExecutedAt); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan node result: %s", err.Error()).WithCause(err)
		}
		nr.Success = nSuccess != 0
		nr.Outputs = jsonOrNil(outputs)
		nr.Error = nodeErr.String
		rec.NodeResults = append(rec.NodeResults, nr)
	}
	return rec, rows.Err()
}

// ListRuns returns recorded runs for a workflow, newest first, without
// node results. An empty workflowID lists runs of every workflow.
func (s *RunStore) ListRuns(ctx context.Context, workflowID string, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, workflow_id, success, final_output, error, started_at, completed_at
		 FROM runs`
	args := []any{}
	if workflowID != "" {
		query += ` WHERE workflow_id = ?`
		args = append(args, workflowID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "query runs: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var recs []*RunRecord
	for rows.Next() {
		rec := &RunRecord{}
		var (
			success              int
			finalOutput, errJSON sql.NullString
			completedAt          sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &success, &finalOutput, &errJSON, &rec.StartedAt, &completedAt); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan run: %s", err.Error()).WithCause(err)
		}
		rec.Success = success != 0
		rec.FinalOutput = jsonOrNil(finalOutput)
		rec.Error = jsonOrNil(errJSON)
		if completedAt.Valid {
			rec.CompletedAt = &completedAt.Time
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func nullableJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func jsonOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid {
		return nil
	}
	return json.RawMessage(ns.String)
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortedKeys(m map[string]*schema.ExecutionResult) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
