package db

import (
	"database/sql"
	"fmt"

	"github.com/lucasnoah/ordpilot/internal/stage"
)

// Run represents a row in the runs table.
type Run struct {
	ID         string
	Query      string
	Status     string
	Attempts   int
	FixRounds  int
	CreatedAt  string
	FinishedAt string
}

// RunEvent represents a row in the run_events table.
type RunEvent struct {
	ID        int
	RunID     string
	Event     string
	Attempt   int
	Detail    string
	Timestamp string
}

// EvalRun represents a row in the eval_runs table.
type EvalRun struct {
	ID         int64
	CorpusDir  string
	Total      int
	Passed     int
	Failed     int
	DurationMS int
	Timestamp  string
}

// CreateRun inserts a new run record.
func (d *DB) CreateRun(id, query string) error {
	_, err := d.conn.Exec(
		`INSERT INTO runs (id, query) VALUES (?, ?)`,
		id, query,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// UpdateRunStatus updates the status of a run. Terminal statuses
// ("pass", "exhausted", "failed") also set finished_at.
func (d *DB) UpdateRunStatus(id, status string) error {
	var res sql.Result
	var err error

	switch status {
	case "pass", "exhausted", "failed":
		res, err = d.conn.Exec(
			`UPDATE runs SET status = ?, finished_at = datetime('now') WHERE id = ?`,
			status, id)
	default:
		res, err = d.conn.Exec(
			`UPDATE runs SET status = ? WHERE id = ?`,
			status, id)
	}

	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// FinishRun records the terminal status and final counters of a run.
func (d *DB) FinishRun(id, status string, attempts, fixRounds int) error {
	res, err := d.conn.Exec(
		`UPDATE runs SET status = ?, attempts = ?, fix_rounds = ?, finished_at = datetime('now') WHERE id = ?`,
		status, attempts, fixRounds, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// GetRun returns a run by id, or nil if it does not exist.
func (d *DB) GetRun(id string) (*Run, error) {
	row := d.conn.QueryRow(
		`SELECT id, query, status, attempts, fix_rounds, created_at, finished_at
		 FROM runs WHERE id = ?`,
		id,
	)
	var r Run
	var finishedAt sql.NullString
	err := row.Scan(&r.ID, &r.Query, &r.Status, &r.Attempts, &r.FixRounds, &r.CreatedAt, &finishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if finishedAt.Valid {
		r.FinishedAt = finishedAt.String
	}
	return &r, nil
}

// LogRunEvent inserts a run event.
func (d *DB) LogRunEvent(runID, event string, attempt int, detail string) error {
	_, err := d.conn.Exec(
		`INSERT INTO run_events (run_id, event, attempt, detail) VALUES (?, ?, ?, ?)`,
		runID, event, attempt, detail,
	)
	if err != nil {
		return fmt.Errorf("log run event: %w", err)
	}
	return nil
}

// GetRunEvents returns the events of a run with id greater than afterID, in
// insertion order. Pass afterID 0 for the full history. The event stream
// endpoint polls this to push incremental updates.
func (d *DB) GetRunEvents(runID string, afterID int) ([]RunEvent, error) {
	rows, err := d.conn.Query(
		`SELECT id, run_id, event, attempt, detail, timestamp
		 FROM run_events WHERE run_id = ? AND id > ? ORDER BY id`,
		runID, afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("get run events: %w", err)
	}
	defer rows.Close()

	var events []RunEvent
	for rows.Next() {
		var e RunEvent
		var attempt sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.Event, &attempt, &detail, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan run event: %w", err)
		}
		if attempt.Valid {
			e.Attempt = int(attempt.Int64)
		}
		if detail.Valid {
			e.Detail = detail.String
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LogStageResults inserts the per-stage results of one validation pass.
func (d *DB) LogStageResults(runID string, attempt, fixRound int, results []stage.Result) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO stage_results (run_id, attempt, fix_round, stage, ok, code, message, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(runID, attempt, fixRound, string(r.Stage), r.OK, string(r.Code), r.Message, r.DurationMS); err != nil {
			return fmt.Errorf("insert stage result %s: %w", r.Stage, err)
		}
	}

	return tx.Commit()
}

// LogEvalRun inserts an eval summary row and returns its id.
func (d *DB) LogEvalRun(corpusDir string, total, passed, failed, durationMS int) (int64, error) {
	res, err := d.conn.Exec(
		`INSERT INTO eval_runs (corpus_dir, total, passed, failed, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		corpusDir, total, passed, failed, durationMS,
	)
	if err != nil {
		return 0, fmt.Errorf("log eval run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("get eval run id: %w", err)
	}
	return id, nil
}

// LogEvalResult inserts one per-file eval result.
func (d *DB) LogEvalResult(evalRunID int64, file string, passed bool, stageName, code, message string, durationMS int) error {
	_, err := d.conn.Exec(
		`INSERT INTO eval_results (eval_run_id, file, passed, stage, code, message, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		evalRunID, file, passed, stageName, code, message, durationMS,
	)
	if err != nil {
		return fmt.Errorf("log eval result: %w", err)
	}
	return nil
}

// ListEvalRuns returns the most recent eval summaries, newest first.
func (d *DB) ListEvalRuns(limit int) ([]EvalRun, error) {
	rows, err := d.conn.Query(
		`SELECT id, corpus_dir, total, passed, failed, duration_ms, timestamp
		 FROM eval_runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list eval runs: %w", err)
	}
	defer rows.Close()

	var runs []EvalRun
	for rows.Next() {
		var r EvalRun
		var durationMS sql.NullInt64
		if err := rows.Scan(&r.ID, &r.CorpusDir, &r.Total, &r.Passed, &r.Failed, &durationMS, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan eval run: %w", err)
		}
		if durationMS.Valid {
			r.DurationMS = int(durationMS.Int64)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
