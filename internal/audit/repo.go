package audit

import (
	"database/sql"
	"fmt"
	"time"
)

// BeginRun records the start of a reconciliation run and returns its id.
func (db *DB) BeginRun(projectID int, dryRun bool) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO runs (started_at, project_id, dry_run)
		VALUES (?, ?, ?)
	`, time.Now().UTC(), projectID, dryRun)
	if err != nil {
		return 0, fmt.Errorf("audit: begin run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("audit: run id: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run with its outcome counters.
func (db *DB) FinishRun(runID int64, planned, applied, failed int, runErr error) error {
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	_, err := db.conn.Exec(`
		UPDATE runs
		SET finished_at = ?, planned = ?, applied = ?, failed = ?, error = ?
		WHERE id = ?
	`, time.Now().UTC(), planned, applied, failed, errText, runID)
	if err != nil {
		return fmt.Errorf("audit: finish run %d: %w", runID, err)
	}
	return nil
}

// LogOperation appends one applied (or failed) operation to a run.
func (db *DB) LogOperation(rec OpRecord) error {
	_, err := db.conn.Exec(`
		INSERT INTO operations (run_id, seq, kind, ref, task_id, detail, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.RunID, rec.Seq, rec.Kind, rec.Ref, rec.TaskID, rec.Detail, rec.Error)
	if err != nil {
		return fmt.Errorf("audit: log operation: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, started_at, finished_at, project_id, dry_run, planned, applied, failed, error
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: recent runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var finished sql.NullTime
		var dry int
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.ProjectID, &dry, &r.Planned, &r.Applied, &r.Failed, &r.Error); err != nil {
			return nil, err
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		r.DryRun = dry != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunOperations returns the operations of one run in plan order.
func (db *DB) RunOperations(runID int64) ([]OpRecord, error) {
	rows, err := db.conn.Query(`
		SELECT run_id, seq, kind, ref, task_id, detail, error
		FROM operations
		WHERE run_id = ?
		ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("audit: operations for run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []OpRecord
	for rows.Next() {
		var rec OpRecord
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Kind, &rec.Ref, &rec.TaskID, &rec.Detail, &rec.Error); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
