package audit

import "time"

// Run is one recorded reconciliation pass.
type Run struct {
	ID         int64     `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
	ProjectID  int       `json:"project_id"`
	DryRun     bool      `json:"dry_run"`
	Planned    int       `json:"planned"`
	Applied    int       `json:"applied"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// OpRecord is one operation as it was applied (or skipped) within a run.
type OpRecord struct {
	RunID  int64  `json:"run_id"`
	Seq    int    `json:"seq"`
	Kind   string `json:"kind"`
	Ref    string `json:"ref"`
	TaskID int    `json:"task_id,omitempty"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Log defines the audit trail operations. Consumers should depend on this
// interface rather than the concrete *DB type to facilitate testing with
// mocks.
type Log interface {
	BeginRun(projectID int, dryRun bool) (int64, error)
	FinishRun(runID int64, planned, applied, failed int, runErr error) error
	LogOperation(rec OpRecord) error
	RecentRuns(limit int) ([]Run, error)
	RunOperations(runID int64) ([]OpRecord, error)
	Close() error
}

// Verify *DB satisfies Log at compile time.
var _ Log = (*DB)(nil)
