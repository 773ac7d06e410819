package audit

import (
	"errors"
	"os"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "workboard-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM runs`).Scan(&count); err != nil {
		t.Fatalf("runs table missing: %v", err)
	}
	if err := db.conn.QueryRow(`SELECT count(*) FROM operations`).Scan(&count); err != nil {
		t.Fatalf("operations table missing: %v", err)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := testDB(t)
	runID, err := db.BeginRun(7, false)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := db.FinishRun(runID, 3, 2, 1, errors.New("one op failed")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.ID != runID || r.Planned != 3 || r.Applied != 2 || r.Failed != 1 {
		t.Errorf("run = %+v", r)
	}
	if r.FinishedAt.IsZero() {
		t.Error("finished run should have a finish time")
	}
	if r.Error != "one op failed" {
		t.Errorf("error = %q", r.Error)
	}
}

func TestRecentRuns_NewestFirst(t *testing.T) {
	db := testDB(t)
	first, _ := db.BeginRun(7, false)
	second, _ := db.BeginRun(7, true)

	runs, err := db.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if runs[0].ID != second || runs[1].ID != first {
		t.Errorf("runs out of order: %+v", runs)
	}
	if !runs[0].DryRun {
		t.Error("second run should be marked dry")
	}
}

func TestRunOperations_PlanOrder(t *testing.T) {
	db := testDB(t)
	runID, _ := db.BeginRun(7, false)
	ops := []OpRecord{
		{RunID: runID, Seq: 0, Kind: "create_task", Ref: "proj#1", TaskID: 42},
		{RunID: runID, Seq: 1, Kind: "upsert_subtask", Ref: "proj#1", TaskID: 42, Detail: "proj!2"},
		{RunID: runID, Seq: 2, Kind: "move_task", Ref: "proj#3", Error: "unknown column"},
	}
	for _, op := range ops {
		if err := db.LogOperation(op); err != nil {
			t.Fatalf("LogOperation: %v", err)
		}
	}

	got, err := db.RunOperations(runID)
	if err != nil {
		t.Fatalf("RunOperations: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 operations, got %d", len(got))
	}
	for i, rec := range got {
		if rec.Seq != i {
			t.Errorf("operation %d has seq %d", i, rec.Seq)
		}
	}
	if got[2].Error != "unknown column" {
		t.Errorf("failed op error = %q", got[2].Error)
	}
}
