package board

import "testing"

func testState() *State {
	return NewState(1, []string{"Backlog", "InProgress", "Review", "Done"}, []*Task{
		{ID: 1, Title: "Add widget", Column: "InProgress", ExternalRef: "proj#1"},
		{ID: 2, Title: "manual note", Column: "Backlog"},
		{ID: 3, Title: "old import", Column: "Backlog", ExternalRef: "not-a-ref"},
	})
}

func TestNewState_IndexesByRef(t *testing.T) {
	s := testState()
	task, ok := s.ByRef["proj#1"]
	if !ok || task.ID != 1 {
		t.Fatalf("ByRef lookup failed: %+v", s.ByRef)
	}
	if len(s.Columns["Backlog"]) != 2 {
		t.Errorf("Backlog = %v", s.Columns["Backlog"])
	}
}

func TestNewState_MalformedRefsFlaggedNotDropped(t *testing.T) {
	s := testState()
	if len(s.Unmatched) != 2 {
		t.Fatalf("unmatched = %d, want 2 (empty + malformed)", len(s.Unmatched))
	}
	// Unmatched tasks still sit in their columns.
	total := 0
	for _, tasks := range s.Columns {
		total += len(tasks)
	}
	if total != 3 {
		t.Errorf("tasks in columns = %d, want all 3", total)
	}
}

func TestState_ColumnRank(t *testing.T) {
	s := testState()
	if r := s.ColumnRank("Review"); r != 2 {
		t.Errorf("rank(Review) = %d", r)
	}
	if r := s.ColumnRank("Nope"); r != -1 {
		t.Errorf("rank(Nope) = %d, want -1", r)
	}
}

func TestOperation_Validate(t *testing.T) {
	s := testState()
	cases := []struct {
		name string
		op   Operation
		ok   bool
	}{
		{"valid create", Operation{Kind: OpCreateTask, Ref: "proj#2", Title: "x", Column: "Backlog"}, true},
		{"create unknown column", Operation{Kind: OpCreateTask, Ref: "proj#2", Title: "x", Column: "Nope"}, false},
		{"create without title", Operation{Kind: OpCreateTask, Ref: "proj#2", Column: "Backlog"}, false},
		{"move unknown column", Operation{Kind: OpMoveTask, Ref: "proj#1", TaskID: 1, Column: "Nope"}, false},
		{"valid move", Operation{Kind: OpMoveTask, Ref: "proj#1", TaskID: 1, Column: "Review", Position: 1}, true},
		{"subtask without payload", Operation{Kind: OpUpsertSubtask, Ref: "proj#1", TaskID: 1}, false},
		{"missing ref", Operation{Kind: OpSetTags, TaskID: 1}, false},
	}
	for _, tc := range cases {
		err := tc.op.Validate(s)
		if tc.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestApply_CreateThenSubtask(t *testing.T) {
	s := testState()
	id := 100
	nextID := func() int { id++; return id }

	ops := []Operation{
		{Kind: OpCreateTask, Ref: "proj#9", Title: "New card", Column: "Backlog", Tags: []string{"ext"}},
		{Kind: OpUpsertSubtask, Ref: "proj#9", Subtask: &SubtaskSpec{Ref: "proj!10", Title: "proj!10 impl"}},
	}
	for _, op := range ops {
		if err := Apply(s, op, nextID); err != nil {
			t.Fatalf("apply %s: %v", op, err)
		}
	}
	task := s.ByRef["proj#9"]
	if task == nil || task.ID != 101 {
		t.Fatalf("created task = %+v", task)
	}
	if len(task.Subtasks) != 1 || task.Subtasks[0].Ref != "proj!10" {
		t.Errorf("subtasks = %+v", task.Subtasks)
	}
}

func TestApply_MovePositions(t *testing.T) {
	s := testState()
	op := Operation{Kind: OpMoveTask, Ref: "proj#1", TaskID: 1, Column: "Review", Position: 1}
	if err := Apply(s, op, nil); err != nil {
		t.Fatal(err)
	}
	if len(s.Columns["InProgress"]) != 0 || len(s.Columns["Review"]) != 1 {
		t.Errorf("columns after move: %v / %v", s.Columns["InProgress"], s.Columns["Review"])
	}
	if s.ByRef["proj#1"].Column != "Review" {
		t.Errorf("column = %q", s.ByRef["proj#1"].Column)
	}
}

func TestApply_CloseRemovesFromSnapshot(t *testing.T) {
	s := testState()
	op := Operation{Kind: OpCloseTask, Ref: "proj#1", TaskID: 1}
	if err := Apply(s, op, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := s.ByRef["proj#1"]; ok {
		t.Errorf("closed task should leave the active snapshot")
	}
}
