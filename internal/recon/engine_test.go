package recon

import (
	"testing"

	"github.com/starford/workboard/internal/board"
	"github.com/starford/workboard/internal/model"
	"github.com/starford/workboard/internal/testutil"
	"github.com/starford/workboard/internal/workunit"
)

var testColumns = []string{"Backlog", "InProgress", "Review", "Done"}

func testConfig() Config {
	return Config{
		StateColumns: map[model.RecordState]string{
			model.StateOpen:   "InProgress",
			model.StateClosed: "Done",
			model.StateMerged: "Done",
		},
		ColumnOrder:     testColumns,
		ManualTagPrefix: "manual-",
		Swimlane:        "Main",
	}
}

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func emptyBoard(tasks ...*board.Task) *board.State {
	return board.NewState(1, testColumns, tasks)
}

func unitAB(t *testing.T) *workunit.WorkUnit {
	t.Helper()
	a := testutil.Issue(1, "ext")
	b := testutil.MR(2)
	res := workunit.Build(workunit.Config{}, []*model.Record{a, b}, []model.Link{
		testutil.Link(a, b, model.LinkPartOf),
	})
	u := res.Unit(a.Ref)
	if u == nil {
		t.Fatal("fixture unit missing")
	}
	return u
}

func applyAll(t *testing.T, s *board.State, plan *Plan) {
	t.Helper()
	id := 1000
	nextID := func() int { id++; return id }
	for _, op := range plan.Ops {
		if err := board.Apply(s, op, nextID); err != nil {
			t.Fatalf("apply %s: %v", op, err)
		}
	}
}

func TestPlan_CreateWithSubtaskOrder(t *testing.T) {
	e := testEngine(t, testConfig())
	u := unitAB(t)

	plan, err := e.Plan([]*workunit.WorkUnit{u}, emptyBoard())
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Ops) != 2 {
		t.Fatalf("ops = %v, want create + subtask", plan.Ops)
	}
	create, sub := plan.Ops[0], plan.Ops[1]
	if create.Kind != board.OpCreateTask || create.Ref != "proj#1" {
		t.Errorf("first op = %+v", create)
	}
	if create.Column != "InProgress" || len(create.Tags) != 1 || create.Tags[0] != "ext" {
		t.Errorf("create payload = %+v", create)
	}
	if sub.Kind != board.OpUpsertSubtask || sub.Ref != "proj#1" || sub.Subtask.Ref != "proj!2" {
		t.Errorf("second op = %+v", sub)
	}
	if sub.TaskID != 0 {
		t.Errorf("subtask for a new task must resolve via ref, got task id %d", sub.TaskID)
	}
}

func TestPlan_Idempotence(t *testing.T) {
	e := testEngine(t, testConfig())
	u := unitAB(t)
	state := emptyBoard(
		&board.Task{ID: 9, Title: "stale title", Column: "Backlog", ExternalRef: "proj#1", Tags: []string{"old"}},
	)

	plan, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	if plan.Empty() {
		t.Fatal("expected a non-empty plan for a divergent board")
	}
	applyAll(t, state, plan)

	again, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Empty() {
		t.Errorf("re-plan after convergence = %v, want empty", again.Ops)
	}
}

func TestPlan_IdempotenceAfterPartialApply(t *testing.T) {
	e := testEngine(t, testConfig())
	u := unitAB(t)
	state := emptyBoard()

	plan, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	// Apply only the create; pretend the subtask op failed.
	id := 2000
	if err := board.Apply(state, plan.Ops[0], func() int { id++; return id }); err != nil {
		t.Fatal(err)
	}

	rest, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest.Ops) != 1 || rest.Ops[0].Kind != board.OpUpsertSubtask {
		t.Errorf("re-plan = %v, want only the missing subtask op", rest.Ops)
	}
}

func TestPlan_NoDuplicateCreatePerRef(t *testing.T) {
	e := testEngine(t, testConfig())
	u := unitAB(t)
	other := &workunit.WorkUnit{Primary: testutil.Issue(1, "ext")} // same identity

	plan, err := e.Plan([]*workunit.WorkUnit{u, other}, emptyBoard())
	if err != nil {
		t.Fatal(err)
	}
	creates := 0
	for _, op := range plan.Ops {
		if op.Kind == board.OpCreateTask && op.Ref == "proj#1" {
			creates++
		}
	}
	if creates != 1 {
		t.Errorf("create ops for proj#1 = %d, want exactly 1", creates)
	}
}

func TestPlan_ForwardOnlyMovement(t *testing.T) {
	e := testEngine(t, testConfig())
	u := unitAB(t)
	// Human already moved the card past the state-derived column.
	state := emptyBoard(&board.Task{
		ID: 9, Title: u.Primary.Title, Column: "Review", ExternalRef: "proj#1",
		Tags:     []string{"ext", "manual-keep"},
		Subtasks: []board.Subtask{{ID: 1, Ref: "proj!2", Title: "proj!2 MR 2"}},
	})

	plan, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	for _, op := range plan.Ops {
		if op.Kind == board.OpMoveTask {
			t.Errorf("backward move emitted: %+v", op)
		}
	}
}

func TestPlan_ManualTagPreserved(t *testing.T) {
	e := testEngine(t, testConfig())
	u := unitAB(t)
	state := emptyBoard(&board.Task{
		ID: 9, Title: u.Primary.Title, Column: "Review", ExternalRef: "proj#1",
		Tags:     []string{"manual-keep"},
		Subtasks: []board.Subtask{{ID: 1, Ref: "proj!2", Title: "proj!2 MR 2"}},
	})

	plan, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	var setTags *board.Operation
	for i := range plan.Ops {
		if plan.Ops[i].Kind == board.OpSetTags {
			setTags = &plan.Ops[i]
		}
	}
	if setTags == nil {
		t.Fatal("expected a set_tags op (derived label missing from task)")
	}
	keep, ext := false, false
	for _, tag := range setTags.Tags {
		switch tag {
		case "manual-keep":
			keep = true
		case "ext":
			ext = true
		}
	}
	if !keep || !ext {
		t.Errorf("tags = %v, want both manual-keep and ext", setTags.Tags)
	}
}

func TestPlan_ConvergedTagsNoOp(t *testing.T) {
	e := testEngine(t, testConfig())
	u := unitAB(t)
	state := emptyBoard(&board.Task{
		ID: 9, Title: u.Primary.Title, Column: "InProgress", ExternalRef: "proj#1",
		Tags:     []string{"ext", "manual-keep"},
		Subtasks: []board.Subtask{{ID: 1, Ref: "proj!2", Title: "proj!2 MR 2"}},
	})
	plan, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Empty() {
		t.Errorf("plan = %v, want empty (manual tag alone must not trigger set_tags)", plan.Ops)
	}
}

func TestPlan_ClosedUnmatchedUnitSkipped(t *testing.T) {
	e := testEngine(t, testConfig())
	u := &workunit.WorkUnit{Primary: testutil.Closed(testutil.Issue(4))}

	plan, err := e.Plan([]*workunit.WorkUnit{u}, emptyBoard())
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Empty() {
		t.Errorf("ops = %v, want none for a closed unit with no card", plan.Ops)
	}
	if len(plan.Skipped) != 1 {
		t.Errorf("skipped = %v, want the closed unit surfaced", plan.Skipped)
	}
}

func TestPlan_ClosedMatchedUnitMovesForwardToDone(t *testing.T) {
	e := testEngine(t, testConfig())
	u := &workunit.WorkUnit{Primary: testutil.Closed(testutil.Issue(4))}
	u.Primary.Title = "Issue 4"
	state := emptyBoard(&board.Task{ID: 9, Title: "Issue 4", Column: "InProgress", ExternalRef: "proj#4"})

	plan, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Ops) != 1 || plan.Ops[0].Kind != board.OpMoveTask || plan.Ops[0].Column != "Done" {
		t.Errorf("ops = %v, want a single move to Done", plan.Ops)
	}
}

func TestPlan_PruneClosesTerminalTasks(t *testing.T) {
	cfg := testConfig()
	cfg.Prune = true
	e := testEngine(t, cfg)
	u := &workunit.WorkUnit{Primary: testutil.Closed(testutil.Issue(4))}
	u.Primary.Title = "Issue 4"
	state := emptyBoard(&board.Task{ID: 9, Title: "Issue 4", Column: "Done", ExternalRef: "proj#4"})

	plan, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Ops) != 1 || plan.Ops[0].Kind != board.OpCloseTask {
		t.Fatalf("ops = %v, want close_task", plan.Ops)
	}
	applyAll(t, state, plan)
	again, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Empty() {
		t.Errorf("re-plan after close = %v, want empty", again.Ops)
	}
}

func TestPlan_StaleSubtasksUntouchedWithoutPrune(t *testing.T) {
	e := testEngine(t, testConfig())
	u := unitAB(t)
	state := emptyBoard(&board.Task{
		ID: 9, Title: u.Primary.Title, Column: "InProgress", ExternalRef: "proj#1",
		Tags: []string{"ext"},
		Subtasks: []board.Subtask{
			{ID: 1, Ref: "proj!2", Title: "proj!2 MR 2"},
			{ID: 2, Ref: "proj!99", Title: "proj!99 dropped from unit"},
		},
	})
	plan, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	if !plan.Empty() {
		t.Errorf("ops = %v, stale subtask must be left alone", plan.Ops)
	}
}

func TestPlan_UnmanagedColumnWarns(t *testing.T) {
	e := testEngine(t, testConfig())
	u := unitAB(t)
	state := board.NewState(1, append([]string{"Icebox"}, testColumns...), []*board.Task{
		{ID: 9, Title: u.Primary.Title, Column: "Icebox", ExternalRef: "proj#1",
			Tags:     []string{"ext"},
			Subtasks: []board.Subtask{{ID: 1, Ref: "proj!2", Title: "proj!2 MR 2"}}},
	})
	plan, err := e.Plan([]*workunit.WorkUnit{u}, state)
	if err != nil {
		t.Fatal(err)
	}
	for _, op := range plan.Ops {
		if op.Kind == board.OpMoveTask {
			t.Errorf("task in unmanaged column must not move: %+v", op)
		}
	}
	if len(plan.Warnings) == 0 {
		t.Errorf("expected an unmanaged-column warning")
	}
}

func TestPlan_ColumnMapMismatchAborts(t *testing.T) {
	e := testEngine(t, testConfig())
	state := board.NewState(1, []string{"Todo", "Doing"}, nil)
	if _, err := e.Plan(nil, state); err == nil {
		t.Fatal("expected configuration error when board lacks mapped columns")
	}
}

func TestNew_RequiresEveryStateMapping(t *testing.T) {
	for _, state := range []model.RecordState{model.StateOpen, model.StateClosed, model.StateMerged} {
		cfg := testConfig()
		delete(cfg.StateColumns, state)
		if _, err := New(cfg, nil); err == nil {
			t.Errorf("config without a %s mapping accepted", state)
		}
	}
}

func TestNew_RejectsInconsistentConfig(t *testing.T) {
	cfg := testConfig()
	cfg.StateColumns[model.StateOpen] = "NotInOrder"
	if _, err := New(cfg, nil); err == nil {
		t.Fatal("expected config validation error")
	}
}
