// Package recon implements the reconciliation engine: given the desired
// state (work units) and the current board snapshot, it computes the minimal
// ordered list of board operations that converges current to desired.
//
// The engine is idempotent by construction: every operation is emitted only
// when the target value differs from the snapshot, so re-planning against a
// converged board yields an empty plan. It never applies operations itself.
package recon

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/workboard/internal/board"
	"github.com/starford/workboard/internal/model"
	"github.com/starford/workboard/internal/workunit"
)

// Config is the reconciliation policy.
type Config struct {
	// StateColumns maps a record state onto the column its card belongs in.
	// Validated against the live board's columns at plan time; a mapping onto
	// a column the board does not have is a configuration error that aborts
	// the run.
	StateColumns map[model.RecordState]string

	// ColumnOrder is the forward ordering of managed columns. Tasks are only
	// ever moved forward along it; a human-moved task ahead of its
	// state-derived column stays where it is.
	ColumnOrder []string

	// ManualTagPrefix marks tags the engine must never remove, even when the
	// derived labels no longer contain them.
	ManualTagPrefix string

	// Swimlane is assigned to newly created tasks.
	Swimlane string

	// Prune enables the destructive extras: closing tasks of terminal units
	// and marking stale sub-tasks done. Off by default.
	Prune bool
}

// Validate checks internal consistency: every record state must have a
// column (a closed or merged primary with no mapping would leave finished
// cards stranded), and every mapped column must appear in the configured
// forward ordering.
func (c Config) Validate() error {
	if err := validation.Validate(c.ColumnOrder, validation.Required); err != nil {
		return fmt.Errorf("column order: %w", err)
	}
	for _, state := range []model.RecordState{model.StateOpen, model.StateClosed, model.StateMerged} {
		if _, ok := c.StateColumns[state]; !ok {
			return fmt.Errorf("state columns: no column mapped for %s records", state)
		}
	}
	for state, col := range c.StateColumns {
		if rankIn(c.ColumnOrder, col) < 0 {
			return fmt.Errorf("state columns: %s maps to %q, not in column order", state, col)
		}
	}
	return nil
}

// Skip records a unit or operation excluded from the plan and why.
type Skip struct {
	Ref    string `json:"ref"`
	Reason string `json:"reason"`
}

// Plan is the engine's output: operations in dependency order plus the
// skipped items and warnings collected while diffing.
type Plan struct {
	Ops      []board.Operation `json:"ops"`
	Skipped  []Skip            `json:"skipped,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Empty reports whether the board is already converged.
func (p *Plan) Empty() bool { return len(p.Ops) == 0 }

// Engine computes plans. It holds no state between runs.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an engine after validating the policy.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("recon config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}, nil
}

// Plan diffs the units against the board snapshot. Units are processed in
// ascending ref order; within a unit, a CreateTask always precedes the
// operations that depend on the created identity.
func (e *Engine) Plan(units []*workunit.WorkUnit, state *board.State) (*Plan, error) {
	// The column map must agree with the live board before anything is
	// diffed. This is the startup-time configuration check: a silent
	// fallback here would scatter cards into the wrong columns.
	for recState, col := range e.cfg.StateColumns {
		if !state.HasColumn(col) {
			return nil, fmt.Errorf("state column for %s: board has no column %q", recState, col)
		}
	}

	ordered := make([]*workunit.WorkUnit, len(units))
	copy(ordered, units)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Ref().Before(ordered[j].Ref()) })

	plan := &Plan{}
	created := make(map[string]struct{})

	for _, unit := range ordered {
		ref := unit.Ref().String()
		if _, dup := created[ref]; dup {
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("duplicate unit %s ignored", ref))
			continue
		}
		created[ref] = struct{}{}

		task, matched := state.ByRef[ref]
		if !matched {
			e.planCreate(plan, unit, ref)
			continue
		}
		e.planUpdate(plan, unit, ref, task, state)
	}

	e.validateOps(plan, state)
	return plan, nil
}

func (e *Engine) planCreate(plan *Plan, unit *workunit.WorkUnit, ref string) {
	if unit.Primary.State != model.StateOpen {
		// Never resurrect a card for finished work; also keeps re-planning
		// after a prune close a no-op.
		plan.Skipped = append(plan.Skipped, Skip{Ref: ref, Reason: "primary not open, no card created"})
		return
	}
	plan.Ops = append(plan.Ops, board.Operation{
		Kind:     board.OpCreateTask,
		Ref:      ref,
		Title:    unit.Primary.Title,
		Column:   e.cfg.StateColumns[unit.Primary.State],
		Swimlane: e.cfg.Swimlane,
		Tags:     append([]string(nil), unit.Labels...),
	})
	for _, sec := range unit.Secondaries {
		plan.Ops = append(plan.Ops, board.Operation{
			Kind: board.OpUpsertSubtask,
			Ref:  ref,
			Subtask: &board.SubtaskSpec{
				Ref:   sec.Ref.String(),
				Title: subtaskTitle(sec),
			},
		})
	}
}

func (e *Engine) planUpdate(plan *Plan, unit *workunit.WorkUnit, ref string, task *board.Task, state *board.State) {
	if unit.Primary.Title != task.Title {
		plan.Ops = append(plan.Ops, board.Operation{
			Kind:   board.OpUpdateTaskFields,
			Ref:    ref,
			TaskID: task.ID,
			Title:  unit.Primary.Title,
		})
	}

	e.planMove(plan, unit, ref, task, state)

	if tags, changed := e.diffTags(unit, task); changed {
		plan.Ops = append(plan.Ops, board.Operation{
			Kind:   board.OpSetTags,
			Ref:    ref,
			TaskID: task.ID,
			Tags:   tags,
		})
	}

	e.planSubtasks(plan, unit, ref, task)

	if e.cfg.Prune && unit.Primary.State != model.StateOpen {
		plan.Ops = append(plan.Ops, board.Operation{
			Kind:   board.OpCloseTask,
			Ref:    ref,
			TaskID: task.ID,
		})
	}
}

// planMove applies the forward-only column transition policy.
func (e *Engine) planMove(plan *Plan, unit *workunit.WorkUnit, ref string, task *board.Task, state *board.State) {
	target := e.cfg.StateColumns[unit.Primary.State]
	if task.Column == target {
		return
	}
	curRank := rankIn(e.cfg.ColumnOrder, task.Column)
	targetRank := rankIn(e.cfg.ColumnOrder, target)
	if curRank < 0 {
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("task %s sits in unmanaged column %q, not moving", ref, task.Column))
		return
	}
	if curRank > targetRank {
		// A human already moved the card ahead; reconciliation never moves
		// it backward.
		e.logger.Debug("skipping backward move",
			slog.String("ref", ref),
			slog.String("column", task.Column),
			slog.String("derived", target))
		return
	}
	plan.Ops = append(plan.Ops, board.Operation{
		Kind:     board.OpMoveTask,
		Ref:      ref,
		TaskID:   task.ID,
		Column:   target,
		Position: len(state.Columns[target]) + 1,
	})
}

// diffTags returns the desired tag set: derived labels plus every current tag
// carrying the manual prefix. The bool reports whether it differs from the
// task's current tags.
func (e *Engine) diffTags(unit *workunit.WorkUnit, task *board.Task) ([]string, bool) {
	desired := make(map[string]struct{}, len(unit.Labels))
	for _, l := range unit.Labels {
		desired[l] = struct{}{}
	}
	for _, tag := range task.Tags {
		if e.cfg.ManualTagPrefix != "" && strings.HasPrefix(tag, e.cfg.ManualTagPrefix) {
			desired[tag] = struct{}{}
		}
	}

	if len(desired) == len(task.Tags) {
		same := true
		for _, tag := range task.Tags {
			if _, ok := desired[tag]; !ok {
				same = false
				break
			}
		}
		if same {
			return nil, false
		}
	}

	out := make([]string, 0, len(desired))
	for tag := range desired {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out, true
}

func (e *Engine) planSubtasks(plan *Plan, unit *workunit.WorkUnit, ref string, task *board.Task) {
	seen := make(map[string]struct{}, len(unit.Secondaries))
	for _, sec := range unit.Secondaries {
		secRef := sec.Ref.String()
		seen[secRef] = struct{}{}
		want := subtaskTitle(sec)
		existing := task.SubtaskByRef(secRef)
		if existing == nil {
			plan.Ops = append(plan.Ops, board.Operation{
				Kind:    board.OpUpsertSubtask,
				Ref:     ref,
				TaskID:  task.ID,
				Subtask: &board.SubtaskSpec{Ref: secRef, Title: want},
			})
			continue
		}
		if existing.Title != want {
			plan.Ops = append(plan.Ops, board.Operation{
				Kind:   board.OpUpsertSubtask,
				Ref:    ref,
				TaskID: task.ID,
				Subtask: &board.SubtaskSpec{
					ID:    existing.ID,
					Ref:   secRef,
					Title: want,
					Done:  existing.Done,
				},
			})
		}
	}

	if !e.cfg.Prune {
		return
	}
	// Prune mode: sub-tasks with no corresponding secondary are marked done,
	// never deleted.
	for _, st := range task.Subtasks {
		if st.Ref == "" || st.Done {
			continue
		}
		if _, ok := seen[st.Ref]; ok {
			continue
		}
		plan.Ops = append(plan.Ops, board.Operation{
			Kind:   board.OpUpsertSubtask,
			Ref:    ref,
			TaskID: task.ID,
			Subtask: &board.SubtaskSpec{
				ID:    st.ID,
				Ref:   st.Ref,
				Title: st.Title,
				Done:  true,
			},
		})
	}
}

// validateOps filters the plan down to operations that pass referential
// checks; the rest become skips with warnings.
func (e *Engine) validateOps(plan *Plan, state *board.State) {
	valid := plan.Ops[:0]
	for _, op := range plan.Ops {
		if err := op.Validate(state); err != nil {
			plan.Skipped = append(plan.Skipped, Skip{Ref: op.Ref, Reason: err.Error()})
			plan.Warnings = append(plan.Warnings, fmt.Sprintf("dropped %s: %v", op, err))
			continue
		}
		valid = append(valid, op)
	}
	plan.Ops = valid
}

// subtaskTitle embeds the secondary's canonical ref in the sub-task title so
// later runs can match it back.
func subtaskTitle(sec *model.Record) string {
	return fmt.Sprintf("%s %s", sec.Ref, sec.Title)
}

func rankIn(order []string, col string) int {
	for i, c := range order {
		if c == col {
			return i
		}
	}
	return -1
}
