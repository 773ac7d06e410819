// Package board holds the typed snapshot of the persisted Kanban board and
// the operation variants the reconciliation engine emits against it. The
// board service owns the data; this package only normalizes read snapshots
// and describes write intents.
package board

import (
	"time"

	"github.com/starford/workboard/internal/model"
)

// Subtask is one sub-item of a task. Ref carries the canonical record ref of
// the secondary it mirrors, when known.
type Subtask struct {
	ID    int
	Title string
	Ref   string
	Done  bool
}

// Task is one card on the board, read-only for the engine.
type Task struct {
	ID       int
	Title    string
	Column   string
	Swimlane string
	Tags     []string
	Subtasks []Subtask

	// ExternalRef links the task back to a record identity. Expected to be a
	// canonical record ref; malformed values flag the task unmatched.
	ExternalRef string

	CreatedAt time.Time
	StartedAt time.Time
	MovedAt   time.Time
}

// HasTag reports whether the task carries the given tag.
func (t *Task) HasTag(tag string) bool {
	for _, x := range t.Tags {
		if x == tag {
			return true
		}
	}
	return false
}

// SubtaskByRef returns the sub-task mirroring ref, or nil.
func (t *Task) SubtaskByRef(ref string) *Subtask {
	for i := range t.Subtasks {
		if t.Subtasks[i].Ref == ref {
			return &t.Subtasks[i]
		}
	}
	return nil
}

// State is the normalized board snapshot for one run.
type State struct {
	ProjectID int

	// ColumnOrder is the board's columns left to right.
	ColumnOrder []string

	// ByRef indexes matched tasks by their external record ref.
	ByRef map[string]*Task

	// Columns maps column name to its tasks in board order.
	Columns map[string][]*Task

	// Unmatched are tasks whose external ref is empty or malformed. They are
	// kept and flagged, never deleted: removing a board task is always an
	// explicit human decision.
	Unmatched []*Task
}

// NewState normalizes a raw snapshot. Tasks with well-formed external refs
// are indexed; the rest land in Unmatched.
func NewState(projectID int, columnOrder []string, tasks []*Task) *State {
	s := &State{
		ProjectID:   projectID,
		ColumnOrder: columnOrder,
		ByRef:       make(map[string]*Task, len(tasks)),
		Columns:     make(map[string][]*Task, len(columnOrder)),
	}
	for _, col := range columnOrder {
		s.Columns[col] = nil
	}
	for _, t := range tasks {
		s.Columns[t.Column] = append(s.Columns[t.Column], t)
		if t.ExternalRef == "" {
			s.Unmatched = append(s.Unmatched, t)
			continue
		}
		if _, err := model.ParseRef(t.ExternalRef); err != nil {
			s.Unmatched = append(s.Unmatched, t)
			continue
		}
		s.ByRef[t.ExternalRef] = t
	}
	return s
}

// HasColumn reports whether the board has a column with the given name.
func (s *State) HasColumn(name string) bool {
	for _, c := range s.ColumnOrder {
		if c == name {
			return true
		}
	}
	return false
}

// ColumnRank returns the position of a column in board order, or -1 when the
// column is unknown.
func (s *State) ColumnRank(name string) int {
	for i, c := range s.ColumnOrder {
		if c == name {
			return i
		}
	}
	return -1
}
