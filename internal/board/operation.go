package board

import (
	"fmt"

	"github.com/starford/workboard/internal/apperr"
)

// OpKind tags an Operation variant.
type OpKind string

const (
	OpCreateTask       OpKind = "create_task"
	OpUpdateTaskFields OpKind = "update_task_fields"
	OpMoveTask         OpKind = "move_task"
	OpSetTags          OpKind = "set_tags"
	OpUpsertSubtask    OpKind = "upsert_subtask"
	OpCloseTask        OpKind = "close_task"
)

// SubtaskSpec is the payload of an upsert_subtask operation.
type SubtaskSpec struct {
	ID    int    `json:"id,omitempty"` // 0 creates, non-zero updates
	Ref   string `json:"ref"`
	Title string `json:"title"`
	Done  bool   `json:"done,omitempty"`
}

// Operation is one atomic board mutation. Operations are plain data: they are
// computed, validated, logged, and only then applied by the board
// collaborator, exactly once each, in plan order.
//
// TaskID is zero for operations targeting a task created earlier in the same
// plan; the applier resolves Ref to the identity the board assigned.
type Operation struct {
	Kind OpKind `json:"kind"`

	// Ref is the canonical record ref of the unit primary the operation
	// belongs to. Always set; doubles as the resolution key for TaskID == 0.
	Ref string `json:"ref"`

	TaskID   int          `json:"task_id,omitempty"`
	Title    string       `json:"title,omitempty"`
	Column   string       `json:"column,omitempty"`
	Position int          `json:"position,omitempty"`
	Swimlane string       `json:"swimlane,omitempty"`
	Tags     []string     `json:"tags,omitempty"`
	Subtask  *SubtaskSpec `json:"subtask,omitempty"`
}

// String renders a short audit-friendly description.
func (o Operation) String() string {
	switch o.Kind {
	case OpCreateTask:
		return fmt.Sprintf("create_task %s in %q", o.Ref, o.Column)
	case OpMoveTask:
		return fmt.Sprintf("move_task %s to %q", o.Ref, o.Column)
	case OpUpsertSubtask:
		return fmt.Sprintf("upsert_subtask %s under %s", o.Subtask.Ref, o.Ref)
	default:
		return fmt.Sprintf("%s %s", o.Kind, o.Ref)
	}
}

// Validate checks referential consistency against the board snapshot before
// the operation is allowed into a plan.
func (o Operation) Validate(s *State) error {
	if o.Ref == "" {
		return &apperr.ValidationError{Subject: string(o.Kind), Reason: "missing record ref"}
	}
	switch o.Kind {
	case OpCreateTask:
		if o.Title == "" {
			return &apperr.ValidationError{Subject: o.Ref, Reason: "create without title"}
		}
		if !s.HasColumn(o.Column) {
			return &apperr.ValidationError{Subject: o.Ref, Reason: fmt.Sprintf("unknown column %q", o.Column)}
		}
	case OpMoveTask:
		if !s.HasColumn(o.Column) {
			return &apperr.ValidationError{Subject: o.Ref, Reason: fmt.Sprintf("unknown column %q", o.Column)}
		}
		if o.TaskID == 0 {
			return &apperr.ValidationError{Subject: o.Ref, Reason: "move without task id"}
		}
	case OpUpsertSubtask:
		if o.Subtask == nil || o.Subtask.Title == "" {
			return &apperr.ValidationError{Subject: o.Ref, Reason: "subtask without payload"}
		}
	case OpUpdateTaskFields:
		if o.TaskID == 0 {
			return &apperr.ValidationError{Subject: o.Ref, Reason: "update without task id"}
		}
	case OpSetTags:
		if o.TaskID == 0 {
			return &apperr.ValidationError{Subject: o.Ref, Reason: "set_tags without task id"}
		}
	case OpCloseTask:
		if o.TaskID == 0 {
			return &apperr.ValidationError{Subject: o.Ref, Reason: "close without task id"}
		}
	default:
		return &apperr.ValidationError{Subject: o.Ref, Reason: fmt.Sprintf("unknown operation kind %q", o.Kind)}
	}
	return nil
}
