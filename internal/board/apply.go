package board

import (
	"fmt"
	"time"
)

// Apply mutates an in-memory snapshot the way the board service would apply
// the operation. It backs dry-run previews and convergence tests; the real
// applier lives in the board collaborator.
//
// nextID assigns identities to created tasks and sub-tasks, standing in for
// the board service's id allocation.
func Apply(s *State, op Operation, nextID func() int) error {
	switch op.Kind {
	case OpCreateTask:
		if _, exists := s.ByRef[op.Ref]; exists {
			return fmt.Errorf("apply %s: task already exists", op)
		}
		t := &Task{
			ID:          nextID(),
			Title:       op.Title,
			Column:      op.Column,
			Swimlane:    op.Swimlane,
			Tags:        append([]string(nil), op.Tags...),
			ExternalRef: op.Ref,
			CreatedAt:   time.Now(),
		}
		s.Columns[t.Column] = append(s.Columns[t.Column], t)
		s.ByRef[op.Ref] = t
		return nil

	case OpUpdateTaskFields:
		t, err := resolve(s, op)
		if err != nil {
			return err
		}
		if op.Title != "" {
			t.Title = op.Title
		}
		return nil

	case OpMoveTask:
		t, err := resolve(s, op)
		if err != nil {
			return err
		}
		removeFromColumn(s, t)
		t.Column = op.Column
		t.MovedAt = time.Now()
		s.Columns[op.Column] = insertAt(s.Columns[op.Column], t, op.Position)
		return nil

	case OpSetTags:
		t, err := resolve(s, op)
		if err != nil {
			return err
		}
		t.Tags = append([]string(nil), op.Tags...)
		return nil

	case OpUpsertSubtask:
		t, err := resolve(s, op)
		if err != nil {
			return err
		}
		if existing := t.SubtaskByRef(op.Subtask.Ref); existing != nil {
			existing.Title = op.Subtask.Title
			existing.Done = op.Subtask.Done
			return nil
		}
		t.Subtasks = append(t.Subtasks, Subtask{
			ID:    nextID(),
			Title: op.Subtask.Title,
			Ref:   op.Subtask.Ref,
			Done:  op.Subtask.Done,
		})
		return nil

	case OpCloseTask:
		t, err := resolve(s, op)
		if err != nil {
			return err
		}
		// Closed tasks drop out of the active snapshot.
		removeFromColumn(s, t)
		delete(s.ByRef, t.ExternalRef)
		return nil
	}
	return fmt.Errorf("apply: unknown operation kind %q", op.Kind)
}

func resolve(s *State, op Operation) (*Task, error) {
	if op.TaskID != 0 {
		for _, tasks := range s.Columns {
			for _, t := range tasks {
				if t.ID == op.TaskID {
					return t, nil
				}
			}
		}
		return nil, fmt.Errorf("apply %s: no task with id %d", op, op.TaskID)
	}
	if t, ok := s.ByRef[op.Ref]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("apply %s: no task for ref", op)
}

func removeFromColumn(s *State, t *Task) {
	tasks := s.Columns[t.Column]
	for i, x := range tasks {
		if x == t {
			s.Columns[t.Column] = append(tasks[:i], tasks[i+1:]...)
			return
		}
	}
}

// insertAt places t at the 1-based position, clamping to the list bounds.
func insertAt(tasks []*Task, t *Task, pos int) []*Task {
	if pos <= 0 || pos > len(tasks) {
		return append(tasks, t)
	}
	tasks = append(tasks, nil)
	copy(tasks[pos:], tasks[pos-1:])
	tasks[pos-1] = t
	return tasks
}
