package boardapi

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/workboard/internal/board"
)

// OpResult is the per-operation outcome reported back to the caller. A failed
// operation is simply re-emitted by the next reconciliation run; nothing here
// is retried in place.
type OpResult struct {
	Op     board.Operation `json:"op"`
	TaskID int             `json:"task_id,omitempty"`
	Err    error           `json:"-"`
}

// Apply executes the operations strictly in plan order against one board
// project. Operations are not commutative: a create must be acknowledged, and
// its assigned id known, before the operations depending on it run, so the
// whole sequence is serialized. A failed operation is recorded and skipped
// past; dependent operations that cannot resolve their task fail the same
// way and converge on the next run.
func (c *Client) Apply(ctx context.Context, projectID int, ops []board.Operation) []OpResult {
	results := make([]OpResult, 0, len(ops))
	created := make(map[string]int)

	for _, op := range ops {
		if err := ctx.Err(); err != nil {
			// Cancelled: abandon the rest. Already-applied operations stay
			// valid; the next run re-diffs.
			results = append(results, OpResult{Op: op, Err: err})
			continue
		}
		taskID, err := c.applyOne(ctx, projectID, op, created)
		if err != nil {
			c.logger.Warn("board operation failed",
				slog.String("op", op.String()),
				slog.String("error", err.Error()))
		}
		results = append(results, OpResult{Op: op, TaskID: taskID, Err: err})
	}
	return results
}

func (c *Client) applyOne(ctx context.Context, projectID int, op board.Operation, created map[string]int) (int, error) {
	switch op.Kind {
	case board.OpCreateTask:
		colID, ok := c.columns[op.Column]
		if !ok {
			return 0, fmt.Errorf("unknown column %q", op.Column)
		}
		params := map[string]any{
			"project_id": projectID,
			"title":      op.Title,
			"column_id":  colID,
			"reference":  op.Ref,
			"tags":       op.Tags,
		}
		if laneID, ok := c.swimlanes[op.Swimlane]; ok && op.Swimlane != "" {
			params["swimlane_id"] = laneID
		}
		var id flexInt
		if err := c.call(ctx, "createTask", params, &id); err != nil {
			return 0, err
		}
		if id == 0 {
			return 0, fmt.Errorf("createTask %s: board rejected the task", op.Ref)
		}
		created[op.Ref] = int(id)
		return int(id), nil

	case board.OpUpdateTaskFields:
		taskID, err := resolveTaskID(op, created)
		if err != nil {
			return 0, err
		}
		var ok bool
		if err := c.call(ctx, "updateTask", map[string]any{"id": taskID, "title": op.Title}, &ok); err != nil {
			return taskID, err
		}
		if !ok {
			return taskID, fmt.Errorf("updateTask %d: board rejected the update", taskID)
		}
		return taskID, nil

	case board.OpMoveTask:
		taskID, err := resolveTaskID(op, created)
		if err != nil {
			return 0, err
		}
		colID, okCol := c.columns[op.Column]
		if !okCol {
			return taskID, fmt.Errorf("unknown column %q", op.Column)
		}
		params := map[string]any{
			"project_id": projectID,
			"task_id":    taskID,
			"column_id":  colID,
			"position":   op.Position,
		}
		if laneID, ok := c.swimlanes[op.Swimlane]; ok && op.Swimlane != "" {
			params["swimlane_id"] = laneID
		}
		var ok bool
		if err := c.call(ctx, "moveTaskPosition", params, &ok); err != nil {
			return taskID, err
		}
		if !ok {
			return taskID, fmt.Errorf("moveTaskPosition %d: board rejected the move", taskID)
		}
		return taskID, nil

	case board.OpSetTags:
		taskID, err := resolveTaskID(op, created)
		if err != nil {
			return 0, err
		}
		var ok bool
		if err := c.call(ctx, "setTaskTags", map[string]any{
			"project_id": projectID,
			"task_id":    taskID,
			"tags":       op.Tags,
		}, &ok); err != nil {
			return taskID, err
		}
		return taskID, nil

	case board.OpUpsertSubtask:
		taskID, err := resolveTaskID(op, created)
		if err != nil {
			return 0, err
		}
		if op.Subtask.ID != 0 {
			status := 0
			if op.Subtask.Done {
				status = 2
			}
			var ok bool
			err = c.call(ctx, "updateSubtask", map[string]any{
				"id":      op.Subtask.ID,
				"task_id": taskID,
				"title":   op.Subtask.Title,
				"status":  status,
			}, &ok)
			return taskID, err
		}
		var id flexInt
		if err := c.call(ctx, "createSubtask", map[string]any{
			"task_id": taskID,
			"title":   op.Subtask.Title,
		}, &id); err != nil {
			return taskID, err
		}
		if id == 0 {
			return taskID, fmt.Errorf("createSubtask under task %d: board rejected it", taskID)
		}
		return taskID, nil

	case board.OpCloseTask:
		taskID, err := resolveTaskID(op, created)
		if err != nil {
			return 0, err
		}
		var ok bool
		if err := c.call(ctx, "closeTask", map[string]any{"task_id": taskID}, &ok); err != nil {
			return taskID, err
		}
		return taskID, nil
	}
	return 0, fmt.Errorf("unknown operation kind %q", op.Kind)
}

// resolveTaskID returns the board id the operation targets: its own, or the
// one assigned to a task created earlier in this plan.
func resolveTaskID(op board.Operation, created map[string]int) (int, error) {
	if op.TaskID != 0 {
		return op.TaskID, nil
	}
	if id, ok := created[op.Ref]; ok {
		return id, nil
	}
	return 0, fmt.Errorf("no task id for %s: creation did not succeed this run", op.Ref)
}
