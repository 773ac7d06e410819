package internal

import (
	"context"
	"time"

	"github.com/starford/workboard/internal/mcpserver"
)

// plannerAdapter exposes the runner through the MCP tool surface.
type plannerAdapter struct {
	runner *Runner
}

var _ mcpserver.Planner = (*plannerAdapter)(nil)

// rankingRow is the flattened ranking entry returned to MCP clients.
type rankingRow struct {
	Position    int    `json:"position"`
	Ref         string `json:"ref"`
	Title       string `json:"title"`
	LatencyDays int    `json:"latency_days"`
	Blockers    int    `json:"blockers"`
	ThreadDays  int    `json:"thread_age_days,omitempty"`
}

// PreviewPlan computes a fresh plan without applying it.
func (p *plannerAdapter) PreviewPlan(ctx context.Context) (any, error) {
	summary, err := p.runner.SyncOnce(ctx, true)
	if err != nil {
		return nil, err
	}
	return summary.Plan, nil
}

// ReviewRanking computes a fresh ranking.
func (p *plannerAdapter) ReviewRanking(ctx context.Context) (any, error) {
	items, err := p.runner.RankOnce(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	rows := make([]rankingRow, 0, len(items))
	for i, it := range items {
		row := rankingRow{
			Position:    i + 1,
			Ref:         it.Unit.Ref().String(),
			Title:       it.Unit.Primary.Title,
			LatencyDays: it.LatencyDays(now),
			Blockers:    it.Unit.UnresolvedBlockers,
		}
		if days, ok := it.ThreadAgeDays(now); ok {
			row.ThreadDays = days
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RunHistory reads recent runs from the audit log.
func (p *plannerAdapter) RunHistory(limit int) (any, error) {
	return p.runner.Runs(limit)
}

// RunOperations reads one run's operations from the audit log.
func (p *plannerAdapter) RunOperations(runID int64) (any, error) {
	return p.runner.RunOperations(runID)
}
