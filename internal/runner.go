package internal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/workboard/internal/api"
	"github.com/starford/workboard/internal/audit"
	"github.com/starford/workboard/internal/board"
	"github.com/starford/workboard/internal/boardapi"
	"github.com/starford/workboard/internal/model"
	"github.com/starford/workboard/internal/rank"
	"github.com/starford/workboard/internal/recon"
	"github.com/starford/workboard/internal/sse"
	"github.com/starford/workboard/internal/tracker"
	"github.com/starford/workboard/internal/workunit"
)

// trackerClient is the tracker surface the runner needs.
type trackerClient interface {
	FetchAll(ctx context.Context, projects []string) ([]*model.Record, []model.Link, error)
	OldestUnresolvedThread(ctx context.Context, ref model.RecordRef) (time.Time, error)
}

// boardClient is the board surface the runner needs.
type boardClient interface {
	Snapshot(ctx context.Context, projectID int) (*board.State, error)
	Apply(ctx context.Context, projectID int, ops []board.Operation) []boardapi.OpResult
}

// Verify the concrete clients satisfy the runner's interfaces, and the
// runner the API's.
var (
	_ trackerClient = (*tracker.Client)(nil)
	_ boardClient   = (*boardapi.Client)(nil)
	_ api.Provider  = (*Runner)(nil)
)

// RunSummary is the outcome of one reconciliation pass.
type RunSummary struct {
	RunID   int64       `json:"run_id"`
	DryRun  bool        `json:"dry_run"`
	Planned int         `json:"planned"`
	Applied int         `json:"applied"`
	Failed  int         `json:"failed"`
	Plan    *recon.Plan `json:"plan"`
}

// Runner wires the collaborators into one reconciliation pass and keeps the
// latest plan and ranking for the read surfaces (API, MCP). Safe for
// concurrent use; passes themselves are serialized by the scheduler.
type Runner struct {
	cfg     *Config
	logger  *slog.Logger
	tracker trackerClient
	board   boardClient
	engine  *recon.Engine
	auditDB audit.Log
	broker  *sse.Broker // optional

	mu         sync.RWMutex
	offsets    map[string]int
	latestPlan *recon.Plan
	planAt     time.Time
	latestRank []rank.Item
	rankAt     time.Time
}

// NewRunner builds a runner from validated configuration.
func NewRunner(cfg *Config, logger *slog.Logger, tc trackerClient, bc boardClient, log audit.Log, broker *sse.Broker) (*Runner, error) {
	engine, err := recon.New(recon.Config{
		StateColumns:    cfg.Sync.StateColumnMap(),
		ColumnOrder:     cfg.Sync.ColumnOrder,
		ManualTagPrefix: cfg.Sync.ManualTagPrefix,
		Swimlane:        cfg.Sync.Swimlane,
		Prune:           cfg.Sync.Prune,
	}, logger)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		logger:  logger,
		tracker: tc,
		board:   bc,
		engine:  engine,
		auditDB: log,
		broker:  broker,
		offsets: cfg.Rank.Offsets,
	}, nil
}

// SetOffsets swaps the per-unit ranking offsets, used by the serve-mode
// config reload.
func (r *Runner) SetOffsets(offsets map[string]int) {
	r.mu.Lock()
	r.offsets = offsets
	r.mu.Unlock()
}

// SyncOnce performs one full reconciliation pass: fetch, build, plan, and
// (unless dryRun) apply. The ranking is refreshed from the same fetch.
func (r *Runner) SyncOnce(ctx context.Context, dryRun bool) (*RunSummary, error) {
	records, links, err := r.tracker.FetchAll(ctx, r.cfg.Tracker.Projects)
	if err != nil {
		return nil, fmt.Errorf("fetch tracker data: %w", err)
	}

	buildCfg := workunit.Config{MaxDepth: r.cfg.Sync.MaxDepth}
	result := workunit.Build(buildCfg, records, links)
	for _, w := range result.Warnings {
		r.logger.Warn("ambiguous unit membership", slog.String("detail", w.String()))
	}
	for _, f := range result.Failures {
		r.logger.Error("unit build failed",
			slog.String("root", f.Root.String()),
			slog.String("error", f.Err.Error()))
	}

	state, err := r.board.Snapshot(ctx, r.cfg.Board.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("board snapshot: %w", err)
	}

	plan, err := r.engine.Plan(result.Units, state)
	if err != nil {
		return nil, fmt.Errorf("plan: %w", err)
	}
	for _, w := range plan.Warnings {
		r.logger.Warn("plan warning", slog.String("detail", w))
	}

	runID, err := r.auditDB.BeginRun(r.cfg.Board.ProjectID, dryRun)
	if err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	r.publish(sse.Event{Type: "run.started", Data: map[string]any{"run_id": runID, "dry_run": dryRun}})

	summary := &RunSummary{RunID: runID, DryRun: dryRun, Planned: len(plan.Ops), Plan: plan}

	if !dryRun {
		results := r.board.Apply(ctx, r.cfg.Board.ProjectID, plan.Ops)
		for seq, res := range results {
			rec := audit.OpRecord{
				RunID:  runID,
				Seq:    seq,
				Kind:   string(res.Op.Kind),
				Ref:    res.Op.Ref,
				TaskID: res.TaskID,
				Detail: res.Op.String(),
			}
			if res.Err != nil {
				rec.Error = res.Err.Error()
				summary.Failed++
				r.publishOp("failed", res.Op.Ref)
			} else {
				summary.Applied++
				r.publishOp("applied", res.Op.Ref)
			}
			if err := r.auditDB.LogOperation(rec); err != nil {
				r.logger.Error("audit write failed", slog.String("error", err.Error()))
			}
		}
	}

	if err := r.auditDB.FinishRun(runID, summary.Planned, summary.Applied, summary.Failed, nil); err != nil {
		r.logger.Error("audit finish failed", slog.String("error", err.Error()))
	}
	r.publish(sse.Event{Type: "run.completed", Data: summary})

	// Refresh the read surfaces. The ranking reuses this pass's fetch; thread
	// lookups only hit the tracker for units actually in the review column.
	items := r.collectRanking(ctx, result.Units, state)
	now := time.Now().UTC()

	r.mu.Lock()
	r.latestPlan = plan
	r.planAt = now
	r.latestRank = items
	r.rankAt = now
	r.mu.Unlock()

	r.logger.Info("reconciliation pass complete",
		slog.Int64("run_id", runID),
		slog.Bool("dry_run", dryRun),
		slog.Int("units", len(result.Units)),
		slog.Int("planned", summary.Planned),
		slog.Int("applied", summary.Applied),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

// RankOnce fetches fresh data and returns the current review ranking.
func (r *Runner) RankOnce(ctx context.Context) ([]rank.Item, error) {
	records, links, err := r.tracker.FetchAll(ctx, r.cfg.Tracker.Projects)
	if err != nil {
		return nil, fmt.Errorf("fetch tracker data: %w", err)
	}
	result := workunit.Build(workunit.Config{MaxDepth: r.cfg.Sync.MaxDepth}, records, links)

	state, err := r.board.Snapshot(ctx, r.cfg.Board.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("board snapshot: %w", err)
	}

	items := r.collectRanking(ctx, result.Units, state)

	r.mu.Lock()
	r.latestRank = items
	r.rankAt = time.Now().UTC()
	r.mu.Unlock()
	return items, nil
}

// collectRanking joins units with board timing, fetches unresolved-thread
// ages for the review subset, and ranks.
func (r *Runner) collectRanking(ctx context.Context, units []*workunit.WorkUnit, state *board.State) []rank.Item {
	r.mu.RLock()
	offsets := r.offsets
	r.mu.RUnlock()

	rankCfg := rank.Config{
		ReviewColumn: r.cfg.Rank.ReviewColumn,
		Swimlane:     r.cfg.Rank.Swimlane,
		Offsets:      offsets,
	}

	// One discussion lookup per review-column unit. A failed lookup only
	// costs that unit its thread tie-break.
	threads := make(map[string]time.Time)
	for _, u := range units {
		task, ok := state.ByRef[u.Ref().String()]
		if !ok || task.Column != rankCfg.ReviewColumn {
			continue
		}
		oldest, err := r.tracker.OldestUnresolvedThread(ctx, u.Ref())
		if err != nil {
			r.logger.Warn("thread lookup failed",
				slog.String("ref", u.Ref().String()),
				slog.String("error", err.Error()))
			continue
		}
		if !oldest.IsZero() {
			threads[u.Ref().String()] = oldest
		}
	}

	return rank.Rank(rank.Collect(rankCfg, units, state, threads), time.Now().UTC())
}

// LatestRanking returns the most recently computed ranking.
func (r *Runner) LatestRanking() ([]rank.Item, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestRank, r.rankAt
}

// LatestPlan returns the most recently computed plan.
func (r *Runner) LatestPlan() (*recon.Plan, time.Time) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latestPlan, r.planAt
}

// Runs returns recent reconciliation runs from the audit log.
func (r *Runner) Runs(limit int) ([]audit.Run, error) {
	return r.auditDB.RecentRuns(limit)
}

// RunOperations returns the operations of one audited run.
func (r *Runner) RunOperations(runID int64) ([]audit.OpRecord, error) {
	return r.auditDB.RunOperations(runID)
}

func (r *Runner) publish(ev sse.Event) {
	if r.broker != nil {
		r.broker.Publish(ev)
	}
}

func (r *Runner) publishOp(kind, ref string) {
	if r.broker != nil {
		r.broker.PublishOpEvent(kind, ref)
	}
}
