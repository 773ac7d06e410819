package api

import (
	"time"

	"github.com/starford/workboard/internal/audit"
	"github.com/starford/workboard/internal/rank"
	"github.com/starford/workboard/internal/recon"
)

// Provider supplies the read-only data the API serves: the latest computed
// ranking and plan plus the audit history. The runner implements it.
type Provider interface {
	LatestRanking() ([]rank.Item, time.Time)
	LatestPlan() (*recon.Plan, time.Time)
	Runs(limit int) ([]audit.Run, error)
	RunOperations(runID int64) ([]audit.OpRecord, error)
}

// RankingEntry is one row of the ranking response.
type RankingEntry struct {
	Position    int    `json:"position"`
	Ref         string `json:"ref"`
	Title       string `json:"title"`
	LatencyDays int    `json:"latency_days"`
	Blockers    int    `json:"blockers"`
	ThreadDays  *int   `json:"thread_age_days,omitempty"`
}

// RankingResponse is the GET /ranking payload.
type RankingResponse struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Entries     []RankingEntry `json:"entries"`
}

func buildRanking(items []rank.Item, at time.Time) RankingResponse {
	resp := RankingResponse{GeneratedAt: at, Entries: make([]RankingEntry, 0, len(items))}
	for i, it := range items {
		entry := RankingEntry{
			Position:    i + 1,
			Ref:         it.Unit.Ref().String(),
			Title:       it.Unit.Primary.Title,
			LatencyDays: it.LatencyDays(at),
			Blockers:    it.Unit.UnresolvedBlockers,
		}
		if days, ok := it.ThreadAgeDays(at); ok {
			entry.ThreadDays = &days
		}
		resp.Entries = append(resp.Entries, entry)
	}
	return resp
}
