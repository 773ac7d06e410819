// Package rank orders the work units awaiting review by a deterministic
// multi-factor comparison. The ranker is pure: the same unit set and the same
// "now" always produce the same order, regardless of input order.
package rank

import (
	"sort"
	"time"

	"github.com/starford/workboard/internal/board"
	"github.com/starford/workboard/internal/workunit"
)

// Config selects and adjusts the ranked subset.
type Config struct {
	// ReviewColumn filters to tasks sitting in this column.
	ReviewColumn string

	// Swimlane additionally filters by swimlane when non-empty.
	Swimlane string

	// Offsets are per-unit corrective latency offsets in days, keyed by
	// canonical ref. Additive, may be negative.
	Offsets map[string]int
}

// Item is one ranked entry: a unit joined with the board-side timing data
// that drives its latency.
type Item struct {
	Unit      *workunit.WorkUnit
	TaskID    int
	Column    string
	MovedAt   time.Time
	StartedAt time.Time
	Offset    int

	// OldestThread is the creation time of the oldest unresolved discussion
	// thread on the unit, zero when there is none.
	OldestThread time.Time
}

// LatencyDays is the age in days of the last board-state change, plus the
// corrective offset.
func (it Item) LatencyDays(now time.Time) int {
	pending := it.MovedAt
	if it.StartedAt.After(pending) {
		pending = it.StartedAt
	}
	if pending.IsZero() {
		pending = it.Unit.Primary.CreatedAt
	}
	return int(now.Sub(pending).Hours()/24) + it.Offset
}

// ThreadAgeDays returns the age of the oldest unresolved thread and whether
// one exists.
func (it Item) ThreadAgeDays(now time.Time) (int, bool) {
	if it.OldestThread.IsZero() {
		return 0, false
	}
	return int(now.Sub(it.OldestThread).Hours() / 24), true
}

// Collect joins units with their board tasks and filters to the review
// subset. threads maps canonical refs to the oldest unresolved discussion
// thread creation time, when known.
func Collect(cfg Config, units []*workunit.WorkUnit, state *board.State, threads map[string]time.Time) []Item {
	var items []Item
	for _, u := range units {
		task, ok := state.ByRef[u.Ref().String()]
		if !ok {
			continue
		}
		if task.Column != cfg.ReviewColumn {
			continue
		}
		if cfg.Swimlane != "" && task.Swimlane != cfg.Swimlane {
			continue
		}
		items = append(items, Item{
			Unit:         u,
			TaskID:       task.ID,
			Column:       task.Column,
			MovedAt:      task.MovedAt,
			StartedAt:    task.StartedAt,
			Offset:       cfg.Offsets[u.Ref().String()],
			OldestThread: threads[u.Ref().String()],
		})
	}
	return items
}

// Rank returns the items in priority order without mutating the input. The
// comparator chain, each level a tie-break for the previous:
//
//  1. ascending latency (offset applied)
//  2. descending unresolved blocking links
//  3. ascending oldest-unresolved-thread age, items without a thread last
//  4. ascending numeric ref, guaranteeing a total order
func Rank(items []Item, now time.Time) []Item {
	out := make([]Item, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]

		la, lb := a.LatencyDays(now), b.LatencyDays(now)
		if la != lb {
			return la < lb
		}

		if a.Unit.UnresolvedBlockers != b.Unit.UnresolvedBlockers {
			return a.Unit.UnresolvedBlockers > b.Unit.UnresolvedBlockers
		}

		ta, okA := a.ThreadAgeDays(now)
		tb, okB := b.ThreadAgeDays(now)
		if okA != okB {
			return okA // known thread sorts ahead of unknown
		}
		if okA && ta != tb {
			return ta < tb
		}

		return a.Unit.Ref().Before(b.Unit.Ref())
	})
	return out
}
