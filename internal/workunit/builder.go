package workunit

import (
	"fmt"
	"sort"

	"github.com/starford/workboard/internal/apperr"
	"github.com/starford/workboard/internal/model"
)

// DefaultMaxDepth bounds the grouping traversal when the config does not.
const DefaultMaxDepth = 5

// Config controls unit construction.
type Config struct {
	// MaxDepth bounds the breadth-first traversal from each root. A unit whose
	// traversal exceeds the bound fails; other units are unaffected.
	MaxDepth int

	// PrimaryEligible decides which records may root a unit. Defaults to
	// issue-kind records.
	PrimaryEligible func(*model.Record) bool
}

func (c Config) withDefaults() Config {
	if c.MaxDepth <= 0 {
		c.MaxDepth = DefaultMaxDepth
	}
	if c.PrimaryEligible == nil {
		c.PrimaryEligible = func(r *model.Record) bool { return r.Ref.Kind == model.KindIssue }
	}
	return c
}

// Warning reports an ambiguous-membership resolution: Record was requested by
// both Winner and Loser roots and went to Winner (first claim, ascending id).
type Warning struct {
	Record model.RecordRef
	Winner model.RecordRef
	Loser  model.RecordRef
}

func (w Warning) String() string {
	return fmt.Sprintf("record %s claimed by unit %s, also requested by unit %s",
		w.Record, w.Winner, w.Loser)
}

// Failure is a per-unit build error. The rest of the run proceeds.
type Failure struct {
	Root model.RecordRef
	Err  error
}

// Result is the outcome of a build: successful units plus the warnings and
// scoped failures accumulated along the way.
type Result struct {
	Units    []*WorkUnit
	Warnings []Warning
	Failures []Failure
}

// Unit returns the unit rooted at ref, or nil.
func (r *Result) Unit(ref model.RecordRef) *WorkUnit {
	for _, u := range r.Units {
		if u.Ref() == ref {
			return u
		}
	}
	return nil
}

// Build partitions records into work units using the grouping links
// (part-of, relates-to). Roots are processed in ascending ref order so
// contested secondaries deterministically go to the root with the smallest
// numeric id. Blocking links never group; they only feed the unresolved
// blocker count.
func Build(cfg Config, records []*model.Record, links []model.Link) *Result {
	cfg = cfg.withDefaults()
	res := &Result{}

	byRef := make(map[model.RecordRef]*model.Record, len(records))
	for _, r := range records {
		byRef[r.Ref] = r
	}

	// Grouping adjacency, undirected, in link input order so discovery order
	// is stable for a given fetch.
	adj := make(map[model.RecordRef][]model.RecordRef)
	for _, l := range links {
		if !l.Kind.Grouping() {
			continue
		}
		adj[l.From] = append(adj[l.From], l.To)
		adj[l.To] = append(adj[l.To], l.From)
	}

	cyclic := primaryPartOfCycles(cfg, byRef, links)

	var roots []*model.Record
	for _, r := range records {
		if cfg.PrimaryEligible(r) {
			roots = append(roots, r)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].Ref.Before(roots[j].Ref) })

	claimed := make(map[model.RecordRef]model.RecordRef)

	for _, root := range roots {
		if _, bad := cyclic[root.Ref]; bad {
			res.Failures = append(res.Failures, Failure{
				Root: root.Ref,
				Err:  &apperr.BuildError{Root: root.Ref.String(), Reason: "part-of cycle among unit primaries"},
			})
			continue
		}

		unit, claims, warns, err := traverse(cfg, root, byRef, adj, claimed)
		res.Warnings = append(res.Warnings, warns...)
		if err != nil {
			// Claims made during a failed traversal are released so the
			// records can still surface as orphans or in later units.
			res.Failures = append(res.Failures, Failure{Root: root.Ref, Err: err})
			continue
		}
		for _, ref := range claims {
			claimed[ref] = root.Ref
		}
		res.Units = append(res.Units, unit)
	}

	// Orphans: non-eligible records nobody claimed become synthetic units so
	// nothing is silently dropped.
	var orphans []*model.Record
	for _, r := range records {
		if cfg.PrimaryEligible(r) {
			continue
		}
		if _, ok := claimed[r.Ref]; ok {
			continue
		}
		orphans = append(orphans, r)
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i].Ref.Before(orphans[j].Ref) })
	for _, r := range orphans {
		res.Units = append(res.Units, &WorkUnit{
			Primary:   r,
			Labels:    unionLabels([]*model.Record{r}),
			Synthetic: true,
		})
	}

	countBlockers(res.Units, byRef, links)
	return res
}

// traverse runs the bounded BFS for one root. It returns the unit, the refs
// it wants to claim, and any ambiguous-membership warnings. Claims are only
// committed by the caller when the whole traversal succeeds.
func traverse(
	cfg Config,
	root *model.Record,
	byRef map[model.RecordRef]*model.Record,
	adj map[model.RecordRef][]model.RecordRef,
	claimed map[model.RecordRef]model.RecordRef,
) (*WorkUnit, []model.RecordRef, []Warning, error) {
	unit := &WorkUnit{Primary: root}
	var claims []model.RecordRef
	var warns []Warning

	type visit struct {
		ref   model.RecordRef
		depth int
	}
	visited := map[model.RecordRef]struct{}{root.Ref: {}}
	queue := []visit{{ref: root.Ref, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, next := range adj[cur.ref] {
			if _, ok := visited[next]; ok {
				continue
			}
			rec, known := byRef[next]
			if !known {
				// Link into a project we did not fetch; not groupable.
				continue
			}
			if cfg.PrimaryEligible(rec) {
				// Another unit's root; part-of between primaries is unit
				// hierarchy, not membership.
				continue
			}
			if winner, taken := claimed[next]; taken {
				warns = append(warns, Warning{Record: next, Winner: winner, Loser: root.Ref})
				continue
			}
			if cur.depth+1 > cfg.MaxDepth {
				return nil, nil, warns, &apperr.BuildError{
					Root:   root.Ref.String(),
					Reason: fmt.Sprintf("traversal exceeded depth bound %d", cfg.MaxDepth),
				}
			}
			visited[next] = struct{}{}
			claims = append(claims, next)
			unit.Secondaries = append(unit.Secondaries, rec)
			queue = append(queue, visit{ref: next, depth: cur.depth + 1})
		}
	}

	unit.Labels = unionLabels([]*model.Record{root}, unit.Secondaries)
	return unit, claims, warns, nil
}

// primaryPartOfCycles returns the primary-eligible refs that sit on (or feed
// into) a cycle in the part-of graph induced over primaries. Units rooted
// there fail the build; everything else proceeds.
func primaryPartOfCycles(cfg Config, byRef map[model.RecordRef]*model.Record, links []model.Link) map[model.RecordRef]struct{} {
	out := make(map[model.RecordRef][]model.RecordRef)
	outdeg := make(map[model.RecordRef]int)
	nodes := make(map[model.RecordRef]struct{})

	for _, l := range links {
		if l.Kind != model.LinkPartOf {
			continue
		}
		from, okF := byRef[l.From]
		to, okT := byRef[l.To]
		if !okF || !okT || !cfg.PrimaryEligible(from) || !cfg.PrimaryEligible(to) {
			continue
		}
		out[l.To] = append(out[l.To], l.From)
		outdeg[l.From]++
		nodes[l.From] = struct{}{}
		nodes[l.To] = struct{}{}
	}

	// Peel nodes with no remaining outgoing edges; whatever survives reaches
	// a cycle.
	var queue []model.RecordRef
	for n := range nodes {
		if outdeg[n] == 0 {
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		delete(nodes, n)
		for _, pred := range out[n] {
			outdeg[pred]--
			if outdeg[pred] == 0 {
				if _, alive := nodes[pred]; alive {
					queue = append(queue, pred)
				}
			}
		}
	}
	return nodes
}

// countBlockers fills UnresolvedBlockers on every unit: blocking links whose
// source is an open record outside the unit and whose target is a member.
func countBlockers(units []*WorkUnit, byRef map[model.RecordRef]*model.Record, links []model.Link) {
	memberOf := make(map[model.RecordRef]*WorkUnit)
	for _, u := range units {
		for _, ref := range u.Members() {
			memberOf[ref] = u
		}
	}
	for _, l := range links {
		n := l.Normalized()
		if n.Kind != model.LinkBlocks {
			continue
		}
		unit, ok := memberOf[n.To]
		if !ok {
			continue
		}
		blocker, known := byRef[n.From]
		if !known || blocker.State != model.StateOpen {
			continue
		}
		if blockerUnit := memberOf[n.From]; blockerUnit == unit {
			continue
		}
		unit.UnresolvedBlockers++
	}
}
