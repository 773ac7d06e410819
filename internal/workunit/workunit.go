// Package workunit groups tracker records into logical units of work: a
// primary record plus the secondary records reachable from it through
// grouping links. Units are rebuilt from scratch on every reconciliation run
// and never persisted.
package workunit

import (
	"sort"

	"github.com/starford/workboard/internal/model"
)

// WorkUnit is one logical piece of work: a primary record and its secondary
// members in discovery order. Identity is the primary's ref.
type WorkUnit struct {
	Primary     *model.Record
	Secondaries []*model.Record

	// Labels is the sorted union of all member labels.
	Labels []string

	// UnresolvedBlockers counts blocking links from open records outside the
	// unit onto members of the unit.
	UnresolvedBlockers int

	// Synthetic marks an orphan unit: a record with no eligible root and no
	// secondary claim, surfaced so nothing is silently dropped.
	Synthetic bool
}

// Ref returns the unit's identity: the primary record's ref.
func (u *WorkUnit) Ref() model.RecordRef {
	return u.Primary.Ref
}

// Unresolved reports whether any open record outside the unit still blocks it.
func (u *WorkUnit) Unresolved() bool {
	return u.UnresolvedBlockers > 0
}

// Members returns the refs of the primary and all secondaries.
func (u *WorkUnit) Members() []model.RecordRef {
	refs := make([]model.RecordRef, 0, 1+len(u.Secondaries))
	refs = append(refs, u.Primary.Ref)
	for _, s := range u.Secondaries {
		refs = append(refs, s.Ref)
	}
	return refs
}

func unionLabels(records ...[]*model.Record) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rs := range records {
		for _, r := range rs {
			for _, l := range r.Labels {
				if _, ok := seen[l]; ok {
					continue
				}
				seen[l] = struct{}{}
				out = append(out, l)
			}
		}
	}
	sort.Strings(out)
	return out
}
