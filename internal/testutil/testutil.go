// Package testutil provides shared fixture helpers for building records,
// links, and board snapshots in tests.
package testutil

import (
	"fmt"
	"time"

	"github.com/starford/workboard/internal/model"
)

// BaseTime is the fixed "now" used by fixtures so tests are reproducible.
var BaseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// Issue returns an open issue record in project "proj".
func Issue(num int, labels ...string) *model.Record {
	return &model.Record{
		Ref:       model.RecordRef{Project: "proj", Kind: model.KindIssue, Number: num},
		Title:     fmt.Sprintf("Issue %d", num),
		State:     model.StateOpen,
		Labels:    labels,
		Author:    "dev",
		CreatedAt: BaseTime.Add(-30 * 24 * time.Hour),
		UpdatedAt: BaseTime.Add(-24 * time.Hour),
	}
}

// MR returns an open merge request record in project "proj".
func MR(num int, labels ...string) *model.Record {
	r := Issue(num, labels...)
	r.Ref.Kind = model.KindMergeRequest
	r.Title = fmt.Sprintf("MR %d", num)
	return r
}

// Closed marks a record closed and returns it.
func Closed(r *model.Record) *model.Record {
	r.State = model.StateClosed
	return r
}

// Ref builds an issue ref in project "proj".
func Ref(num int) model.RecordRef {
	return model.RecordRef{Project: "proj", Kind: model.KindIssue, Number: num}
}

// MRRef builds a merge request ref in project "proj".
func MRRef(num int) model.RecordRef {
	return model.RecordRef{Project: "proj", Kind: model.KindMergeRequest, Number: num}
}

// Link builds a link between two records.
func Link(from, to *model.Record, kind model.LinkKind) model.Link {
	return model.Link{From: from.Ref, To: to.Ref, Kind: kind}
}
