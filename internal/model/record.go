// Package model holds the typed representation of tracker records and the
// directed links between them. Pure data; the only behavior is validation
// and canonical-reference parsing.
package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// RecordKind distinguishes issue-like from change-request-like records.
type RecordKind int

const (
	KindIssue RecordKind = iota
	KindMergeRequest
)

// String returns the stable name for the kind.
func (k RecordKind) String() string {
	if k == KindMergeRequest {
		return "merge_request"
	}
	return "issue"
}

// refSigil returns the reference separator for the kind ('#' for issues,
// '!' for merge requests).
func (k RecordKind) refSigil() byte {
	if k == KindMergeRequest {
		return '!'
	}
	return '#'
}

// RecordState is the lifecycle state of a record.
type RecordState int

const (
	StateOpen RecordState = iota
	StateClosed
	StateMerged
)

// String returns the stable name for the state.
func (s RecordState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateMerged:
		return "merged"
	default:
		return "open"
	}
}

// ParseState maps a tracker state string onto RecordState. Unrecognized
// states map to open so a new tracker state never silently closes a card.
func ParseState(s string) RecordState {
	switch strings.ToLower(s) {
	case "closed":
		return StateClosed
	case "merged":
		return StateMerged
	default:
		return StateOpen
	}
}

// RecordRef identifies one tracker record: project path plus per-project
// numeric id. The canonical string form is "project#N" for issues and
// "project!N" for merge requests.
type RecordRef struct {
	Project string
	Kind    RecordKind
	Number  int
}

// String returns the canonical reference form.
func (r RecordRef) String() string {
	return fmt.Sprintf("%s%c%d", r.Project, r.Kind.refSigil(), r.Number)
}

// IsZero reports whether the ref is unset.
func (r RecordRef) IsZero() bool {
	return r.Project == "" && r.Number == 0
}

// Before orders refs by ascending numeric id, breaking ties by project and
// kind. This is the deterministic ordering used for claim resolution and
// final ranking tie-breaks.
func (r RecordRef) Before(other RecordRef) bool {
	if r.Number != other.Number {
		return r.Number < other.Number
	}
	if r.Project != other.Project {
		return r.Project < other.Project
	}
	return r.Kind < other.Kind
}

// ParseRef parses a canonical reference string. It is the inverse of
// RecordRef.String and rejects anything that does not round-trip.
func ParseRef(s string) (RecordRef, error) {
	sep := strings.LastIndexAny(s, "#!")
	if sep <= 0 || sep == len(s)-1 {
		return RecordRef{}, fmt.Errorf("malformed record ref %q", s)
	}
	num, err := strconv.Atoi(s[sep+1:])
	if err != nil || num <= 0 {
		return RecordRef{}, fmt.Errorf("malformed record ref %q: bad number", s)
	}
	kind := KindIssue
	if s[sep] == '!' {
		kind = KindMergeRequest
	}
	return RecordRef{Project: s[:sep], Kind: kind, Number: num}, nil
}

// Record is an immutable snapshot of one tracker record for a single
// reconciliation run.
type Record struct {
	Ref       RecordRef
	Title     string
	State     RecordState
	Labels    []string
	Author    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks that the record carries the fields every downstream
// component relies on.
func (r *Record) Validate() error {
	if err := validation.ValidateStruct(r,
		validation.Field(&r.Title, validation.Required),
	); err != nil {
		return err
	}
	return validation.ValidateStruct(&r.Ref,
		validation.Field(&r.Ref.Project, validation.Required),
		validation.Field(&r.Ref.Number, validation.Required, validation.Min(1)),
	)
}

// HasLabel reports whether the record carries the given label.
func (r *Record) HasLabel(label string) bool {
	for _, l := range r.Labels {
		if l == label {
			return true
		}
	}
	return false
}
