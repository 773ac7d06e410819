package model

import "strings"

// LinkKind is the closed enumeration of link relationships the engine
// understands. Tracker link types outside this set parse to LinkUnknown and
// are ignored by the builder (fail closed).
type LinkKind int

const (
	LinkUnknown LinkKind = iota
	LinkBlocks
	LinkBlockedBy
	LinkRelatesTo
	LinkPartOf
	LinkDuplicateOf
)

// String returns the stable name for the link kind.
func (k LinkKind) String() string {
	switch k {
	case LinkBlocks:
		return "blocks"
	case LinkBlockedBy:
		return "blocked_by"
	case LinkRelatesTo:
		return "relates_to"
	case LinkPartOf:
		return "part_of"
	case LinkDuplicateOf:
		return "duplicate_of"
	default:
		return "unknown"
	}
}

// ParseLinkKind maps a tracker link-type string onto LinkKind. Both snake and
// hyphen forms are accepted; anything else is LinkUnknown.
func ParseLinkKind(s string) LinkKind {
	switch strings.ReplaceAll(strings.ToLower(s), "-", "_") {
	case "blocks":
		return LinkBlocks
	case "blocked_by", "is_blocked_by":
		return LinkBlockedBy
	case "relates_to", "relates":
		return LinkRelatesTo
	case "part_of":
		return LinkPartOf
	case "duplicate_of", "duplicates":
		return LinkDuplicateOf
	default:
		return LinkUnknown
	}
}

// Grouping reports whether the kind pulls records into the same work unit.
// Blocking links never group.
func (k LinkKind) Grouping() bool {
	return k == LinkRelatesTo || k == LinkPartOf
}

// Link is one directed edge between two records, as reported by the tracker.
// Inverse pairs (blocks/blocked-by) are not assumed to both be present.
type Link struct {
	From RecordRef
	To   RecordRef
	Kind LinkKind
}

// Normalized returns the link with blocked-by edges rewritten as the
// equivalent blocks edge, so consumers only reason about one direction.
func (l Link) Normalized() Link {
	if l.Kind == LinkBlockedBy {
		return Link{From: l.To, To: l.From, Kind: LinkBlocks}
	}
	return l
}
