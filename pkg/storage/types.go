package storage

import "time"

// KindLogical is the kind under which logical rules are stored. Their value
// is the rule's compact canonical JSON.
const KindLogical = "logical"

// Entry is a single rule value last seen in a source.
type Entry struct {
	SourceURL string
	Name      string
	Kind      string
	Value     string
}

// Change captures a single change event for auditing or printing.
type Change struct {
	OccurredAt time.Time
	SourceURL  string
	Name       string
	Kind       string
	Value      string
	ChangeType string // added | removed
}
