package rules

// DocumentVersion is the rule-set source format version written to output.
const DocumentVersion = 1

// ModeAnd is the only combinator mode sources can express.
const ModeAnd = "and"

// RawRow is one parsed line or entry before normalization. Pattern is the
// raw keyword as written upstream; Extra holds trailing fields (policy,
// no-resolve, ...) and is nil when the source had none.
type RawRow struct {
	Pattern string
	Address string
	Extra   []string
}

// Row is a normalized rule: a canonical kind and a trimmed value.
type Row struct {
	Kind  Kind
	Value string
}

// Clause is one condition of a logical rule.
type Clause struct {
	Kind  Kind
	Value string
}

// LogicalRule is a conjunctive match condition. Clause order is preserved
// from the source.
type LogicalRule struct {
	Mode    string
	Clauses []Clause
}

// FlatGroup is a single-kind rule with all of its values.
type FlatGroup struct {
	Kind   Kind
	Values []string
}

// Entry is one element of Document.Rules. Exactly one of Flat and Logical is set.
type Entry struct {
	Flat    *FlatGroup
	Logical *LogicalRule
}

// Document is the unified rule set for one source.
type Document struct {
	Version int
	Rules   []Entry
}

// Tree converts the document into plain maps and slices in the shape of the
// serialized rule set:
//
//	{"version": 1, "rules": [{"<kind>": [...]}, {"type": "logical", "mode": "and", "rules": [{"<kind>": "v"}]}]}
func (d Document) Tree() map[string]any {
	entries := make([]any, 0, len(d.Rules))
	for _, e := range d.Rules {
		switch {
		case e.Flat != nil:
			values := make([]any, 0, len(e.Flat.Values))
			for _, v := range e.Flat.Values {
				values = append(values, v)
			}
			entries = append(entries, map[string]any{string(e.Flat.Kind): values})
		case e.Logical != nil:
			entries = append(entries, e.Logical.Tree())
		}
	}
	return map[string]any{
		"version": d.Version,
		"rules":   entries,
	}
}

// Tree converts a logical rule into its serialized map form.
func (l LogicalRule) Tree() map[string]any {
	clauses := make([]any, 0, len(l.Clauses))
	for _, c := range l.Clauses {
		clauses = append(clauses, map[string]any{string(c.Kind): c.Value})
	}
	return map[string]any{
		"type":  "logical",
		"mode":  l.Mode,
		"rules": clauses,
	}
}

// Counts returns the number of values per kind plus the number of logical
// rules under the "logical" key.
func (d Document) Counts() map[string]int {
	counts := make(map[string]int)
	for _, e := range d.Rules {
		switch {
		case e.Flat != nil:
			counts[string(e.Flat.Kind)] += len(e.Flat.Values)
		case e.Logical != nil:
			counts["logical"]++
		}
	}
	return counts
}

// Empty reports whether the document carries no rules at all.
func (d Document) Empty() bool { return len(d.Rules) == 0 }
