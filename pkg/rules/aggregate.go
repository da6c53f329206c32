package rules

import (
	"sort"
	"strings"
)

// Aggregate groups normalized rows by kind and assembles the rule document.
//
// All domain values collapse into one set placed first. Every other kind
// yields one group, in the order kinds were first encountered, with its
// values in row order. Logical rules follow the flat groups in parsed order.
func Aggregate(rows []Row, logical []LogicalRule) Document {
	doc := Document{Version: DocumentVersion}

	var order []Kind
	groups := make(map[Kind][]string)
	domains := make(map[string]struct{})

	for _, r := range rows {
		value := strings.TrimSpace(r.Value)
		if r.Kind == KindDomain {
			domains[value] = struct{}{}
			continue
		}
		if _, ok := groups[r.Kind]; !ok {
			order = append(order, r.Kind)
		}
		groups[r.Kind] = append(groups[r.Kind], value)
	}

	if len(domains) > 0 {
		values := make([]string, 0, len(domains))
		for d := range domains {
			values = append(values, d)
		}
		sort.Strings(values)
		doc.Rules = append(doc.Rules, Entry{Flat: &FlatGroup{Kind: KindDomain, Values: values}})
	}

	for _, kind := range order {
		doc.Rules = append(doc.Rules, Entry{Flat: &FlatGroup{Kind: kind, Values: groups[kind]}})
	}

	for i := range logical {
		lr := logical[i]
		if len(lr.Clauses) == 0 {
			continue
		}
		if lr.Mode == "" {
			lr.Mode = ModeAnd
		}
		doc.Rules = append(doc.Rules, Entry{Logical: &lr})
	}

	return doc
}
