package rules

import (
	"strings"
)

// Normalize maps raw rows onto the vocabulary. Comment rows, unknown
// keywords and rows with an empty address are dropped silently; exact
// duplicates (same kind and value) keep their first occurrence only.
func Normalize(rows []RawRow, vocab Vocabulary) []Row {
	out := make([]Row, 0, len(rows))
	seen := make(map[Row]struct{}, len(rows))

	for _, raw := range rows {
		kind, err := vocab.Classify(raw.Pattern)
		if err != nil {
			continue
		}

		value := strings.TrimSpace(raw.Address)
		if value == "" {
			continue
		}

		row := Row{Kind: kind, Value: value}
		if _, exists := seen[row]; exists {
			continue
		}
		seen[row] = struct{}{}
		out = append(out, row)
	}
	return out
}
