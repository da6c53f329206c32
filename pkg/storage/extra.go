package storage

import (
	"context"
	"fmt"
)

// RemoveSource deletes every stored rule of a source. Changes are not
// logged, the source is simply forgotten.
func (d *DB) RemoveSource(ctx context.Context, sourceURL string) error {
	res, err := d.sql.ExecContext(ctx, `DELETE FROM rule_entries WHERE source_url = ?`, NormalizeSourceURL(sourceURL))
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("source not found")
	}
	return nil
}

// Source is a source with at least one stored rule.
type Source struct {
	URL        string `json:"url"`
	Name       string `json:"name"`
	RuleCount  int    `json:"rule_count"`
	LastSeenAt string `json:"last_seen_at"`
}

// ListSources returns all known sources.
func (d *DB) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT source_url, MAX(name), COUNT(*), MAX(last_seen_at) FROM rule_entries GROUP BY source_url ORDER BY source_url`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.URL, &s.Name, &s.RuleCount, &s.LastSeenAt); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}
