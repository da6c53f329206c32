// Package storage keeps the rule history of every source in SQLite so runs
// can report which rules appeared or disappeared upstream.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sw33tLie/ruleconv/pkg/canonical"
	"github.com/sw33tLie/ruleconv/pkg/rules"
	_ "modernc.org/sqlite"
)

// ErrAbortingRuleWipe is returned when a source that had rules suddenly
// produces none. The stored history is left untouched.
var ErrAbortingRuleWipe = errors.New("refusing to remove all rules of a source")

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS rule_entries (
  id            INTEGER PRIMARY KEY,
  source_url    TEXT NOT NULL,
  name          TEXT NOT NULL,
  kind          TEXT NOT NULL,
  value         TEXT NOT NULL,
  run_id        INTEGER NOT NULL DEFAULT 0,
  first_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  last_seen_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(source_url, kind, value)
);
CREATE INDEX IF NOT EXISTS idx_rules_source ON rule_entries(source_url);
CREATE TABLE IF NOT EXISTS rule_changes (
  id          INTEGER PRIMARY KEY,
  occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  source_url  TEXT NOT NULL,
  name        TEXT NOT NULL,
  kind        TEXT NOT NULL,
  value       TEXT NOT NULL,
  change_type TEXT NOT NULL CHECK (change_type IN ('added','removed'))
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON rule_changes(occurred_at);
CREATE INDEX IF NOT EXISTS idx_changes_source ON rule_changes(source_url, occurred_at);
    `); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// BuildEntries flattens a rule document into one entry per flat value and
// one per logical rule.
func BuildEntries(sourceURL, name string, doc rules.Document) ([]Entry, error) {
	if sourceURL == "" {
		return nil, errors.New("invalid source identifier")
	}
	sourceURL = NormalizeSourceURL(sourceURL)

	var out []Entry
	for _, e := range doc.Rules {
		switch {
		case e.Flat != nil:
			for _, v := range e.Flat.Values {
				out = append(out, Entry{SourceURL: sourceURL, Name: name, Kind: string(e.Flat.Kind), Value: v})
			}
		case e.Logical != nil:
			value, err := canonical.MarshalCompact(e.Logical.Tree())
			if err != nil {
				return nil, fmt.Errorf("encoding logical rule: %w", err)
			}
			out = append(out, Entry{SourceURL: sourceURL, Name: name, Kind: KindLogical, Value: string(value)})
		}
	}
	return out, nil
}

// GetRuleCount returns how many rules are stored for a source.
func (d *DB) GetRuleCount(ctx context.Context, sourceURL string) (int, error) {
	var n int
	err := d.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM rule_entries WHERE source_url = ?`, NormalizeSourceURL(sourceURL)).Scan(&n)
	return n, err
}

// UpsertSourceRules replaces the stored rules of one source with entries
// and returns what was added and removed. Changes are logged unless this is
// the first time the source is seen.
func (d *DB) UpsertSourceRules(ctx context.Context, sourceURL, name string, entries []Entry) ([]Change, error) {
	sourceURL = NormalizeSourceURL(sourceURL)
	now := time.Now().UTC()
	runID := now.UnixNano()

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, "SELECT kind, value FROM rule_entries WHERE source_url = ?", sourceURL)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool)
	for rows.Next() {
		var kind, value string
		if err = rows.Scan(&kind, &value); err != nil {
			rows.Close()
			return nil, err
		}
		existing[identityKey(kind, value)] = true
	}
	if err = rows.Close(); err != nil {
		return nil, err
	}

	isFirstRun := len(existing) == 0
	if len(entries) == 0 && !isFirstRun {
		err = ErrAbortingRuleWipe
		return nil, err
	}

	var changes []Change
	for _, e := range entries {
		key := identityKey(e.Kind, e.Value)
		if key == "" {
			continue
		}

		if !existing[key] {
			_, err = tx.ExecContext(ctx, `INSERT INTO rule_entries(source_url, name, kind, value, run_id, first_seen_at, last_seen_at) VALUES(?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)`, sourceURL, name, e.Kind, e.Value, runID)
			if err != nil {
				return nil, err
			}
			changes = append(changes, Change{OccurredAt: now, SourceURL: sourceURL, Name: name, Kind: e.Kind, Value: e.Value, ChangeType: "added"})
			existing[key] = true
		} else {
			_, err = tx.ExecContext(ctx, `UPDATE rule_entries SET name = ?, run_id = ?, last_seen_at = CURRENT_TIMESTAMP WHERE source_url = ? AND kind = ? AND value = ?`, name, runID, sourceURL, e.Kind, e.Value)
			if err != nil {
				return nil, err
			}
		}
	}

	// Sweep: find and delete entries not touched in this run.
	staleRows, err := tx.QueryContext(ctx, "SELECT kind, value FROM rule_entries WHERE source_url = ? AND run_id != ?", sourceURL, runID)
	if err != nil {
		return nil, err
	}

	type staleEntry struct{ Kind, Value string }
	var toRemove []staleEntry
	for staleRows.Next() {
		var s staleEntry
		if err = staleRows.Scan(&s.Kind, &s.Value); err != nil {
			staleRows.Close()
			return nil, err
		}
		toRemove = append(toRemove, s)
	}
	if err = staleRows.Close(); err != nil {
		return nil, err
	}

	if len(toRemove) > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM rule_entries WHERE source_url = ? AND run_id != ?`, sourceURL, runID)
		if err != nil {
			return nil, err
		}
		for _, s := range toRemove {
			changes = append(changes, Change{OccurredAt: now, SourceURL: sourceURL, Name: name, Kind: s.Kind, Value: s.Value, ChangeType: "removed"})
		}
	}

	if !isFirstRun {
		for _, c := range changes {
			_, err = tx.ExecContext(ctx, `INSERT INTO rule_changes(occurred_at, source_url, name, kind, value, change_type) VALUES(CURRENT_TIMESTAMP, ?, ?, ?, ?, ?)`, c.SourceURL, c.Name, c.Kind, c.Value, c.ChangeType)
			if err != nil {
				return nil, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return changes, nil
}

// ListOptions controls selection when listing entries.
type ListOptions struct {
	SourceFilter string
	Kind         string
	Since        time.Time
}

// ListEntries returns current entries matching filters.
func (d *DB) ListEntries(ctx context.Context, opts ListOptions) ([]Entry, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.SourceFilter != "" {
		where += " AND (source_url LIKE ? OR name = ?)"
		args = append(args, fmt.Sprintf("%%%s%%", opts.SourceFilter), opts.SourceFilter)
	}
	if opts.Kind != "" {
		where += " AND kind = ?"
		args = append(args, opts.Kind)
	}
	if !opts.Since.IsZero() {
		where += " AND last_seen_at >= ?"
		args = append(args, opts.Since.UTC().Format("2006-01-02 15:04:05"))
	}

	q := "SELECT source_url, name, kind, value FROM rule_entries " + where + " ORDER BY source_url, kind, value"
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SourceURL, &e.Name, &e.Kind, &e.Value); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListRecentChanges returns the most recent N changes across all sources.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, source_url, name, kind, value, change_type FROM rule_changes ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var occurredAt interface{}
		if err := rows.Scan(&occurredAt, &c.SourceURL, &c.Name, &c.Kind, &c.Value, &c.ChangeType); err != nil {
			return nil, err
		}
		c.OccurredAt = parseTimestamp(occurredAt)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

// parseTimestamp accepts what the driver hands back for a DATETIME column:
// a time.Time, or the text SQLite's CURRENT_TIMESTAMP writes.
func parseTimestamp(v interface{}) time.Time {
	var s string
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Time{}
}

type SourceStats struct {
	Name      string
	SourceURL string
	RuleCount int
	Kinds     int
}

func (d *DB) GetStats(ctx context.Context) ([]SourceStats, error) {
	query := `
		SELECT
			MAX(name),
			source_url,
			COUNT(*),
			COUNT(DISTINCT kind)
		FROM
			rule_entries
		GROUP BY
			source_url
		ORDER BY
			MAX(name), source_url;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []SourceStats
	for rows.Next() {
		var s SourceStats
		if err := rows.Scan(&s.Name, &s.SourceURL, &s.RuleCount, &s.Kinds); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
