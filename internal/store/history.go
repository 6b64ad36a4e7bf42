package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tokensmith/toksync/internal/token"
)

// HistoryFilter configures the ListHistory query.
type HistoryFilter struct {
	// TokenID filters to one token's trail (empty = all tokens)
	TokenID string
	// Origin filters by change origin (empty = all origins)
	Origin token.Origin
	// Action filters by action (empty = all actions)
	Action token.Action
	// Limit restricts the number of results (0 = no limit)
	Limit int
	// Offset skips the first N results (for pagination)
	Offset int
}

// ListHistory returns a project's audit trail.
//
// Entries are ordered by creation time ascending with the autoincrement id
// breaking ties, so the ordering is total and stable.
func (db *DB) ListHistory(ctx context.Context, projectID string, filter HistoryFilter) ([]*token.HistoryEntry, error) {
	conditions := []string{"project_id = ?"}
	args := []any{projectID}

	if filter.TokenID != "" {
		conditions = append(conditions, "token_id = ?")
		args = append(args, filter.TokenID)
	}
	if filter.Origin != "" {
		conditions = append(conditions, "origin = ?")
		args = append(args, string(filter.Origin))
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, string(filter.Action))
	}

	query := `
	SELECT id, token_id, action, changes, origin, actor, created_at
	FROM history
	WHERE ` + strings.Join(conditions, " AND ") + `
	ORDER BY created_at ASC, id ASC
	`

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// OFFSET is only valid after a LIMIT clause; -1 means unbounded.
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []*token.HistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return entries, nil
}

// GetHistoryCount returns the number of history entries for a project.
func (db *DB) GetHistoryCount(ctx context.Context, projectID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM history WHERE project_id = ?", projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return count, nil
}

func scanHistoryEntry(rows rowScanner) (*token.HistoryEntry, error) {
	var entry token.HistoryEntry
	var changesJSON, createdAt string
	var actor nullString

	err := rows.Scan(
		&entry.ID,
		&entry.TokenID,
		(*string)(&entry.Action),
		&changesJSON,
		(*string)(&entry.Origin),
		&actor,
		&createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan history entry: %w", err)
	}

	if err := json.Unmarshal([]byte(changesJSON), &entry.Changes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history changes: %w", err)
	}

	entry.Actor = string(actor)

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		entry.CreatedAt = t
	}

	return &entry, nil
}

// nullString scans SQL NULL as the empty string.
type nullString string

func (n *nullString) Scan(value any) error {
	if value == nil {
		*n = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*n = nullString(v)
	case []byte:
		*n = nullString(v)
	default:
		return fmt.Errorf("cannot scan %T into string", value)
	}
	return nil
}
