package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tokensmith/toksync/internal/token"
)

const tokenColumns = `id, project_id, name, value, type, category, description,
       external_ref, remote_value, version, created_at, updated_at`

// ReadSnapshot returns all tokens of a project, ordered by category then
// name so the result is stable across calls. The returned slice is a
// point-in-time view: the diff engine treats it as immutable.
func (db *DB) ReadSnapshot(ctx context.Context, projectID string) ([]*token.Token, error) {
	query := `
	SELECT ` + tokenColumns + `
	FROM tokens
	WHERE project_id = ?
	ORDER BY category ASC, name ASC
	`

	rows, err := db.conn.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read token snapshot: %w", err)
	}
	defer rows.Close()

	return scanTokens(rows)
}

// GetToken retrieves a single token by ID.
// Returns sql.ErrNoRows if the token is not found.
func (db *DB) GetToken(ctx context.Context, id string) (*token.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = ?`
	return scanToken(db.conn.QueryRowContext(ctx, query, id))
}

// GetTokenByExternalRef retrieves the project's token linked to the given
// remote variable ID. Returns sql.ErrNoRows if no token is linked.
func (db *DB) GetTokenByExternalRef(ctx context.Context, projectID, ref string) (*token.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE project_id = ? AND external_ref = ?`
	return scanToken(db.conn.QueryRowContext(ctx, query, projectID, ref))
}

// GetTokenCount returns the number of tokens in a project.
func (db *DB) GetTokenCount(ctx context.Context, projectID string) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tokens WHERE project_id = ?", projectID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}

// UpsertToken inserts or updates a token outside of an apply batch.
//
// This is the path used for manual edits (CLI and the watch daemon); sync
// resolutions go through Apply instead. The version column is bumped on
// update, and exactly one history entry is written when fields changed.
func (db *DB) UpsertToken(ctx context.Context, tok *token.Token, origin token.Origin, actor string) error {
	if err := tok.Validate(); err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "upsert token", Err: err}
	}
	defer tx.Rollback()

	if err := upsertTokenTx(ctx, tx, tok, origin, actor); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "upsert token", Err: err}
	}
	return nil
}

// DeleteToken removes a token and records a deletion history entry.
// Returns nil if the token doesn't exist (idempotent).
func (db *DB) DeleteToken(ctx context.Context, id string, origin token.Origin, actor string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return &PersistenceError{Op: "delete token", Err: err}
	}
	defer tx.Rollback()

	existing, err := getTokenTx(ctx, tx, id)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "delete token", Err: err}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?`, id); err != nil {
		return &PersistenceError{Op: "delete token", Err: err}
	}

	if err := appendHistoryTx(ctx, tx, existing.ProjectID, deletionEntry(existing, origin, actor)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return &PersistenceError{Op: "delete token", Err: err}
	}
	return nil
}

// ListDismissals returns the set of dismissed variable IDs for a project.
func (db *DB) ListDismissals(ctx context.Context, projectID string) (map[string]bool, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT variable_id FROM dismissals WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dismissals: %w", err)
	}
	defer rows.Close()

	dismissed := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan dismissal: %w", err)
		}
		dismissed[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dismissals: %w", err)
	}

	return dismissed, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTokenFields(row rowScanner) (*token.Token, error) {
	var tok token.Token
	var externalRef, remoteValue sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&tok.ID,
		&tok.ProjectID,
		&tok.Name,
		&tok.Value,
		&tok.Type,
		&tok.Category,
		&tok.Description,
		&externalRef,
		&remoteValue,
		&tok.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	tok.ExternalRef = nullToString(externalRef)
	tok.RemoteValue = nullToString(remoteValue)

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		tok.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		tok.UpdatedAt = t
	}

	return &tok, nil
}

func scanToken(row *sql.Row) (*token.Token, error) {
	return scanTokenFields(row)
}

func scanTokens(rows *sql.Rows) ([]*token.Token, error) {
	var tokens []*token.Token

	for rows.Next() {
		tok, err := scanTokenFields(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, tok)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}

	return tokens, nil
}
