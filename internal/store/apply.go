package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tokensmith/toksync/internal/history"
	"github.com/tokensmith/toksync/internal/resolve"
	"github.com/tokensmith/toksync/internal/token"
)

// PersistenceError wraps a storage failure that aborted a whole batch.
// Nothing was committed; the caller may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// StaleTargetError reports an optimistic concurrency violation: a token
// targeted by an update or delete no longer matches the version read at
// diff time. The caller must re-run the diff and resubmit.
type StaleTargetError struct {
	TokenID  string
	Expected int64
	Actual   int64
}

func (e *StaleTargetError) Error() string {
	if e.Actual == 0 {
		return fmt.Sprintf("stale target: token %s no longer exists", e.TokenID)
	}
	return fmt.Sprintf("stale target: token %s is at version %d, mutation expected %d",
		e.TokenID, e.Actual, e.Expected)
}

// ApplyResult reports what a committed batch actually did.
type ApplyResult struct {
	Created      int
	Updated      int
	Deleted      int
	Dismissed    int
	Acknowledged int
	Noops        int

	// Entries are the history entries appended for this batch, one per
	// effective mutation.
	Entries []*token.HistoryEntry
}

// Apply executes a batch of resolved mutations as a single logical unit.
//
// The whole batch runs in one transaction: if any mutation fails, nothing
// is committed and no history entries are left behind. Each effective
// mutation yields exactly one history entry before the batch completes;
// mutations that change nothing (including redelivered batches) are
// counted as no-ops and write no history, which makes Apply safe to retry.
//
// A version mismatch on an update or delete aborts the batch with a
// *StaleTargetError; any other storage failure surfaces as a
// *PersistenceError.
func (db *DB) Apply(ctx context.Context, projectID string, batch []resolve.Mutation, origin token.Origin, actor string) (*ApplyResult, error) {
	if !origin.IsValid() {
		return nil, fmt.Errorf("invalid origin: %s", origin)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, &PersistenceError{Op: "begin apply", Err: err}
	}
	defer tx.Rollback()

	result := &ApplyResult{}
	for _, m := range batch {
		if err := db.applyOne(ctx, tx, projectID, m, origin, actor, result); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &PersistenceError{Op: "commit apply", Err: err}
	}

	return result, nil
}

func (db *DB) applyOne(ctx context.Context, tx *sql.Tx, projectID string, m resolve.Mutation, origin token.Origin, actor string, result *ApplyResult) error {
	switch m.Op {
	case resolve.OpNone:
		result.Noops++
		return nil
	case resolve.OpDismiss:
		return applyDismiss(ctx, tx, projectID, m, result)
	case resolve.OpCreate:
		return applyCreate(ctx, tx, projectID, m, origin, actor, result)
	case resolve.OpUpdate:
		return applyUpdate(ctx, tx, m, origin, actor, result, false)
	case resolve.OpAcknowledge:
		return applyUpdate(ctx, tx, m, origin, actor, result, true)
	case resolve.OpDelete:
		return applyDelete(ctx, tx, m, origin, actor, result)
	default:
		return fmt.Errorf("unknown mutation op: %s", m.Op)
	}
}

func applyDismiss(ctx context.Context, tx *sql.Tx, projectID string, m resolve.Mutation, result *ApplyResult) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO dismissals (project_id, variable_id, created_at)
	VALUES (?, ?, ?)
	ON CONFLICT(project_id, variable_id) DO NOTHING
	`, projectID, m.VariableID, time.Now().Format(time.RFC3339Nano))
	if err != nil {
		return &PersistenceError{Op: "dismiss variable", Err: err}
	}
	result.Dismissed++
	return nil
}

func applyCreate(ctx context.Context, tx *sql.Tx, projectID string, m resolve.Mutation, origin token.Origin, actor string, result *ApplyResult) error {
	// A create whose external reference is already linked becomes an
	// update, so redelivered batches cannot produce duplicates.
	if m.ExternalRef != "" {
		existing, err := getTokenByRefTx(ctx, tx, projectID, m.ExternalRef)
		if err != nil && err != sql.ErrNoRows {
			return &PersistenceError{Op: "lookup external ref", Err: err}
		}
		if err == nil {
			update := m
			update.Op = resolve.OpUpdate
			update.TokenID = existing.ID
			update.BaseVersion = 0 // retry path, no version expectation
			return applyUpdate(ctx, tx, update, origin, actor, result, false)
		}
	}

	now := time.Now()
	tok := &token.Token{
		ID:          token.NewID(),
		ProjectID:   projectID,
		Name:        m.Name,
		Value:       m.Value,
		Type:        m.Type,
		Category:    m.Category,
		Description: m.Description,
		ExternalRef: m.ExternalRef,
		RemoteValue: m.RemoteValue,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tok.Validate(); err != nil {
		return fmt.Errorf("cannot create token %s: %w", m.Name, err)
	}

	if err := insertTokenTx(ctx, tx, tok); err != nil {
		return &PersistenceError{Op: "insert token", Err: err}
	}

	action := token.ActionCreated
	if tok.ExternalRef != "" {
		action = token.ActionImported
	}
	entry := history.Entry(tok.ID, action, nil, tok, origin, actor)
	if err := appendHistoryTx(ctx, tx, projectID, entry); err != nil {
		return err
	}

	result.Created++
	result.Entries = append(result.Entries, entry)
	return nil
}

func applyUpdate(ctx context.Context, tx *sql.Tx, m resolve.Mutation, origin token.Origin, actor string, result *ApplyResult, acknowledgeOnly bool) error {
	cur, err := getTokenTx(ctx, tx, m.TokenID)
	if err == sql.ErrNoRows {
		return &StaleTargetError{TokenID: m.TokenID, Expected: m.BaseVersion}
	}
	if err != nil {
		return &PersistenceError{Op: "read token", Err: err}
	}

	after := cur.Clone()
	if acknowledgeOnly {
		after.RemoteValue = m.RemoteValue
	} else {
		after.Value = m.Value
		if m.ExternalRef != "" {
			after.ExternalRef = m.ExternalRef
		}
		if m.RemoteValue != "" {
			after.RemoteValue = m.RemoteValue
		}
	}

	changes := history.Changes(cur, after)
	if len(changes) == 0 {
		// Already in the target state, e.g. a redelivered batch.
		result.Noops++
		return nil
	}

	if m.BaseVersion != 0 && cur.Version != m.BaseVersion {
		return &StaleTargetError{TokenID: cur.ID, Expected: m.BaseVersion, Actual: cur.Version}
	}

	after.Version = cur.Version + 1
	after.UpdatedAt = time.Now()

	res, err := tx.ExecContext(ctx, `
	UPDATE tokens
	SET value = ?, external_ref = ?, remote_value = ?, version = ?, updated_at = ?
	WHERE id = ? AND version = ?
	`,
		after.Value,
		stringToNull(after.ExternalRef),
		stringToNull(after.RemoteValue),
		after.Version,
		after.UpdatedAt.Format(time.RFC3339Nano),
		cur.ID,
		cur.Version,
	)
	if err != nil {
		return &PersistenceError{Op: "update token", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &StaleTargetError{TokenID: cur.ID, Expected: cur.Version}
	}

	entry := history.Entry(cur.ID, token.ActionUpdated, cur, after, origin, actor)
	if err := appendHistoryTx(ctx, tx, cur.ProjectID, entry); err != nil {
		return err
	}

	if acknowledgeOnly {
		result.Acknowledged++
	} else {
		result.Updated++
	}
	result.Entries = append(result.Entries, entry)
	return nil
}

func applyDelete(ctx context.Context, tx *sql.Tx, m resolve.Mutation, origin token.Origin, actor string, result *ApplyResult) error {
	cur, err := getTokenTx(ctx, tx, m.TokenID)
	if err == sql.ErrNoRows {
		// Already gone: deletes are idempotent.
		result.Noops++
		return nil
	}
	if err != nil {
		return &PersistenceError{Op: "read token", Err: err}
	}

	if m.BaseVersion != 0 && cur.Version != m.BaseVersion {
		return &StaleTargetError{TokenID: cur.ID, Expected: m.BaseVersion, Actual: cur.Version}
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE id = ? AND version = ?`, cur.ID, cur.Version)
	if err != nil {
		return &PersistenceError{Op: "delete token", Err: err}
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &StaleTargetError{TokenID: cur.ID, Expected: cur.Version}
	}

	entry := deletionEntry(cur, origin, actor)
	if err := appendHistoryTx(ctx, tx, cur.ProjectID, entry); err != nil {
		return err
	}

	result.Deleted++
	result.Entries = append(result.Entries, entry)
	return nil
}

// deletionEntry builds the audit record for a removed token.
func deletionEntry(tok *token.Token, origin token.Origin, actor string) *token.HistoryEntry {
	return history.Entry(tok.ID, token.ActionDeleted, tok, nil, origin, actor)
}

// upsertTokenTx inserts or updates a token and writes its history entry.
// Used by the manual-edit path; sync resolutions go through Apply.
func upsertTokenTx(ctx context.Context, tx *sql.Tx, tok *token.Token, origin token.Origin, actor string) error {
	cur, err := getTokenTx(ctx, tx, tok.ID)
	if err != nil && err != sql.ErrNoRows {
		return &PersistenceError{Op: "read token", Err: err}
	}

	if err == sql.ErrNoRows {
		tok.Version = 1
		if err := insertTokenTx(ctx, tx, tok); err != nil {
			return &PersistenceError{Op: "insert token", Err: err}
		}
		entry := history.Entry(tok.ID, token.ActionCreated, nil, tok, origin, actor)
		return appendHistoryTx(ctx, tx, tok.ProjectID, entry)
	}

	changes := history.Changes(cur, tok)
	if len(changes) == 0 {
		return nil
	}

	tok.Version = cur.Version + 1
	tok.UpdatedAt = time.Now()
	_, err = tx.ExecContext(ctx, `
	UPDATE tokens
	SET name = ?, value = ?, type = ?, category = ?, description = ?,
	    external_ref = ?, remote_value = ?, version = ?, updated_at = ?
	WHERE id = ?
	`,
		tok.Name,
		tok.Value,
		string(tok.Type),
		tok.Category,
		tok.Description,
		stringToNull(tok.ExternalRef),
		stringToNull(tok.RemoteValue),
		tok.Version,
		tok.UpdatedAt.Format(time.RFC3339Nano),
		tok.ID,
	)
	if err != nil {
		return &PersistenceError{Op: "update token", Err: err}
	}

	entry := history.Entry(tok.ID, token.ActionUpdated, cur, tok, origin, actor)
	return appendHistoryTx(ctx, tx, tok.ProjectID, entry)
}

func insertTokenTx(ctx context.Context, tx *sql.Tx, tok *token.Token) error {
	_, err := tx.ExecContext(ctx, `
	INSERT INTO tokens (
		id, project_id, name, value, type, category, description,
		external_ref, remote_value, version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tok.ID,
		tok.ProjectID,
		tok.Name,
		tok.Value,
		string(tok.Type),
		tok.Category,
		tok.Description,
		stringToNull(tok.ExternalRef),
		stringToNull(tok.RemoteValue),
		tok.Version,
		tok.CreatedAt.Format(time.RFC3339Nano),
		tok.UpdatedAt.Format(time.RFC3339Nano),
	)
	return err
}

func getTokenTx(ctx context.Context, tx *sql.Tx, id string) (*token.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE id = ?`
	return scanTokenFields(tx.QueryRowContext(ctx, query, id))
}

func getTokenByRefTx(ctx context.Context, tx *sql.Tx, projectID, ref string) (*token.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE project_id = ? AND external_ref = ?`
	return scanTokenFields(tx.QueryRowContext(ctx, query, projectID, ref))
}

// appendHistoryTx writes one audit entry inside the apply transaction.
// A nil entry (no-op change) is skipped.
func appendHistoryTx(ctx context.Context, tx *sql.Tx, projectID string, entry *token.HistoryEntry) error {
	if entry == nil {
		return nil
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid history entry: %w", err)
	}

	changesJSON, err := json.Marshal(entry.Changes)
	if err != nil {
		return &PersistenceError{Op: "marshal history changes", Err: err}
	}

	res, err := tx.ExecContext(ctx, `
	INSERT INTO history (project_id, token_id, action, changes, origin, actor, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		projectID,
		entry.TokenID,
		string(entry.Action),
		string(changesJSON),
		string(entry.Origin),
		stringToNull(entry.Actor),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return &PersistenceError{Op: "append history", Err: err}
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}
	return nil
}
