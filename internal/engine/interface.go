// Package engine orchestrates the reconciliation pipeline: fetch both
// snapshots, compute divergences, turn resolution choices into mutations,
// and apply them atomically with history.
package engine

import (
	"context"
	"time"

	"github.com/tokensmith/toksync/internal/diff"
	"github.com/tokensmith/toksync/internal/resolve"
	"github.com/tokensmith/toksync/internal/store"
	"github.com/tokensmith/toksync/internal/token"
)

// Resolution pairs a divergence key from a prior Diff call with the
// chosen disposition.
type Resolution struct {
	Key    string         `json:"key"`
	Choice resolve.Choice `json:"choice"`
}

// DiffResult is the caller-facing outcome of a diff run.
type DiffResult struct {
	ProjectID   string            `json:"project_id"`
	FileKey     string            `json:"file_key"`
	Divergences []diff.Divergence `json:"divergences"`
	ComputedAt  time.Time         `json:"computed_at"`
}

// SyncResult is the caller-facing outcome of an apply run. On a
// batch-level failure Divergences is still populated with the set
// computed before the abort, so the caller need not refetch.
type SyncResult struct {
	ProjectID   string             `json:"project_id"`
	Divergences []diff.Divergence  `json:"divergences"`
	Applied     *store.ApplyResult `json:"applied,omitempty"`
}

// ImportError describes one item that could not be imported.
type ImportError struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// ImportResult reports the outcome of a bulk collection import.
type ImportResult struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Errors  []ImportError `json:"errors"`
}

// Engine runs the diff/resolve/apply pipeline for one project against one
// remote file.
//
// The pipeline is request-scoped and stateless between runs. Diff is pure
// with respect to its two snapshots; Apply mutates the store in a single
// transaction. The engine holds no internal lock: callers must serialize
// Apply and Import per project (one in-flight apply per project ID).
// Cancelling the context is honored up to the start of the apply
// transaction; once the batch begins applying it either fully commits or
// fully fails.
type Engine interface {
	// Diff fetches the remote snapshot, reads the local snapshot, and
	// returns the full divergence set in stable order.
	//
	// Per-item problems (malformed values, ambiguous matches) surface as
	// divergence entries; only a remote fetch failure or a store read
	// failure aborts the run, and then nothing has been mutated.
	Diff(ctx context.Context, projectID, fileKey string) (*DiffResult, error)

	// Apply resolves the given divergence keys and commits the resulting
	// mutation batch atomically.
	//
	// The divergence set is recomputed from fresh snapshots; keys are
	// stable across runs on unchanged input. Every effective mutation
	// yields exactly one history entry tagged with the given origin.
	// A *store.StaleTargetError means the caller must re-diff; the
	// returned SyncResult still carries the computed divergences.
	Apply(ctx context.Context, projectID, fileKey string, resolutions []Resolution, origin token.Origin, actor string) (*SyncResult, error)

	// Import bulk-adopts an entire remote file into the project: every
	// ADDED divergence is auto-resolved as use-remote, and MODIFIED
	// divergences for already-linked tokens adopt the remote value.
	//
	// Individual item failures (e.g. a malformed remote value) are
	// reported per item and never abort the rest of the import.
	Import(ctx context.Context, projectID, fileKey string) (*ImportResult, error)

	// History returns the project's audit trail.
	History(ctx context.Context, projectID string, filter store.HistoryFilter) ([]*token.HistoryEntry, error)
}
