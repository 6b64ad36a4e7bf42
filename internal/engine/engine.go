package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/tokensmith/toksync/internal/diff"
	"github.com/tokensmith/toksync/internal/figma"
	"github.com/tokensmith/toksync/internal/resolve"
	"github.com/tokensmith/toksync/internal/store"
	"github.com/tokensmith/toksync/internal/token"
)

// Options tunes how divergences are computed.
type Options struct {
	// ModeOverrides maps a collection ID to the mode ID used for
	// comparison instead of the collection's default mode.
	ModeOverrides map[string]string

	// PersistDismissals controls whether keep-local resolutions of ADDED
	// divergences are remembered. When false, dismissed additions
	// re-surface on every sync; that behavior is explicit configuration,
	// not an accident.
	PersistDismissals bool
}

// DefaultOptions returns the options used when none are supplied.
func DefaultOptions() Options {
	return Options{PersistDismissals: true}
}

// engine implements the Engine interface.
type engine struct {
	db      *store.DB
	fetcher figma.Fetcher
	opts    Options
	logger  *log.Logger
}

// New creates a new Engine instance.
//
// The database connection must be initialized and have schema created
// before passing to this function.
//
// If logger is nil, a default logger writing to stderr is used.
//
// Example:
//
//	database, err := store.Open(".toksync/tokens.db")
//	if err != nil {
//	    return err
//	}
//	if err := database.InitSchema(); err != nil {
//	    return err
//	}
//	eng := engine.New(database, figma.NewClient(accessToken, nil), engine.DefaultOptions(), nil)
func New(db *store.DB, fetcher figma.Fetcher, opts Options, logger *log.Logger) Engine {
	if logger == nil {
		logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	return &engine{
		db:      db,
		fetcher: fetcher,
		opts:    opts,
		logger:  logger,
	}
}

// snapshots atomically reads the remote and local snapshot pair plus the
// dismissal set, and computes the divergence set from them.
func (e *engine) snapshots(ctx context.Context, projectID, fileKey string) ([]diff.Divergence, error) {
	snap, err := e.fetcher.FetchSnapshot(ctx, fileKey)
	if err != nil {
		return nil, err
	}

	local, err := e.db.ReadSnapshot(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to read local snapshot: %w", err)
	}

	dismissed := map[string]bool{}
	if e.opts.PersistDismissals {
		dismissed, err = e.db.ListDismissals(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("failed to read dismissals: %w", err)
		}
	}

	divergences := diff.Compute(snap, local, diff.Options{
		ModeOverrides: e.opts.ModeOverrides,
		Dismissed:     dismissed,
	})

	e.logger.Printf("Computed %d divergences for project %s (remote=%d variables, local=%d tokens)",
		len(divergences), projectID, len(snap.Variables), len(local))

	return divergences, nil
}

// Diff implements Engine.Diff.
func (e *engine) Diff(ctx context.Context, projectID, fileKey string) (*DiffResult, error) {
	divergences, err := e.snapshots(ctx, projectID, fileKey)
	if err != nil {
		return nil, err
	}

	return &DiffResult{
		ProjectID:   projectID,
		FileKey:     fileKey,
		Divergences: divergences,
		ComputedAt:  time.Now(),
	}, nil
}

// Apply implements Engine.Apply.
func (e *engine) Apply(ctx context.Context, projectID, fileKey string, resolutions []Resolution, origin token.Origin, actor string) (*SyncResult, error) {
	divergences, err := e.snapshots(ctx, projectID, fileKey)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{
		ProjectID:   projectID,
		Divergences: divergences,
	}

	batch := make([]resolve.Mutation, 0, len(resolutions))
	for _, r := range resolutions {
		d, err := diff.Find(divergences, r.Key)
		if err != nil {
			return result, fmt.Errorf("resolution targets unknown divergence: %w", err)
		}
		m, err := resolve.Resolve(d, r.Choice)
		if err != nil {
			return result, fmt.Errorf("failed to resolve %s: %w", r.Key, err)
		}
		batch = append(batch, m)
	}

	// Cancellation is honored up to this point; the batch itself either
	// fully commits or fully fails.
	if err := ctx.Err(); err != nil {
		return result, err
	}

	applied, err := e.db.Apply(ctx, projectID, batch, origin, actor)
	if err != nil {
		return result, err
	}

	e.logger.Printf("Applied batch for project %s: created=%d updated=%d deleted=%d dismissed=%d acknowledged=%d noops=%d",
		projectID, applied.Created, applied.Updated, applied.Deleted,
		applied.Dismissed, applied.Acknowledged, applied.Noops)

	result.Applied = applied
	return result, nil
}

// Import implements Engine.Import.
func (e *engine) Import(ctx context.Context, projectID, fileKey string) (*ImportResult, error) {
	divergences, err := e.snapshots(ctx, projectID, fileKey)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{Errors: []ImportError{}}

	var batch []resolve.Mutation
	for _, d := range divergences {
		switch d.Kind {
		case diff.Added, diff.Modified:
			m, err := resolve.Resolve(d, resolve.Choice{Kind: resolve.UseRemote})
			if err != nil {
				// One bad item never aborts the import.
				result.Errors = append(result.Errors, ImportError{Name: d.Name, Reason: err.Error()})
				continue
			}
			batch = append(batch, m)
		case diff.Removed:
			// Import only adopts; it never deletes local tokens.
		}
	}

	applied, err := e.db.Apply(ctx, projectID, batch, token.OriginFigma, "")
	if err != nil {
		return nil, err
	}

	result.Created = applied.Created
	result.Updated = applied.Updated

	e.logger.Printf("Imported file %s into project %s: created=%d updated=%d errors=%d",
		fileKey, projectID, result.Created, result.Updated, len(result.Errors))

	return result, nil
}

// History implements Engine.History.
func (e *engine) History(ctx context.Context, projectID string, filter store.HistoryFilter) ([]*token.HistoryEntry, error) {
	return e.db.ListHistory(ctx, projectID, filter)
}
