// Package daemon provides the sync daemon that orchestrates token file
// watching and remote reconciliation.
//
// The daemon:
// 1. Watches for file changes in the tokens/ directory
// 2. Records edited files in the store as manual changes
// 3. Periodically re-diffs the store against the remote design file
// 4. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tokensmith/toksync/internal/dashboard"
	"github.com/tokensmith/toksync/internal/engine"
	"github.com/tokensmith/toksync/internal/store"
	"github.com/tokensmith/toksync/internal/token"
)

// Config holds configuration for the daemon.
type Config struct {
	// RemoteSyncInterval is how often to re-diff against the remote file
	RemoteSyncInterval time.Duration

	// DebounceInterval is how long to wait before processing file changes
	// This batches rapid updates together
	DebounceInterval time.Duration

	// AutoAdopt adopts remote additions and modifications automatically
	// during periodic sync instead of only reporting them
	AutoAdopt bool

	// Actor recorded on history entries written by the daemon
	Actor string

	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RemoteSyncInterval: 5 * time.Minute,
		DebounceInterval:   100 * time.Millisecond,
		Actor:              "daemon",
		Logger:             log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates token file watching and remote synchronization.
type Daemon struct {
	db        *store.DB
	engine    engine.Engine
	dash      *dashboard.Server // optional, may be nil
	projectID string
	fileKey   string
	tokensDir string
	config    *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> timestamp
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Daemon instance.
//
// The daemon requires:
//   - db: the token store
//   - eng: the sync engine used for periodic remote reconciliation
//   - projectID, fileKey: the project and its remote design file
//   - tokensDir: directory containing token JSON files (tokens/*.json)
//
// dash may be nil to run without a dashboard. Use Start() to begin
// watching and syncing.
func New(db *store.DB, eng engine.Engine, dash *dashboard.Server, projectID, fileKey, tokensDir string, config *Config) (*Daemon, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if projectID == "" {
		return nil, fmt.Errorf("projectID cannot be empty")
	}
	if tokensDir == "" {
		return nil, fmt.Errorf("tokensDir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		db:          db,
		engine:      eng,
		dash:        dash,
		projectID:   projectID,
		fileKey:     fileKey,
		tokensDir:   tokensDir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start begins the daemon's operation.
//
// The daemon will:
// 1. Record all token files into the store
// 2. Start watching for file changes
// 3. Periodically re-diff against the remote design file
// 4. Process file changes with debouncing
//
// This blocks until ctx is cancelled or an error occurs.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	// Record the current state of the tokens directory
	if err := d.SyncAllFiles(); err != nil {
		return fmt.Errorf("initial file sync failed: %w", err)
	}

	if err := d.watcher.Add(d.tokensDir); err != nil {
		return fmt.Errorf("failed to watch tokens directory: %w", err)
	}

	d.config.Logger.Printf("Watching: %s", d.tokensDir)

	// Start background goroutines
	d.wg.Add(3)
	go d.watchFileEvents()
	go d.processChangeQueue()
	go d.remoteSyncLoop()

	// Wait for shutdown
	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	// Signal shutdown
	d.cancel()

	// Close watcher
	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	// Wait for goroutines to finish
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// SyncAllFiles records every token file in the watched directory into
// the store. Called on startup and available for manual triggering.
func (d *Daemon) SyncAllFiles() error {
	d.config.Logger.Println("Syncing token files")

	tokens, err := token.ReadAllFiles(d.tokensDir)
	if err != nil {
		return fmt.Errorf("failed to read tokens: %w", err)
	}

	d.config.Logger.Printf("Syncing %d tokens", len(tokens))
	for _, tok := range tokens {
		tok.ProjectID = d.projectID
		if err := d.db.UpsertToken(d.ctx, tok, token.OriginManual, d.config.Actor); err != nil {
			d.config.Logger.Printf("Warning: failed to sync token %s: %v", tok.ID, err)
		}
	}

	d.config.Logger.Println("File sync complete")
	return nil
}

// watchFileEvents monitors filesystem events and queues changes.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}

			// Only care about Create, Write, Remove
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}

			// Only process .json files
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			d.config.Logger.Printf("File event: %s %s", event.Op, event.Name)
			d.queueChange(event.Name)

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// queueChange adds a file to the change queue with debouncing.
func (d *Daemon) queueChange(path string) {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	d.changeQueue[path] = time.Now()
}

// processChangeQueue processes queued file changes with debouncing.
func (d *Daemon) processChangeQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.processPendingChanges()
		}
	}
}

// processPendingChanges syncs files that have been queued for long enough.
func (d *Daemon) processPendingChanges() {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()

	for path, queuedAt := range d.changeQueue {
		// Only process if enough time has passed (debouncing)
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}

		d.config.Logger.Printf("Processing change: %s", path)

		if err := d.syncTokenFile(path); err != nil {
			d.config.Logger.Printf("Error syncing token %s: %v", path, err)
		}

		delete(d.changeQueue, path)
	}
}

// syncTokenFile records a single token file into the store.
func (d *Daemon) syncTokenFile(path string) error {
	// Check if file was deleted
	if _, err := os.Stat(path); os.IsNotExist(err) {
		tokenID := strings.TrimSuffix(filepath.Base(path), ".json")

		d.config.Logger.Printf("Deleting token: %s", tokenID)
		if err := d.db.DeleteToken(d.ctx, tokenID, token.OriginManual, d.config.Actor); err != nil {
			return err
		}
		d.broadcastTokenUpdate(tokenID, "deleted", nil)
		return nil
	}

	tok, err := token.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read token file: %w", err)
	}

	tok.ProjectID = d.projectID
	if err := d.db.UpsertToken(d.ctx, tok, token.OriginManual, d.config.Actor); err != nil {
		return err
	}
	d.broadcastTokenUpdate(tok.ID, "updated", tok)
	return nil
}

// remoteSyncLoop periodically re-diffs the store against the remote file.
func (d *Daemon) remoteSyncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.RemoteSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			if err := d.RunRemoteSync(); err != nil {
				d.config.Logger.Printf("Error syncing remote: %v", err)
			}
		}
	}
}

// RunRemoteSync performs a single reconciliation pass against the
// remote design file. With AutoAdopt set it imports remote additions
// and modifications; otherwise it only reports divergences.
func (d *Daemon) RunRemoteSync() error {
	if d.fileKey == "" {
		return fmt.Errorf("no remote file configured")
	}

	start := time.Now()

	if d.config.AutoAdopt {
		res, err := d.engine.Import(d.ctx, d.projectID, d.fileKey)
		if err != nil {
			return err
		}
		d.config.Logger.Printf("Auto-adopt: %d created, %d updated, %d errors",
			res.Created, res.Updated, len(res.Errors))
		for _, ie := range res.Errors {
			d.config.Logger.Printf("Warning: skipped %s: %s", ie.Name, ie.Reason)
		}
	}

	res, err := d.engine.Diff(d.ctx, d.projectID, d.fileKey)
	if err != nil {
		return err
	}

	d.config.Logger.Printf("Remote sync: %d divergences", len(res.Divergences))

	if d.dash != nil {
		d.dash.BroadcastDivergences(d.projectID, res.Divergences)
		d.broadcastSyncComplete(len(res.Divergences), time.Since(start))
	}
	return nil
}

func (d *Daemon) broadcastTokenUpdate(tokenID, action string, tok *token.Token) {
	if d.dash == nil {
		return
	}
	data := dashboard.TokenUpdateData{TokenID: tokenID, Action: action}
	if tok != nil {
		data.Name = tok.Name
		data.Value = tok.Value
	}
	d.dash.Broadcast(dashboard.NewMessage(dashboard.MessageTypeTokenUpdate, data))
}

func (d *Daemon) broadcastSyncComplete(divergences int, elapsed time.Duration) {
	d.dash.Broadcast(dashboard.NewMessage(dashboard.MessageTypeSyncComplete, dashboard.SyncCompleteData{
		ProjectID:   d.projectID,
		Divergences: divergences,
		Duration:    elapsed,
	}))
}
