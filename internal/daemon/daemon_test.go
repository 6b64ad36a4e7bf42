package daemon

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tokensmith/toksync/internal/engine"
	"github.com/tokensmith/toksync/internal/figma"
	"github.com/tokensmith/toksync/internal/store"
	"github.com/tokensmith/toksync/internal/token"
)

// emptyFetcher serves a snapshot with no variables.
type emptyFetcher struct{}

func (emptyFetcher) FetchSnapshot(ctx context.Context, fileKey string) (*figma.Snapshot, error) {
	return &figma.Snapshot{
		Collections: map[string]figma.Collection{},
		Variables:   map[string]figma.Variable{},
	}, nil
}

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *store.DB {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}
	return db
}

func testConfig() *Config {
	return &Config{
		RemoteSyncInterval: time.Hour, // never fires during tests
		DebounceInterval:   20 * time.Millisecond,
		Actor:              "daemon-test",
		Logger:             log.New(os.Stderr, "[daemon-test] ", log.LstdFlags),
	}
}

func writeTokenFile(t *testing.T, dir, id, name, value string) {
	t.Helper()

	now := time.Now()
	tok := &token.Token{
		ID:        id,
		ProjectID: "proj-1",
		Name:      name,
		Value:     value,
		Type:      token.TypeColor,
		Category:  "color",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := token.WriteFile(dir, tok); err != nil {
		t.Fatalf("failed to write token file: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	db := setupTestDB(t)
	eng := engine.New(db, emptyFetcher{}, engine.DefaultOptions(), nil)

	if _, err := New(nil, eng, nil, "proj-1", "file-1", t.TempDir(), nil); err == nil {
		t.Error("expected error for nil db")
	}
	if _, err := New(db, nil, nil, "proj-1", "file-1", t.TempDir(), nil); err == nil {
		t.Error("expected error for nil engine")
	}
	if _, err := New(db, eng, nil, "", "file-1", t.TempDir(), nil); err == nil {
		t.Error("expected error for empty project")
	}
	if _, err := New(db, eng, nil, "proj-1", "file-1", "", nil); err == nil {
		t.Error("expected error for empty tokens dir")
	}

	d, err := New(db, eng, nil, "proj-1", "file-1", t.TempDir(), nil)
	if err != nil {
		t.Fatalf("valid construction failed: %v", err)
	}
	if err := d.Stop(); err != nil {
		t.Errorf("stop failed: %v", err)
	}
}

func TestSyncAllFiles(t *testing.T) {
	db := setupTestDB(t)
	eng := engine.New(db, emptyFetcher{}, engine.DefaultOptions(), nil)

	tokensDir := t.TempDir()
	writeTokenFile(t, tokensDir, "tk-000000000001", "color/primary", "#ff0000ff")
	writeTokenFile(t, tokensDir, "tk-000000000002", "color/secondary", "#00ff00ff")

	d, err := New(db, eng, nil, "proj-1", "file-1", tokensDir, testConfig())
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	defer d.Stop()

	if err := d.SyncAllFiles(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	count, err := db.GetTokenCount(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 tokens, got %d", count)
	}
}

func TestWatchPicksUpFileChanges(t *testing.T) {
	db := setupTestDB(t)
	eng := engine.New(db, emptyFetcher{}, engine.DefaultOptions(), nil)

	tokensDir := t.TempDir()

	d, err := New(db, eng, nil, "proj-1", "file-1", tokensDir, testConfig())
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Let the daemon reach its watch loop before writing.
	time.Sleep(200 * time.Millisecond)

	writeTokenFile(t, tokensDir, "tk-000000000001", "color/primary", "#ff0000ff")

	// Poll for the debounced write to land in the store.
	deadline := time.Now().Add(3 * time.Second)
	for {
		tok, err := db.GetToken(context.Background(), "tk-000000000001")
		if err == nil && tok.Value == "#ff0000ff" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("file change never reached the store")
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Manual file edits are recorded with MANUAL origin.
	entries, err := db.ListHistory(context.Background(), "proj-1", store.HistoryFilter{TokenID: "tk-000000000001"})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(entries) == 0 || entries[0].Origin != token.OriginManual {
		t.Errorf("expected MANUAL origin entry, got %+v", entries)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("daemon exited with error: %v", err)
	}
}

func TestWatchHandlesDeletion(t *testing.T) {
	db := setupTestDB(t)
	eng := engine.New(db, emptyFetcher{}, engine.DefaultOptions(), nil)

	tokensDir := t.TempDir()
	writeTokenFile(t, tokensDir, "tk-000000000001", "color/primary", "#ff0000ff")

	d, err := New(db, eng, nil, "proj-1", "file-1", tokensDir, testConfig())
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	time.Sleep(200 * time.Millisecond)

	// The initial sync recorded the token; now remove its file.
	if err := os.Remove(filepath.Join(tokensDir, "tk-000000000001.json")); err != nil {
		t.Fatalf("failed to remove file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		if _, err := db.GetToken(context.Background(), "tk-000000000001"); err != nil {
			break // token gone from the store
		}
		if time.Now().After(deadline) {
			t.Fatal("deletion never reached the store")
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestRunRemoteSync(t *testing.T) {
	db := setupTestDB(t)
	eng := engine.New(db, emptyFetcher{}, engine.DefaultOptions(), nil)

	d, err := New(db, eng, nil, "proj-1", "file-1", t.TempDir(), testConfig())
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	defer d.Stop()

	if err := d.RunRemoteSync(); err != nil {
		t.Errorf("remote sync failed: %v", err)
	}
}

func TestRunRemoteSyncRequiresFileKey(t *testing.T) {
	db := setupTestDB(t)
	eng := engine.New(db, emptyFetcher{}, engine.DefaultOptions(), nil)

	d, err := New(db, eng, nil, "proj-1", "", t.TempDir(), testConfig())
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	defer d.Stop()

	if err := d.RunRemoteSync(); err == nil {
		t.Error("expected error without a configured file key")
	}
}
