package store

import (
	"context"
	"testing"
	"time"

	"github.com/tokensmith/toksync/internal/token"
)

func newStoredToken(id, name, category, value string) *token.Token {
	now := time.Now()
	return &token.Token{
		ID:        id,
		ProjectID: "proj-1",
		Name:      name,
		Value:     value,
		Type:      token.TypeColor,
		Category:  category,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestUpsertAndGetToken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tok := newStoredToken("tk-000000000001", "color/primary", "color", "#ff0000ff")
	tok.Description = "Primary brand color"
	tok.ExternalRef = "v1"

	if err := db.UpsertToken(ctx, tok, token.OriginManual, "alice"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := db.GetToken(ctx, tok.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != tok.Name || got.Value != tok.Value || got.ExternalRef != "v1" ||
		got.Description != tok.Description || got.Version != 1 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestUpsertTokenUpdateBumpsVersion(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tok := newStoredToken("tk-000000000001", "color/primary", "color", "#ff0000ff")
	if err := db.UpsertToken(ctx, tok, token.OriginManual, "alice"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	edit := tok.Clone()
	edit.Value = "#00ff00ff"
	if err := db.UpsertToken(ctx, edit, token.OriginManual, "alice"); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, _ := db.GetToken(ctx, tok.ID)
	if got.Version != 2 || got.Value != "#00ff00ff" {
		t.Errorf("expected version bump, got %+v", got)
	}

	// No-op upsert leaves version and history alone.
	if err := db.UpsertToken(ctx, got, token.OriginManual, "alice"); err != nil {
		t.Fatalf("no-op upsert failed: %v", err)
	}
	again, _ := db.GetToken(ctx, tok.ID)
	if again.Version != 2 {
		t.Errorf("no-op upsert must not bump version, got %d", again.Version)
	}
	if n, _ := db.GetHistoryCount(ctx, "proj-1"); n != 2 {
		t.Errorf("expected 2 history entries, got %d", n)
	}
}

func TestReadSnapshotOrdering(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tokens := []*token.Token{
		newStoredToken("tk-000000000003", "spacing/lg", "spacing", "16"),
		newStoredToken("tk-000000000001", "color/zeta", "color", "#111111ff"),
		newStoredToken("tk-000000000002", "color/alpha", "color", "#222222ff"),
	}
	for _, tok := range tokens {
		if err := db.UpsertToken(ctx, tok, token.OriginManual, ""); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	got, err := db.ReadSnapshot(ctx, "proj-1")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(got))
	}
	// Ordered by category, then name.
	if got[0].Name != "color/alpha" || got[1].Name != "color/zeta" || got[2].Name != "spacing/lg" {
		t.Errorf("unexpected order: %s, %s, %s", got[0].Name, got[1].Name, got[2].Name)
	}
}

func TestReadSnapshotScopedByProject(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := newStoredToken("tk-000000000001", "color/a", "color", "#111111ff")
	b := newStoredToken("tk-000000000002", "color/b", "color", "#222222ff")
	b.ProjectID = "proj-2"
	for _, tok := range []*token.Token{a, b} {
		if err := db.UpsertToken(ctx, tok, token.OriginManual, ""); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	got, err := db.ReadSnapshot(ctx, "proj-1")
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("snapshot leaked across projects: %+v", got)
	}
}

func TestDeleteTokenIdempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tok := newStoredToken("tk-000000000001", "color/primary", "color", "#ff0000ff")
	if err := db.UpsertToken(ctx, tok, token.OriginManual, ""); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	if err := db.DeleteToken(ctx, tok.ID, token.OriginManual, "alice"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := db.GetToken(ctx, tok.ID); err == nil {
		t.Error("token should be gone")
	}

	// Deleting an absent token is not an error.
	if err := db.DeleteToken(ctx, tok.ID, token.OriginManual, "alice"); err != nil {
		t.Errorf("repeated delete should be a no-op: %v", err)
	}

	entries, err := db.ListHistory(ctx, "proj-1", HistoryFilter{TokenID: tok.ID})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected create + delete entries, got %d", len(entries))
	}
}

func TestListHistoryFilters(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a := newStoredToken("tk-000000000001", "color/a", "color", "#111111ff")
	if err := db.UpsertToken(ctx, a, token.OriginManual, "alice"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	edit := a.Clone()
	edit.Value = "#333333ff"
	if err := db.UpsertToken(ctx, edit, token.OriginFigma, "sync"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	b := newStoredToken("tk-000000000002", "color/b", "color", "#222222ff")
	if err := db.UpsertToken(ctx, b, token.OriginManual, "alice"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	byToken, err := db.ListHistory(ctx, "proj-1", HistoryFilter{TokenID: a.ID})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(byToken) != 2 {
		t.Errorf("expected 2 entries for token a, got %d", len(byToken))
	}

	byOrigin, err := db.ListHistory(ctx, "proj-1", HistoryFilter{Origin: token.OriginFigma})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(byOrigin) != 1 || byOrigin[0].Origin != token.OriginFigma {
		t.Errorf("expected 1 FIGMA entry, got %+v", byOrigin)
	}

	byAction, err := db.ListHistory(ctx, "proj-1", HistoryFilter{Action: token.ActionCreated})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(byAction) != 2 {
		t.Errorf("expected 2 created entries, got %d", len(byAction))
	}

	limited, err := db.ListHistory(ctx, "proj-1", HistoryFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 entry with limit, got %d", len(limited))
	}

	// Offset without a limit skips and returns the rest.
	skipped, err := db.ListHistory(ctx, "proj-1", HistoryFilter{Offset: 1})
	if err != nil {
		t.Fatalf("offset-only history failed: %v", err)
	}
	if len(skipped) != 2 {
		t.Errorf("expected 2 entries after skipping 1, got %d", len(skipped))
	}

	// Actor NULL round-trips as empty string.
	c := newStoredToken("tk-000000000003", "color/c", "color", "#444444ff")
	if err := db.UpsertToken(ctx, c, token.OriginManual, ""); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	entries, err := db.ListHistory(ctx, "proj-1", HistoryFilter{TokenID: c.ID})
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Actor != "" {
		t.Errorf("expected empty actor, got %+v", entries)
	}
}

func TestListDismissalsEmpty(t *testing.T) {
	db := setupTestDB(t)

	dismissed, err := db.ListDismissals(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(dismissed) != 0 {
		t.Errorf("expected empty map, got %v", dismissed)
	}
}
