package token

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// newTestToken returns a valid token for test use.
func newTestToken(id, name string) *Token {
	now := time.Now()
	return &Token{
		ID:        id,
		ProjectID: "proj-1",
		Name:      name,
		Value:     "#ff0000ff",
		Type:      TypeColor,
		Category:  "color",
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTokenValidate(t *testing.T) {
	tok := newTestToken("tk-000000000001", "primary-500")
	if err := tok.Validate(); err != nil {
		t.Errorf("valid token rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Token)
	}{
		{"missing id", func(tk *Token) { tk.ID = "" }},
		{"missing project", func(tk *Token) { tk.ProjectID = "" }},
		{"missing name", func(tk *Token) { tk.Name = "" }},
		{"name too long", func(tk *Token) { tk.Name = strings.Repeat("x", 201) }},
		{"bad type", func(tk *Token) { tk.Type = "GRADIENT" }},
		{"zero created_at", func(tk *Token) { tk.CreatedAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := newTestToken("tk-000000000001", "primary-500")
			tt.mutate(tok)
			if err := tok.Validate(); err == nil {
				t.Error("expected validation error, got none")
			}
		})
	}
}

func TestSetDefaults(t *testing.T) {
	tok := &Token{ProjectID: "proj-1", Name: "x"}
	tok.SetDefaults()

	if !strings.HasPrefix(tok.ID, "tk-") || len(tok.ID) != 15 {
		t.Errorf("unexpected generated ID: %q", tok.ID)
	}
	if tok.Type != TypeOther {
		t.Errorf("expected default type OTHER, got %s", tok.Type)
	}
	if tok.CreatedAt.IsZero() || tok.UpdatedAt.IsZero() {
		t.Error("expected timestamps to be set")
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	tok := newTestToken("tk-aabbccddeeff", "primary-500")
	tok.ExternalRef = "VariableID:1:23"
	tok.Description = "Primary brand color"

	if err := WriteFile(dir, tok); err != nil {
		t.Fatalf("failed to write token: %v", err)
	}

	got, err := ReadFile(filepath.Join(dir, tok.Filename()))
	if err != nil {
		t.Fatalf("failed to read token back: %v", err)
	}

	if got.ID != tok.ID || got.Name != tok.Name || got.Value != tok.Value ||
		got.Type != tok.Type || got.ExternalRef != tok.ExternalRef {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, tok)
	}
}

func TestWriteFileRejectsInvalid(t *testing.T) {
	tok := &Token{ID: "tk-1"} // missing required fields
	if err := WriteFile(t.TempDir(), tok); err == nil {
		t.Fatal("expected error writing invalid token")
	}
}

func TestReadAllFilesSkipsInvalid(t *testing.T) {
	dir := t.TempDir()

	if err := WriteFile(dir, newTestToken("tk-000000000001", "good")); err != nil {
		t.Fatalf("failed to write token: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write broken file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644); err != nil {
		t.Fatalf("failed to write txt file: %v", err)
	}

	tokens, err := ReadAllFiles(dir)
	if err != nil {
		t.Fatalf("ReadAllFiles failed: %v", err)
	}
	if len(tokens) != 1 {
		t.Errorf("expected 1 token, got %d", len(tokens))
	}
}

func TestReadAllFilesMissingDir(t *testing.T) {
	tokens, err := ReadAllFiles(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("expected no error for missing dir, got %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("expected empty slice, got %d tokens", len(tokens))
	}
}

func TestTypeFromFigma(t *testing.T) {
	tests := []struct {
		resolvedType string
		name         string
		want         Type
	}{
		{"COLOR", "color/primary-500", TypeColor},
		{"color", "anything", TypeColor},
		{"FLOAT", "spacing/lg", TypeSpacing},
		{"FLOAT", "radius/card", TypeBorderRadius},
		{"FLOAT", "font-size/body", TypeFontSize},
		{"FLOAT", "opacity/disabled", TypeOpacity},
		{"FLOAT", "line-height/tight", TypeLineHeight},
		{"FLOAT", "z-index/modal", TypeZIndex},
		{"FLOAT", "misc/scale", TypeOther},
		{"FLOAT", "duration/fast", TypeOther},
		{"STRING", "font/family", TypeOther},
		{"BOOLEAN", "feature/flag", TypeOther},
		{"UNKNOWN_KIND", "whatever", TypeOther},
	}

	for _, tt := range tests {
		got := TypeFromFigma(tt.resolvedType, tt.name)
		if got != tt.want {
			t.Errorf("TypeFromFigma(%q, %q) = %s, want %s", tt.resolvedType, tt.name, got, tt.want)
		}
	}
}

func TestOriginIsValid(t *testing.T) {
	for _, o := range []Origin{OriginManual, OriginFigma, OriginAutomation, OriginAI} {
		if !o.IsValid() {
			t.Errorf("origin %s should be valid", o)
		}
	}
	if Origin("ROBOT").IsValid() {
		t.Error("unknown origin should be invalid")
	}
}

func TestHistoryEntryValidate(t *testing.T) {
	entry := &HistoryEntry{
		TokenID: "tk-000000000001",
		Action:  ActionUpdated,
		Changes: map[string]FieldChange{"value": {Before: "#111111ff", After: "#222222ff"}},
		Origin:  OriginManual,
	}
	if err := entry.Validate(); err != nil {
		t.Errorf("valid entry rejected: %v", err)
	}

	empty := &HistoryEntry{
		TokenID: "tk-000000000001",
		Action:  ActionUpdated,
		Origin:  OriginManual,
	}
	if err := empty.Validate(); err == nil {
		t.Error("expected error for empty changes")
	}
}
