package token

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Token is a named design value owned by exactly one project.
//
// Tokens are stored flat: Value is a string whose semantics depend on Type.
// ExternalRef links a token to the remote variable it was imported from;
// RemoteValue is the remote value as of the last sync and is used to tell
// remote-side drift apart from local edits.
type Token struct {
	ID          string `json:"id"`
	ProjectID   string `json:"project_id"`
	Name        string `json:"name"`
	Value       string `json:"value"`
	Type        Type   `json:"type"`
	Category    string `json:"category,omitempty"`
	Description string `json:"description,omitempty"`

	// ===== Remote linkage =====
	ExternalRef string `json:"external_ref,omitempty"`
	RemoteValue string `json:"remote_value,omitempty"`

	// ===== Concurrency & timestamps =====
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks if the Token has valid field values.
func (t *Token) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("id is required")
	}
	if t.ProjectID == "" {
		return fmt.Errorf("project_id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(t.Name) > 200 {
		return fmt.Errorf("name must be 200 characters or less (got %d)", len(t.Name))
	}
	if !t.Type.IsValid() {
		return fmt.Errorf("invalid token type: %s", t.Type)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	if t.UpdatedAt.IsZero() {
		return fmt.Errorf("updated_at is required")
	}
	return nil
}

// SetDefaults applies default values for optional fields.
func (t *Token) SetDefaults() {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Type == "" {
		t.Type = TypeOther
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now()
	}
}

// UpdateTimestamp sets UpdatedAt to current time.
// This should be called whenever any field is modified.
func (t *Token) UpdateTimestamp() {
	t.UpdatedAt = time.Now()
}

// Clone returns a deep copy of the token.
func (t *Token) Clone() *Token {
	c := *t
	return &c
}

// NewID returns a new opaque token identifier: tk- followed by 12 hex chars.
func NewID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("token: id generation failed: %v", err))
	}
	return "tk-" + hex.EncodeToString(buf)
}

// Filename returns the canonical filename for this token: {id}.json
func (t *Token) Filename() string {
	return fmt.Sprintf("%s.json", t.ID)
}

// ReadFile reads and parses a token JSON file from the given path.
func ReadFile(path string) (*Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token file %s: %w", path, err)
	}

	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", path, err)
	}

	if err := tok.Validate(); err != nil {
		return nil, fmt.Errorf("invalid token file %s: %w", path, err)
	}

	return &tok, nil
}

// WriteFile writes a Token to disk as pretty-printed JSON in dir/{id}.json.
func WriteFile(dir string, tok *Token) error {
	if err := tok.Validate(); err != nil {
		return fmt.Errorf("cannot write invalid token: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create tokens directory: %w", err)
	}

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal token %s: %w", tok.ID, err)
	}

	path := filepath.Join(dir, tok.Filename())
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write token file %s: %w", path, err)
	}

	return nil
}

// ReadAllFiles reads all token files from the given directory.
// Invalid files are skipped with a warning to stderr.
func ReadAllFiles(dir string) ([]*Token, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*Token{}, nil // Empty directory is valid
		}
		return nil, fmt.Errorf("failed to read tokens directory: %w", err)
	}

	var tokens []*Token
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		tok, err := ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: skipping invalid token file %s: %v\n", entry.Name(), err)
			continue
		}

		tokens = append(tokens, tok)
	}

	return tokens, nil
}
