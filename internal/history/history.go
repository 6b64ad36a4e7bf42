// Package history builds immutable audit entries from before/after token
// states.
//
// Entries capture only the fields that actually differ; a mutation that
// changed nothing produces no entry at all, so no-op applies never pollute
// the audit trail.
package history

import (
	"time"

	"github.com/tokensmith/toksync/internal/token"
)

// trackedField pairs a history field name with its accessor.
type trackedField struct {
	name string
	get  func(*token.Token) string
}

// trackedFields are the token fields recorded in history entries, in a
// fixed order so change maps are built deterministically.
var trackedFields = []trackedField{
	{"name", func(t *token.Token) string { return t.Name }},
	{"value", func(t *token.Token) string { return t.Value }},
	{"type", func(t *token.Token) string { return string(t.Type) }},
	{"category", func(t *token.Token) string { return t.Category }},
	{"description", func(t *token.Token) string { return t.Description }},
	{"external_ref", func(t *token.Token) string { return t.ExternalRef }},
	{"remote_value", func(t *token.Token) string { return t.RemoteValue }},
}

// Changes computes the field-level difference between two token states.
// Either side may be nil (creation has no before, deletion no after).
// Only fields whose values differ are included.
func Changes(before, after *token.Token) map[string]token.FieldChange {
	changes := make(map[string]token.FieldChange)

	for _, f := range trackedFields {
		var b, a string
		if before != nil {
			b = f.get(before)
		}
		if after != nil {
			a = f.get(after)
		}
		if b == a {
			continue
		}
		changes[f.name] = token.FieldChange{Before: b, After: a}
	}

	return changes
}

// Entry builds the audit record for one applied mutation.
//
// Returns nil when nothing differs between before and after: a no-op apply
// must not be written to the trail. The entry's ID is assigned by the
// store on append.
func Entry(tokenID string, action token.Action, before, after *token.Token, origin token.Origin, actor string) *token.HistoryEntry {
	changes := Changes(before, after)
	if len(changes) == 0 {
		return nil
	}

	return &token.HistoryEntry{
		TokenID:   tokenID,
		Action:    action,
		Changes:   changes,
		Origin:    origin,
		Actor:     actor,
		CreatedAt: time.Now(),
	}
}
