// Package diff computes the divergence set between a remote variable
// snapshot and the local token store.
package diff

import (
	"strings"

	"github.com/tokensmith/toksync/internal/figma"
	"github.com/tokensmith/toksync/internal/token"
)

// Matching maps remote variables to local tokens for one diff run.
type Matching struct {
	// ByVariable maps a variable ID to the matched token's ID.
	ByVariable map[string]string

	// Proposed marks variable IDs whose match was made by name rather
	// than by a persisted external reference. The link is only written
	// back when the resulting divergence is resolved and applied.
	Proposed map[string]bool
}

// Match pairs remote variables with local tokens.
//
// The first pass links by stable external reference
// (Token.ExternalRef == Variable.ID) using an id-keyed lookup. The second
// pass attempts a case-insensitive name match within the same category for
// variables still unmatched, considering only tokens that lack any
// external reference. An exact case match wins over a case-insensitive
// one; an ambiguous match (more than one candidate) is left unmatched so
// the variable surfaces as an addition instead of being silently
// misattributed.
func Match(snap *figma.Snapshot, local []*token.Token) *Matching {
	m := &Matching{
		ByVariable: make(map[string]string),
		Proposed:   make(map[string]bool),
	}

	byRef := make(map[string]*token.Token, len(local))
	for _, tok := range local {
		if tok.ExternalRef != "" {
			byRef[tok.ExternalRef] = tok
		}
	}

	// Pass 1: persisted external references.
	for id := range snap.Variables {
		if tok, ok := byRef[id]; ok {
			m.ByVariable[id] = tok.ID
		}
	}

	// Index unlinked tokens by category + lowercase name for pass 2.
	type nameKey struct {
		category string
		name     string
	}
	byName := make(map[nameKey][]*token.Token)
	for _, tok := range local {
		if tok.ExternalRef != "" {
			continue
		}
		key := nameKey{category: tok.Category, name: strings.ToLower(tok.Name)}
		byName[key] = append(byName[key], tok)
	}

	// Pass 2: unique case-insensitive name matches. Each unmatched
	// variable proposes at most one token; the proposals are then checked
	// for competition so the outcome never depends on map iteration order.
	proposals := make(map[string]*token.Token) // variable ID -> candidate
	wanted := make(map[string][]string)        // token ID -> variable IDs
	for id, v := range snap.Variables {
		if _, ok := m.ByVariable[id]; ok {
			continue
		}

		key := nameKey{category: v.Category(), name: strings.ToLower(v.Name)}
		candidates := byName[key]
		if len(candidates) == 0 {
			continue
		}

		// Prefer exact case match over case-insensitive.
		var exact []*token.Token
		for _, tok := range candidates {
			if tok.Name == v.Name {
				exact = append(exact, tok)
			}
		}
		if len(exact) > 0 {
			candidates = exact
		}

		// Still ambiguous: leave unmatched.
		if len(candidates) != 1 {
			continue
		}

		proposals[id] = candidates[0]
		wanted[candidates[0].ID] = append(wanted[candidates[0].ID], id)
	}

	for id, tok := range proposals {
		if winner, ok := claimant(snap, tok, wanted[tok.ID]); !ok || winner != id {
			continue
		}
		m.ByVariable[id] = tok.ID
		m.Proposed[id] = true
	}

	return m
}

// claimant decides which of the competing variables gets the token. A
// single contender wins outright; among several, a unique exact-case name
// match wins; otherwise the pairing is ambiguous and every contender is
// left unmatched, surfacing each as an addition.
func claimant(snap *figma.Snapshot, tok *token.Token, varIDs []string) (string, bool) {
	if len(varIDs) == 1 {
		return varIDs[0], true
	}
	var exact []string
	for _, id := range varIDs {
		if snap.Variables[id].Name == tok.Name {
			exact = append(exact, id)
		}
	}
	if len(exact) == 1 {
		return exact[0], true
	}
	return "", false
}
