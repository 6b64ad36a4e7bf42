package diff

import (
	"fmt"
	"sort"

	"github.com/tokensmith/toksync/internal/figma"
	"github.com/tokensmith/toksync/internal/normalize"
	"github.com/tokensmith/toksync/internal/token"
)

// Kind classifies a divergence.
type Kind string

const (
	// Added means the variable exists remotely but has no local counterpart.
	Added Kind = "ADDED"
	// Removed means a local token's external reference points at a
	// variable that is absent from the remote snapshot.
	Removed Kind = "REMOVED"
	// Modified means both sides exist and their canonical values differ.
	Modified Kind = "MODIFIED"
)

// Divergence is a single computed discrepancy between the remote and local
// token representations. It is a pure function of the two input snapshots:
// recomputing from the same snapshots yields an identical set.
type Divergence struct {
	// Key is a stable identifier usable to submit a resolution choice in
	// a follow-up call.
	Key string `json:"key"`

	Kind       Kind   `json:"kind"`
	VariableID string `json:"variable_id,omitempty"`
	TokenID    string `json:"token_id,omitempty"`

	Name     string     `json:"name"`
	Category string     `json:"category,omitempty"`
	Type     token.Type `json:"type"`

	LocalValue  string `json:"local_value,omitempty"`
	RemoteValue string `json:"remote_value,omitempty"`

	// RemoteInvalid marks a remote value that failed normalization; the
	// raw form is carried in RemoteValue for display.
	RemoteInvalid bool `json:"remote_invalid,omitempty"`

	// Proposed marks a pairing made by name match rather than a
	// persisted external reference.
	Proposed bool `json:"proposed,omitempty"`

	// AffectedComponents is informational only.
	AffectedComponents int `json:"affected_components,omitempty"`

	// BaseVersion is the token version read at diff time. Mutations
	// derived from this divergence fail with a stale-target error when
	// the stored version has moved on.
	BaseVersion int64 `json:"base_version,omitempty"`
}

// Options configures a diff run.
type Options struct {
	// ModeOverrides maps a collection ID to the mode ID to compare with,
	// overriding the collection's default mode.
	ModeOverrides map[string]string

	// Dismissed holds variable IDs whose ADDED divergence was dismissed
	// with a keep-local resolution; they are not re-surfaced.
	Dismissed map[string]bool
}

// Compute produces the full divergence set between the remote snapshot and
// the local tokens.
//
// The result is stably ordered: ADDED first (by remote name ascending),
// then REMOVED (by local name ascending), then MODIFIED (by local name
// ascending), so repeated runs on unchanged input produce identical
// output. Both inputs are treated as immutable; nothing is persisted.
//
// A per-item normalization failure degrades that item to a MODIFIED
// divergence with the remote side marked invalid, never aborting the run.
func Compute(snap *figma.Snapshot, local []*token.Token, opts Options) []Divergence {
	m := Match(snap, local)

	byID := make(map[string]*token.Token, len(local))
	for _, tok := range local {
		byID[tok.ID] = tok
	}

	var added, removed, modified []Divergence

	// Remote variables with no match: ADDED.
	for id, v := range snap.Variables {
		if _, ok := m.ByVariable[id]; ok {
			continue
		}
		if opts.Dismissed[id] {
			continue
		}

		typ := token.TypeFromFigma(v.ResolvedType, v.Name)
		d := Divergence{
			Key:        "added:" + id,
			Kind:       Added,
			VariableID: id,
			Name:       v.Name,
			Category:   v.Category(),
			Type:       typ,
		}

		raw, err := snap.ComparisonValue(v, opts.ModeOverrides)
		if err != nil {
			d.RemoteInvalid = true
		} else if canonical, err := normalize.Remote(raw, typ); err != nil {
			d.RemoteValue = raw.String()
			d.RemoteInvalid = true
		} else {
			d.RemoteValue = canonical
		}

		added = append(added, d)
	}

	// Local tokens whose external reference target is gone: REMOVED.
	for _, tok := range local {
		if tok.ExternalRef == "" {
			continue
		}
		if _, ok := snap.Variables[tok.ExternalRef]; ok {
			continue
		}

		removed = append(removed, Divergence{
			Key:         "removed:" + tok.ID,
			Kind:        Removed,
			VariableID:  tok.ExternalRef,
			TokenID:     tok.ID,
			Name:        tok.Name,
			Category:    tok.Category,
			Type:        tok.Type,
			LocalValue:  tok.Value,
			BaseVersion: tok.Version,
		})
	}

	// Matched pairs with differing canonical values: MODIFIED.
	for varID, tokID := range m.ByVariable {
		v := snap.Variables[varID]
		tok := byID[tokID]
		if tok == nil {
			continue
		}

		d := Divergence{
			Key:         "modified:" + tok.ID,
			Kind:        Modified,
			VariableID:  varID,
			TokenID:     tok.ID,
			Name:        tok.Name,
			Category:    tok.Category,
			Type:        tok.Type,
			LocalValue:  tok.Value,
			Proposed:    m.Proposed[varID],
			BaseVersion: tok.Version,
		}

		raw, err := snap.ComparisonValue(v, opts.ModeOverrides)
		if err != nil {
			d.RemoteInvalid = true
			modified = append(modified, d)
			continue
		}

		localCanonical, lerr := normalize.Value(tok.Value, tok.Type)
		remoteCanonical, rerr := normalize.Remote(raw, tok.Type)
		switch {
		case rerr != nil:
			d.RemoteValue = raw.String()
			d.RemoteInvalid = true
		case acknowledged(tok, remoteCanonical):
			// The drift was resolved keep-local and the remote has not
			// moved since; surfacing it again would undo the resolution.
			continue
		case lerr != nil:
			// Local value does not parse as its declared type; the remote
			// canonical form is attached so the conflict is reviewable.
			d.RemoteValue = remoteCanonical
		case localCanonical == remoteCanonical:
			continue // values agree, not reported
		default:
			d.RemoteValue = remoteCanonical
		}

		modified = append(modified, d)
	}

	sortDivergences(added)
	sortDivergences(removed)
	sortDivergences(modified)

	out := make([]Divergence, 0, len(added)+len(removed)+len(modified))
	out = append(out, added...)
	out = append(out, removed...)
	out = append(out, modified...)
	return out
}

// acknowledged reports whether the current remote canonical form equals
// the token's last-known remote value, meaning the drift was already seen
// and resolved. The stored value is canonicalized before comparing so a
// hand-edited token file cannot defeat the check with an equivalent
// spelling.
func acknowledged(tok *token.Token, remoteCanonical string) bool {
	if tok.RemoteValue == "" {
		return false
	}
	known, err := normalize.Value(tok.RemoteValue, tok.Type)
	if err != nil {
		return tok.RemoteValue == remoteCanonical
	}
	return known == remoteCanonical
}

// sortDivergences orders by name ascending, falling back to the stable key
// so equal names cannot reorder between runs.
func sortDivergences(ds []Divergence) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].Name != ds[j].Name {
			return ds[i].Name < ds[j].Name
		}
		return ds[i].Key < ds[j].Key
	})
}

// Find returns the divergence with the given key, or an error if the key
// does not appear in the set.
func Find(ds []Divergence, key string) (Divergence, error) {
	for _, d := range ds {
		if d.Key == key {
			return d, nil
		}
	}
	return Divergence{}, fmt.Errorf("no divergence with key %s", key)
}
