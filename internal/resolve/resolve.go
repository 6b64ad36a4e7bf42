// Package resolve turns a divergence plus a chosen side into the concrete
// local-store mutation required to settle it.
//
// The policy is pure: given the same (divergence, choice) pair it always
// yields the same mutation and performs no I/O.
package resolve

import (
	"fmt"

	"github.com/tokensmith/toksync/internal/diff"
	"github.com/tokensmith/toksync/internal/token"
)

// ChoiceKind selects which side of a divergence wins.
type ChoiceKind string

const (
	// KeepLocal keeps the local token as-is.
	KeepLocal ChoiceKind = "KEEP_LOCAL"
	// UseRemote adopts the remote variable's value.
	UseRemote ChoiceKind = "USE_REMOTE"
	// Explicit bypasses both sides with a supplied value.
	Explicit ChoiceKind = "EXPLICIT"
)

// Choice is the chosen disposition for one divergence.
type Choice struct {
	Kind  ChoiceKind
	Value string // only meaningful for Explicit
}

// ExplicitValue builds an Explicit choice carrying the override value.
func ExplicitValue(v string) Choice {
	return Choice{Kind: Explicit, Value: v}
}

// Op is the kind of store mutation a resolution produces.
type Op string

const (
	// OpNone applies no change at all.
	OpNone Op = "none"
	// OpCreate inserts a new token linked to the remote variable.
	OpCreate Op = "create"
	// OpUpdate rewrites an existing token's value and remote linkage.
	OpUpdate Op = "update"
	// OpDelete removes the local token.
	OpDelete Op = "delete"
	// OpDismiss records a dismissed remote variable so its addition is
	// not re-surfaced on every sync.
	OpDismiss Op = "dismiss"
	// OpAcknowledge updates only the last-known remote value, leaving
	// the token's visible value untouched.
	OpAcknowledge Op = "acknowledge"
)

// Mutation is a concrete create/update/delete instruction derived from a
// resolution. Mutations are idempotent by construction: a create whose
// external reference already exists becomes an update, and a delete of an
// absent token is a no-op.
type Mutation struct {
	Op Op

	TokenID    string
	VariableID string

	Name        string
	Category    string
	Description string
	Type        token.Type
	Value       string
	ExternalRef string
	RemoteValue string

	// BaseVersion is the token version the divergence was computed from;
	// the store rejects the mutation as stale when it no longer matches.
	BaseVersion int64
}

// Resolve maps a (divergence, choice) pair to its mutation.
func Resolve(d diff.Divergence, c Choice) (Mutation, error) {
	switch d.Kind {
	case diff.Added:
		return resolveAdded(d, c)
	case diff.Removed:
		return resolveRemoved(d, c)
	case diff.Modified:
		return resolveModified(d, c)
	default:
		return Mutation{}, fmt.Errorf("unknown divergence kind: %s", d.Kind)
	}
}

func resolveAdded(d diff.Divergence, c Choice) (Mutation, error) {
	switch c.Kind {
	case KeepLocal:
		// Dismissal is persisted so the same addition is not re-surfaced
		// on every subsequent sync.
		return Mutation{Op: OpDismiss, VariableID: d.VariableID, Name: d.Name}, nil
	case UseRemote:
		if d.RemoteInvalid {
			return Mutation{}, fmt.Errorf("cannot adopt %s: remote value is invalid", d.Name)
		}
		return Mutation{
			Op:          OpCreate,
			VariableID:  d.VariableID,
			Name:        d.Name,
			Category:    d.Category,
			Type:        d.Type,
			Value:       d.RemoteValue,
			ExternalRef: d.VariableID,
			RemoteValue: d.RemoteValue,
		}, nil
	case Explicit:
		return Mutation{
			Op:          OpCreate,
			VariableID:  d.VariableID,
			Name:        d.Name,
			Category:    d.Category,
			Type:        d.Type,
			Value:       c.Value,
			ExternalRef: d.VariableID,
			RemoteValue: d.RemoteValue,
		}, nil
	default:
		return Mutation{}, fmt.Errorf("unknown choice: %s", c.Kind)
	}
}

func resolveRemoved(d diff.Divergence, c Choice) (Mutation, error) {
	switch c.Kind {
	case KeepLocal:
		// Remote absence is tolerated; the token stays as-is and the
		// divergence reappears on the next sync.
		return Mutation{Op: OpNone, TokenID: d.TokenID}, nil
	case UseRemote:
		return Mutation{
			Op:          OpDelete,
			TokenID:     d.TokenID,
			Name:        d.Name,
			BaseVersion: d.BaseVersion,
		}, nil
	case Explicit:
		return Mutation{
			Op:          OpUpdate,
			TokenID:     d.TokenID,
			Name:        d.Name,
			Value:       c.Value,
			BaseVersion: d.BaseVersion,
		}, nil
	default:
		return Mutation{}, fmt.Errorf("unknown choice: %s", c.Kind)
	}
}

func resolveModified(d diff.Divergence, c Choice) (Mutation, error) {
	switch c.Kind {
	case KeepLocal:
		// Record the remote value so future diffs do not re-flag the
		// same drift as new; the visible value never changes.
		return Mutation{
			Op:          OpAcknowledge,
			TokenID:     d.TokenID,
			Name:        d.Name,
			RemoteValue: d.RemoteValue,
			BaseVersion: d.BaseVersion,
		}, nil
	case UseRemote:
		if d.RemoteInvalid {
			return Mutation{}, fmt.Errorf("cannot adopt %s: remote value is invalid", d.Name)
		}
		return Mutation{
			Op:          OpUpdate,
			TokenID:     d.TokenID,
			Name:        d.Name,
			Value:       d.RemoteValue,
			ExternalRef: d.VariableID,
			RemoteValue: d.RemoteValue,
			BaseVersion: d.BaseVersion,
		}, nil
	case Explicit:
		return Mutation{
			Op:          OpUpdate,
			TokenID:     d.TokenID,
			Name:        d.Name,
			Value:       c.Value,
			ExternalRef: d.VariableID,
			RemoteValue: d.RemoteValue,
			BaseVersion: d.BaseVersion,
		}, nil
	default:
		return Mutation{}, fmt.Errorf("unknown choice: %s", c.Kind)
	}
}
