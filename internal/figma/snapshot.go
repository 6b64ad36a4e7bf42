// Package figma models the remote variable snapshot and the fetch
// collaborator that produces it.
//
// Snapshots are transient: they are fetched per sync run and never
// persisted verbatim. Only their effect on a token's external reference
// and last-known remote value survives a sync.
package figma

import (
	"fmt"
)

// Mode is a named variant axis on a collection (e.g. light/dark).
type Mode struct {
	ID   string `json:"modeId"`
	Name string `json:"name"`
}

// Collection groups variables and defines the modes their values vary over.
type Collection struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DefaultModeID string `json:"defaultModeId"`
	Modes         []Mode `json:"modes"`
}

// Variable is a single remote design value.
//
// A variable may carry a different value per mode. Within one sync run
// exactly one mode is selected for comparison: the collection's default
// mode unless overridden by configuration.
type Variable struct {
	ID           string                   `json:"id"`
	Name         string                   `json:"name"`
	CollectionID string                   `json:"variableCollectionId"`
	ResolvedType string                   `json:"resolvedType"` // BOOLEAN, FLOAT, STRING, COLOR
	ValuesByMode map[string]VariableValue `json:"valuesByMode"`
	Remote       bool                     `json:"remote"` // inherited from a library vs. local to the file
}

// Category derives the grouping label from the variable name.
// Figma variable names use slash-separated paths; the leading segment
// is the category ("color/primary-500" -> "color").
func (v *Variable) Category() string {
	for i := 0; i < len(v.Name); i++ {
		if v.Name[i] == '/' {
			return v.Name[:i]
		}
	}
	return ""
}

// Snapshot is a complete, immutable view of a remote file's variables.
type Snapshot struct {
	Collections map[string]Collection `json:"variableCollections"`
	Variables   map[string]Variable   `json:"variables"`
}

// ComparisonValue selects the value of v used for diffing.
//
// The collection's default mode is used unless modeOverrides maps the
// variable's collection ID to a different mode ID. A missing collection,
// missing mode, or missing value is an error: the diff engine degrades
// such variables per-item rather than aborting.
func (s *Snapshot) ComparisonValue(v Variable, modeOverrides map[string]string) (VariableValue, error) {
	coll, ok := s.Collections[v.CollectionID]
	if !ok {
		return VariableValue{}, fmt.Errorf("variable %s references unknown collection %s", v.ID, v.CollectionID)
	}

	modeID := coll.DefaultModeID
	if override, ok := modeOverrides[v.CollectionID]; ok && override != "" {
		modeID = override
	}

	val, ok := v.ValuesByMode[modeID]
	if !ok {
		return VariableValue{}, fmt.Errorf("variable %s has no value for mode %s", v.ID, modeID)
	}

	return val, nil
}
