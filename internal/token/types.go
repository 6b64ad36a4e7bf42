// Package token defines the design token data model shared across toksync.
package token

import (
	"fmt"
	"strings"
	"time"
)

// Type is the closed set of design token types.
type Type string

const (
	TypeColor        Type = "COLOR"
	TypeSpacing      Type = "SPACING"
	TypeTypography   Type = "TYPOGRAPHY"
	TypeBorderRadius Type = "BORDER_RADIUS"
	TypeShadow       Type = "SHADOW"
	TypeFontSize     Type = "FONT_SIZE"
	TypeFontWeight   Type = "FONT_WEIGHT"
	TypeLineHeight   Type = "LINE_HEIGHT"
	TypeOpacity      Type = "OPACITY"
	TypeZIndex       Type = "Z_INDEX"
	TypeOther        Type = "OTHER"
)

// IsValid reports whether t is one of the known token types.
func (t Type) IsValid() bool {
	switch t {
	case TypeColor, TypeSpacing, TypeTypography, TypeBorderRadius,
		TypeShadow, TypeFontSize, TypeFontWeight, TypeLineHeight,
		TypeOpacity, TypeZIndex, TypeOther:
		return true
	}
	return false
}

// IsNumeric reports whether values of this type are compared as numbers.
func (t Type) IsNumeric() bool {
	switch t {
	case TypeSpacing, TypeBorderRadius, TypeFontSize, TypeFontWeight,
		TypeLineHeight, TypeOpacity, TypeZIndex:
		return true
	}
	return false
}

// TypeFromFigma maps a Figma resolved type to a local token type.
//
// The mapping is total: any resolved type that has no local counterpart
// falls back to TypeOther rather than failing. For FLOAT variables the
// variable name is consulted, since Figma does not distinguish spacing
// from font sizes or opacities.
func TypeFromFigma(resolvedType, name string) Type {
	switch strings.ToUpper(resolvedType) {
	case "COLOR":
		return TypeColor
	case "FLOAT":
		return numericTypeFromName(name)
	case "STRING", "BOOLEAN":
		return TypeOther
	default:
		return TypeOther
	}
}

// numericTypeFromName guesses a numeric token type from naming conventions
// like "spacing/lg" or "font-size/body".
func numericTypeFromName(name string) Type {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "spacing"), strings.Contains(lower, "space"):
		return TypeSpacing
	case strings.Contains(lower, "radius"):
		return TypeBorderRadius
	case strings.Contains(lower, "font-size"), strings.Contains(lower, "fontsize"):
		return TypeFontSize
	case strings.Contains(lower, "font-weight"), strings.Contains(lower, "fontweight"), strings.Contains(lower, "weight"):
		return TypeFontWeight
	case strings.Contains(lower, "line-height"), strings.Contains(lower, "lineheight"), strings.Contains(lower, "leading"):
		return TypeLineHeight
	case strings.Contains(lower, "opacity"):
		return TypeOpacity
	case strings.Contains(lower, "z-index"), strings.Contains(lower, "zindex"):
		return TypeZIndex
	default:
		// Nothing in the name identifies the numeric kind; OTHER keeps
		// the value compared as an opaque string instead of guessing.
		return TypeOther
	}
}

// Origin identifies where a change to the token store came from.
type Origin string

const (
	// OriginManual is a human edit from an interactive session.
	OriginManual Origin = "MANUAL"
	// OriginFigma is a change adopted from the remote design tool.
	OriginFigma Origin = "FIGMA"
	// OriginAutomation is a scheduled or unattended sync run.
	OriginAutomation Origin = "AUTOMATION"
	// OriginAI is an agent-proposed resolution.
	OriginAI Origin = "AI"
)

// IsValid reports whether o is one of the four known origins.
func (o Origin) IsValid() bool {
	switch o {
	case OriginManual, OriginFigma, OriginAutomation, OriginAI:
		return true
	}
	return false
}

// Action describes what happened to a token in a history entry.
type Action string

const (
	ActionCreated  Action = "created"
	ActionUpdated  Action = "updated"
	ActionDeleted  Action = "deleted"
	ActionImported Action = "imported"
)

// FieldChange records a single field's before/after values.
type FieldChange struct {
	Before string `json:"before"`
	After  string `json:"after"`
}

// HistoryEntry is an immutable audit record for one applied change.
//
// Entries are append-only: once written they are never mutated or deleted.
// Ordering is by CreatedAt, ties broken by the autoincrement ID.
type HistoryEntry struct {
	ID        int64                  `json:"id"`
	TokenID   string                 `json:"token_id"`
	Action    Action                 `json:"action"`
	Changes   map[string]FieldChange `json:"changes"`
	Origin    Origin                 `json:"origin"`
	Actor     string                 `json:"actor,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Validate checks the entry before it is appended.
func (e *HistoryEntry) Validate() error {
	if e.TokenID == "" {
		return fmt.Errorf("token_id is required")
	}
	switch e.Action {
	case ActionCreated, ActionUpdated, ActionDeleted, ActionImported:
	default:
		return fmt.Errorf("invalid action: %s", e.Action)
	}
	if !e.Origin.IsValid() {
		return fmt.Errorf("invalid origin: %s", e.Origin)
	}
	if len(e.Changes) == 0 {
		return fmt.Errorf("changes must not be empty")
	}
	return nil
}
