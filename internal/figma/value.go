package figma

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RGBA is Figma's color wire format: channels as floats in [0, 1].
type RGBA struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// VariableValue is the tagged union of value shapes a variable can carry
// per mode: a bare number, string or boolean, an RGBA color object, or an
// alias to another variable.
//
// Exactly one of the pointer fields is set after a successful unmarshal.
type VariableValue struct {
	Float *float64
	Str   *string
	Bool  *bool
	Color *RGBA
	Alias *string // target variable ID
}

// aliasValue matches Figma's {"type": "VARIABLE_ALIAS", "id": "..."} shape.
type aliasValue struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// UnmarshalJSON decodes any of the wire shapes Figma uses for per-mode values.
func (v *VariableValue) UnmarshalJSON(data []byte) error {
	*v = VariableValue{}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch val := raw.(type) {
	case float64:
		v.Float = &val
		return nil
	case string:
		v.Str = &val
		return nil
	case bool:
		v.Bool = &val
		return nil
	case map[string]any:
		if t, ok := val["type"].(string); ok && t == "VARIABLE_ALIAS" {
			var alias aliasValue
			if err := json.Unmarshal(data, &alias); err != nil {
				return fmt.Errorf("failed to parse variable alias: %w", err)
			}
			v.Alias = &alias.ID
			return nil
		}
		var color RGBA
		if err := json.Unmarshal(data, &color); err != nil {
			return fmt.Errorf("failed to parse color value: %w", err)
		}
		v.Color = &color
		return nil
	default:
		return fmt.Errorf("unsupported variable value shape: %s", data)
	}
}

// MarshalJSON re-encodes the value in its original wire shape.
func (v VariableValue) MarshalJSON() ([]byte, error) {
	switch {
	case v.Float != nil:
		return json.Marshal(*v.Float)
	case v.Str != nil:
		return json.Marshal(*v.Str)
	case v.Bool != nil:
		return json.Marshal(*v.Bool)
	case v.Color != nil:
		return json.Marshal(*v.Color)
	case v.Alias != nil:
		return json.Marshal(aliasValue{Type: "VARIABLE_ALIAS", ID: *v.Alias})
	default:
		return []byte("null"), nil
	}
}

// IsZero reports whether no value shape is set.
func (v VariableValue) IsZero() bool {
	return v.Float == nil && v.Str == nil && v.Bool == nil && v.Color == nil && v.Alias == nil
}

// String returns a raw display form of the value, used in logs and error
// messages. It is NOT the canonical comparison form; see the normalize
// package for that.
func (v VariableValue) String() string {
	switch {
	case v.Float != nil:
		return strconv.FormatFloat(*v.Float, 'f', -1, 64)
	case v.Str != nil:
		return *v.Str
	case v.Bool != nil:
		return strconv.FormatBool(*v.Bool)
	case v.Color != nil:
		return fmt.Sprintf("rgba(%g, %g, %g, %g)", v.Color.R, v.Color.G, v.Color.B, v.Color.A)
	case v.Alias != nil:
		return "alias:" + *v.Alias
	default:
		return ""
	}
}
