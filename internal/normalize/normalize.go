// Package normalize converts token and variable values into a canonical,
// comparison-ready form.
//
// All functions are pure: the same input always yields the same canonical
// string, which is what makes the diff engine idempotent.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/tokensmith/toksync/internal/figma"
	"github.com/tokensmith/toksync/internal/token"
)

// MalformedValueError reports a value that cannot be parsed into the shape
// its declared type expects. The diff engine degrades the affected item to
// a modified divergence with the offending side marked invalid, rather
// than aborting the sync.
type MalformedValueError struct {
	Raw    string
	Type   token.Type
	Reason string
}

func (e *MalformedValueError) Error() string {
	return fmt.Sprintf("malformed %s value %q: %s", e.Type, e.Raw, e.Reason)
}

// Value canonicalizes a string-encoded local token value.
//
// COLOR accepts #RGB, #RRGGBB and #RRGGBBAA (case-insensitive) and yields
// lowercase #rrggbbaa with alpha defaulting to fully opaque. Numeric types
// strip a px suffix, round to 4 decimal places and drop trailing zeros.
// Everything else is compared as a trimmed string.
func Value(raw string, typ token.Type) (string, error) {
	trimmed := strings.TrimSpace(raw)

	switch {
	case typ == token.TypeColor:
		return canonicalHex(trimmed, typ)
	case typ.IsNumeric():
		return canonicalNumber(trimmed, typ)
	default:
		return trimmed, nil
	}
}

// Remote canonicalizes a remote variable's per-mode value.
//
// Colors arrive as RGBA float tuples, numbers as floats, and everything
// else as strings or booleans. Aliases cannot be compared by value and are
// reported as malformed so the diff engine surfaces them for review.
func Remote(v figma.VariableValue, typ token.Type) (string, error) {
	switch {
	case v.Color != nil:
		if typ != token.TypeColor {
			return "", &MalformedValueError{Raw: v.String(), Type: typ, Reason: "color value for non-color token"}
		}
		return hexFromRGBA(*v.Color), nil
	case v.Float != nil:
		if typ.IsNumeric() {
			return formatNumber(*v.Float), nil
		}
		return strconv.FormatFloat(*v.Float, 'f', -1, 64), nil
	case v.Str != nil:
		return Value(*v.Str, typ)
	case v.Bool != nil:
		return strconv.FormatBool(*v.Bool), nil
	case v.Alias != nil:
		return "", &MalformedValueError{Raw: v.String(), Type: typ, Reason: "unresolved variable alias"}
	default:
		return "", &MalformedValueError{Raw: "", Type: typ, Reason: "empty value"}
	}
}

// Equal reports whether a local and a remote value canonicalize to the
// same form. Either side failing to normalize is reported as an error.
func Equal(local string, remote figma.VariableValue, typ token.Type) (bool, error) {
	lc, err := Value(local, typ)
	if err != nil {
		return false, err
	}
	rc, err := Remote(remote, typ)
	if err != nil {
		return false, err
	}
	return lc == rc, nil
}

// canonicalHex parses a hex color string into lowercase #rrggbbaa.
func canonicalHex(raw string, typ token.Type) (string, error) {
	if !strings.HasPrefix(raw, "#") {
		return "", &MalformedValueError{Raw: raw, Type: typ, Reason: "missing # prefix"}
	}

	digits := strings.ToLower(raw[1:])
	switch len(digits) {
	case 3:
		// #rgb -> #rrggbb
		expanded := make([]byte, 6)
		for i := 0; i < 3; i++ {
			expanded[2*i] = digits[i]
			expanded[2*i+1] = digits[i]
		}
		digits = string(expanded) + "ff"
	case 6:
		digits += "ff"
	case 8:
		// already has alpha
	default:
		return "", &MalformedValueError{Raw: raw, Type: typ, Reason: "expected 3, 6 or 8 hex digits"}
	}

	if _, err := strconv.ParseUint(digits, 16, 64); err != nil {
		return "", &MalformedValueError{Raw: raw, Type: typ, Reason: "invalid hex digits"}
	}

	return "#" + digits, nil
}

// hexFromRGBA converts Figma's float channels into canonical #rrggbbaa.
func hexFromRGBA(c figma.RGBA) string {
	rgb := colorful.Color{R: c.R, G: c.G, B: c.B}.Clamped()
	alpha := c.A
	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}
	return fmt.Sprintf("%s%02x", rgb.Hex(), uint8(alpha*255.0+0.5))
}

// canonicalNumber parses a numeric value, tolerating a px unit suffix.
func canonicalNumber(raw string, typ token.Type) (string, error) {
	s := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(raw), "px"))
	if s == "" {
		return "", &MalformedValueError{Raw: raw, Type: typ, Reason: "empty numeric value"}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return "", &MalformedValueError{Raw: raw, Type: typ, Reason: "not a number"}
	}

	return formatNumber(f), nil
}

// formatNumber rounds to 4 decimal places and trims trailing zeros, so
// floating point noise from the two sides cannot produce false diffs.
func formatNumber(f float64) string {
	rounded := math.Round(f*10000) / 10000
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}
