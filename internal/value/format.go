package value

import (
	"strconv"
	"strings"

	"github.com/vexlang/vex/internal/diagnostics"
)

// formatFloat renders a Number the way the "print" builtin does: fixed
// point with ten decimal places, trailing zeros trimmed, then a trailing
// bare "." trimmed. Never scientific notation.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', 10, 64)
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	if s == "" || s == "-" {
		s += "0"
	}
	return s
}

// Format renders v for print output: numbers trimmed, strings raw at
// top level and as dict keys but quoted as array elements and dict
// values, arrays and dicts recursive.
// Func and Var values are unprintable.
func Format(v Value) (string, error) {
	switch val := v.(type) {
	case Number:
		return formatFloat(float64(val)), nil
	case Text:
		return string(val), nil
	case *Array:
		var b strings.Builder
		b.WriteString("[")
		for i, elem := range val.Elems {
			if i > 0 {
				b.WriteString(", ")
			}
			part, err := formatElement(elem)
			if err != nil {
				return "", err
			}
			b.WriteString(part)
		}
		b.WriteString("]")
		return b.String(), nil
	case *Dict:
		var b strings.Builder
		b.WriteString("{")
		first := true
		var walkErr error
		val.ForEach(func(k HashableKey, elem Value) bool {
			if !first {
				b.WriteString(", ")
			}
			first = false
			keyPart, err := Format(k.Value())
			if err != nil {
				walkErr = err
				return false
			}
			b.WriteString(keyPart)
			b.WriteString(": ")
			part, err := formatElement(elem)
			if err != nil {
				walkErr = err
				return false
			}
			b.WriteString(part)
			return true
		})
		if walkErr != nil {
			return "", walkErr
		}
		b.WriteString("}")
		return b.String(), nil
	default:
		return "", diagnostics.New(diagnostics.PhaseRuntime, diagnostics.ErrR006, 0, 0, "tried to format unprintable value")
	}
}

// formatElement is Format for values nested inside a container, where
// strings are quoted.
func formatElement(v Value) (string, error) {
	if t, ok := v.(Text); ok {
		return strconv.Quote(string(t)), nil
	}
	return Format(v)
}
