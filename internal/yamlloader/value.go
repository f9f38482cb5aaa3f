package yamlloader

import "math"

// Equal reports whether two loaded trees are structurally equal. Regexps are
// compared by source and options.
func Equal(a, b any) bool {
	switch x := a.(type) {
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *Regexp:
		y, ok := b.(*Regexp)
		if !ok || x == nil || y == nil {
			return ok && x == y
		}
		return x.Source == y.Source && x.Options == y.Options
	case float64:
		// .nan loads as NaN, which never compares equal to itself.
		y, ok := b.(float64)
		return ok && (x == y || math.IsNaN(x) && math.IsNaN(y))
	default:
		switch b.(type) {
		case map[string]any, []any, *Regexp:
			return false
		}
		return a == b
	}
}

// Clone returns a deep copy of a loaded tree. Compiled regexps are immutable
// and shared between the copies.
func Clone(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Clone(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Clone(item)
		}
		return out
	default:
		return v
	}
}
