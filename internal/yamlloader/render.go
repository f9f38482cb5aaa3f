package yamlloader

import "math"

// Render converts a loaded tree into values encoding/json can emit.
// Regexps and symbols become single-key objects so they stay distinguishable
// from plain strings.
func Render(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = Render(item)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = Render(item)
		}
		return out
	case *Regexp:
		return map[string]string{"regexp": x.Source, "options": x.Options}
	case Symbol:
		return map[string]string{"symbol": string(x)}
	case float64:
		// JSON has no representation for these.
		switch {
		case math.IsNaN(x):
			return ".nan"
		case math.IsInf(x, 1):
			return ".inf"
		case math.IsInf(x, -1):
			return "-.inf"
		}
		return x
	default:
		return v
	}
}
