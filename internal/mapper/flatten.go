package mapper

import (
	"regexp"
	"strings"
)

var camelBoundary = regexp.MustCompile(`([a-z0-9])([A-Z])`)

// camelToSnake converts camelCase to snake_case ("trimVersion" → "trim_version").
func camelToSnake(s string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(s, "${1}_${2}"))
}

// flattenBag flattens a nested key→value bag, joining nested keys with "_"
// and snake-casing each component. Non-map leaves are kept as-is; arrays and
// other unconvertible leaves are left for the caller to reject per-field.
func flattenBag(bag map[string]any) map[string]any {
	out := make(map[string]any, len(bag))
	flattenInto(out, "", bag)
	return out
}

func flattenInto(out map[string]any, prefix string, bag map[string]any) {
	for k, v := range bag {
		key := camelToSnake(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// sanitizeName makes s usable as a metric-name component: invalid characters
// become underscores and runs of underscores collapse.
func sanitizeName(s string) string {
	s = invalidNameChars.ReplaceAllString(s, "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_")
}

// numericValue converts the loosely-typed values JSON decoding produces into
// a gauge value. Booleans map to 0/1, matching how the appliance itself
// interchanges the two encodings.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
