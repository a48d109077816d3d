package catalog

import (
	"fmt"
	"strings"
	"unicode"
)

// opaqueKeys hold user data whose nested keys must be kept as written.
var opaqueKeys = map[string]bool{"value": true}

// camelKeys rewrites every map key to camelCase, recursively.
func camelKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			key := camel(fmt.Sprint(k))
			if opaqueKeys[key] {
				m[key] = stringKeys(v)
				continue
			}
			m[key] = camelKeys(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			key := camel(k)
			if opaqueKeys[key] {
				m[key] = stringKeys(v)
				continue
			}
			m[key] = camelKeys(v)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = camelKeys(x[i])
		}
		return out
	default:
		return in
	}
}

// stringKeys makes a value JSON-marshalable without renaming anything.
func stringKeys(in any) any {
	switch x := in.(type) {
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[fmt.Sprint(k)] = stringKeys(v)
		}
		return m
	case map[string]any:
		m := make(map[string]any, len(x))
		for k, v := range x {
			m[k] = stringKeys(v)
		}
		return m
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = stringKeys(x[i])
		}
		return out
	default:
		return in
	}
}

// camel turns "data_model_id" or "data-model-id" into "dataModelId".
// Keys without separators are returned unchanged.
func camel(s string) string {
	if !strings.ContainsAny(s, "_-") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	upper := false
	for _, r := range s {
		if r == '_' || r == '-' {
			upper = b.Len() > 0
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		if b.Len() == 0 {
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
