package utils

import "strings"

// FirstString accepts a single id or a sequence of ids (as decoded from a form
// or JSON body) and returns the first element, trimmed. It returns "" when the
// first element is missing or is not a string; later elements are never
// consulted.
func FirstString(v any) string {
	var first any
	switch t := v.(type) {
	case string:
		first = t
	case []string:
		if len(t) > 0 {
			first = t[0]
		}
	case []any:
		if len(t) > 0 {
			first = t[0]
		}
	}
	s, _ := first.(string)
	return strings.TrimSpace(s)
}
