package util

import "strings"

// MatchName resolves a free-form value against a closed candidate set:
// exact match, then case-insensitive trimmed match, then bidirectional
// substring match. Returns the matched candidate or empty string.
func MatchName(value string, candidates []string) string {
	for _, c := range candidates {
		if value == c {
			return c
		}
	}
	norm := strings.ToLower(strings.TrimSpace(value))
	if norm == "" {
		return ""
	}
	for _, c := range candidates {
		if norm == strings.ToLower(strings.TrimSpace(c)) {
			return c
		}
	}
	for _, c := range candidates {
		cn := strings.ToLower(strings.TrimSpace(c))
		if strings.Contains(norm, cn) || strings.Contains(cn, norm) {
			return c
		}
	}
	return ""
}

// ContextKey converts a human-readable step name into the key used for that
// step's data in generation and lookup contexts.
func ContextKey(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
