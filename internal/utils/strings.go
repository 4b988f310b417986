package utils

import "strings"

// ParseCSV splits a comma-separated string and returns trimmed non-empty values.
// Returns nil for empty/whitespace-only input.
func ParseCSV(s string) []string {
	if s == "" {
		return nil
	}

	var result []string
	for _, v := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return nil
	}

	return result
}

// ParseKeyValues parses "A=B,C=D" into a map with upper-cased keys and
// values. Entries without '=' or with an empty side are skipped.
func ParseKeyValues(s string) map[string]string {
	result := make(map[string]string)
	for _, pair := range ParseCSV(s) {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.ToUpper(strings.TrimSpace(value))
		if !ok || key == "" || value == "" {
			continue
		}
		result[key] = value
	}
	return result
}
