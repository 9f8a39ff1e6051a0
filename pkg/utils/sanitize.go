package utils

import (
	"strings"
)

// EscapeSQLWildcards escapes SQL LIKE/ILIKE wildcard characters so user
// input can be used safely inside ILIKE patterns.
func EscapeSQLWildcards(input string) string {
	// Escape backslash first (as it's the escape character)
	input = strings.ReplaceAll(input, "\\", "\\\\")
	input = strings.ReplaceAll(input, "%", "\\%")
	input = strings.ReplaceAll(input, "_", "\\_")
	return input
}

// SanitizeSearchQuery prepares a search string for safe ILIKE usage
// Returns the sanitized term wrapped with % for partial matching
func SanitizeSearchQuery(input string) string {
	input = strings.TrimSpace(input)
	// Limit length to prevent DoS
	if len(input) > 100 {
		input = input[:100]
	}
	input = EscapeSQLWildcards(input)
	return "%" + input + "%"
}

// NormalizeMessageBody trims a message body and enforces the max length
// the composer allows. Returns the normalized body and whether it was valid.
func NormalizeMessageBody(body string) (string, bool) {
	body = strings.TrimSpace(body)
	if body == "" || len(body) > 8000 {
		return "", false
	}
	return body, true
}
