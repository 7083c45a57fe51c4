package util

import (
	"html"
	"strings"
)

// SanitizeInput trims and escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// ContainsSuspicious reports whether a value carries characters that have no
// business appearing in an account or device identifier.
func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "\"", "'", "{", "}", "script"}
	lower := strings.ToLower(s)
	for _, c := range badChars {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}
