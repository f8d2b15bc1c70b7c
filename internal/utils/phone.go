package utils

import (
	"regexp"
	"strings"
)

var (
	phoneRegex      = regexp.MustCompile(`^\+?[0-9]{4,15}$`)
	phoneStripRegex = regexp.MustCompile(`[^\d+]`)
)

// IsValidPhone accepts local and E.164 numbers once separators are removed.
func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(NormalizePhone(phone))
}

// NormalizePhone drops separators so "555-1234" and "555 1234" compare equal.
// A leading + is kept.
func NormalizePhone(phone string) string {
	phone = strings.TrimSpace(phone)
	plus := strings.HasPrefix(phone, "+")
	normalized := strings.ReplaceAll(phoneStripRegex.ReplaceAllString(phone, ""), "+", "")
	if plus {
		normalized = "+" + normalized
	}
	return normalized
}
