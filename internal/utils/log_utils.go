// Package utils holds small helpers shared by the relay and transport packages.
package utils

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxLogStringLength defines the maximum length for client-provided strings in logs
const MaxLogStringLength = 200

var unprintable = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{S}\p{Z}]`)

// SanitizeLogString makes a client-controlled string safe to attach to a log record.
// Control characters become spaces and long input is cut at MaxLogStringLength runes.
func SanitizeLogString(input string) string {
	if input == "" {
		return ""
	}

	runes := []rune(input)
	if len(runes) > MaxLogStringLength {
		input = string(runes[:MaxLogStringLength]) + "... (truncated)"
	}

	input = strings.ReplaceAll(input, "\r\n", "\n")

	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, input)

	return unprintable.ReplaceAllString(sanitized, "")
}
