package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeLogString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Empty string", input: "", expected: ""},
		{name: "Room name", input: "Room1", expected: "Room1"},
		{name: "Hangul is kept", input: "입장 : Bob", expected: "입장 : Bob"},
		{name: "Format verbs are kept", input: "%s %d", expected: "%s %d"},
		{
			name:     "Newlines",
			input:    "First line\nSecond line\r\nThird line",
			expected: "First line Second line Third line",
		},
		{
			name:     "Control characters",
			input:    "Room\twith\x00control\x1Fcharacters",
			expected: "Room with control characters",
		},
		{
			name:     "Long string truncation",
			input:    strings.Repeat("A", 300),
			expected: strings.Repeat("A", MaxLogStringLength) + "... (truncated)",
		},
		{
			name:     "Multibyte truncation keeps whole runes",
			input:    strings.Repeat("방", 250),
			expected: strings.Repeat("방", MaxLogStringLength) + "... (truncated)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeLogString(tt.input))
		})
	}
}
