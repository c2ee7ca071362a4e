package mcp

import (
	"testing"
)

func TestMaskValue(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected string
	}{
		{name: "empty value", value: "", expected: ""},
		{name: "1 character", value: "a", expected: "*"},
		{name: "4 characters", value: "abcd", expected: "****"},
		{name: "5 characters", value: "abcde", expected: "***de"},
		{name: "8 characters", value: "abcdefgh", expected: "******gh"},
		{name: "9 characters", value: "abcdefghi", expected: "*****fghi"},
		{name: "long value", value: "sk-proj-1234567890abcdef", expected: "********************cdef"},
		{name: "multibyte suffix", value: "パスワード秘密", expected: "*****秘密"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskValue([]rune(tt.value))
			if result != tt.expected {
				t.Errorf("maskValue(%q) = %q, expected %q", tt.value, result, tt.expected)
			}
		})
	}
}

func TestHasTag(t *testing.T) {
	tags := []string{"prod", "API"}
	if !hasTag(tags, "api") {
		t.Error("hasTag should match case-insensitively")
	}
	if hasTag(tags, "dev") {
		t.Error("hasTag matched a missing tag")
	}
	if hasTag(nil, "prod") {
		t.Error("hasTag matched on nil tags")
	}
}
