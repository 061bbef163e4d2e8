package models

import (
	"reflect"
	"testing"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name     string
		tags     []string
		expected []string
	}{
		{
			name:     "empty",
			tags:     nil,
			expected: nil,
		},
		{
			name:     "hash prefix",
			tags:     []string{"#energy", "food"},
			expected: []string{"energy", "food"},
		},
		{
			name:     "space separated legacy string",
			tags:     []string{" #urban  farming"},
			expected: []string{"urban", "farming"},
		},
		{
			name:     "mixed case and duplicates",
			tags:     []string{"Energy", "ENERGY", "energy"},
			expected: []string{"energy"},
		},
		{
			name:     "long tag truncated",
			tags:     []string{"this-is-a-very-long-tag-name-that-should-be-truncated"},
			expected: []string{"this-is-a-very-long-tag-name-tha"},
		},
		{
			name:     "punctuation only",
			tags:     []string{"###", "!!"},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeTags(tt.tags)
			if !reflect.DeepEqual(result, tt.expected) {
				t.Errorf("NormalizeTags(%q) = %q, want %q", tt.tags, result, tt.expected)
			}
		})
	}
}
