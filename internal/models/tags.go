package models

import (
	"strings"

	"github.com/gosimple/slug"
)

// MaxTagLength bounds a normalized tag.
const MaxTagLength = 32

// NormalizeTags cleans user supplied tags: a leading '#' is dropped, the rest
// is slugified and cut to MaxTagLength. Empty results and duplicates are
// removed; the first occurrence keeps its position.
func NormalizeTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool, len(tags))
	for _, raw := range tags {
		for _, field := range strings.Fields(raw) {
			tag := slug.Make(strings.TrimLeft(field, "#"))
			if len(tag) > MaxTagLength {
				tag = strings.TrimRight(tag[:MaxTagLength], "-")
			}
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	return out
}
