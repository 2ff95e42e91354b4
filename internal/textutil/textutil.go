// Package textutil provides text helpers shared across the curation stages:
// whitespace word counting for the filter threshold and rune-safe truncation
// for bounding prompt sizes.
package textutil

import "strings"

// WordCount returns the number of whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Truncate returns text shortened to at most limit runes. Truncation never
// splits a rune; a non-positive limit returns the empty string.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// FirstLine returns text up to the first newline with surrounding
// whitespace trimmed.
func FirstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}
