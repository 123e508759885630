// Package normalize cleans raw recognizer text before it enters the intent
// pipeline. Recognizers emit artifacts — filler words, stray punctuation,
// inconsistent casing and spacing — that would otherwise make the downstream
// regex rules needlessly defensive.
package normalize

import (
	"regexp"
	"strings"
)

// fillers are standalone words removed from transcripts. Matching is
// case-insensitive and bounded by word boundaries so "umbrella" survives "um".
var fillers = regexp.MustCompile(`(?i)\b(um+|uh+|erm+|hmm+|like,|you know,)\b`)

// trailingPunct strips terminal punctuation the recognizer sometimes appends.
var trailingPunct = regexp.MustCompile(`[.!?,;:]+$`)

// multiSpace collapses runs of whitespace left behind by filler removal.
var multiSpace = regexp.MustCompile(`\s{2,}`)

// Utterance cleans a raw transcript for intent matching: fillers removed,
// terminal punctuation stripped, whitespace collapsed and trimmed.
// The original casing is preserved because entity extraction relies on it
// (capitalized location and person names).
func Utterance(raw string) string {
	s := fillers.ReplaceAllString(raw, " ")
	s = multiSpace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = trailingPunct.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Segments splits a transcript into sentence-like segments on terminal
// punctuation. Recognizers occasionally pack two commands into one final
// result ("stop. what's the weather"); each segment is normalized
// independently. Empty segments are dropped.
func Segments(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if n := Utterance(p); n != "" {
			out = append(out, n)
		}
	}
	return out
}
