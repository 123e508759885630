// Package wakeword detects a configured trigger phrase in finalized
// transcripts. Recognizers routinely mangle the trigger ("hey atlas" comes
// back as "hey at last"), so detection combines three checks per word:
// exact match, Double Metaphone phonetic code equality, and Jaro-Winkler
// string similarity above a threshold.
package wakeword

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// defaultSimilarity is the minimum Jaro-Winkler score for a fuzzy word match.
const defaultSimilarity = 0.85

// Detector matches a trigger phrase against transcript text.
// It is read-only after construction and safe for concurrent use.
type Detector struct {
	words      []string // lowercased trigger words
	primary    []string // Double Metaphone primary code per trigger word
	secondary  []string // Double Metaphone secondary code per trigger word
	similarity float64
}

// Option configures a Detector.
type Option func(*Detector)

// WithSimilarity sets the Jaro-Winkler threshold for fuzzy word matches.
// Default 0.85.
func WithSimilarity(s float64) Option {
	return func(d *Detector) {
		if s > 0 {
			d.similarity = s
		}
	}
}

// New builds a Detector for the given trigger phrase ("hey atlas").
// An empty phrase yields a detector that matches nothing.
func New(phrase string, opts ...Option) *Detector {
	d := &Detector{
		words:      strings.Fields(strings.ToLower(phrase)),
		similarity: defaultSimilarity,
	}
	for _, o := range opts {
		o(d)
	}
	d.primary = make([]string, len(d.words))
	d.secondary = make([]string, len(d.words))
	for i, w := range d.words {
		d.primary[i], d.secondary[i] = matchr.DoubleMetaphone(w)
	}
	return d
}

// Match reports whether text contains the trigger phrase and, when it does,
// returns the remainder of the text with the trigger removed ("hey atlas
// what's the weather" → "what's the weather"). Matching is case-insensitive
// and tolerates phonetically close or slightly misspelled trigger words.
func (d *Detector) Match(text string) (remainder string, ok bool) {
	if len(d.words) == 0 {
		return "", false
	}

	tokens := strings.Fields(text)
	n := len(d.words)
	for start := 0; start+n <= len(tokens); start++ {
		if !d.windowMatches(tokens[start : start+n]) {
			continue
		}
		rest := append([]string{}, tokens[:start]...)
		rest = append(rest, tokens[start+n:]...)
		return strings.Join(rest, " "), true
	}
	return "", false
}

// windowMatches tests one token window against the trigger words.
func (d *Detector) windowMatches(window []string) bool {
	for i := range d.words {
		if !d.wordMatches(i, strings.ToLower(strings.Trim(window[i], ".,!?;:"))) {
			return false
		}
	}
	return true
}

func (d *Detector) wordMatches(i int, word string) bool {
	if word == d.words[i] {
		return true
	}
	if word == "" {
		return false
	}

	p, s := matchr.DoubleMetaphone(word)
	if p != "" && (p == d.primary[i] || p == d.secondary[i]) {
		return true
	}
	if s != "" && (s == d.primary[i] || s == d.secondary[i]) {
		return true
	}

	return matchr.JaroWinkler(word, d.words[i], true) >= d.similarity
}
