package intent

import (
	"regexp"
	"strings"
)

// Entity slot names. Extractors run over the full utterance independently of
// the winning rule; the slot resolver reuses them to parse follow-up answers.
const (
	SlotDatetime = "datetime"
	SlotLocation = "location"
	SlotPerson   = "person"
	SlotDuration = "duration"
	SlotTopic    = "topic"
	SlotFreeText = "freetext"
)

// extractorSpec pairs an entity slot with its ordered patterns. When a
// pattern has a capture group, group 1 is the extracted value; otherwise the
// whole match is used.
type extractorSpec struct {
	slot     string
	patterns []*regexp.Regexp
}

// extractors holds the built-in entity patterns, evaluated in order.
// Earlier patterns within a slot take precedence for overlapping spans.
var extractors = []extractorSpec{
	{
		slot: SlotDatetime,
		patterns: compile(
			`(?i)\b(?:today|tomorrow|yesterday|tonight)\b`,
			`(?i)\b(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`,
			`(?i)\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\s+\d{1,2}\b`,
			`(?i)\bin\s+\d+\s+(?:minutes?|hours?|days?|weeks?|months?)\b`,
			`(?i)\b(?:next|this)\s+(?:week|month|year|monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`,
			`(?i)\b(?:at\s+)?\d{1,2}(?::\d{2})?\s*(?:am|pm)\b`,
			`\b\d{1,2}:\d{2}\b`,
			`\b\d{1,2}/\d{1,2}(?:/\d{2,4})?\b`,
		),
	},
	{
		slot: SlotLocation,
		patterns: compile(
			`\b(?:in|at|near|around|for)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`,
			`\b([A-Z][a-z]+),\s*([A-Z]{2})\b`,
		),
	},
	{
		slot: SlotPerson,
		patterns: compile(
			`\b(?:with|to|from)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)`,
			`\b[A-Za-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`,
		),
	},
	{
		slot: SlotDuration,
		patterns: compile(
			`(?i)\b\d+\s+(?:minutes?|hours?|days?|weeks?|months?|years?)\b`,
			`(?i)\b(?:half\s+an?\s+|quarter\s+)?hour\b`,
		),
	},
	{
		slot: SlotTopic,
		patterns: compile(
			`(?i)\b(?:about|regarding|concerning)\s+([^,.!?]+)`,
			`(?i)\b(?:remind|alert)\s+me\s+to\s+([^,.!?]+)`,
			`(?i)\b(?:search|look up|find|google)\s+(?:for\s+)?(.+)`,
		),
	},
}

func compile(patterns ...string) []*regexp.Regexp {
	rx := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		rx[i] = regexp.MustCompile(p)
	}
	return rx
}

// ExtractEntities runs every entity extractor over text and returns the
// first (leftmost across patterns, in pattern order) value found per slot.
func ExtractEntities(text string) map[string]string {
	out := make(map[string]string)
	for _, spec := range extractors {
		if v, ok := extractSlot(spec, text); ok {
			out[spec.slot] = v
		}
	}
	return out
}

// ParseSlot parses text as an answer for a single slot. Unlike
// ExtractEntities, a slot answer may be a bare value ("Paris", "tomorrow at
// 3pm") without surrounding syntax, so a failed pattern match falls back to
// looser acceptance rules per slot. The second return reports success.
func ParseSlot(slot string, text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}

	switch slot {
	case SlotFreeText:
		return text, true
	case SlotTopic:
		// Any non-empty phrase is a valid topic; strip leading connectives
		// so "about the meeting" and "the meeting" parse identically.
		for _, spec := range extractors {
			if spec.slot != SlotTopic {
				continue
			}
			if v, ok := extractSlot(spec, text); ok {
				return v, true
			}
		}
		return text, true
	case SlotLocation:
		if v, ok := parseByPatterns(SlotLocation, text); ok {
			return v, true
		}
		// Bare capitalized place name ("Paris", "New York").
		if regexp.MustCompile(`^[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*$`).MatchString(text) {
			return text, true
		}
		return "", false
	default:
		return parseByPatterns(slot, text)
	}
}

func parseByPatterns(slot string, text string) (string, bool) {
	for _, spec := range extractors {
		if spec.slot != slot {
			continue
		}
		return extractSlot(spec, text)
	}
	return "", false
}

// extractSlot returns the earliest match across spec's patterns.
func extractSlot(spec extractorSpec, text string) (string, bool) {
	best := -1
	var value string
	for _, rx := range spec.patterns {
		loc := rx.FindStringSubmatchIndex(text)
		if loc == nil {
			continue
		}
		start := loc[0]
		// Prefer the capture group when present and non-empty.
		v := text[loc[0]:loc[1]]
		if len(loc) >= 4 && loc[2] >= 0 {
			v = text[loc[2]:loc[3]]
			start = loc[2]
		}
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if best == -1 || start < best {
			best = start
			value = v
		}
	}
	return value, best != -1
}
