package intent

import (
	"log/slog"
	"strings"
)

// Confidence scoring constants. The score is a reproducible function of the
// matched rule: a fixed base for any rule match, a bonus when the pattern
// covers the whole utterance, and a proportional bonus for match length.
const (
	baseConfidence       = 0.8
	exactMatchBonus      = 0.15
	coverageBonusWeight  = 0.1
	generalChatScore     = 0.7
	actionKeywordDefault = ""
)

// chatIndicators mark utterances that are conversation rather than commands.
var chatIndicators = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"how are you", "what's up", "thanks", "thank you", "please", "sorry",
	"yes", "no", "okay", "ok", "sure", "maybe", "i think", "i believe",
}

// Classifier matches normalized utterances against an ordered rule set.
// It is read-only after construction and safe for concurrent use.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier over the given rules, evaluated in
// order. Passing no rules installs DefaultRules.
func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify matches text against the rule set and returns the resulting
// Intent. The first rule whose pattern matches wins. When no rule matches,
// conversational utterances classify as GeneralChat (fixed confidence 0.7)
// and everything else as Unknown with confidence 0.
//
// Entities are extracted from the full text independently of the winning
// rule and attached to the result.
func (c *Classifier) Classify(text string) Intent {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return Intent{Kind: Unknown, Entities: map[string]string{}, Raw: text}
	}

	for _, r := range c.rules {
		loc := r.Pattern.FindStringIndex(lower)
		if loc == nil {
			continue
		}

		in := Intent{
			Kind:       r.Kind,
			Action:     extractAction(lower, r.Actions),
			Entities:   ExtractEntities(text),
			Confidence: score(loc, lower),
			Raw:        text,
		}
		slog.Debug("intent: classified",
			"rule", r.Name,
			"kind", in.Kind,
			"action", in.Action,
			"confidence", in.Confidence,
		)
		return in
	}

	if isGeneralChat(lower) {
		return Intent{
			Kind:       GeneralChat,
			Entities:   ExtractEntities(text),
			Confidence: generalChatScore,
			Raw:        text,
		}
	}

	return Intent{Kind: Unknown, Entities: ExtractEntities(text), Raw: text}
}

// score derives the deterministic confidence for a match at loc within text.
func score(loc []int, text string) float64 {
	conf := baseConfidence
	matchLen := loc[1] - loc[0]
	if matchLen == len(text) {
		conf += exactMatchBonus
	}
	conf += coverageBonusWeight * float64(matchLen) / float64(len(text))
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

// extractAction picks the operation the utterance expresses. Direct mention
// of one of the rule's actions wins; otherwise common verbs map onto CRUD
// actions; otherwise the rule's primary action is assumed.
func extractAction(text string, actions []string) string {
	for _, a := range actions {
		if strings.Contains(text, a) {
			return a
		}
	}

	switch {
	case containsAny(text, "create", "add", "set", "schedule", "send", "compose", "remind"):
		return pickKnown(actions, "create", "send")
	case containsAny(text, "show", "list", "check", "read", "what", "when"):
		return pickKnown(actions, "read", "list", "headlines", "current", "information")
	case containsAny(text, "update", "change", "modify", "edit", "reschedule"):
		return pickKnown(actions, "update")
	case containsAny(text, "delete", "remove", "cancel"):
		return pickKnown(actions, "delete")
	}

	if len(actions) > 0 {
		return actions[0]
	}
	return actionKeywordDefault
}

// pickKnown returns the first of candidates present in actions, falling back
// to actions[0].
func pickKnown(actions []string, candidates ...string) string {
	for _, c := range candidates {
		for _, a := range actions {
			if a == c {
				return c
			}
		}
	}
	if len(actions) > 0 {
		return actions[0]
	}
	return actionKeywordDefault
}

func containsAny(text string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func isGeneralChat(text string) bool {
	for _, ind := range chatIndicators {
		if strings.Contains(text, ind) {
			return true
		}
	}
	return false
}
