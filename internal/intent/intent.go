// Package intent implements deterministic, rule-based intent classification
// for finalized utterances. There is deliberately no learned model here: the
// rule set is an ordered list of regex patterns whose behavior can be read,
// tested, and explained. Ordering encodes priority — more specific rules are
// registered before general ones and the first full match wins.
package intent

// Kind names a capability request the assistant understands.
type Kind string

const (
	Calendar    Kind = "calendar"
	Email       Kind = "email"
	Reminder    Kind = "reminder"
	Weather     Kind = "weather"
	News        Kind = "news"
	Search      Kind = "search"
	GeneralChat Kind = "general_chat"
	Unknown     Kind = "unknown"
)

// IsValid reports whether k is a recognized intent kind.
func (k Kind) IsValid() bool {
	switch k {
	case Calendar, Email, Reminder, Weather, News, Search, GeneralChat, Unknown:
		return true
	}
	return false
}

// Intent is a classified capability request extracted from one finalized
// utterance. Immutable once produced.
type Intent struct {
	// Kind identifies the capability being requested.
	Kind Kind

	// Action refines the kind (e.g., "create" vs "list" for reminders).
	// Empty when no action keyword was found.
	Action string

	// Entities maps slot names to extracted values. Keys are unique; when an
	// entity type matches multiple spans the first (leftmost) span wins.
	Entities map[string]string

	// Confidence is a deterministic score in [0, 1] derived from match
	// specificity. It is reproducible, not probabilistic.
	Confidence float64

	// Raw is the normalized utterance the intent was classified from.
	Raw string
}

// Entity retrieves a slot value by name. The second return reports presence.
func (in Intent) Entity(name string) (string, bool) {
	v, ok := in.Entities[name]
	return v, ok
}
