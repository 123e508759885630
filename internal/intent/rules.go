package intent

import "regexp"

// Rule pairs a pattern with the intent kind it recognizes. Rules are
// evaluated in registration order and the first match wins, so the order of
// DefaultRules is part of the classifier's contract: more specific phrasings
// must come before general ones (the Search rules in particular would
// swallow almost any question, so they go last). Two rules matching with
// equal specificity is resolved by first-registered-wins.
type Rule struct {
	// Name is a human-readable label for logging and debugging.
	Name string

	// Kind is the intent kind produced when Pattern matches.
	Kind Kind

	// Pattern is matched against the lowercased normalized utterance.
	Pattern *regexp.Regexp

	// Actions are the operations this rule can express, most likely first.
	// The action keyword search falls back to Actions[0].
	Actions []string
}

// DefaultRules returns the built-in ordered rule set.
func DefaultRules() []Rule {
	return []Rule{
		// Calendar — scheduling verbs are specific enough to lead.
		rule("calendar-manage", Calendar,
			`(?:schedule|create|add|set up|book)\s+(?:a\s+)?(?:meeting|appointment|event)`,
			"create", "read", "update", "delete", "list"),
		rule("calendar-query", Calendar,
			`(?:what|when)\s+(?:is|are)\s+(?:my|the)\s+(?:next|upcoming)\s+(?:meeting|appointment|event)`,
			"read", "list"),
		rule("calendar-cancel", Calendar,
			`(?:cancel|delete|remove|reschedule|move|change)\s+(?:my|the)\s+(?:meeting|appointment|event)`,
			"delete", "update"),
		rule("calendar-list", Calendar,
			`(?:check|show|list)\s+(?:my|the)\s+(?:calendar|schedule|appointments)`,
			"list", "read"),

		// Email.
		rule("email-compose", Email,
			`(?:send|compose|write)\s+(?:an?\s+)?email`,
			"send", "read", "reply", "forward", "delete"),
		rule("email-read", Email,
			`(?:check|read|show)\s+(?:my\s+)?(?:email|inbox|messages)`,
			"read"),
		rule("email-reply", Email,
			`(?:reply|respond)\s+to\s+(?:the\s+)?email`,
			"reply"),

		// Reminders.
		rule("reminder-create", Reminder,
			`(?:remind|alert)\s+me\b`,
			"create"),
		rule("reminder-set", Reminder,
			`(?:set|create|add)\s+(?:a\s+)?(?:reminder|alert|notification)`,
			"create"),
		rule("reminder-dont-forget", Reminder,
			`(?:don't\s+forget|remember)\s+to`,
			"create"),
		rule("reminder-list", Reminder,
			`(?:what|show)\s+(?:are\s+)?(?:my\s+)?(?:reminders|alerts|tasks)`,
			"list"),
		rule("reminder-delete", Reminder,
			`(?:cancel|delete|remove)\s+(?:the\s+)?(?:reminder|alert)`,
			"delete"),

		// Weather.
		rule("weather-query", Weather,
			`(?:what|how)(?:'s|\s+(?:is|will))\s+(?:the\s+)?weather`,
			"current", "forecast", "conditions"),
		rule("weather-forecast", Weather,
			`weather\s+(?:forecast|report|conditions)`,
			"forecast"),
		rule("weather-precip", Weather,
			`(?:is\s+it|will\s+it)\s+(?:rain|snow|be\s+sunny|be\s+cloudy)`,
			"forecast"),
		rule("weather-temperature", Weather,
			`(?:temperature|temp)\s+(?:today|tomorrow|outside)`,
			"current"),
		rule("weather-umbrella", Weather,
			`(?:should\s+i|do\s+i\s+need)\s+(?:bring\s+)?(?:an?\s+)?(?:umbrella|jacket|coat)`,
			"forecast"),

		// News.
		rule("news-headlines", News,
			`(?:what|show)\s+(?:is|are)\s+(?:the\s+)?(?:latest\s+)?news`,
			"headlines", "search", "category"),
		rule("news-topic", News,
			`(?:news|headlines|updates)\s+(?:about|on|for)`,
			"search"),
		rule("news-breaking", News,
			`(?:breaking|latest)\s+news`,
			"headlines"),

		// Search — general catch-alls, deliberately last.
		rule("search-explicit", Search,
			`(?:search|look up|find|google)\s+(?:for\s+)?`,
			"web_search", "information", "lookup"),
		rule("search-question", Search,
			`(?:what|who|where|when|why|how)\s+(?:is|are|was|were|do|does|did)`,
			"information"),
		rule("search-tell-me", Search,
			`(?:tell|show)\s+me\s+(?:about|more\s+about)`,
			"information"),
		rule("search-info", Search,
			`(?:information|info|details)\s+(?:about|on|for)`,
			"lookup"),
	}
}

func rule(name string, kind Kind, pattern string, actions ...string) Rule {
	return Rule{
		Name:    name,
		Kind:    kind,
		Pattern: regexp.MustCompile(pattern),
		Actions: actions,
	}
}
