package intent

import "testing"

func TestClassify(t *testing.T) {
	t.Parallel()

	c := NewClassifier()

	cases := []struct {
		name       string
		text       string
		wantKind   Kind
		wantAction string
	}{
		{"weather query", "what's the weather in Paris", Weather, "current"},
		{"weather umbrella", "do I need an umbrella today", Weather, "forecast"},
		{"reminder create", "remind me to call mom at 3pm", Reminder, "create"},
		{"reminder bare", "remind me", Reminder, "create"},
		{"reminder list", "what are my reminders", Reminder, "list"},
		{"calendar schedule", "schedule a meeting with Alice tomorrow", Calendar, "create"},
		{"email compose", "send an email to Bob", Email, "send"},
		{"news headlines", "what's the latest news", News, "headlines"},
		{"search explicit", "search for climate change", Search, "web_search"},
		{"search question", "who is the president of France", Search, "information"},
		{"general chat", "hello there", GeneralChat, ""},
		{"unknown", "fjord penguin carousel", Unknown, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := c.Classify(tc.text)
			if got.Kind != tc.wantKind {
				t.Fatalf("Classify(%q).Kind = %s, want %s", tc.text, got.Kind, tc.wantKind)
			}
			if got.Action != tc.wantAction {
				t.Errorf("Classify(%q).Action = %q, want %q", tc.text, got.Action, tc.wantAction)
			}
		})
	}
}

func TestClassifyConfidence(t *testing.T) {
	t.Parallel()

	c := NewClassifier()

	t.Run("rule match clears dispatch threshold", func(t *testing.T) {
		t.Parallel()
		got := c.Classify("what's the weather in Paris")
		if got.Confidence < 0.6 {
			t.Fatalf("confidence = %v, want >= 0.6", got.Confidence)
		}
	})

	t.Run("unknown has zero confidence", func(t *testing.T) {
		t.Parallel()
		got := c.Classify("fjord penguin carousel")
		if got.Confidence != 0 {
			t.Fatalf("confidence = %v, want 0", got.Confidence)
		}
	})

	t.Run("deterministic across calls", func(t *testing.T) {
		t.Parallel()
		a := c.Classify("remind me to water the plants tomorrow")
		b := c.Classify("remind me to water the plants tomorrow")
		if a.Confidence != b.Confidence {
			t.Fatalf("confidence not reproducible: %v vs %v", a.Confidence, b.Confidence)
		}
	})

	t.Run("general chat fixed score", func(t *testing.T) {
		t.Parallel()
		got := c.Classify("thank you")
		if got.Kind != GeneralChat || got.Confidence != 0.7 {
			t.Fatalf("got kind=%s confidence=%v, want general_chat 0.7", got.Kind, got.Confidence)
		}
	})
}

func TestClassifyRuleOrdering(t *testing.T) {
	t.Parallel()

	c := NewClassifier()

	// "what is the latest news" matches both the news rule and the general
	// search-question rule; registration order must make news win.
	got := c.Classify("what is the latest news")
	if got.Kind != News {
		t.Fatalf("kind = %s, want news (specific rule must precede general)", got.Kind)
	}
}

func TestClassifyEntities(t *testing.T) {
	t.Parallel()

	c := NewClassifier()

	got := c.Classify("what's the weather in Paris")
	if loc, ok := got.Entity(SlotLocation); !ok || loc != "Paris" {
		t.Fatalf("location entity = %q (present=%v), want Paris", loc, ok)
	}

	got = c.Classify("remind me to call mom tomorrow at 3pm")
	if topic, ok := got.Entity(SlotTopic); !ok || topic == "" {
		t.Fatalf("topic entity missing: %v", got.Entities)
	}
	if _, ok := got.Entity(SlotDatetime); !ok {
		t.Fatalf("datetime entity missing: %v", got.Entities)
	}
}
