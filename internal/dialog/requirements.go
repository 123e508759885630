package dialog

import "github.com/atlasvoice/atlas/internal/intent"

// Requirement declares the slots an intent action must have before dispatch,
// in the order they are asked for, plus the prompt spoken for each slot.
type Requirement struct {
	// Slots lists required slot names in deterministic prompting order.
	Slots []string

	// Prompts maps each slot to its follow-up question.
	Prompts map[string]string

	// Clarify maps each slot to the re-prompt variant used after the first
	// answer fails to parse. Falls back to Prompts when absent.
	Clarify map[string]string
}

// Prompt returns the follow-up question for slot.
func (r Requirement) Prompt(slot string) string {
	if p, ok := r.Prompts[slot]; ok {
		return p
	}
	return "I need more information about the " + slot + "."
}

// Clarification returns the re-prompt variant for slot.
func (r Requirement) Clarification(slot string) string {
	if c, ok := r.Clarify[slot]; ok {
		return c
	}
	return "Sorry, I didn't catch that. " + r.Prompt(slot)
}

// DefaultRequirements returns the built-in per-kind, per-action slot tables.
func DefaultRequirements() map[intent.Kind]map[string]Requirement {
	return map[intent.Kind]map[string]Requirement{
		intent.Weather: {
			"forecast": {
				Slots: []string{intent.SlotDatetime},
				Prompts: map[string]string{
					intent.SlotDatetime: "For what date would you like the weather forecast?",
				},
			},
			"conditions": {
				Slots: []string{intent.SlotLocation},
				Prompts: map[string]string{
					intent.SlotLocation: "Which city or location would you like the weather for?",
				},
			},
		},
		intent.Reminder: {
			"create": {
				Slots: []string{intent.SlotDatetime, intent.SlotTopic},
				Prompts: map[string]string{
					intent.SlotDatetime: "When would you like to be reminded? For example, tomorrow at 3pm, or in 2 hours.",
					intent.SlotTopic:    "What would you like me to remind you about?",
				},
				Clarify: map[string]string{
					intent.SlotDatetime: "I couldn't work out the time. Try something like tomorrow at 3pm, or in 20 minutes.",
				},
			},
			"update": {
				Slots: []string{intent.SlotDatetime, intent.SlotTopic},
				Prompts: map[string]string{
					intent.SlotDatetime: "When should the reminder fire?",
					intent.SlotTopic:    "Which reminder should I change?",
				},
			},
			"delete": {
				Slots: []string{intent.SlotTopic},
				Prompts: map[string]string{
					intent.SlotTopic: "Which reminder should I delete?",
				},
			},
		},
		intent.Search: {
			"web_search": {
				Slots: []string{intent.SlotTopic},
				Prompts: map[string]string{
					intent.SlotTopic: "What would you like me to search for?",
				},
			},
			"information": {
				Slots: []string{intent.SlotTopic},
				Prompts: map[string]string{
					intent.SlotTopic: "What would you like to know about?",
				},
			},
			"lookup": {
				Slots: []string{intent.SlotTopic},
				Prompts: map[string]string{
					intent.SlotTopic: "What should I look up?",
				},
			},
		},
		intent.Calendar: {
			"create": {
				Slots: []string{intent.SlotDatetime},
				Prompts: map[string]string{
					intent.SlotDatetime: "When would you like to schedule this? For example, tomorrow at 2pm, or next Monday.",
				},
			},
			"update": {
				Slots: []string{intent.SlotDatetime},
				Prompts: map[string]string{
					intent.SlotDatetime: "When should I move it to?",
				},
			},
			"delete": {
				Slots: []string{intent.SlotDatetime},
				Prompts: map[string]string{
					intent.SlotDatetime: "Which date is the event you want to cancel?",
				},
			},
		},
		intent.Email: {
			"send": {
				Slots: []string{intent.SlotPerson, intent.SlotTopic},
				Prompts: map[string]string{
					intent.SlotPerson: "Who would you like to send this email to?",
					intent.SlotTopic:  "What is the subject or content of the email?",
				},
			},
			"reply": {
				Slots: []string{intent.SlotTopic},
				Prompts: map[string]string{
					intent.SlotTopic: "What should the reply say?",
				},
			},
			"forward": {
				Slots: []string{intent.SlotPerson},
				Prompts: map[string]string{
					intent.SlotPerson: "Who should I forward it to?",
				},
			},
		},
		intent.News: {
			"search": {
				Slots: []string{intent.SlotTopic},
				Prompts: map[string]string{
					intent.SlotTopic: "What topic would you like news about?",
				},
			},
			"category": {
				Slots: []string{intent.SlotTopic},
				Prompts: map[string]string{
					intent.SlotTopic: "Which news category are you interested in?",
				},
			},
		},
	}
}
