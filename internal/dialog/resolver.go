// Package dialog implements slot resolution: deciding whether a classified
// intent carries everything its handler needs, and running the short
// follow-up exchange that collects missing slots when it does not.
//
// At most one DialogTurn is open per session. While a turn is open the next
// finalized utterance is interpreted as the answer to the awaited slot and
// does not go back through the intent classifier.
package dialog

import (
	"log/slog"
	"time"

	"github.com/atlasvoice/atlas/internal/intent"
)

// DefaultTurnExpiry is how long an open DialogTurn waits for an answer
// before it is discarded and the next utterance is treated as a fresh intent.
const DefaultTurnExpiry = 60 * time.Second

// DefaultConfidenceThreshold is the minimum intent confidence required for
// slot resolution to engage. Below it the intent is passed straight to the
// dispatcher, which produces the not-understood fallback.
const DefaultConfidenceThreshold = 0.6

// Status classifies the outcome of feeding an utterance to the resolver.
type Status int

const (
	// StatusComplete means the intent is fully specified; dispatch it.
	StatusComplete Status = iota

	// StatusPrompt means a follow-up question must be spoken and the next
	// utterance routed back to the resolver.
	StatusPrompt

	// StatusFailed means slot filling was abandoned after repeated parse
	// failures; speak the failure text and return to fresh-intent mode.
	StatusFailed
)

// Outcome is the result of Resolve or Answer.
type Outcome struct {
	Status Status

	// Intent is the fully specified intent when Status is StatusComplete.
	Intent intent.Intent

	// Speak is the follow-up prompt (StatusPrompt) or failure apology
	// (StatusFailed) to hand to the synthesis queue.
	Speak string
}

// Turn tracks one intent awaiting slot completion across utterances.
type Turn struct {
	Partial    intent.Intent
	Missing    []string
	Awaiting   string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	reprompted bool
}

// Resolver owns the session's DialogTurn. It is not safe for concurrent use;
// the orchestrator invokes it from its single event loop.
type Resolver struct {
	reqs       map[intent.Kind]map[string]Requirement
	thresholds map[intent.Kind]float64
	baseline   float64
	expiry     time.Duration
	turn       *Turn
	now        func() time.Time
}

// Option configures a Resolver during construction.
type Option func(*Resolver)

// WithExpiry sets the DialogTurn expiry window. Default 60s.
func WithExpiry(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.expiry = d
		}
	}
}

// WithThreshold overrides the confidence threshold for one intent kind.
func WithThreshold(kind intent.Kind, threshold float64) Option {
	return func(r *Resolver) {
		r.thresholds[kind] = threshold
	}
}

// WithBaseThreshold sets the confidence threshold used for kinds without a
// per-kind override. Default DefaultConfidenceThreshold.
func WithBaseThreshold(threshold float64) Option {
	return func(r *Resolver) {
		if threshold > 0 {
			r.baseline = threshold
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

// NewResolver creates a Resolver over the default requirement tables.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		reqs:       DefaultRequirements(),
		thresholds: make(map[intent.Kind]float64),
		baseline:   DefaultConfidenceThreshold,
		expiry:     DefaultTurnExpiry,
		now:        time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// SetExpiry changes the DialogTurn expiry window. An open turn keeps its
// original deadline; the new window applies from the next turn on.
func (r *Resolver) SetExpiry(d time.Duration) {
	if d > 0 {
		r.expiry = d
	}
}

// SetBaseThreshold changes the base confidence threshold. Per-kind overrides
// installed with WithThreshold are unaffected.
func (r *Resolver) SetBaseThreshold(threshold float64) {
	if threshold > 0 {
		r.baseline = threshold
	}
}

// Pending reports whether a DialogTurn is open and unexpired. An expired
// turn is discarded as a side effect, so callers can use Pending to decide
// whether the next utterance is a slot answer or a fresh intent.
func (r *Resolver) Pending() bool {
	if r.turn == nil {
		return false
	}
	if r.now().After(r.turn.ExpiresAt) {
		slog.Debug("dialog: turn expired", "kind", r.turn.Partial.Kind, "awaiting", r.turn.Awaiting)
		r.turn = nil
		return false
	}
	return true
}

// Cancel discards any open DialogTurn.
func (r *Resolver) Cancel() {
	r.turn = nil
}

// Resolve checks a freshly classified intent against its slot requirements.
// Fully specified intents (or ones with no requirements, or below the
// confidence threshold — the dispatcher handles those) come back
// StatusComplete. Otherwise a DialogTurn opens and the first missing slot's
// prompt is returned.
func (r *Resolver) Resolve(in intent.Intent) Outcome {
	req, ok := r.requirement(in)
	if !ok || in.Confidence < r.threshold(in.Kind) {
		return Outcome{Status: StatusComplete, Intent: in}
	}

	missing := missingSlots(in, req)
	if len(missing) == 0 {
		return Outcome{Status: StatusComplete, Intent: in}
	}

	now := r.now()
	r.turn = &Turn{
		Partial:   in,
		Missing:   missing,
		Awaiting:  missing[0],
		CreatedAt: now,
		ExpiresAt: now.Add(r.expiry),
	}
	slog.Info("dialog: opened turn",
		"kind", in.Kind,
		"action", in.Action,
		"missing", missing,
	)
	return Outcome{Status: StatusPrompt, Speak: req.Prompt(missing[0])}
}

// Answer interprets text as the answer to the awaited slot of the open turn.
// Callers must check Pending first; calling Answer without an open turn
// returns a StatusFailed outcome with no prompt.
func (r *Resolver) Answer(text string) Outcome {
	if !r.Pending() {
		return Outcome{Status: StatusFailed}
	}
	turn := r.turn
	req, _ := r.requirement(turn.Partial)

	value, ok := intent.ParseSlot(turn.Awaiting, text)
	if !ok {
		if turn.reprompted {
			slog.Warn("dialog: slot resolution failed",
				"kind", turn.Partial.Kind,
				"slot", turn.Awaiting,
			)
			r.turn = nil
			return Outcome{
				Status: StatusFailed,
				Speak:  "Sorry, I couldn't get the details I needed. Let's start over.",
			}
		}
		turn.reprompted = true
		return Outcome{Status: StatusPrompt, Speak: req.Clarification(turn.Awaiting)}
	}

	// Fill the slot on a copied entity map — the partial intent stays
	// immutable from the caller's point of view.
	filled := make(map[string]string, len(turn.Partial.Entities)+1)
	for k, v := range turn.Partial.Entities {
		filled[k] = v
	}
	filled[turn.Awaiting] = value
	turn.Partial.Entities = filled
	turn.reprompted = false

	if rest := missingSlots(turn.Partial, req); len(rest) > 0 {
		turn.Missing = rest
		turn.Awaiting = rest[0]
		turn.ExpiresAt = r.now().Add(r.expiry)
		return Outcome{Status: StatusPrompt, Speak: req.Prompt(rest[0])}
	}

	done := turn.Partial
	r.turn = nil
	return Outcome{Status: StatusComplete, Intent: done}
}

func (r *Resolver) requirement(in intent.Intent) (Requirement, bool) {
	actions, ok := r.reqs[in.Kind]
	if !ok {
		return Requirement{}, false
	}
	req, ok := actions[in.Action]
	return req, ok
}

func (r *Resolver) threshold(kind intent.Kind) float64 {
	if t, ok := r.thresholds[kind]; ok {
		return t
	}
	return r.baseline
}

// missingSlots returns req's slots absent from the intent, in prompting order.
func missingSlots(in intent.Intent, req Requirement) []string {
	var missing []string
	for _, s := range req.Slots {
		if _, ok := in.Entities[s]; !ok {
			missing = append(missing, s)
		}
	}
	return missing
}
