// Package app wires capture, the intent pipeline and the synthesis queue into
// one voice session and runs them on a single event loop.
//
// All session state (capture machine, dialog turn, speech queue) is owned by
// the loop goroutine; recognition events, render events, handler results and
// control commands arrive as messages and are applied strictly in order. That
// ordering is what enforces the anti-feedback rule: a suspend is fully applied
// before the next recognition event is considered, so the assistant never
// transcribes its own voice.
package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/atlasvoice/atlas/internal/capture"
	"github.com/atlasvoice/atlas/internal/dialog"
	"github.com/atlasvoice/atlas/internal/dispatch"
	"github.com/atlasvoice/atlas/internal/intent"
	"github.com/atlasvoice/atlas/internal/observe"
	"github.com/atlasvoice/atlas/internal/settings"
	"github.com/atlasvoice/atlas/internal/synth"
	"github.com/atlasvoice/atlas/pkg/speechio"
)

// spoken when capture dies and cannot recover.
const fatalCaptureApology = "I'm having trouble hearing you. Voice input is unavailable right now."

// ErrNotRunning is returned by control operations when the event loop has
// already exited.
var ErrNotRunning = errors.New("app: orchestrator is not running")

// Config carries the non-user-tunable session parameters. User preferences
// (language, rate, wake word on/off) live in settings.VoiceSettings.
type Config struct {
	// Mode is the capture mode used when the wake word is disabled.
	Mode capture.Mode
	// WakeWord is the trigger phrase for wake-word sessions.
	WakeWord string
	// WakeWindow bounds how long after a trigger follow-ups are accepted.
	WakeWindow time.Duration
	// ConfidenceFloor drops recognition results below this confidence.
	ConfidenceFloor float64
	// IntentThreshold is the minimum classifier confidence to dispatch.
	IntentThreshold float64
	// DispatchTimeout bounds a single handler invocation.
	DispatchTimeout time.Duration
	// TurnExpiry bounds how long a slot-filling dialog stays open.
	TurnExpiry time.Duration
	// QueueCapacity caps pending synthesis items.
	QueueCapacity int
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = capture.ModeContinuous
	}
	if c.IntentThreshold <= 0 {
		c.IntentThreshold = dialog.DefaultConfidenceThreshold
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = dispatch.DefaultTimeout
	}
	if c.TurnExpiry <= 0 {
		c.TurnExpiry = dialog.DefaultTurnExpiry
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = synth.DefaultCapacity
	}
}

// Status is a read-only snapshot of the session, served by the admin API.
type Status struct {
	VoiceEnabled bool   `json:"voiceEnabled"`
	CaptureState string `json:"captureState"`
	SessionID    string `json:"sessionId,omitempty"`
	Speaking     bool   `json:"speaking"`
	QueueLen     int    `json:"queueLen"`
	DialogOpen   bool   `json:"dialogOpen"`
	LastError    string `json:"lastError,omitempty"`

	Settings settings.VoiceSettings `json:"settings"`
}

// command is one control message for the event loop.
type command struct {
	apply func(ctx context.Context) error
	reply chan error
}

// handlerDone carries an asynchronous dispatch result back to the loop. gen
// identifies the voice-mode generation the dispatch started under; results
// from a disabled generation are discarded.
type handlerDone struct {
	gen    uint64
	result dispatch.Result
}

// Orchestrator runs one voice session end to end.
type Orchestrator struct {
	cfg Config

	input  speechio.InputProvider
	output speechio.OutputProvider

	classifier *intent.Classifier
	resolver   *dialog.Resolver
	dispatcher *dispatch.Dispatcher
	store      settings.Store

	cmds    chan command
	results chan handlerDone
	done    chan struct{}

	// Everything below is owned by the Run goroutine.
	machine     *capture.Machine
	queue       *synth.Queue
	current     settings.VoiceSettings
	voiceParams speechio.VoiceParams
	voiceOn     bool
	gen         uint64
	lastError   string
	retryTimer  *time.Timer

	log     *slog.Logger
	metrics *observe.Metrics
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithMetrics wires pipeline metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClassifier overrides the default rule set.
func WithClassifier(c *intent.Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

// New builds an Orchestrator. The dispatcher arrives with its handlers
// already registered; the settings store supplies user preferences at each
// session start.
func New(input speechio.InputProvider, output speechio.OutputProvider, dp *dispatch.Dispatcher, store settings.Store, cfg Config, opts ...Option) *Orchestrator {
	cfg.applyDefaults()
	o := &Orchestrator{
		cfg:        cfg,
		input:      input,
		output:     output,
		dispatcher: dp,
		store:      store,
		cmds:       make(chan command),
		results:    make(chan handlerDone, 4),
		done:       make(chan struct{}),
		current:    settings.Defaults(),
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.classifier == nil {
		o.classifier = intent.NewClassifier()
	}
	o.resolver = dialog.NewResolver(
		dialog.WithExpiry(cfg.TurnExpiry),
		dialog.WithBaseThreshold(cfg.IntentThreshold),
	)
	return o
}

// EnableVoiceMode starts a capture session with the stored settings.
// Idempotent: enabling an already enabled session is a no-op.
func (o *Orchestrator) EnableVoiceMode(ctx context.Context) error {
	return o.do(ctx, func(ctx context.Context) error { return o.enable(ctx) })
}

// DisableVoiceMode stops capture, flushes the synthesis queue and discards
// any in-flight handler result. Idempotent; always leaves capture idle and
// the queue empty.
func (o *Orchestrator) DisableVoiceMode(ctx context.Context) error {
	return o.do(ctx, func(ctx context.Context) error { return o.disable(ctx) })
}

// UpdateSettings applies a partial settings update and persists it. The new
// values take effect when the next capture session starts, never mid-session.
func (o *Orchestrator) UpdateSettings(ctx context.Context, patch settings.Patch) error {
	return o.do(ctx, func(ctx context.Context) error { return o.update(ctx, patch) })
}

// Reconfigure swaps the session parameters. Like settings updates, the new
// values take effect when the next capture session starts; a running session
// keeps the parameters it was started with.
func (o *Orchestrator) Reconfigure(ctx context.Context, cfg Config) error {
	cfg.applyDefaults()
	return o.do(ctx, func(context.Context) error {
		o.cfg = cfg
		o.resolver.SetExpiry(cfg.TurnExpiry)
		o.resolver.SetBaseThreshold(cfg.IntentThreshold)
		return nil
	})
}

// Speak enqueues text for synthesis at the given priority.
func (o *Orchestrator) Speak(ctx context.Context, text string, pri synth.Priority) error {
	return o.do(ctx, func(ctx context.Context) error {
		o.speak(ctx, text, pri)
		return nil
	})
}

// Status returns a snapshot of the session state.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	var st Status
	err := o.do(ctx, func(context.Context) error {
		st = o.snapshot()
		return nil
	})
	return st, err
}

// do posts a command to the loop and waits for its result.
func (o *Orchestrator) do(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{apply: fn, reply: make(chan error, 1)}
	select {
	case o.cmds <- cmd:
	case <-o.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) snapshot() Status {
	st := Status{
		VoiceEnabled: o.voiceOn,
		CaptureState: capture.StateIdle.String(),
		DialogOpen:   o.resolver.Pending(),
		LastError:    o.lastError,
		Settings:     o.current,
	}
	if o.machine != nil {
		st.CaptureState = o.machine.State().String()
		st.SessionID = o.machine.SessionID().String()
	}
	if o.queue != nil {
		st.Speaking = o.queue.Speaking()
		st.QueueLen = o.queue.Len()
	}
	return st
}
