// Package capture tracks the lifecycle of one speech capture session: the
// state machine, recognition gating (confidence floor, wake-word window) and
// bounded retry on recoverable provider errors. A Machine is owned by the
// orchestrator event loop and is not safe for concurrent use; the provider's
// channels are drained by that loop, which feeds events into the machine.
package capture

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlasvoice/atlas/internal/capture/wakeword"
	"github.com/atlasvoice/atlas/internal/observe"
	"github.com/atlasvoice/atlas/pkg/speechio"
)

// State is the capture lifecycle state.
type State int

const (
	// StateIdle means no capture session is active.
	StateIdle State = iota
	// StateListening means the provider is running and events are accepted.
	StateListening
	// StateSuspended means capture is held while synthesis plays, so the
	// assistant does not transcribe its own voice. Events are dropped.
	StateSuspended
	// StateErrorRecoverable means a transient provider error occurred and a
	// restart is pending.
	StateErrorRecoverable
	// StateErrorFatal means capture cannot continue without user action
	// (permission denied, capability missing, retries exhausted).
	StateErrorFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSuspended:
		return "suspended"
	case StateErrorRecoverable:
		return "error_recoverable"
	case StateErrorFatal:
		return "error_fatal"
	default:
		return "unknown"
	}
}

// Mode selects how capture sessions begin and end.
type Mode string

const (
	// ModeManual captures a single utterance, then returns to idle.
	ModeManual Mode = "manual"
	// ModeContinuous keeps capture open until voice mode is disabled.
	ModeContinuous Mode = "continuous"
	// ModeWakeWord keeps capture open but only forwards utterances after the
	// trigger phrase, for a bounded window per trigger.
	ModeWakeWord Mode = "wake-word"
)

// IsValid reports whether m names a known capture mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeManual, ModeContinuous, ModeWakeWord:
		return true
	}
	return false
}

// Drop explains why a recognition event was not forwarded to the pipeline.
type Drop string

const (
	DropNone       Drop = ""
	DropState      Drop = "not_listening"
	DropInterim    Drop = "interim"
	DropBelowFloor Drop = "below_floor"
	DropNoTrigger  Drop = "no_trigger"
	DropEmpty      Drop = "empty"
)

// Config holds the per-session capture settings. Settings changes made while
// a session is running take effect when the next session starts.
type Config struct {
	Mode            Mode
	Language        string
	ConfidenceFloor float64
	WakeWord        string
	WakeWindow      time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

// Defaults for zero-valued Config fields.
const (
	DefaultWakeWindow     = 10 * time.Second
	DefaultMaxRetries     = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second
)

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeManual
	}
	if c.WakeWindow <= 0 {
		c.WakeWindow = DefaultWakeWindow
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
}

// Machine is the capture state machine for one voice session.
type Machine struct {
	sessionID uuid.UUID
	cfg       Config
	provider  speechio.InputProvider
	detector  *wakeword.Detector

	state    State
	attempts int
	wakeUntil time.Time

	log     *slog.Logger
	metrics *observe.Metrics
	now     func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.log = l }
}

// WithMetrics wires capture metrics.
func WithMetrics(mt *observe.Metrics) Option {
	return func(m *Machine) { m.metrics = mt }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// New builds a Machine around the given input provider.
func New(provider speechio.InputProvider, cfg Config, opts ...Option) *Machine {
	cfg.applyDefaults()
	m := &Machine{
		cfg:      cfg,
		provider: provider,
		state:    StateIdle,
		log:      slog.Default(),
		now:      time.Now,
	}
	if cfg.Mode == ModeWakeWord {
		m.detector = wakeword.New(cfg.WakeWord)
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SessionID identifies the current (or most recent) capture session.
func (m *Machine) SessionID() uuid.UUID { return m.sessionID }

// State returns the current lifecycle state.
func (m *Machine) State() State { return m.state }

// Mode returns the configured capture mode.
func (m *Machine) Mode() Mode { return m.cfg.Mode }

// Start begins a new capture session. It is valid from idle and from either
// error state; starting an already running session is a no-op.
func (m *Machine) Start(ctx context.Context) error {
	switch m.state {
	case StateListening, StateSuspended:
		return nil
	}

	if err := m.startProvider(ctx); err != nil {
		m.state = StateErrorFatal
		m.log.Error("capture start failed", "error", err)
		return err
	}

	m.sessionID = uuid.New()
	m.state = StateListening
	m.attempts = 0
	m.wakeUntil = time.Time{}
	m.log.Info("capture session started",
		"session_id", m.sessionID,
		"mode", m.cfg.Mode,
		"language", m.cfg.Language)
	return nil
}

func (m *Machine) startProvider(ctx context.Context) error {
	return m.provider.Start(ctx, speechio.InputConfig{
		Language:       m.cfg.Language,
		Continuous:     m.cfg.Mode != ModeManual,
		InterimResults: true,
	})
}

// Stop ends the capture session and returns to idle. Safe to call in any
// state.
func (m *Machine) Stop() error {
	if m.state == StateIdle {
		return nil
	}
	err := m.provider.Stop()
	m.state = StateIdle
	m.wakeUntil = time.Time{}
	m.log.Info("capture session stopped", "session_id", m.sessionID)
	return err
}

// Suspend holds capture while synthesis is audible. Only a listening session
// can be suspended.
func (m *Machine) Suspend() {
	if m.state != StateListening {
		return
	}
	m.state = StateSuspended
	m.log.Debug("capture suspended", "session_id", m.sessionID)
}

// Resume lifts a suspension. In manual mode the single-utterance session is
// already over, so resume returns to idle instead of listening.
func (m *Machine) Resume() error {
	if m.state != StateSuspended {
		return nil
	}
	if m.cfg.Mode == ModeManual {
		m.state = StateIdle
		err := m.provider.Stop()
		m.log.Debug("capture resumed to idle", "session_id", m.sessionID)
		return err
	}
	m.state = StateListening
	m.log.Debug("capture resumed", "session_id", m.sessionID)
	return nil
}

// HandleEvent gates one recognition event. It returns the utterance text to
// feed into the pipeline, or a Drop reason when the event is discarded.
func (m *Machine) HandleEvent(ev speechio.RecognitionEvent) (string, Drop) {
	if m.state != StateListening {
		return "", DropState
	}
	if !ev.IsFinal {
		return "", DropInterim
	}
	if ev.Confidence < m.cfg.ConfidenceFloor {
		m.log.Debug("recognition below confidence floor",
			"session_id", m.sessionID,
			"confidence", ev.Confidence,
			"floor", m.cfg.ConfidenceFloor)
		return "", DropBelowFloor
	}

	text := ev.Text
	if m.cfg.Mode == ModeWakeWord {
		var drop Drop
		text, drop = m.gateWakeWord(text)
		if drop != DropNone {
			return "", drop
		}
	}
	if text == "" {
		return "", DropEmpty
	}

	if m.cfg.Mode == ModeManual {
		// Single-utterance session: the provider is done after one final.
		if err := m.provider.Stop(); err != nil {
			m.log.Warn("provider stop after manual utterance", "error", err)
		}
		m.state = StateIdle
	}
	return text, DropNone
}

// gateWakeWord applies trigger detection and the post-trigger window. Each
// forwarded utterance refreshes the window, so follow-ups within it do not
// need the trigger again.
func (m *Machine) gateWakeWord(text string) (string, Drop) {
	now := m.now()
	if now.Before(m.wakeUntil) {
		m.wakeUntil = now.Add(m.cfg.WakeWindow)
		return text, DropNone
	}

	rest, ok := m.detector.Match(text)
	if !ok {
		return "", DropNoTrigger
	}
	m.wakeUntil = now.Add(m.cfg.WakeWindow)
	m.log.Debug("wake word detected", "session_id", m.sessionID)
	if rest == "" {
		return "", DropEmpty
	}
	return rest, DropNone
}

// HandleError applies one provider error. When the error is recoverable and
// the retry budget is not spent, it returns the backoff delay before the
// caller should invoke Restart. fatal reports that the session ended in
// StateErrorFatal. An aborted provider simply ends the session.
func (m *Machine) HandleError(e speechio.InputError) (retryAfter time.Duration, fatal bool) {
	switch {
	case e.Kind == speechio.ErrAborted:
		m.state = StateIdle
		m.log.Info("capture aborted", "session_id", m.sessionID)
		return 0, false
	case !e.Kind.Recoverable():
		m.state = StateErrorFatal
		m.log.Error("fatal capture error",
			"session_id", m.sessionID,
			"kind", e.Kind,
			"message", e.Message)
		return 0, true
	}

	m.attempts++
	if m.attempts > m.cfg.MaxRetries {
		m.state = StateErrorFatal
		m.log.Error("capture retries exhausted",
			"session_id", m.sessionID,
			"attempts", m.attempts-1,
			"kind", e.Kind)
		return 0, true
	}

	m.state = StateErrorRecoverable
	delay := m.backoff()
	m.log.Warn("recoverable capture error",
		"session_id", m.sessionID,
		"kind", e.Kind,
		"message", e.Message,
		"attempt", m.attempts,
		"retry_in", delay)
	return delay, false
}

// Restart retries the provider after a recoverable error. On failure it
// behaves like HandleError: either another delay is returned or the machine
// goes fatal.
func (m *Machine) Restart(ctx context.Context) (retryAfter time.Duration, fatal bool) {
	if m.state != StateErrorRecoverable {
		return 0, m.state == StateErrorFatal
	}

	if m.metrics != nil {
		m.metrics.CaptureRestarts.Add(ctx, 1)
	}
	if err := m.startProvider(ctx); err != nil {
		return m.HandleError(speechio.InputError{
			Kind:    speechio.ErrOther,
			Message: err.Error(),
		})
	}

	m.state = StateListening
	m.attempts = 0
	m.log.Info("capture session recovered", "session_id", m.sessionID)
	return 0, false
}

// backoff doubles per attempt up to the cap.
func (m *Machine) backoff() time.Duration {
	d := m.cfg.InitialBackoff << (m.attempts - 1)
	if d > m.cfg.MaxBackoff {
		d = m.cfg.MaxBackoff
	}
	return d
}
