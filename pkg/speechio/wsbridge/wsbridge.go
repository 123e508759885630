// Package wsbridge implements the speechio provider contracts over a
// WebSocket connection to a browser or device client. The client performs the
// actual microphone capture and voice rendering; recognition results and
// render lifecycle events cross the socket as JSON messages.
//
// A Bridge serves one client at a time. It implements both
// speechio.InputProvider and speechio.OutputProvider so a single connection
// carries both directions.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/atlasvoice/atlas/pkg/speechio"
	"github.com/coder/websocket"
)

const writeTimeout = 5 * time.Second

var (
	_ speechio.InputProvider  = (*Bridge)(nil)
	_ speechio.OutputProvider = (*Bridge)(nil)
)

var (
	// ErrNoClient is returned when an operation requires a connected client
	// and none is attached.
	ErrNoClient = errors.New("wsbridge: no client attached")

	// ErrCaptureActive is returned by Start when a capture session is
	// already running.
	ErrCaptureActive = errors.New("wsbridge: capture session already active")
)

// message is the JSON envelope crossing the websocket in both directions.
//
// Server to client types: start_capture, stop_capture, render, pause,
// resume, cancel. Client to server types: recognition, capture_error,
// render_event.
type message struct {
	Type string `json:"type"`

	// start_capture
	Language       string `json:"language,omitempty"`
	Continuous     bool   `json:"continuous,omitempty"`
	InterimResults bool   `json:"interim_results,omitempty"`

	// recognition
	Text       string  `json:"text,omitempty"`
	IsFinal    bool    `json:"is_final,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`

	// capture_error, render_event
	Kind  string `json:"kind,omitempty"`
	Error string `json:"error,omitempty"`

	// render, render_event
	ID    string       `json:"id,omitempty"`
	Voice *voiceParams `json:"voice,omitempty"`
}

// voiceParams is the wire form of speechio.VoiceParams.
type voiceParams struct {
	Language string  `json:"language"`
	Rate     float64 `json:"rate"`
	Pitch    float64 `json:"pitch"`
	Volume   float64 `json:"volume"`
}

// Option is a functional option for configuring a Bridge.
type Option func(*Bridge)

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(b *Bridge) {
		if log != nil {
			b.log = log
		}
	}
}

// Bridge relays speech capture and rendering between the Atlas core and one
// connected websocket client. It is safe for concurrent use.
type Bridge struct {
	log *slog.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	capturing    bool
	events       chan speechio.RecognitionEvent
	errs         chan speechio.InputError
	renders      chan speechio.RenderEvent
	activeRender string
}

// New creates a Bridge with no client attached. Attach clients by serving
// [Bridge.Handler] on an HTTP route.
func New(opts ...Option) *Bridge {
	b := &Bridge{
		log:     slog.Default(),
		renders: make(chan speechio.RenderEvent, 16),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler returns the HTTP handler that upgrades requests to websocket
// connections. Only one client may be attached at a time; additional
// connections are rejected with a policy-violation close.
func (b *Bridge) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			b.log.Warn("wsbridge: accept failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		if !b.attach(conn) {
			conn.Close(websocket.StatusPolicyViolation, "another client is attached")
			return
		}
		b.log.Info("wsbridge: client attached", "remote", r.RemoteAddr)
		b.readLoop(r.Context(), conn)
		b.detach(conn)
		conn.Close(websocket.StatusNormalClosure, "")
		b.log.Info("wsbridge: client detached", "remote", r.RemoteAddr)
	})
}

// attach registers conn as the active client. Returns false if another
// client is already attached.
func (b *Bridge) attach(conn *websocket.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return false
	}
	b.conn = conn
	return true
}

// detach clears conn if it is still the active client. A disconnect during
// an active capture session surfaces as a recoverable network error so the
// capture machine can retry; an in-flight render is reported failed.
func (b *Bridge) detach(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != conn {
		return
	}
	b.conn = nil

	if b.capturing {
		b.deliverError(speechio.InputError{
			Kind:    speechio.ErrNetwork,
			Message: "client disconnected",
		})
	}
	if b.activeRender != "" {
		b.deliverRender(speechio.RenderEvent{
			ID:   b.activeRender,
			Kind: speechio.RenderFailed,
			Err:  ErrNoClient,
		})
		b.activeRender = ""
	}
}

// readLoop consumes JSON messages from the client until the connection
// closes.
func (b *Bridge) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			b.log.Warn("wsbridge: malformed client message", "err", err)
			continue
		}
		b.dispatch(msg)
	}
}

// dispatch routes one client message to the matching provider channel.
func (b *Bridge) dispatch(msg message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch msg.Type {
	case "recognition":
		if !b.capturing {
			return
		}
		ev := speechio.RecognitionEvent{
			Text:       msg.Text,
			IsFinal:    msg.IsFinal,
			Confidence: msg.Confidence,
			Timestamp:  time.Now(),
		}
		select {
		case b.events <- ev:
		default:
			b.log.Warn("wsbridge: recognition event dropped, consumer too slow")
		}

	case "capture_error":
		if !b.capturing {
			return
		}
		b.deliverError(speechio.InputError{
			Kind:    mapErrorKind(msg.Kind),
			Message: msg.Error,
		})

	case "render_event":
		ev := speechio.RenderEvent{ID: msg.ID, Kind: speechio.RenderEventKind(msg.Kind)}
		if msg.Error != "" {
			ev.Err = errors.New(msg.Error)
		}
		switch ev.Kind {
		case speechio.RenderStarted, speechio.RenderEnded, speechio.RenderFailed:
		default:
			b.log.Warn("wsbridge: unknown render event kind", "kind", msg.Kind)
			return
		}
		if ev.Kind != speechio.RenderStarted && msg.ID == b.activeRender {
			b.activeRender = ""
		}
		b.deliverRender(ev)

	default:
		b.log.Warn("wsbridge: unknown message type", "type", msg.Type)
	}
}

// deliverError sends on the errors channel without blocking the read loop.
// Callers must hold b.mu.
func (b *Bridge) deliverError(ie speechio.InputError) {
	select {
	case b.errs <- ie:
	default:
		b.log.Warn("wsbridge: input error dropped, consumer too slow", "kind", ie.Kind)
	}
}

// deliverRender sends on the render events channel without blocking the read
// loop. Callers must hold b.mu.
func (b *Bridge) deliverRender(ev speechio.RenderEvent) {
	select {
	case b.renders <- ev:
	default:
		b.log.Warn("wsbridge: render event dropped, consumer too slow", "id", ev.ID)
	}
}

// mapErrorKind translates the Web Speech API error names the client reports
// into the speechio error taxonomy.
func mapErrorKind(kind string) speechio.ErrorKind {
	switch kind {
	case "no-speech":
		return speechio.ErrNoSpeech
	case "network":
		return speechio.ErrNetwork
	case "not-allowed", "service-not-allowed", "audio-capture":
		return speechio.ErrNotAllowed
	case "aborted":
		return speechio.ErrAborted
	}
	return speechio.ErrOther
}

// ---- speechio.InputProvider ----

// Start opens a capture session on the attached client.
func (b *Bridge) Start(ctx context.Context, cfg speechio.InputConfig) error {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return ErrNoClient
	}
	if b.capturing {
		b.mu.Unlock()
		return ErrCaptureActive
	}
	b.events = make(chan speechio.RecognitionEvent, 64)
	b.errs = make(chan speechio.InputError, 16)
	b.capturing = true
	b.mu.Unlock()

	err := b.write(ctx, conn, message{
		Type:           "start_capture",
		Language:       cfg.Language,
		Continuous:     cfg.Continuous,
		InterimResults: cfg.InterimResults,
	})
	if err != nil {
		b.mu.Lock()
		b.endSession()
		b.mu.Unlock()
		return fmt.Errorf("wsbridge: start capture: %w", err)
	}
	return nil
}

// Stop terminates the capture session and closes the event channels.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if !b.capturing {
		b.mu.Unlock()
		return nil
	}
	conn := b.conn
	b.endSession()
	b.mu.Unlock()

	if conn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := b.write(ctx, conn, message{Type: "stop_capture"}); err != nil {
			return fmt.Errorf("wsbridge: stop capture: %w", err)
		}
	}
	return nil
}

// endSession closes the per-session channels. Callers must hold b.mu.
func (b *Bridge) endSession() {
	b.capturing = false
	if b.events != nil {
		close(b.events)
		b.events = nil
	}
	if b.errs != nil {
		close(b.errs)
		b.errs = nil
	}
}

// Events returns the recognition event channel of the current session, or
// nil when no session is active.
func (b *Bridge) Events() <-chan speechio.RecognitionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events
}

// Errors returns the input error channel of the current session, or nil when
// no session is active.
func (b *Bridge) Errors() <-chan speechio.InputError {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errs
}

// ---- speechio.OutputProvider ----

// Render asks the client to speak text with the given voice parameters.
func (b *Bridge) Render(ctx context.Context, id string, text string, params speechio.VoiceParams) error {
	b.mu.Lock()
	conn := b.conn
	if conn == nil {
		b.mu.Unlock()
		return ErrNoClient
	}
	b.activeRender = id
	b.mu.Unlock()

	err := b.write(ctx, conn, message{
		Type: "render",
		ID:   id,
		Text: text,
		Voice: &voiceParams{
			Language: params.Language,
			Rate:     params.Rate,
			Pitch:    params.Pitch,
			Volume:   params.Volume,
		},
	})
	if err != nil {
		b.mu.Lock()
		if b.activeRender == id {
			b.activeRender = ""
		}
		b.mu.Unlock()
		return fmt.Errorf("wsbridge: render: %w", err)
	}
	return nil
}

// Pause asks the client to suspend the active render.
func (b *Bridge) Pause() error {
	return b.control("pause")
}

// Resume asks the client to continue a paused render.
func (b *Bridge) Resume() error {
	return b.control("resume")
}

// Cancel asks the client to abort the active render. The client acknowledges
// with a render_event of kind "ended".
func (b *Bridge) Cancel() error {
	return b.control("cancel")
}

// RenderEvents returns the render lifecycle channel. It is created once and
// survives client reconnects.
func (b *Bridge) RenderEvents() <-chan speechio.RenderEvent {
	return b.renders
}

// control sends a bare control message to the client.
func (b *Bridge) control(typ string) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNoClient
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := b.write(ctx, conn, message{Type: typ}); err != nil {
		return fmt.Errorf("wsbridge: %s: %w", typ, err)
	}
	return nil
}

// write marshals msg and sends it as a text frame with a bounded deadline.
func (b *Bridge) write(ctx context.Context, conn *websocket.Conn, msg message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
