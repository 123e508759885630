// Package speechio defines the provider contracts between the Atlas core and
// the platform speech services that perform actual audio capture and voice
// rendering.
//
// The core never touches raw audio. An InputProvider turns microphone speech
// into RecognitionEvent values; an OutputProvider turns response text into
// audible speech and reports render lifecycle events. Both sides are driven
// through channels so the session orchestrator can consume everything on a
// single event loop.
//
// Implementations must be safe for concurrent use.
package speechio

import "context"

// InputProvider is the abstraction over a speech recognition backend
// (a browser's speech API relayed over the wsbridge, a native recognizer,
// or a mock in tests).
type InputProvider interface {
	// Start opens a recognition session with the given configuration.
	// Recognition results and asynchronous errors are delivered on the
	// Events and Errors channels until Stop is called or a fatal error
	// occurs, at which point both channels are closed.
	//
	// Returns an error if the provider lacks the capability to capture
	// speech in this environment (permission, hardware, no client attached).
	Start(ctx context.Context, cfg InputConfig) error

	// Stop terminates the recognition session and releases resources.
	// Calling Stop when no session is active is a no-op. After Stop returns
	// no further events are delivered.
	Stop() error

	// Events returns the channel on which recognition results arrive.
	// The channel is owned by the provider and closed when the session ends.
	Events() <-chan RecognitionEvent

	// Errors returns the channel on which asynchronous recognition errors
	// arrive. Closed when the session ends.
	Errors() <-chan InputError
}

// RenderEvent reports the lifecycle of one render request.
type RenderEvent struct {
	// ID echoes the id passed to Render.
	ID string

	// Kind is one of RenderStarted, RenderEnded, RenderFailed.
	Kind RenderEventKind

	// Err carries the failure reason for RenderFailed events.
	Err error
}

// RenderEventKind enumerates render lifecycle notifications.
type RenderEventKind string

const (
	RenderStarted RenderEventKind = "started"
	RenderEnded   RenderEventKind = "ended"
	RenderFailed  RenderEventKind = "failed"
)

// OutputProvider is the abstraction over a text-to-speech backend.
//
// Render is asynchronous: it returns once the request is accepted and the
// provider reports progress through the RenderEvents channel. At most one
// render is in flight at a time — the synthesis queue serializes requests.
type OutputProvider interface {
	// Render begins speaking text with the given voice parameters. The id is
	// echoed back in the resulting RenderEvents so callers can correlate
	// completions with queue items.
	Render(ctx context.Context, id string, text string, params VoiceParams) error

	// Pause suspends the active render without discarding it.
	Pause() error

	// Resume continues a paused render.
	Resume() error

	// Cancel aborts the active render, if any. The provider emits a
	// RenderEnded event for the cancelled id.
	Cancel() error

	// RenderEvents returns the channel on which render lifecycle events
	// arrive. The channel is owned by the provider.
	RenderEvents() <-chan RenderEvent
}
