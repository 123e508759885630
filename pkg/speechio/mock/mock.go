// Package mock provides test doubles for the speechio provider interfaces.
//
// Use Input to feed controlled RecognitionEvent values into the capture state
// machine and Output to inspect render requests without a real TTS backend.
// Output completes renders only when FinishRender is called, so tests control
// exactly when the synthesis queue advances.
package mock

import (
	"context"
	"sync"

	"github.com/atlasvoice/atlas/pkg/speechio"
)

// StartCall records a single invocation of Input.Start.
type StartCall struct {
	Cfg speechio.InputConfig
}

// Input is a mock implementation of speechio.InputProvider.
type Input struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned from Start. Use it to simulate an
	// environment without speech capture capability.
	StartErr error

	// StartCalls records every call to Start.
	StartCalls []StartCall

	// StopCalls counts calls to Stop.
	StopCalls int

	events chan speechio.RecognitionEvent
	errors chan speechio.InputError
}

var _ speechio.InputProvider = (*Input)(nil)

// NewInput returns a mock input provider with buffered event channels.
func NewInput() *Input {
	return &Input{
		events: make(chan speechio.RecognitionEvent, 16),
		errors: make(chan speechio.InputError, 16),
	}
}

// Start records the call and returns StartErr.
func (i *Input) Start(_ context.Context, cfg speechio.InputConfig) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.StartCalls = append(i.StartCalls, StartCall{Cfg: cfg})
	return i.StartErr
}

// Stop records the call.
func (i *Input) Stop() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.StopCalls++
	return nil
}

// Events returns the mock event channel.
func (i *Input) Events() <-chan speechio.RecognitionEvent { return i.events }

// Errors returns the mock error channel.
func (i *Input) Errors() <-chan speechio.InputError { return i.errors }

// Emit delivers a recognition event to the consumer.
func (i *Input) Emit(ev speechio.RecognitionEvent) { i.events <- ev }

// EmitError delivers an asynchronous recognition error to the consumer.
func (i *Input) EmitError(e speechio.InputError) { i.errors <- e }

// StartCount returns the number of Start calls recorded so far.
func (i *Input) StartCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.StartCalls)
}

// RenderCall records a single invocation of Output.Render.
type RenderCall struct {
	ID     string
	Text   string
	Params speechio.VoiceParams
}

// Output is a mock implementation of speechio.OutputProvider.
type Output struct {
	mu sync.Mutex

	// RenderErr, if non-nil, is returned from Render.
	RenderErr error

	// AutoStart, when true, emits a RenderStarted event as soon as Render is
	// called. Most tests want this.
	AutoStart bool

	// RenderCalls records every call to Render.
	RenderCalls []RenderCall

	// PauseCalls, ResumeCalls and CancelCalls count the respective calls.
	PauseCalls  int
	ResumeCalls int
	CancelCalls int

	events chan speechio.RenderEvent
}

var _ speechio.OutputProvider = (*Output)(nil)

// NewOutput returns a mock output provider with AutoStart enabled.
func NewOutput() *Output {
	return &Output{
		AutoStart: true,
		events:    make(chan speechio.RenderEvent, 16),
	}
}

// Render records the call and, with AutoStart, emits RenderStarted.
func (o *Output) Render(_ context.Context, id string, text string, params speechio.VoiceParams) error {
	o.mu.Lock()
	o.RenderCalls = append(o.RenderCalls, RenderCall{ID: id, Text: text, Params: params})
	autoStart := o.AutoStart
	err := o.RenderErr
	o.mu.Unlock()

	if err != nil {
		return err
	}
	if autoStart {
		o.events <- speechio.RenderEvent{ID: id, Kind: speechio.RenderStarted}
	}
	return nil
}

// Pause records the call.
func (o *Output) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.PauseCalls++
	return nil
}

// Resume records the call.
func (o *Output) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ResumeCalls++
	return nil
}

// Cancel records the call and emits RenderEnded for the most recent render.
func (o *Output) Cancel() error {
	o.mu.Lock()
	o.CancelCalls++
	var last string
	if n := len(o.RenderCalls); n > 0 {
		last = o.RenderCalls[n-1].ID
	}
	o.mu.Unlock()

	if last != "" {
		o.events <- speechio.RenderEvent{ID: last, Kind: speechio.RenderEnded}
	}
	return nil
}

// RenderEvents returns the mock render event channel.
func (o *Output) RenderEvents() <-chan speechio.RenderEvent { return o.events }

// FinishRender emits a RenderEnded event for id, simulating playback completion.
func (o *Output) FinishRender(id string) {
	o.events <- speechio.RenderEvent{ID: id, Kind: speechio.RenderEnded}
}

// FailRender emits a RenderFailed event for id.
func (o *Output) FailRender(id string, err error) {
	o.events <- speechio.RenderEvent{ID: id, Kind: speechio.RenderFailed, Err: err}
}

// LastRenderID returns the ID of the most recent render call, or "".
func (o *Output) LastRenderID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n := len(o.RenderCalls); n > 0 {
		return o.RenderCalls[n-1].ID
	}
	return ""
}

// Rendered returns the texts of all recorded render calls, in order.
func (o *Output) Rendered() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.RenderCalls))
	for i, c := range o.RenderCalls {
		out[i] = c.Text
	}
	return out
}
