// Package dispatch routes fully-specified intents to registered capability
// handlers and normalizes whatever comes back — success, error, panic,
// timeout, or a missing registration — into a Result the synthesis queue can
// speak.
//
// Handlers are a tagged registry (intent kind → Handler), not a hierarchy:
// adding a capability is registering one (kind, handler) pair. Each kind gets
// a circuit breaker so a persistently failing handler answers with its
// apology immediately instead of burning the dispatch timeout every time.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/atlasvoice/atlas/internal/intent"
	"github.com/atlasvoice/atlas/internal/observe"
	"github.com/atlasvoice/atlas/internal/resilience"
)

// DefaultTimeout bounds a single handler invocation.
const DefaultTimeout = 10 * time.Second

// DefaultConfidenceThreshold is the minimum confidence required to invoke a
// handler; below it the dispatcher answers with the not-understood fallback.
const DefaultConfidenceThreshold = 0.6

// ErrorKind classifies dispatch failures for logging and status reporting.
type ErrorKind string

const (
	// ErrKindNone marks a successful dispatch.
	ErrKindNone ErrorKind = ""

	// ErrKindUnrecognized means the intent was Unknown or below the
	// confidence threshold. Not an error condition — the fallback response
	// is the designed behavior.
	ErrKindUnrecognized ErrorKind = "intent_unrecognized"

	// ErrKindUnhandled means a recognized kind had no registered handler.
	// A configuration gap, logged as such.
	ErrKindUnhandled ErrorKind = "unhandled_intent"

	// ErrKindTimeout means the handler did not return within the bound.
	ErrKindTimeout ErrorKind = "handler_timeout"

	// ErrKindFailure means the handler returned an error or panicked.
	ErrKindFailure ErrorKind = "handler_failure"
)

// Result is the normalized outcome of one dispatch.
type Result struct {
	// Success reports whether the handler completed normally.
	Success bool

	// SpokenText is handed to the synthesis queue. Phonetically normalized;
	// never contains raw error detail.
	SpokenText string

	// DisplayText is surfaced to the visual transcript. May carry debug
	// detail that must not be spoken aloud.
	DisplayText string

	// ErrorKind is ErrKindNone on success.
	ErrorKind ErrorKind
}

// Handler is the capability contract: turn a fully specified intent into a
// spoken/displayed result. Implementations may block on network I/O; the
// dispatcher bounds them with a timeout and recovers panics.
type Handler interface {
	Handle(ctx context.Context, in intent.Intent) (Result, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, in intent.Intent) (Result, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, in intent.Intent) (Result, error) {
	return f(ctx, in)
}

// Fallback texts. Spoken responses stay generic; detail goes to DisplayText.
const (
	fallbackUnrecognized = "Sorry, I didn't understand that."
	fallbackUnhandled    = "I understood what you asked, but I can't help with that yet."
	fallbackTimeout      = "That took too long. Please try again."
	fallbackFailure      = "Sorry, something went wrong handling that."
)

// Dispatcher owns the handler registry. Safe for concurrent use, though the
// orchestrator drives it from a single goroutine.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[intent.Kind]Handler
	breakers map[intent.Kind]*resilience.Breaker

	timeout   time.Duration
	threshold float64
	metrics   *observe.Metrics
}

// Option configures a Dispatcher during construction.
type Option func(*Dispatcher)

// WithTimeout sets the per-dispatch handler timeout. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.timeout = d
		}
	}
}

// WithThreshold sets the minimum confidence for handler invocation.
func WithThreshold(t float64) Option {
	return func(dp *Dispatcher) {
		dp.threshold = t
	}
}

// WithMetrics attaches metric instruments. Nil metrics are allowed and
// recording becomes a no-op.
func WithMetrics(m *observe.Metrics) Option {
	return func(dp *Dispatcher) {
		dp.metrics = m
	}
}

// New creates an empty Dispatcher.
func New(opts ...Option) *Dispatcher {
	dp := &Dispatcher{
		handlers:  make(map[intent.Kind]Handler),
		breakers:  make(map[intent.Kind]*resilience.Breaker),
		timeout:   DefaultTimeout,
		threshold: DefaultConfidenceThreshold,
	}
	for _, o := range opts {
		o(dp)
	}
	return dp
}

// Register binds a handler to an intent kind. Returns an error if the kind
// already has a handler — capability wiring mistakes should fail loudly at
// startup, not silently shadow each other.
func (dp *Dispatcher) Register(kind intent.Kind, h Handler) error {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	if _, ok := dp.handlers[kind]; ok {
		return fmt.Errorf("dispatch: handler for %q already registered", kind)
	}
	dp.handlers[kind] = h
	dp.breakers[kind] = resilience.NewBreaker(resilience.BreakerConfig{Name: string(kind)})
	return nil
}

// Kinds returns the intent kinds with registered handlers, for capability
// listings. Order is unspecified.
func (dp *Dispatcher) Kinds() []intent.Kind {
	dp.mu.RLock()
	defer dp.mu.RUnlock()

	out := make([]intent.Kind, 0, len(dp.handlers))
	for k := range dp.handlers {
		out = append(out, k)
	}
	return out
}

// Dispatch runs the handler for in and returns a Result in every case — it
// never returns an error, because from the session's point of view a failed
// dispatch is still a spoken response.
func (dp *Dispatcher) Dispatch(ctx context.Context, in intent.Intent) Result {
	ctx, span := observe.StartSpan(ctx, "dispatch",
		trace.WithAttributes(attribute.String("intent.kind", string(in.Kind))))
	defer span.End()
	log := observe.Logger(ctx)

	unrecognized := in.Kind == intent.Unknown ||
		in.Confidence < dp.threshold ||
		(in.Kind == intent.GeneralChat && !dp.has(in.Kind))
	if unrecognized {
		dp.metrics.RecordDispatch(ctx, string(in.Kind), 0, string(ErrKindUnrecognized))
		return Result{
			SpokenText:  fallbackUnrecognized,
			DisplayText: fmt.Sprintf("Unrecognized: %q (confidence %.2f)", in.Raw, in.Confidence),
			ErrorKind:   ErrKindUnrecognized,
		}
	}

	dp.mu.RLock()
	h, ok := dp.handlers[in.Kind]
	br := dp.breakers[in.Kind]
	dp.mu.RUnlock()

	if !ok {
		log.Warn("dispatch: no handler registered", "kind", in.Kind)
		dp.metrics.RecordDispatch(ctx, string(in.Kind), 0, string(ErrKindUnhandled))
		return Result{
			SpokenText:  fallbackUnhandled,
			DisplayText: fmt.Sprintf("No handler registered for intent kind %q.", in.Kind),
			ErrorKind:   ErrKindUnhandled,
		}
	}

	if err := br.Allow(); err != nil {
		log.Warn("dispatch: breaker open, skipping handler", "kind", in.Kind)
		dp.metrics.RecordDispatch(ctx, string(in.Kind), 0, string(ErrKindFailure))
		return Result{
			SpokenText:  fallbackFailure,
			DisplayText: fmt.Sprintf("Handler for %q is temporarily disabled after repeated failures.", in.Kind),
			ErrorKind:   ErrKindFailure,
		}
	}

	start := time.Now()
	res, err := dp.invoke(ctx, h, in)
	elapsed := time.Since(start)
	br.Record(err)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		log.Error("dispatch: handler timeout", "kind", in.Kind, "timeout", dp.timeout)
		dp.metrics.RecordDispatch(ctx, string(in.Kind), elapsed.Seconds(), string(ErrKindTimeout))
		return Result{
			SpokenText:  fallbackTimeout,
			DisplayText: fmt.Sprintf("Handler for %q exceeded the %s timeout.", in.Kind, dp.timeout),
			ErrorKind:   ErrKindTimeout,
		}
	case err != nil:
		// The underlying reason is attached to the display text only —
		// the spoken apology must never read error detail aloud.
		log.Error("dispatch: handler failed", "kind", in.Kind, "err", err)
		dp.metrics.RecordDispatch(ctx, string(in.Kind), elapsed.Seconds(), string(ErrKindFailure))
		return Result{
			SpokenText:  fallbackFailure,
			DisplayText: fmt.Sprintf("Handler for %q failed: %v", in.Kind, err),
			ErrorKind:   ErrKindFailure,
		}
	}

	dp.metrics.RecordDispatch(ctx, string(in.Kind), elapsed.Seconds(), "")
	res.Success = true
	if res.DisplayText == "" {
		res.DisplayText = res.SpokenText
	}
	return res
}

// invoke runs h under the dispatch timeout with panic recovery. The handler
// runs on its own goroutine; if it outlives the timeout its eventual result
// is discarded.
func (dp *Dispatcher) invoke(ctx context.Context, h Handler, in intent.Intent) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, dp.timeout)
	defer cancel()

	type outcome struct {
		res Result
		err error
	}
	ch := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("dispatch: handler panic: %v", r)}
			}
		}()
		res, err := h.Handle(ctx, in)
		ch <- outcome{res: res, err: err}
	}()

	select {
	case out := <-ch:
		return out.res, out.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (dp *Dispatcher) has(kind intent.Kind) bool {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	_, ok := dp.handlers[kind]
	return ok
}
