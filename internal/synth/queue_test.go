package synth

import (
	"context"
	"errors"
	"testing"

	"github.com/atlasvoice/atlas/pkg/speechio"
	"github.com/atlasvoice/atlas/pkg/speechio/mock"
)

// drainStart consumes the RenderStarted event the mock emits and feeds it to
// the queue, returning the signal.
func drainStart(t *testing.T, q *Queue, out *mock.Output) Signal {
	t.Helper()
	select {
	case ev := <-out.RenderEvents():
		return q.HandleRenderEvent(context.Background(), ev)
	default:
		t.Fatal("expected a render event")
		return SignalNone
	}
}

// finish completes the active render and feeds the event to the queue.
func finish(t *testing.T, q *Queue, out *mock.Output) Signal {
	t.Helper()
	out.FinishRender(q.Active().ID)
	select {
	case ev := <-out.RenderEvents():
		return q.HandleRenderEvent(context.Background(), ev)
	default:
		t.Fatal("expected a render event")
		return SignalNone
	}
}

func TestEnqueueStartsImmediately(t *testing.T) {
	t.Parallel()

	out := mock.NewOutput()
	q := NewQueue(out)

	id := q.Enqueue(context.Background(), "hello", PriorityNormal, speechio.VoiceParams{})
	if id == "" {
		t.Fatal("expected an item id")
	}
	if q.Active() == nil || q.Active().ID != id {
		t.Fatal("expected the item to begin rendering immediately")
	}
	if sig := drainStart(t, q, out); sig != SignalSpeakingStarted {
		t.Errorf("signal: want %v, got %v", SignalSpeakingStarted, sig)
	}
	if !q.Speaking() {
		t.Error("expected speaking state")
	}
}

func TestHighPriorityJumpsQueueWithoutPreempting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := mock.NewOutput()
	q := NewQueue(out)

	q.Enqueue(ctx, "first", PriorityNormal, speechio.VoiceParams{})
	drainStart(t, q, out)
	q.Enqueue(ctx, "urgent", PriorityHigh, speechio.VoiceParams{})
	q.Enqueue(ctx, "second", PriorityNormal, speechio.VoiceParams{})

	// The in-flight render is not interrupted.
	if got := q.Active().Text; got != "first" {
		t.Fatalf("active: want %q, got %q", "first", got)
	}
	if got := out.CancelCalls; got != 0 {
		t.Fatalf("cancel calls: want 0, got %d", got)
	}

	finish(t, q, out)
	drainStart(t, q, out)
	if got := q.Active().Text; got != "urgent" {
		t.Fatalf("active after first: want %q, got %q", "urgent", got)
	}
	finish(t, q, out)
	drainStart(t, q, out)
	if got := q.Active().Text; got != "second" {
		t.Fatalf("active after urgent: want %q, got %q", "second", got)
	}

	want := []string{"first", "urgent", "second"}
	got := out.Rendered()
	if len(got) != len(want) {
		t.Fatalf("rendered: want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("rendered[%d]: want %q, got %q", i, want[i], got[i])
		}
	}
}

func TestEqualPriorityIsFIFO(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := mock.NewOutput()
	q := NewQueue(out)

	q.Enqueue(ctx, "a", PriorityNormal, speechio.VoiceParams{})
	drainStart(t, q, out)
	q.Enqueue(ctx, "b", PriorityNormal, speechio.VoiceParams{})
	q.Enqueue(ctx, "c", PriorityNormal, speechio.VoiceParams{})

	finish(t, q, out)
	drainStart(t, q, out)
	if got := q.Active().Text; got != "b" {
		t.Errorf("want %q, got %q", "b", got)
	}
	finish(t, q, out)
	drainStart(t, q, out)
	if got := q.Active().Text; got != "c" {
		t.Errorf("want %q, got %q", "c", got)
	}
}

func TestSpeakingEndsWhenDrained(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := mock.NewOutput()
	q := NewQueue(out)

	q.Enqueue(ctx, "only", PriorityNormal, speechio.VoiceParams{})
	drainStart(t, q, out)

	if sig := finish(t, q, out); sig != SignalSpeakingEnded {
		t.Errorf("signal: want %v, got %v", SignalSpeakingEnded, sig)
	}
	if q.Speaking() {
		t.Error("expected speaking to end")
	}
	if q.Active() != nil {
		t.Error("expected no active render")
	}
}

func TestOverflowDropsOldestLowPriority(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := mock.NewOutput()
	q := NewQueue(out, WithCapacity(2))

	q.Enqueue(ctx, "active", PriorityNormal, speechio.VoiceParams{})
	drainStart(t, q, out)

	q.Enqueue(ctx, "old low", PriorityLow, speechio.VoiceParams{})
	q.Enqueue(ctx, "new low", PriorityLow, speechio.VoiceParams{})
	// Queue is at capacity; the oldest low-priority item goes.
	q.Enqueue(ctx, "normal", PriorityNormal, speechio.VoiceParams{})

	finish(t, q, out)
	drainStart(t, q, out)
	if got := q.Active().Text; got != "normal" {
		t.Fatalf("want %q, got %q", "normal", got)
	}
	finish(t, q, out)
	drainStart(t, q, out)
	if got := q.Active().Text; got != "new low" {
		t.Fatalf("want %q, got %q", "new low", got)
	}
	if sig := finish(t, q, out); sig != SignalSpeakingEnded {
		t.Fatalf("signal: want %v, got %v", SignalSpeakingEnded, sig)
	}
}

func TestOverflowRejectsWhenAllOutrank(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := mock.NewOutput()
	q := NewQueue(out, WithCapacity(1))

	q.Enqueue(ctx, "active", PriorityNormal, speechio.VoiceParams{})
	drainStart(t, q, out)
	q.Enqueue(ctx, "queued high", PriorityHigh, speechio.VoiceParams{})

	if id := q.Enqueue(ctx, "late low", PriorityLow, speechio.VoiceParams{}); id != "" {
		t.Error("expected low-priority item to be rejected when queue holds higher priorities")
	}
	if got := q.Len(); got != 1 {
		t.Errorf("pending: want 1, got %d", got)
	}
}

func TestPauseHoldsNextRender(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := mock.NewOutput()
	q := NewQueue(out)

	q.Enqueue(ctx, "first", PriorityNormal, speechio.VoiceParams{})
	drainStart(t, q, out)
	q.Enqueue(ctx, "second", PriorityNormal, speechio.VoiceParams{})

	if err := q.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if got := out.PauseCalls; got != 1 {
		t.Errorf("pause calls: want 1, got %d", got)
	}

	// Finishing the active render must not start the next one while paused.
	finish(t, q, out)
	if q.Active() != nil {
		t.Fatal("no render may start while paused")
	}

	if err := q.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if q.Active() == nil || q.Active().Text != "second" {
		t.Fatal("expected the queued item to start after resume")
	}
}

func TestStopCancelsAndClears(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := mock.NewOutput()
	q := NewQueue(out)

	q.Enqueue(ctx, "active", PriorityNormal, speechio.VoiceParams{})
	drainStart(t, q, out)
	q.Enqueue(ctx, "queued", PriorityNormal, speechio.VoiceParams{})

	if err := q.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := q.Len(); got != 0 {
		t.Errorf("pending after stop: want 0, got %d", got)
	}
	if got := out.CancelCalls; got != 1 {
		t.Errorf("cancel calls: want 1, got %d", got)
	}

	// The provider acknowledges cancellation with RenderEnded.
	select {
	case ev := <-out.RenderEvents():
		if sig := q.HandleRenderEvent(ctx, ev); sig != SignalSpeakingEnded {
			t.Errorf("signal: want %v, got %v", SignalSpeakingEnded, sig)
		}
	default:
		t.Fatal("expected cancel acknowledgement")
	}
	if got := len(out.Rendered()); got != 1 {
		t.Errorf("renders after stop: want 1, got %d", got)
	}
}

func TestRenderFailureSkipsToNext(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := mock.NewOutput()
	q := NewQueue(out)

	q.Enqueue(ctx, "doomed", PriorityNormal, speechio.VoiceParams{})
	drainStart(t, q, out)
	q.Enqueue(ctx, "next", PriorityNormal, speechio.VoiceParams{})

	out.FailRender(q.Active().ID, errors.New("voice unavailable"))
	select {
	case ev := <-out.RenderEvents():
		q.HandleRenderEvent(ctx, ev)
	default:
		t.Fatal("expected a render event")
	}

	if q.Active() == nil || q.Active().Text != "next" {
		t.Fatal("expected the next item to start after a failure")
	}
}

func TestRenderRequestErrorSkipsItem(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	out := mock.NewOutput()
	out.RenderErr = errors.New("engine not ready")
	q := NewQueue(out)

	q.Enqueue(ctx, "unspeakable", PriorityNormal, speechio.VoiceParams{})
	if q.Active() != nil {
		t.Fatal("failed render request must not become active")
	}
	if got := q.Len(); got != 0 {
		t.Errorf("pending: want 0, got %d", got)
	}
}
