package synth

import (
	"container/heap"
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlasvoice/atlas/internal/observe"
	"github.com/atlasvoice/atlas/pkg/speechio"
)

// Priority orders queued utterances. Higher values are spoken first.
type Priority int

const (
	// PriorityLow is for ambient or optional speech; dropped first on overflow.
	PriorityLow Priority = iota
	// PriorityNormal is the default for handler responses.
	PriorityNormal
	// PriorityHigh jumps ahead of everything queued, but does not interrupt
	// the utterance currently rendering.
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Item is one utterance scheduled for synthesis.
type Item struct {
	ID       string
	Text     string
	Priority Priority
	Params   speechio.VoiceParams
}

// Signal tells the orchestrator when audible output starts and stops, so it
// can suspend capture while the assistant speaks and resume afterwards.
type Signal int

const (
	// SignalNone means the speaking state did not change.
	SignalNone Signal = iota
	// SignalSpeakingStarted fires when output becomes audible.
	SignalSpeakingStarted
	// SignalSpeakingEnded fires when the active render finished and nothing
	// is left to speak.
	SignalSpeakingEnded
)

// DefaultCapacity bounds the number of queued (not yet rendering) items.
const DefaultCapacity = 32

// Queue schedules utterances through an output provider, one render at a
// time. Not safe for concurrent use; the orchestrator loop owns it and feeds
// provider render events back through HandleRenderEvent.
type Queue struct {
	provider speechio.OutputProvider

	pending  itemHeap
	seq      uint64
	capacity int

	active      *Item
	activeStart time.Time
	speaking    bool
	paused      bool

	log     *slog.Logger
	metrics *observe.Metrics
	now     func() time.Time
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithCapacity sets the pending-item cap. Default 32.
func WithCapacity(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithLogger sets the logger. Default slog.Default().
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.log = l }
}

// WithMetrics wires queue metrics.
func WithMetrics(m *observe.Metrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

// WithClock overrides the time source for tests.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// NewQueue builds a Queue around the given output provider.
func NewQueue(provider speechio.OutputProvider, opts ...QueueOption) *Queue {
	q := &Queue{
		provider: provider,
		capacity: DefaultCapacity,
		log:      slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Len returns the number of pending items, excluding the active render.
func (q *Queue) Len() int { return q.pending.Len() }

// Active returns the item currently rendering, or nil.
func (q *Queue) Active() *Item { return q.active }

// Speaking reports whether output is currently audible.
func (q *Queue) Speaking() bool { return q.speaking }

// Enqueue schedules text for synthesis and returns the item ID. When nothing
// is rendering and the queue is not paused, the render starts immediately.
func (q *Queue) Enqueue(ctx context.Context, text string, pri Priority, params speechio.VoiceParams) string {
	it := Item{
		ID:       uuid.NewString(),
		Text:     text,
		Priority: pri,
		Params:   params,
	}

	if q.pending.Len() >= q.capacity && !q.evictFor(ctx, pri) {
		q.log.Warn("synthesis queue full, item rejected",
			"priority", pri, "len", len(text))
		q.dropped(ctx)
		return ""
	}

	q.seq++
	heap.Push(&q.pending, entry{item: it, seq: q.seq})
	if q.metrics != nil {
		q.metrics.QueueDepth.Add(ctx, 1)
	}

	q.advance(ctx)
	return it.ID
}

// evictFor makes room for a new item of priority pri by dropping the oldest
// item of the lowest priority present. It reports false when every queued
// item outranks the newcomer, in which case the newcomer is rejected instead.
func (q *Queue) evictFor(ctx context.Context, pri Priority) bool {
	victim := -1
	for i := range q.pending {
		if victim == -1 {
			victim = i
			continue
		}
		v, c := q.pending[victim], q.pending[i]
		if c.item.Priority < v.item.Priority ||
			(c.item.Priority == v.item.Priority && c.seq < v.seq) {
			victim = i
		}
	}
	if victim == -1 || q.pending[victim].item.Priority > pri {
		return false
	}

	dropped := q.pending[victim].item
	heap.Remove(&q.pending, victim)
	q.log.Warn("synthesis queue full, oldest low-priority item dropped",
		"dropped_id", dropped.ID, "dropped_priority", dropped.Priority)
	q.dropped(ctx)
	if q.metrics != nil {
		q.metrics.QueueDepth.Add(ctx, -1)
	}
	return true
}

func (q *Queue) dropped(ctx context.Context) {
	if q.metrics != nil {
		q.metrics.QueueDropped.Add(ctx, 1)
	}
}

// advance starts the next render when the provider is free and not paused.
func (q *Queue) advance(ctx context.Context) {
	for q.active == nil && !q.paused && q.pending.Len() > 0 {
		next := heap.Pop(&q.pending).(entry).item
		if q.metrics != nil {
			q.metrics.QueueDepth.Add(ctx, -1)
		}

		if err := q.provider.Render(ctx, next.ID, next.Text, next.Params); err != nil {
			q.log.Error("render request failed",
				"item_id", next.ID, "error", err)
			continue
		}
		q.active = &next
		q.activeStart = q.now()
	}
}

// HandleRenderEvent applies one provider render event and returns the
// resulting speaking-state signal.
func (q *Queue) HandleRenderEvent(ctx context.Context, ev speechio.RenderEvent) Signal {
	if q.active == nil || ev.ID != q.active.ID {
		// Stale event for an already cancelled or superseded render.
		return q.settle()
	}

	switch ev.Kind {
	case speechio.RenderStarted:
		if !q.speaking {
			q.speaking = true
			return SignalSpeakingStarted
		}
		return SignalNone
	case speechio.RenderFailed:
		q.log.Error("render failed",
			"item_id", q.active.ID, "error", ev.Err)
		fallthrough
	case speechio.RenderEnded:
		if q.metrics != nil {
			q.metrics.RenderDuration.Record(ctx, q.now().Sub(q.activeStart).Seconds())
		}
		q.active = nil
		q.advance(ctx)
		return q.settle()
	default:
		return SignalNone
	}
}

// settle resolves the speaking flag against current activity.
func (q *Queue) settle() Signal {
	if q.speaking && q.active == nil {
		q.speaking = false
		return SignalSpeakingEnded
	}
	return SignalNone
}

// Pause holds playback and stops new renders from starting.
func (q *Queue) Pause() error {
	if q.paused {
		return nil
	}
	q.paused = true
	return q.provider.Pause()
}

// Resume lifts a pause and kicks the next render if the provider is free.
func (q *Queue) Resume(ctx context.Context) error {
	if !q.paused {
		return nil
	}
	q.paused = false
	if err := q.provider.Resume(); err != nil {
		return err
	}
	q.advance(ctx)
	return nil
}

// Stop cancels the active render, clears all pending items and lifts any
// pause. The provider's cancel acknowledgement arrives as a RenderEnded
// event, which settle turns into SignalSpeakingEnded.
func (q *Queue) Stop(ctx context.Context) error {
	if n := q.pending.Len(); n > 0 && q.metrics != nil {
		q.metrics.QueueDepth.Add(ctx, int64(-n))
	}
	q.pending = q.pending[:0]
	q.paused = false

	if q.active == nil {
		return nil
	}
	return q.provider.Cancel()
}
