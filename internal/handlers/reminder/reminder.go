// Package reminder persists and recalls reminders. The handler maps reminder
// intents (create, read, delete) onto a Store; the when-to-fire text is kept
// as the user's own phrase, since the assistant reads it back rather than
// scheduling a timer.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/atlasvoice/atlas/internal/dispatch"
	"github.com/atlasvoice/atlas/internal/intent"
)

// ErrNotFound is returned when no reminder matches.
var ErrNotFound = errors.New("reminder: not found")

// Reminder is one stored reminder.
type Reminder struct {
	ID        string
	Topic     string
	When      string // the user's datetime phrase, verbatim
	CreatedAt time.Time
	Done      bool
}

// Store persists reminders.
type Store interface {
	Create(ctx context.Context, r *Reminder) error
	List(ctx context.Context) ([]Reminder, error)
	// DeleteByTopic removes the first reminder whose topic contains the given
	// text (case-insensitive). Returns ErrNotFound when nothing matches.
	DeleteByTopic(ctx context.Context, topic string) (Reminder, error)
}

// Handler implements dispatch.Handler for reminder intents.
type Handler struct {
	store Store
}

var _ dispatch.Handler = (*Handler)(nil)

// New builds a reminder Handler on the given store.
func New(store Store) *Handler {
	return &Handler{store: store}
}

// Handle routes the intent's action to the store.
func (h *Handler) Handle(ctx context.Context, in intent.Intent) (dispatch.Result, error) {
	switch in.Action {
	case "create", "":
		return h.create(ctx, in)
	case "list", "read":
		return h.list(ctx)
	case "delete":
		return h.delete(ctx, in)
	case "update":
		// Update is modeled as delete + create to keep the store contract small.
		if _, err := h.delete(ctx, in); err != nil && !errors.Is(err, ErrNotFound) {
			return dispatch.Result{}, err
		}
		return h.create(ctx, in)
	default:
		return dispatch.Result{}, fmt.Errorf("reminder: unsupported action %q", in.Action)
	}
}

func (h *Handler) create(ctx context.Context, in intent.Intent) (dispatch.Result, error) {
	topic, _ := in.Entity(intent.SlotTopic)
	when, _ := in.Entity(intent.SlotDatetime)
	if topic == "" || when == "" {
		return dispatch.Result{}, fmt.Errorf("reminder: create needs topic and datetime")
	}

	r := &Reminder{
		ID:        uuid.NewString(),
		Topic:     topic,
		When:      when,
		CreatedAt: time.Now(),
	}
	if err := h.store.Create(ctx, r); err != nil {
		return dispatch.Result{}, err
	}

	return dispatch.Result{
		SpokenText:  fmt.Sprintf("Okay, I'll remind you to %s %s.", topic, when),
		DisplayText: fmt.Sprintf("Reminder created: %s (%s)", topic, when),
	}, nil
}

func (h *Handler) list(ctx context.Context) (dispatch.Result, error) {
	all, err := h.store.List(ctx)
	if err != nil {
		return dispatch.Result{}, err
	}
	if len(all) == 0 {
		return dispatch.Result{SpokenText: "You have no reminders."}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "You have %d ", len(all))
	if len(all) == 1 {
		sb.WriteString("reminder: ")
	} else {
		sb.WriteString("reminders: ")
	}
	for i, r := range all {
		if i > 0 {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "%s %s", r.Topic, r.When)
	}
	sb.WriteString(".")
	return dispatch.Result{SpokenText: sb.String()}, nil
}

func (h *Handler) delete(ctx context.Context, in intent.Intent) (dispatch.Result, error) {
	topic, _ := in.Entity(intent.SlotTopic)
	if topic == "" {
		return dispatch.Result{}, fmt.Errorf("reminder: delete needs a topic")
	}

	removed, err := h.store.DeleteByTopic(ctx, topic)
	if errors.Is(err, ErrNotFound) {
		return dispatch.Result{
			SpokenText: fmt.Sprintf("I couldn't find a reminder about %s.", topic),
		}, nil
	}
	if err != nil {
		return dispatch.Result{}, err
	}
	return dispatch.Result{
		SpokenText:  fmt.Sprintf("Deleted your reminder to %s.", removed.Topic),
		DisplayText: fmt.Sprintf("Reminder deleted: %s (%s)", removed.Topic, removed.When),
	}, nil
}
