package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/atlasvoice/atlas/internal/intent"
)

// stubSource returns a fixed answer or error.
type stubSource struct {
	name   string
	answer string
	err    error
	calls  int
}

func (s *stubSource) Name() string { return s.name }
func (s *stubSource) Lookup(context.Context, string) (string, error) {
	s.calls++
	return s.answer, s.err
}

func searchIntent(topic string) intent.Intent {
	entities := map[string]string{}
	if topic != "" {
		entities[intent.SlotTopic] = topic
	}
	return intent.Intent{Kind: intent.Search, Action: "web_search", Entities: entities, Confidence: 0.9, Raw: "search for " + topic}
}

func TestHandlePrimaryAnswers(t *testing.T) {
	t.Parallel()

	primary := &stubSource{name: "primary", answer: "Go is a programming language."}
	backup := &stubSource{name: "backup", answer: "unused"}
	h := New(WithSources(primary, backup))

	res, err := h.Handle(context.Background(), searchIntent("golang"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.SpokenText != "Go is a programming language." {
		t.Errorf("spoken: %q", res.SpokenText)
	}
	if backup.calls != 0 {
		t.Errorf("backup calls: want 0, got %d", backup.calls)
	}
}

func TestHandleFallsBack(t *testing.T) {
	t.Parallel()

	primary := &stubSource{name: "primary", err: errors.New("no answer")}
	backup := &stubSource{name: "backup", answer: "From the backup."}
	h := New(WithSources(primary, backup))

	res, err := h.Handle(context.Background(), searchIntent("anything"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.SpokenText != "From the backup." {
		t.Errorf("spoken: %q", res.SpokenText)
	}
	if primary.calls != 1 || backup.calls != 1 {
		t.Errorf("calls: primary %d, backup %d", primary.calls, backup.calls)
	}
}

func TestHandleAllSourcesFail(t *testing.T) {
	t.Parallel()

	primary := &stubSource{name: "primary", err: errors.New("down")}
	backup := &stubSource{name: "backup", err: errors.New("also down")}
	h := New(WithSources(primary, backup))

	if _, err := h.Handle(context.Background(), searchIntent("anything")); err == nil {
		t.Fatal("expected error when every source fails")
	}
}

func TestSpokenTextTruncatedAtSentence(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("This is a sentence. ", 30)
	primary := &stubSource{name: "primary", answer: long}
	h := New(WithSources(primary))

	res, err := h.Handle(context.Background(), searchIntent("anything"))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(res.SpokenText) > spokenLimit {
		t.Errorf("spoken length %d exceeds limit %d", len(res.SpokenText), spokenLimit)
	}
	if !strings.HasSuffix(res.SpokenText, ".") {
		t.Errorf("spoken text not cut at sentence boundary: %q", res.SpokenText)
	}
	if res.DisplayText != long {
		t.Error("display text must keep the full answer")
	}
}

func TestSpokenTextTruncationKeepsRunesIntact(t *testing.T) {
	t.Parallel()

	// No sentence mark or space anywhere, and 3-byte runes straddling the
	// byte limit, so the cut must land on a rune boundary.
	long := strings.Repeat("日", 200)
	got := truncateSpoken(long)

	if !utf8.ValidString(got) {
		t.Fatalf("truncated spoken text is not valid UTF-8: %q", got)
	}
	if len(got) > spokenLimit+len("…") {
		t.Errorf("spoken length %d exceeds limit %d", len(got), spokenLimit)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncated text missing ellipsis: %q", got)
	}
}

func TestDuckDuckGoLookup(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "gophers" {
			t.Errorf("query: want %q, got %q", "gophers", got)
		}
		w.Write([]byte(`{"AbstractText":"Gophers are burrowing rodents.","RelatedTopics":[]}`))
	}))
	t.Cleanup(srv.Close)

	d := &duckduckgo{client: srv.Client(), baseURL: srv.URL}
	got, err := d.Lookup(context.Background(), "gophers")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != "Gophers are burrowing rodents." {
		t.Errorf("answer: %q", got)
	}
}

func TestDuckDuckGoNoAnswer(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"AbstractText":"","RelatedTopics":[]}`))
	}))
	t.Cleanup(srv.Close)

	d := &duckduckgo{client: srv.Client(), baseURL: srv.URL}
	if _, err := d.Lookup(context.Background(), "obscure"); err == nil {
		t.Fatal("expected no-answer error")
	}
}

func TestWikipediaLookup(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("gsrsearch"); got != "go language" {
			t.Errorf("search: want %q, got %q", "go language", got)
		}
		w.Write([]byte(`{"query":{"pages":{"123":{"title":"Go","extract":"Go is a statically typed\nlanguage."}}}}`))
	}))
	t.Cleanup(srv.Close)

	wk := &wikipedia{client: srv.Client(), baseURL: srv.URL}
	got, err := wk.Lookup(context.Background(), "go language")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if got != "Go is a statically typed language." {
		t.Errorf("answer: %q", got)
	}
}
