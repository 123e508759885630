// Package search answers search intents from public instant-answer APIs.
// DuckDuckGo is the primary source; Wikipedia is the fallback when DuckDuckGo
// has no abstract or is unreachable. Each source sits behind its own circuit
// breaker so a flapping endpoint is skipped instead of retried every turn.
package search

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/atlasvoice/atlas/internal/dispatch"
	"github.com/atlasvoice/atlas/internal/intent"
	"github.com/atlasvoice/atlas/internal/resilience"
)

// spokenLimit caps how much of an answer is read aloud; the full text goes to
// the display side.
const spokenLimit = 280

// source resolves a query to a short plain-text answer.
type source interface {
	Name() string
	Lookup(ctx context.Context, query string) (string, error)
}

// Handler implements dispatch.Handler for search intents.
type Handler struct {
	group *resilience.FallbackGroup[source]
}

var _ dispatch.Handler = (*Handler)(nil)

// Option configures a Handler.
type Option func(*Handler)

// WithSources replaces the default DuckDuckGo/Wikipedia chain. The first
// source is the primary; the rest are fallbacks in order.
func WithSources(primary source, fallbacks ...source) Option {
	return func(h *Handler) {
		h.group = resilience.NewFallbackGroup(primary, primary.Name(), resilience.BreakerConfig{})
		for _, s := range fallbacks {
			h.group.AddFallback(s.Name(), s)
		}
	}
}

// New builds a search Handler with the default source chain.
func New(opts ...Option) *Handler {
	h := &Handler{}
	for _, o := range opts {
		o(h)
	}
	if h.group == nil {
		client := &http.Client{}
		ddg := &duckduckgo{client: client, baseURL: defaultDuckDuckGoURL}
		wiki := &wikipedia{client: client, baseURL: defaultWikipediaURL}
		h.group = resilience.NewFallbackGroup[source](ddg, ddg.Name(), resilience.BreakerConfig{})
		h.group.AddFallback(wiki.Name(), wiki)
	}
	return h
}

// Handle looks the topic up and splits the answer into a speakable summary
// and the full display text.
func (h *Handler) Handle(ctx context.Context, in intent.Intent) (dispatch.Result, error) {
	query, _ := in.Entity(intent.SlotTopic)
	if query == "" {
		query = in.Raw
	}
	if strings.TrimSpace(query) == "" {
		return dispatch.Result{}, fmt.Errorf("search: empty query")
	}

	answer, err := resilience.ExecuteWithResult(h.group, func(s source) (string, error) {
		return s.Lookup(ctx, query)
	})
	if err != nil {
		return dispatch.Result{}, fmt.Errorf("search %q: %w", query, err)
	}

	return dispatch.Result{
		SpokenText:  truncateSpoken(answer),
		DisplayText: answer,
	}, nil
}

// truncateSpoken cuts the answer at a sentence boundary near the spoken
// limit, so the assistant does not read a full article aloud.
func truncateSpoken(text string) string {
	if len(text) <= spokenLimit {
		return text
	}
	// back up to a rune start so the cut never splits a multi-byte character
	limit := spokenLimit
	for limit > 0 && !utf8.RuneStart(text[limit]) {
		limit--
	}
	cut := text[:limit]
	if i := strings.LastIndexAny(cut, ".!?"); i > 0 {
		return strings.TrimRightFunc(cut[:i+1], unicode.IsSpace)
	}
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
