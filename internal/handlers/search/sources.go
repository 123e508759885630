package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

const (
	defaultDuckDuckGoURL = "https://api.duckduckgo.com/"
	defaultWikipediaURL  = "https://en.wikipedia.org/w/api.php"
)

// errNoAnswer signals the source responded but had nothing useful, letting
// the fallback chain try the next source.
var errNoAnswer = fmt.Errorf("no answer")

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// duckduckgo queries the DuckDuckGo instant answer API.
type duckduckgo struct {
	client  *http.Client
	baseURL string
}

func (d *duckduckgo) Name() string { return "duckduckgo" }

type ddgResponse struct {
	AbstractText  string `json:"AbstractText"`
	Answer        string `json:"Answer"`
	Definition    string `json:"Definition"`
	RelatedTopics []struct {
		Text string `json:"Text"`
	} `json:"RelatedTopics"`
}

func (d *duckduckgo) Lookup(ctx context.Context, query string) (string, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	var resp ddgResponse
	if err := getJSON(ctx, d.client, d.baseURL+"?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("duckduckgo: %w", err)
	}

	for _, candidate := range []string{resp.AbstractText, resp.Answer, resp.Definition} {
		if candidate != "" {
			return candidate, nil
		}
	}
	if len(resp.RelatedTopics) > 0 && resp.RelatedTopics[0].Text != "" {
		return resp.RelatedTopics[0].Text, nil
	}
	return "", fmt.Errorf("duckduckgo: %w", errNoAnswer)
}

// wikipedia queries the MediaWiki search API for an intro extract.
type wikipedia struct {
	client  *http.Client
	baseURL string
}

func (w *wikipedia) Name() string { return "wikipedia" }

type wikiResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
		} `json:"pages"`
	} `json:"query"`
}

var wikiWhitespace = regexp.MustCompile(`\s+`)

func (w *wikipedia) Lookup(ctx context.Context, query string) (string, error) {
	q := url.Values{}
	q.Set("action", "query")
	q.Set("format", "json")
	q.Set("prop", "extracts")
	q.Set("exintro", "1")
	q.Set("explaintext", "1")
	q.Set("generator", "search")
	q.Set("gsrsearch", query)
	q.Set("gsrlimit", "1")

	var resp wikiResponse
	if err := getJSON(ctx, w.client, w.baseURL+"?"+q.Encode(), &resp); err != nil {
		return "", fmt.Errorf("wikipedia: %w", err)
	}

	for _, page := range resp.Query.Pages {
		if text := strings.TrimSpace(page.Extract); text != "" {
			return wikiWhitespace.ReplaceAllString(text, " "), nil
		}
	}
	return "", fmt.Errorf("wikipedia: %w", errNoAnswer)
}
