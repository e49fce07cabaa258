package tools

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebSearchUsesConfiguredKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-Subscription-Token"); got != "configured-key" {
			t.Errorf("subscription token = %q", got)
		}
		if got := r.URL.Query().Get("q"); got != "caterers" {
			t.Errorf("query = %q", got)
		}
		w.Write([]byte(`{"query":{"original":"caterers"},"web":{"results":[{"title":"A","url":"https://a.example","description":"d"}]}}`))
	}))
	defer server.Close()

	orig := braveSearchURL
	braveSearchURL = server.URL
	defer func() { braveSearchURL = orig }()

	out, err := WebSearchTool("configured-key").Callable("caterers")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "1. Title: A") {
		t.Errorf("digest missing hit:\n%s", out)
	}
}

func TestWebSearchMissingKey(t *testing.T) {
	if _, err := WebSearch("", "anything"); err == nil {
		t.Error("an unset key must fail before any request is made")
	}
}

func TestStripStrongTags(t *testing.T) {
	in := "Best <strong>caterers</strong> in <strong>Mumbai</strong>"
	if got := stripStrongTags(in); got != "Best caterers in Mumbai" {
		t.Errorf("got %q", got)
	}
}

func TestFormatResultsAsText(t *testing.T) {
	data := searchResultData{}
	data.Query.Original = "wedding venues mumbai"
	data.Web.Results = []searchHit{
		{Title: "Top <strong>Venues</strong>", URL: "https://www.example.com/venues", Description: "A list"},
	}

	out := formatResultsAsText(data)
	if !strings.Contains(out, "Search Query: wedding venues mumbai") {
		t.Errorf("missing query line:\n%s", out)
	}
	if !strings.Contains(out, "1. Title: Top Venues") {
		t.Errorf("highlight tags should be stripped:\n%s", out)
	}
	if !strings.Contains(out, "Source: example.com") {
		t.Errorf("source should drop the www prefix:\n%s", out)
	}
}

func TestFormatResultsAsTextEmpty(t *testing.T) {
	out := formatResultsAsText(searchResultData{})
	if !strings.Contains(out, "No web results found.") {
		t.Errorf("empty results need an explicit line:\n%s", out)
	}
}
