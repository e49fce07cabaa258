package tools

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// braveSearchURL is a var so tests can point the tool at a local server.
var braveSearchURL = "https://api.search.brave.com/res/v1/web/search"

// WebSearch searches the web using the Brave Search API and returns a
// plain-text digest of the hits.
func WebSearch(apiKey, query string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("brave search API key not configured")
	}

	req, err := http.NewRequest("GET", braveSearchURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	q := req.URL.Query()
	q.Add("q", query)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", apiKey)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request to Brave Search API: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Brave Search API request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	var result searchResultData
	if err := json.Unmarshal(responseBody, &result); err != nil {
		return "", fmt.Errorf("error unmarshalling Brave Search API response: %w", err)
	}

	return formatResultsAsText(result), nil
}

// WebSearchTool returns the Declaration for the Brave Search tool, bound to
// the given API key.
func WebSearchTool(apiKey string) Declaration {
	return Declaration{
		Name:        "web_search",
		Description: "Search the web using Brave Search API. Returns titles, URLs, and snippets.",
		Parameters: Parameters{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query string",
				},
			},
			Required: []string{"query"},
		},
		Callable: func(query string) (string, error) {
			return WebSearch(apiKey, query)
		},
	}
}

type searchResultData struct {
	Query struct {
		Original string `json:"original"`
	} `json:"query"`
	Web struct {
		Results []searchHit `json:"results"`
	} `json:"web"`
}

type searchHit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// stripStrongTags removes the highlight tags Brave embeds in titles and
// descriptions.
func stripStrongTags(s string) string {
	s = strings.ReplaceAll(s, "<strong>", "")
	s = strings.ReplaceAll(s, "</strong>", "")
	return s
}

func formatResultsAsText(searchResult searchResultData) string {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Search Query: %s\n\n", searchResult.Query.Original))
	builder.WriteString("Web Search Results:\n\n")

	if len(searchResult.Web.Results) == 0 {
		builder.WriteString("  No web results found.\n")
		return builder.String()
	}

	for i, hit := range searchResult.Web.Results {
		builder.WriteString(fmt.Sprintf("%d. Title: %s\n", i+1, stripStrongTags(hit.Title)))
		builder.WriteString(fmt.Sprintf("   URL: %s\n", hit.URL))
		builder.WriteString(fmt.Sprintf("   Description: %s\n", stripStrongTags(hit.Description)))

		parsedURL, err := url.Parse(hit.URL)
		source := "Unknown"
		if err == nil {
			source = strings.TrimPrefix(parsedURL.Hostname(), "www.")
		}
		builder.WriteString(fmt.Sprintf("   Source: %s\n\n", source))
	}

	return builder.String()
}
