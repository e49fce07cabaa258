// Package moderation classifies inbound utterances against a hosted
// moderation endpoint before any other processing happens.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/shaadiscout/concierge/models"
)

// DefaultDenialMessage is emitted when an utterance is flagged and the
// classifier supplies no message of its own.
const DefaultDenialMessage = "I can't help with that request. Let's keep things focused on planning your event — ask me about vendors, venues, or anything wedding related."

const defaultBaseURL = "https://api.openai.com/v1"

// ModerationError means the classifier itself was unreachable or returned
// garbage, not that the input was flagged.
type ModerationError struct {
	Err error
}

func (e *ModerationError) Error() string {
	return fmt.Sprintf("moderation classifier failed: %v", e.Err)
}

func (e *ModerationError) Unwrap() error { return e.Err }

// Client calls an OpenAI-compatible /moderations endpoint.
type Client struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// NewClient creates a moderation client. BaseURL defaults to the OpenAI
// API; Model defaults to omni-moderation-latest.
func NewClient(apiKey string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default()
	}
	return &Client{
		APIKey:     apiKey,
		BaseURL:    defaultBaseURL,
		Model:      "omni-moderation-latest",
		HTTPClient: &http.Client{},
		Logger:     logger,
	}
}

type moderationRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type moderationResponse struct {
	Results []struct {
		Flagged    bool            `json:"flagged"`
		Categories map[string]bool `json:"categories"`
	} `json:"results"`
}

// Classify submits text to the moderation endpoint. A flagged result
// carries a user-facing denial message; failures return a ModerationError
// for the caller's policy to handle.
func (c *Client) Classify(ctx context.Context, text string) (models.ModerationResult, error) {
	if c.APIKey == "" {
		return models.ModerationResult{}, &ModerationError{Err: fmt.Errorf("moderation API key not set")}
	}

	body, err := json.Marshal(moderationRequest{Model: c.Model, Input: text})
	if err != nil {
		return models.ModerationResult{}, &ModerationError{Err: fmt.Errorf("error marshalling request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/moderations", bytes.NewReader(body))
	if err != nil {
		return models.ModerationResult{}, &ModerationError{Err: fmt.Errorf("error creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return models.ModerationResult{}, &ModerationError{Err: fmt.Errorf("error sending request to moderation API: %w", err)}
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.ModerationResult{}, &ModerationError{Err: fmt.Errorf("error reading response body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return models.ModerationResult{}, &ModerationError{Err: fmt.Errorf("moderation API request failed with status %d: %s", resp.StatusCode, string(responseBody))}
	}

	var parsed moderationResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return models.ModerationResult{}, &ModerationError{Err: fmt.Errorf("error unmarshalling moderation response: %w", err)}
	}
	if len(parsed.Results) == 0 {
		return models.ModerationResult{}, &ModerationError{Err: fmt.Errorf("moderation API returned no results")}
	}

	result := parsed.Results[0]
	if !result.Flagged {
		return models.ModerationResult{Flagged: false}, nil
	}

	var categories []string
	for cat, hit := range result.Categories {
		if hit {
			categories = append(categories, cat)
		}
	}
	c.Logger.Printf("[MODERATION] utterance flagged (categories: %s)", strings.Join(categories, ", "))

	return models.ModerationResult{
		Flagged:       true,
		DenialMessage: DefaultDenialMessage,
	}, nil
}
