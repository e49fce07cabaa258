// Package wall prepares a conversation for display: it classifies each
// message into a visual role, strips sentinel-delimited payload blocks from
// the visible text, and recovers the structured payloads those blocks carry.
package wall

import (
	"encoding/json"
	"strings"

	"github.com/shaadiscout/concierge/models"
)

// VisualRole is the closed set of ways a message renders.
type VisualRole int

const (
	RoleUser VisualRole = iota
	RoleAssistant
	RoleReasoning
	RoleFallback
)

func (r VisualRole) String() string {
	switch r {
	case RoleUser:
		return "user"
	case RoleAssistant:
		return "assistant"
	case RoleReasoning:
		return "reasoning"
	default:
		return "fallback"
	}
}

// StreamStatus mirrors the client's view of the in-flight response.
type StreamStatus string

const (
	StatusReady     StreamStatus = "ready"
	StatusStreaming StreamStatus = "streaming"
	StatusSubmitted StreamStatus = "submitted"
	StatusError     StreamStatus = "error"
)

// Payload is a structured object recovered from a sentinel block.
type Payload struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// RenderItem is one display-ready message.
type RenderItem struct {
	ID        string     `json:"id,omitempty"`
	Role      VisualRole `json:"-"`
	RoleTag   string     `json:"role"`
	Text      string     `json:"text"`
	Payload   *Payload   `json:"payload,omitempty"`
	Streaming bool       `json:"streaming,omitempty"`
}

// sentinel marker pairs, in the order they are probed.
type sentinelPair struct {
	start, end, kind string
}

var sentinelPairs = []sentinelPair{
	{"__VENDOR_HITS_JSON__", "__END_VENDOR_HITS_JSON__", "vendor-hits"},
	{"__VENDOR_DETAILS_JSON__", "__END_VENDOR_DETAILS_JSON__", "vendor-details"},
	{"__VENDOR_REVIEWS_JSON__", "__END_VENDOR_REVIEWS_JSON__", "vendor-reviews"},
	{"___GUIDE_JSON___", "___END_GUIDE_JSON___", "guide"},
}

// ClassifyRole resolves a message role string to its visual role once; the
// renderer dispatches on the result instead of cascading on raw strings.
func ClassifyRole(role string) VisualRole {
	switch role {
	case models.RoleUser:
		return RoleUser
	case models.RoleAssistant, models.RoleTool:
		return RoleAssistant
	case models.RoleSystem:
		return RoleReasoning
	default:
		return RoleFallback
	}
}

// BuildRenderList converts a message history into display-ready items.
// Reasoning parts promote a message to the reasoning role even when its
// role string says otherwise. While a response is streaming, the last
// non-user item carries the typing affordance.
func BuildRenderList(msgs []models.Message, status StreamStatus) []RenderItem {
	items := make([]RenderItem, 0, len(msgs))
	for _, msg := range msgs {
		role := ClassifyRole(msg.Role)
		if role != RoleUser && hasReasoningPart(msg) {
			role = RoleReasoning
		}

		raw := msg.Text()
		payload, _ := ExtractPayload(raw)

		items = append(items, RenderItem{
			ID:      msg.ID,
			Role:    role,
			RoleTag: role.String(),
			Text:    StripSentinels(raw),
			Payload: payload,
		})
	}
	if status == StatusStreaming && len(items) > 0 {
		if last := &items[len(items)-1]; last.Role != RoleUser {
			last.Streaming = true
		}
	}
	return items
}

func hasReasoningPart(msg models.Message) bool {
	for _, p := range msg.Parts {
		if p.Type == models.PartReasoning {
			return true
		}
	}
	return false
}

// StripSentinels removes every complete sentinel block, markers included,
// from the visible text. Text without markers passes through byte-for-byte
// unchanged, and stripping is idempotent.
func StripSentinels(text string) string {
	stripped := false
	for _, pair := range sentinelPairs {
		for {
			start := strings.Index(text, pair.start)
			if start < 0 {
				break
			}
			stripped = true
			rest := text[start+len(pair.start):]
			end := strings.Index(rest, pair.end)
			if end < 0 {
				// Unterminated block: drop from the start marker onward so
				// half-streamed payloads never flash as raw text.
				text = text[:start]
				break
			}
			text = text[:start] + rest[end+len(pair.end):]
		}
	}
	if !stripped {
		return text
	}
	return strings.TrimSpace(text)
}

// ExtractPayload recovers the first structured payload embedded in the
// text. Malformed JSON gets one recovery attempt — the slice between the
// first '{' and last '}' — before giving up. It never panics and never
// returns a parse error to the render path.
func ExtractPayload(text string) (*Payload, bool) {
	for _, pair := range sentinelPairs {
		start := strings.Index(text, pair.start)
		if start < 0 {
			continue
		}
		rest := text[start+len(pair.start):]
		end := strings.Index(rest, pair.end)
		if end < 0 {
			continue
		}

		enclosed := strings.TrimSpace(rest[:end])
		if raw, ok := parseLoose(enclosed); ok {
			return &Payload{Kind: pair.kind, Data: raw}, true
		}
		return nil, false
	}
	return nil, false
}

// parseLoose validates enclosed text as JSON, with a best-effort brace
// slice as fallback.
func parseLoose(enclosed string) (json.RawMessage, bool) {
	if json.Valid([]byte(enclosed)) && enclosed != "" {
		return json.RawMessage(enclosed), true
	}

	first := strings.Index(enclosed, "{")
	last := strings.LastIndex(enclosed, "}")
	if first >= 0 && last > first {
		sliced := enclosed[first : last+1]
		if json.Valid([]byte(sliced)) {
			return json.RawMessage(sliced), true
		}
	}
	return nil, false
}
