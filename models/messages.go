package models

// Message roles as sent by the client UI.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Part types within a message.
const (
	PartText       = "text"
	PartReasoning  = "reasoning"
	PartToolResult = "tool-result"
)

// Message is one entry in the ordered conversation history for a turn.
// Part order is significant: display text is the concatenation of the
// text-typed parts in order.
type Message struct {
	ID    string `json:"id,omitempty"`
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part is a tagged variant. Only the field matching Type is meaningful;
// unknown provider-specific types are carried through untouched.
type Part struct {
	Type   string      `json:"type"`
	Text   string      `json:"text,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// Text concatenates the text-typed parts of the message in part order.
func (m Message) Text() string {
	out := ""
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// LatestUserText returns the utterance of the most recent user message,
// or "" when the history contains none.
func LatestUserText(history []Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == RoleUser {
			return history[i].Text()
		}
	}
	return ""
}

// ChatRequest is the inbound POST body for a chat turn.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}
