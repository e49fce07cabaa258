// Package gemini is the streaming language-model backend for the general
// chat path. It talks to the Generative Language API directly and decodes
// the streamed JSON array of candidates incrementally.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/shaadiscout/concierge/models"
	"github.com/shaadiscout/concierge/tools"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// BackendStreamError wraps a failure of the generation backend mid-stream.
type BackendStreamError struct {
	Err error
}

func (e *BackendStreamError) Error() string {
	return fmt.Sprintf("generation backend failed: %v", e.Err)
}

func (e *BackendStreamError) Unwrap() error { return e.Err }

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]interface{}
}

// ReplyPart is one part of a streamed model reply. Thought marks reasoning
// text the model emitted while thinking.
type ReplyPart struct {
	Text         string
	Thought      bool
	FunctionCall *FunctionCall
}

// Reply is one streamed chunk of model output.
type Reply struct {
	Parts []ReplyPart
}

// Exchange is one completed tool round: the calls the model issued and the
// results fed back. Requests replay the whole chain so the model sees its
// own calls next to their results.
type Exchange struct {
	Calls   []FunctionCall
	Results []tools.Result
}

// Turn is one generation request within a chat turn's tool loop.
type Turn struct {
	History      []models.Message
	Exchanges    []Exchange
	Declarations []tools.Declaration
}

// Model streams generations from a Gemini model.
type Model struct {
	Model        string
	SystemPrompt string
	APIKey       string
	BaseURL      string
	HTTPClient   *http.Client
}

func (m *Model) baseURL() string {
	if m.BaseURL != "" {
		return strings.TrimSuffix(m.BaseURL, "/")
	}
	return defaultBaseURL
}

func (m *Model) httpClient() *http.Client {
	if m.HTTPClient != nil {
		return m.HTTPClient
	}
	return http.DefaultClient
}

// ---- wire types ----

type wireFunctionCall struct {
	ID   string                 `json:"id,omitempty"`
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

type wireFunctionResponse struct {
	Name     string                 `json:"name"`
	Response map[string]interface{} `json:"response"`
}

type wirePart struct {
	Text             string                `json:"text,omitempty"`
	Thought          bool                  `json:"thought,omitempty"`
	FunctionCall     *wireFunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *wireFunctionResponse `json:"functionResponse,omitempty"`
}

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wireDeclaration struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Parameters  tools.Parameters `json:"parameters"`
}

type wireTools struct {
	FunctionDeclarations []wireDeclaration `json:"function_declarations"`
}

type wireThinking struct {
	IncludeThoughts bool `json:"include_thoughts"`
}

type wireGenerationConfig struct {
	ThinkingConfig *wireThinking `json:"thinking_config,omitempty"`
}

type wireRequest struct {
	SystemInstruction *wireContent          `json:"system_instruction,omitempty"`
	Contents          []wireContent         `json:"contents"`
	Tools             []wireTools           `json:"tools,omitempty"`
	GenerationConfig  *wireGenerationConfig `json:"generation_config,omitempty"`
}

type wireResponse struct {
	Candidates []struct {
		Content wireContent `json:"content"`
	} `json:"candidates"`
}

// buildRequest converts a Turn into the API request body. Tool exchanges
// are replayed after the history: the model's own functionCall content
// followed by a user content carrying the functionResponse parts, one pair
// per completed round.
func (m *Model) buildRequest(turn Turn) wireRequest {
	req := wireRequest{
		GenerationConfig: &wireGenerationConfig{
			ThinkingConfig: &wireThinking{IncludeThoughts: true},
		},
	}

	if m.SystemPrompt != "" {
		req.SystemInstruction = &wireContent{Parts: []wirePart{{Text: m.SystemPrompt}}}
	}

	for _, msg := range turn.History {
		text := msg.Text()
		if text == "" {
			continue
		}
		switch msg.Role {
		case models.RoleUser:
			req.Contents = append(req.Contents, wireContent{Role: "user", Parts: []wirePart{{Text: text}}})
		case models.RoleAssistant:
			req.Contents = append(req.Contents, wireContent{Role: "model", Parts: []wirePart{{Text: text}}})
		default:
			// System text rides in the system instruction; tool messages are
			// replayed through Exchanges.
		}
	}

	for _, ex := range turn.Exchanges {
		callParts := make([]wirePart, 0, len(ex.Calls))
		for _, fc := range ex.Calls {
			callParts = append(callParts, wirePart{FunctionCall: &wireFunctionCall{ID: fc.ID, Name: fc.Name, Args: fc.Args}})
		}
		req.Contents = append(req.Contents, wireContent{Role: "model", Parts: callParts})

		respParts := make([]wirePart, 0, len(ex.Results))
		for _, res := range ex.Results {
			var resultMap map[string]interface{}
			if err := json.Unmarshal([]byte(res.Output), &resultMap); err != nil {
				resultMap = map[string]interface{}{"raw_output": res.Output}
			}
			respParts = append(respParts, wirePart{FunctionResponse: &wireFunctionResponse{Name: res.ToolName, Response: resultMap}})
		}
		req.Contents = append(req.Contents, wireContent{Role: "user", Parts: respParts})
	}

	if len(turn.Declarations) > 0 {
		decls := make([]wireDeclaration, 0, len(turn.Declarations))
		for _, d := range turn.Declarations {
			decls = append(decls, wireDeclaration{Name: d.Name, Description: d.Description, Parameters: d.Parameters})
		}
		req.Tools = []wireTools{{FunctionDeclarations: decls}}
	}

	return req
}

// StreamGenerate runs one generation and streams reply chunks as they
// arrive. Both channels close when the stream ends; a send on the error
// channel terminates the stream.
func (m *Model) StreamGenerate(ctx context.Context, turn Turn) (<-chan Reply, <-chan error) {
	resChan := make(chan Reply)
	errChan := make(chan error, 1)

	body, err := json.Marshal(m.buildRequest(turn))
	if err != nil {
		errChan <- &BackendStreamError{Err: fmt.Errorf("failed to marshal request body: %w", err)}
		close(errChan)
		close(resChan)
		return resChan, errChan
	}

	go func() {
		defer close(resChan)
		defer close(errChan)

		model := m.Model
		if model == "" {
			model = "gemini-2.0-flash"
		}
		url := fmt.Sprintf("%s/models/%s:streamGenerateContent?key=%s", m.baseURL(), model, m.APIKey)

		req, err := http.NewRequestWithContext(ctx, "POST", url, strings.NewReader(string(body)))
		if err != nil {
			errChan <- &BackendStreamError{Err: fmt.Errorf("error creating request: %w", err)}
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := m.httpClient().Do(req)
		if err != nil {
			errChan <- &BackendStreamError{Err: fmt.Errorf("error making POST request: %w", err)}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			bodyBytes, _ := io.ReadAll(resp.Body)
			errChan <- &BackendStreamError{Err: fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(bodyBytes))}
			return
		}

		// The streaming endpoint returns a JSON array of response objects;
		// decode element by element as bytes arrive.
		decoder := json.NewDecoder(resp.Body)
		t, err := decoder.Token()
		if err != nil {
			errChan <- &BackendStreamError{Err: fmt.Errorf("error reading opening bracket: %w", err)}
			return
		}
		if delim, ok := t.(json.Delim); !ok || delim != '[' {
			errChan <- &BackendStreamError{Err: fmt.Errorf("expected '[' at start of stream, got %T: %v", t, t)}
			return
		}

		for decoder.More() {
			var chunk wireResponse
			if err := decoder.Decode(&chunk); err != nil {
				errChan <- &BackendStreamError{Err: fmt.Errorf("error decoding stream chunk: %w", err)}
				return
			}
			reply := convertChunk(chunk)
			if len(reply.Parts) == 0 {
				continue
			}
			select {
			case resChan <- reply:
			case <-ctx.Done():
				errChan <- ctx.Err()
				return
			}
		}

		if t, err := decoder.Token(); err != nil && err != io.EOF {
			errChan <- &BackendStreamError{Err: fmt.Errorf("error reading closing bracket: %w", err)}
		} else if err != io.EOF {
			if delim, ok := t.(json.Delim); !ok || delim != ']' {
				errChan <- &BackendStreamError{Err: fmt.Errorf("expected ']' at end of stream, got %T: %v", t, t)}
			}
		}
	}()

	return resChan, errChan
}

func convertChunk(chunk wireResponse) Reply {
	var reply Reply
	for _, candidate := range chunk.Candidates {
		for _, part := range candidate.Content.Parts {
			rp := ReplyPart{Text: part.Text, Thought: part.Thought}
			if part.FunctionCall != nil {
				rp.FunctionCall = &FunctionCall{
					ID:   part.FunctionCall.ID,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				}
			}
			if rp.Text == "" && rp.FunctionCall == nil {
				continue
			}
			reply.Parts = append(reply.Parts, rp)
		}
	}
	return reply
}
