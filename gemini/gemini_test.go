package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shaadiscout/concierge/models"
	"github.com/shaadiscout/concierge/tools"
)

func textMessage(role, text string) models.Message {
	return models.Message{Role: role, Parts: []models.Part{{Type: models.PartText, Text: text}}}
}

func TestBuildRequestHistory(t *testing.T) {
	m := &Model{SystemPrompt: "You are a planner."}
	turn := Turn{History: []models.Message{
		textMessage(models.RoleUser, "hi"),
		textMessage(models.RoleAssistant, "hello!"),
		textMessage(models.RoleSystem, "should be skipped"),
		textMessage(models.RoleUser, ""),
		textMessage(models.RoleUser, "help me"),
	}}

	req := m.buildRequest(turn)

	if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "You are a planner." {
		t.Errorf("system instruction missing: %+v", req.SystemInstruction)
	}
	if len(req.Contents) != 3 {
		t.Fatalf("expected 3 contents (system and empty skipped), got %d", len(req.Contents))
	}
	if req.Contents[0].Role != "user" || req.Contents[1].Role != "model" || req.Contents[2].Role != "user" {
		t.Errorf("role mapping wrong: %s, %s, %s", req.Contents[0].Role, req.Contents[1].Role, req.Contents[2].Role)
	}
	if req.GenerationConfig == nil || req.GenerationConfig.ThinkingConfig == nil || !req.GenerationConfig.ThinkingConfig.IncludeThoughts {
		t.Error("thinking config should request thoughts")
	}
}

func TestBuildRequestReplaysExchanges(t *testing.T) {
	m := &Model{}
	turn := Turn{
		History: []models.Message{textMessage(models.RoleUser, "search for venues")},
		Exchanges: []Exchange{{
			Calls:   []FunctionCall{{ID: "c1", Name: "web_search", Args: map[string]interface{}{"query": "venues"}}},
			Results: []tools.Result{{ToolID: "c1", ToolName: "web_search", Output: `{"result":"three venues"}`}},
		}},
	}

	req := m.buildRequest(turn)
	if len(req.Contents) != 3 {
		t.Fatalf("expected history + call + response contents, got %d", len(req.Contents))
	}

	callContent := req.Contents[1]
	if callContent.Role != "model" || callContent.Parts[0].FunctionCall == nil {
		t.Errorf("call content malformed: %+v", callContent)
	}
	if callContent.Parts[0].FunctionCall.Name != "web_search" {
		t.Errorf("call name = %q", callContent.Parts[0].FunctionCall.Name)
	}

	respContent := req.Contents[2]
	if respContent.Role != "user" || respContent.Parts[0].FunctionResponse == nil {
		t.Errorf("response content malformed: %+v", respContent)
	}
	if got := respContent.Parts[0].FunctionResponse.Response["result"]; got != "three venues" {
		t.Errorf("tool output not parsed into response map: %v", got)
	}
}

func TestBuildRequestNonJSONToolOutput(t *testing.T) {
	m := &Model{}
	turn := Turn{Exchanges: []Exchange{{
		Calls:   []FunctionCall{{Name: "t"}},
		Results: []tools.Result{{ToolName: "t", Output: "plain text output"}},
	}}}

	req := m.buildRequest(turn)
	resp := req.Contents[1].Parts[0].FunctionResponse
	if resp.Response["raw_output"] != "plain text output" {
		t.Errorf("non-JSON output should ride under raw_output: %v", resp.Response)
	}
}

func TestBuildRequestDeclarations(t *testing.T) {
	m := &Model{}
	req := m.buildRequest(Turn{Declarations: []tools.Declaration{{Name: "web_search", Description: "d"}}})
	if len(req.Tools) != 1 || len(req.Tools[0].FunctionDeclarations) != 1 {
		t.Fatalf("tools not advertised: %+v", req.Tools)
	}
	if req.Tools[0].FunctionDeclarations[0].Name != "web_search" {
		t.Errorf("declaration name = %q", req.Tools[0].FunctionDeclarations[0].Name)
	}
}

func streamBody(chunks ...string) string {
	return "[" + strings.Join(chunks, ",") + "]"
}

func TestStreamGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, ":streamGenerateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "k" {
			t.Errorf("api key not in query: %s", r.URL.RawQuery)
		}
		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		w.Write([]byte(streamBody(
			`{"candidates":[{"content":{"parts":[{"text":"Hel"}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"lo","thought":false}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"text":"hmm","thought":true}]}}]}`,
			`{"candidates":[{"content":{"parts":[{"functionCall":{"id":"c1","name":"web_search","args":{"query":"q"}}}]}}]}`,
		)))
	}))
	defer server.Close()

	m := &Model{APIKey: "k", BaseURL: server.URL, Model: "test-model"}
	replyChan, errChan := m.StreamGenerate(context.Background(), Turn{History: []models.Message{textMessage(models.RoleUser, "hi")}})

	var text, reasoning strings.Builder
	var calls []FunctionCall
	for replyChan != nil || errChan != nil {
		select {
		case reply, ok := <-replyChan:
			if !ok {
				replyChan = nil
				continue
			}
			for _, p := range reply.Parts {
				switch {
				case p.FunctionCall != nil:
					calls = append(calls, *p.FunctionCall)
				case p.Thought:
					reasoning.WriteString(p.Text)
				default:
					text.WriteString(p.Text)
				}
			}
		case err, ok := <-errChan:
			if !ok {
				errChan = nil
				continue
			}
			t.Fatalf("unexpected stream error: %v", err)
		}
	}

	if text.String() != "Hello" {
		t.Errorf("text = %q", text.String())
	}
	if reasoning.String() != "hmm" {
		t.Errorf("reasoning = %q", reasoning.String())
	}
	if len(calls) != 1 || calls[0].Name != "web_search" || calls[0].ID != "c1" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestStreamGenerateServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer server.Close()

	m := &Model{APIKey: "k", BaseURL: server.URL}
	replyChan, errChan := m.StreamGenerate(context.Background(), Turn{})

	for range replyChan {
	}
	err := <-errChan
	var berr *BackendStreamError
	if !errors.As(err, &berr) {
		t.Fatalf("expected BackendStreamError, got %v", err)
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error should carry the status code: %v", err)
	}
}

func TestStreamGenerateMalformedStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"an array"}`))
	}))
	defer server.Close()

	m := &Model{APIKey: "k", BaseURL: server.URL}
	replyChan, errChan := m.StreamGenerate(context.Background(), Turn{})

	for range replyChan {
	}
	err := <-errChan
	var berr *BackendStreamError
	if !errors.As(err, &berr) {
		t.Fatalf("expected BackendStreamError for a non-array stream, got %v", err)
	}
}

func TestConvertChunkDropsEmptyParts(t *testing.T) {
	var chunk wireResponse
	if err := json.Unmarshal([]byte(`{"candidates":[{"content":{"parts":[{"text":""},{"text":"keep"}]}}]}`), &chunk); err != nil {
		t.Fatal(err)
	}
	reply := convertChunk(chunk)
	if len(reply.Parts) != 1 || reply.Parts[0].Text != "keep" {
		t.Errorf("empty parts should be dropped: %+v", reply.Parts)
	}
}
