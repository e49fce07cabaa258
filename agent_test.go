package concierge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shaadiscout/concierge/gemini"
	"github.com/shaadiscout/concierge/models"
	"github.com/shaadiscout/concierge/tools"
)

// fakeBackend plays back one scripted reply sequence per generation step
// and records the turns it was asked to generate.
type fakeBackend struct {
	steps [][]gemini.Reply
	errs  []error
	turns []gemini.Turn
}

func (f *fakeBackend) StreamGenerate(ctx context.Context, turn gemini.Turn) (<-chan gemini.Reply, <-chan error) {
	step := len(f.turns)
	f.turns = append(f.turns, turn)

	out := make(chan gemini.Reply)
	errChan := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errChan)
		if step < len(f.steps) {
			for _, reply := range f.steps[step] {
				out <- reply
			}
		}
		if step < len(f.errs) && f.errs[step] != nil {
			errChan <- f.errs[step]
		}
	}()
	return out, errChan
}

func textReply(text string) gemini.Reply {
	return gemini.Reply{Parts: []gemini.ReplyPart{{Text: text}}}
}

func callReply(id, name, arg string) gemini.Reply {
	return gemini.Reply{Parts: []gemini.ReplyPart{{
		FunctionCall: &gemini.FunctionCall{ID: id, Name: name, Args: map[string]interface{}{"query": arg}},
	}}}
}

func drainAgent(t *testing.T, deltas <-chan GenDelta, errs <-chan error) (string, string, error) {
	t.Helper()
	var text, reasoning strings.Builder
	var streamErr error
	for deltas != nil || errs != nil {
		select {
		case d, ok := <-deltas:
			if !ok {
				deltas = nil
				continue
			}
			text.WriteString(d.Text)
			reasoning.WriteString(d.Reasoning)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			streamErr = err
		}
	}
	return text.String(), reasoning.String(), streamErr
}

func history(text string) []models.Message {
	return []models.Message{{Role: models.RoleUser, Parts: []models.Part{{Type: models.PartText, Text: text}}}}
}

func TestAgentPlainAnswer(t *testing.T) {
	backend := &fakeBackend{steps: [][]gemini.Reply{{textReply("It "), textReply("depends.")}}}
	agent := NewAgent(backend, tools.NewRegistry(nil), nil)

	deltas, errs := agent.StreamConversation(context.Background(), history("hm?"))
	text, _, err := drainAgent(t, deltas, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "It depends." {
		t.Errorf("text = %q", text)
	}
	if len(backend.turns) != 1 {
		t.Errorf("plain answers take one generation step, got %d", len(backend.turns))
	}
}

func TestAgentExecutesToolThenAnswers(t *testing.T) {
	executed := 0
	echo := tools.Declaration{
		Name: "lookup",
		Callable: func(arg string) (string, error) {
			executed++
			return "found: " + arg, nil
		},
	}
	backend := &fakeBackend{steps: [][]gemini.Reply{
		{callReply("c1", "lookup", "venues")},
		{textReply("Here are the venues.")},
	}}
	agent := NewAgent(backend, tools.NewRegistry(nil, echo), nil)

	deltas, errs := agent.StreamConversation(context.Background(), history("find venues"))
	text, _, err := drainAgent(t, deltas, errs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed != 1 {
		t.Errorf("tool should run once, ran %d times", executed)
	}
	if text != "Here are the venues." {
		t.Errorf("text = %q", text)
	}

	// The second generation must replay the completed exchange.
	if len(backend.turns) != 2 {
		t.Fatalf("expected 2 generation steps, got %d", len(backend.turns))
	}
	second := backend.turns[1]
	if len(second.Exchanges) != 1 {
		t.Fatalf("second step should carry the exchange, got %d", len(second.Exchanges))
	}
	ex := second.Exchanges[0]
	if len(ex.Calls) != 1 || ex.Calls[0].Name != "lookup" {
		t.Errorf("exchange calls = %+v", ex.Calls)
	}
	if len(ex.Results) != 1 || !strings.Contains(ex.Results[0].Output, "found: venues") {
		t.Errorf("exchange results = %+v", ex.Results)
	}
}

func TestAgentToolStepLimit(t *testing.T) {
	loop := tools.Declaration{
		Name:     "loop",
		Callable: func(string) (string, error) { return "again", nil },
	}
	// The model asks for a tool on every step, forever.
	var steps [][]gemini.Reply
	for i := 0; i < MaxToolSteps+5; i++ {
		steps = append(steps, []gemini.Reply{callReply("", "loop", "x")})
	}
	backend := &fakeBackend{steps: steps}
	agent := NewAgent(backend, tools.NewRegistry(nil, loop), nil)

	deltas, errs := agent.StreamConversation(context.Background(), history("go"))
	_, _, err := drainAgent(t, deltas, errs)
	if err != nil {
		t.Fatalf("hitting the limit is not an error: %v", err)
	}
	if len(backend.turns) != MaxToolSteps {
		t.Errorf("expected exactly %d generation steps, got %d", MaxToolSteps, len(backend.turns))
	}
}

func TestAgentAssignsFallbackCallIDs(t *testing.T) {
	decl := tools.Declaration{Name: "t", Callable: func(string) (string, error) { return "ok", nil }}
	backend := &fakeBackend{steps: [][]gemini.Reply{
		{callReply("", "t", "x")},
		{textReply("done")},
	}}
	agent := NewAgent(backend, tools.NewRegistry(nil, decl), nil)

	deltas, errs := agent.StreamConversation(context.Background(), history("go"))
	if _, _, err := drainAgent(t, deltas, errs); err != nil {
		t.Fatal(err)
	}
	result := backend.turns[1].Exchanges[0].Results[0]
	if result.ToolID == "" {
		t.Error("a call without an ID gets a generated one")
	}
}

func TestAgentForwardsThoughts(t *testing.T) {
	backend := &fakeBackend{steps: [][]gemini.Reply{{
		{Parts: []gemini.ReplyPart{{Text: "mulling", Thought: true}, {Text: "Answer."}}},
	}}}
	agent := NewAgent(backend, tools.NewRegistry(nil), nil)

	deltas, errs := agent.StreamConversation(context.Background(), history("?"))
	text, reasoning, err := drainAgent(t, deltas, errs)
	if err != nil {
		t.Fatal(err)
	}
	if reasoning != "mulling" {
		t.Errorf("reasoning = %q", reasoning)
	}
	if text != "Answer." {
		t.Errorf("text = %q", text)
	}
}

func TestAgentBackendErrorPropagates(t *testing.T) {
	backend := &fakeBackend{
		steps: [][]gemini.Reply{{textReply("partial")}},
		errs:  []error{errors.New("stream cut")},
	}
	agent := NewAgent(backend, tools.NewRegistry(nil), nil)

	deltas, errs := agent.StreamConversation(context.Background(), history("?"))
	_, _, err := drainAgent(t, deltas, errs)
	if err == nil {
		t.Fatal("backend failure must surface on the error channel")
	}
}
