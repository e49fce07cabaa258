package concierge

import (
	"context"
	"fmt"
	"log"

	"github.com/shaadiscout/concierge/gemini"
	"github.com/shaadiscout/concierge/models"
	"github.com/shaadiscout/concierge/tools"
)

// MaxToolSteps bounds the tool-call rounds within one chat turn so a
// misbehaving model cannot loop forever.
const MaxToolSteps = 10

// GenDelta is one increment of generated output on the general path.
// Exactly one of Text or Reasoning is set.
type GenDelta struct {
	Text      string
	Reasoning string
}

// Generator streams a model-backed answer for the full message history.
type Generator interface {
	StreamConversation(ctx context.Context, history []models.Message) (<-chan GenDelta, <-chan error)
}

// Backend is one generation step of the underlying model.
type Backend interface {
	StreamGenerate(ctx context.Context, turn gemini.Turn) (<-chan gemini.Reply, <-chan error)
}

// Agent drives the tool loop over a streaming model backend: it forwards
// text and reasoning deltas as they arrive, executes requested tools one at
// a time, and feeds each result back before the model may issue another
// call.
type Agent struct {
	Backend  Backend
	Registry *tools.Registry
	Logger   *log.Logger
}

// NewAgent wires a backend and a tool registry.
func NewAgent(backend Backend, registry *tools.Registry, logger *log.Logger) *Agent {
	if logger == nil {
		logger = log.Default()
	}
	return &Agent{Backend: backend, Registry: registry, Logger: logger}
}

// StreamConversation runs the bounded tool loop for one turn.
func (a *Agent) StreamConversation(ctx context.Context, history []models.Message) (<-chan GenDelta, <-chan error) {
	out := make(chan GenDelta)
	errChan := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errChan)

		turn := gemini.Turn{
			History:      history,
			Declarations: a.Registry.Declarations(),
		}

		for step := 1; step <= MaxToolSteps; step++ {
			calls, err := a.streamStep(ctx, turn, out)
			if err != nil {
				errChan <- err
				return
			}
			if len(calls) == 0 {
				return
			}

			a.Logger.Printf("[AGENT] step %d: model requested %d tool call(s)", step, len(calls))

			// Serial execution: each result is observed before the next call
			// runs, and the whole exchange is replayed to the model.
			results := make([]tools.Result, 0, len(calls))
			for i, fc := range calls {
				id := fc.ID
				if id == "" {
					id = fmt.Sprintf("call_%s_%d_%d", fc.Name, step, i)
				}
				output, err := a.Registry.Execute(fc.Name, fc.Args)
				if err != nil {
					a.Logger.Printf("[AGENT] tool %s failed: %v", fc.Name, err)
				}
				results = append(results, tools.Result{ToolID: id, ToolName: fc.Name, Output: output})
			}
			turn.Exchanges = append(turn.Exchanges, gemini.Exchange{Calls: calls, Results: results})
		}

		a.Logger.Printf("[AGENT] tool step limit (%d) reached, ending turn", MaxToolSteps)
	}()

	return out, errChan
}

// streamStep runs one generation, forwarding deltas and collecting any
// function calls the model issued.
func (a *Agent) streamStep(ctx context.Context, turn gemini.Turn, out chan<- GenDelta) ([]gemini.FunctionCall, error) {
	replyChan, errChan := a.Backend.StreamGenerate(ctx, turn)

	var calls []gemini.FunctionCall
	for {
		select {
		case reply, ok := <-replyChan:
			if !ok {
				replyChan = nil
				break
			}
			for _, part := range reply.Parts {
				if part.FunctionCall != nil {
					calls = append(calls, *part.FunctionCall)
					continue
				}
				if part.Text == "" {
					continue
				}
				delta := GenDelta{Text: part.Text}
				if part.Thought {
					delta = GenDelta{Reasoning: part.Text}
				}
				select {
				case out <- delta:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}

		case err, ok := <-errChan:
			if ok && err != nil {
				return nil, err
			}
			if !ok {
				errChan = nil
			}

		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if replyChan == nil && errChan == nil {
			return calls, nil
		}
	}
}
