// Package tools holds the tool capability set offered to the language
// model on the general chat path.
package tools

import (
	"encoding/json"
	"fmt"
	"log"
)

// Parameters is the JSON-schema shape of a tool's arguments.
type Parameters struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties"`
	Required   []string               `json:"required"`
}

// Declaration describes one tool: its schema as advertised to the model
// and the callable that runs it. Callables take the single string argument
// the model supplies and return a plain-text result.
type Declaration struct {
	Name        string                       `json:"name"`
	Description string                       `json:"description"`
	Parameters  Parameters                   `json:"parameters"`
	Callable    func(string) (string, error) `json:"-"`
}

// Result is one executed tool call, fed back to the model on the next
// generation step.
type Result struct {
	ToolID   string `json:"tool_id"`
	ToolName string `json:"tool_name"`
	Output   string `json:"tool_output"`
}

// Registry is the fixed set of tools for a deployment. Execution is
// strictly serial: the router feeds one call's result back before the model
// may issue the next.
type Registry struct {
	decls  []Declaration
	Logger *log.Logger
}

// NewRegistry builds a registry from declarations.
func NewRegistry(logger *log.Logger, decls ...Declaration) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{decls: decls, Logger: logger}
}

// Declarations returns the advertised tool set.
func (r *Registry) Declarations() []Declaration {
	return r.decls
}

// Execute runs the named tool with the model-supplied arguments and returns
// a JSON result string. Tool failures are folded into the result payload so
// the model can see them; the error return is for the caller's logs.
func (r *Registry) Execute(name string, args map[string]interface{}) (string, error) {
	var decl *Declaration
	for i := range r.decls {
		if r.decls[i].Name == name {
			decl = &r.decls[i]
			break
		}
	}
	if decl == nil {
		return marshalError(fmt.Errorf("unknown or unavailable tool: %s", name))
	}
	if decl.Callable == nil {
		return marshalError(fmt.Errorf("tool %s is not callable", name))
	}

	arg, err := singleStringArg(name, args)
	if err != nil {
		return marshalError(err)
	}

	r.Logger.Printf("[TOOLS] executing %s", name)
	output, err := decl.Callable(arg)
	if err != nil {
		return marshalError(fmt.Errorf("tool %s failed: %w", name, err))
	}

	resultBytes, err := json.Marshal(map[string]string{"result": output})
	if err != nil {
		return marshalError(fmt.Errorf("failed to marshal result for %s: %w", name, err))
	}
	return string(resultBytes), nil
}

// singleStringArg extracts the one string argument all registry tools take.
func singleStringArg(name string, args map[string]interface{}) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("tool %s expects 1 argument, got %d: %v", name, len(args), args)
	}
	for key, val := range args {
		s, ok := val.(string)
		if !ok {
			return "", fmt.Errorf("invalid argument type for %s: expected string for %q, got %T", name, key, val)
		}
		return s, nil
	}
	return "", fmt.Errorf("tool %s received no arguments", name)
}

func marshalError(err error) (string, error) {
	errorBytes, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(errorBytes), err
}
