// Package tool provides the side-effecting capabilities the model can
// request: file operations, shell execution, and web fetches. Tools receive
// arguments whose path values have already been resolved and guarded by the
// bridge; results are always plain strings fed back to the model.
package tool

import (
	"context"
	"fmt"
	"sort"
)

// Tool is one callable capability.
type Tool interface {
	Name() string
	Description() string
	// Parameters returns the JSON-schema object describing the arguments.
	Parameters() map[string]any
	Run(ctx context.Context, args map[string]any) (string, error)
}

// Dangerous is the set of tool names requiring confirmation before running.
var Dangerous = map[string]bool{
	"write_file":      true,
	"delete_file":     true,
	"edit_file":       true,
	"move_file":       true,
	"execute_command": true,
}

// Registry holds the available tools.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry returns a registry with the built-in tool set.
func NewRegistry() *Registry {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range []Tool{
		&readFile{}, &writeFile{}, &editFile{}, &deleteFile{},
		&moveFile{}, &listDirectory{}, &executeCommand{}, &webFetch{},
	} {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) Tool {
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

// optionalString extracts an optional string argument.
func optionalString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// objectSchema builds a JSON-schema object from property name/description
// pairs and a required list.
func objectSchema(props map[string]string, required ...string) map[string]any {
	properties := make(map[string]any, len(props))
	for name, desc := range props {
		properties[name] = map[string]any{"type": "string", "description": desc}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}
