// Package guard composes the policy engine and the audit log around
// arbitrary tool implementations, forming the single choke point every
// tool invocation must pass through.
//
// The ordering inside Invoke is the core safety property and must never
// be rearranged: decide, then durably record, then (and only on ALLOW)
// execute. The audit record of an attempt exists even if the process
// crashes immediately afterward, a BLOCK is durably recorded even though
// the tool never runs, and if the audit write itself fails the tool is
// not executed at all — fail closed, never fail open.
package guard

import (
	"fmt"
	"sync"
)

// Tool is the narrow capability shape the guard consumes from the
// external tool registry: a name and an invoke function. How the tool
// performs its effect is not the guard's concern.
type Tool interface {
	Name() string
	Invoke(args map[string]any) (any, error)
}

// ToolFunc adapts a plain function to the Tool interface.
type ToolFunc struct {
	ToolName string
	Fn       func(args map[string]any) (any, error)
}

func (t ToolFunc) Name() string { return t.ToolName }

func (t ToolFunc) Invoke(args map[string]any) (any, error) { return t.Fn(args) }

// Registry maps tool names to implementations. Owned and configured
// outside the core; the invoker only looks tools up by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool under its own name. Registering a second tool
// with the same name replaces the first.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Lookup returns the tool registered under the given name.
func (r *Registry) Lookup(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %q not registered", name)
	}
	return t, nil
}

// Names returns the registered tool names (unordered).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}
