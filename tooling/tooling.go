// Package tooling holds the tool abstraction the task executor runs steps
// through. The engine only orchestrates when tools run, never what they
// compute.
package tooling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

var ErrToolNotFound = errors.New("tooling: tool not registered")

// Tool is one external capability invoked by a task.
type Tool interface {
	Name() string
	Run(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

// Registry resolves tool identifiers to implementations.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get resolves a tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return tool, nil
}

// List returns the registered tool names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Descriptor routes an interactive tool session launch.
type Descriptor struct {
	Path  string            `json:"path"`
	Query map[string]string `json:"query,omitempty"`
	State json.RawMessage   `json:"state,omitempty"`
}

var launchPaths = map[string]string{
	"audit":     "/tools/audit",
	"burnt":     "/tools/burnt",
	"content":   "/tools/content/editor",
	"structure": "/tools/structure/planner",
	"smokey":    "/tools/smokey",
}

// LaunchPath returns the interactive entry path for a tool.
func LaunchPath(tool string) (string, bool) {
	p, ok := launchPaths[tool]
	return p, ok
}
