// Package registry holds the named capabilities a server instance exposes:
// tools and prompts, each pairing a wire descriptor with a handler. A
// registry is immutable once built; the transport constructs a fresh
// snapshot per request through a Factory.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/arunksingh16/mcp/mcp"
)

// Kind discriminates the two capability kinds.
type Kind string

const (
	KindTool   Kind = "tool"
	KindPrompt Kind = "prompt"
)

var (
	// ErrDuplicateCapability rejects a second registration of (kind, name).
	ErrDuplicateCapability = errors.New("duplicate capability")
	// ErrCapabilityNotFound signals an invocation of an unregistered name.
	ErrCapabilityNotFound = errors.New("capability not found")
	// ErrInvalidParams signals arguments that fail the declared input schema.
	ErrInvalidParams = errors.New("invalid params")
)

// Def is a capability definition: a ToolDef or a PromptDef.
type Def interface {
	capabilityKind() Kind
	capabilityName() string
}

// Factory builds the registry snapshot backing one server instance. It is
// invoked once per inbound request; implementations must not share mutable
// state between the registries they return.
type Factory func() *Registry

// Registry is an ordered, immutable set of capability descriptors and their
// handlers. Listing preserves registration order.
type Registry struct {
	tools       []ToolDef
	toolIndex   map[string]int
	prompts     []PromptDef
	promptIndex map[string]int
}

// New builds a registry from the given definitions. Duplicate (kind, name)
// pairs fail with ErrDuplicateCapability.
func New(defs ...Def) (*Registry, error) {
	r := &Registry{
		toolIndex:   make(map[string]int),
		promptIndex: make(map[string]int),
	}
	for _, def := range defs {
		if err := r.register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNew is New for statically known definition sets, where a duplicate is
// a programming error.
func MustNew(defs ...Def) *Registry {
	r, err := New(defs...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) register(def Def) error {
	name := def.capabilityName()
	if name == "" {
		return fmt.Errorf("register %s: empty name", def.capabilityKind())
	}
	switch d := def.(type) {
	case ToolDef:
		if _, exists := r.toolIndex[name]; exists {
			return fmt.Errorf("%w: %s %q", ErrDuplicateCapability, KindTool, name)
		}
		r.toolIndex[name] = len(r.tools)
		r.tools = append(r.tools, d)
	case PromptDef:
		if _, exists := r.promptIndex[name]; exists {
			return fmt.Errorf("%w: %s %q", ErrDuplicateCapability, KindPrompt, name)
		}
		r.promptIndex[name] = len(r.prompts)
		r.prompts = append(r.prompts, d)
	default:
		return fmt.Errorf("register: unsupported definition type %T", def)
	}
	return nil
}

// ListTools returns the tool descriptors in registration order.
func (r *Registry) ListTools() []mcp.Tool {
	out := make([]mcp.Tool, len(r.tools))
	for i, d := range r.tools {
		out[i] = d.Descriptor
	}
	return out
}

// ListPrompts returns the prompt descriptors in registration order.
func (r *Registry) ListPrompts() []mcp.Prompt {
	out := make([]mcp.Prompt, len(r.prompts))
	for i, d := range r.prompts {
		out[i] = d.Descriptor
	}
	return out
}

// CallTool validates the request against the tool's input schema and runs
// the handler. Handler faults (returned errors or panics) are contained at
// this boundary and surfaced as domain-error content, never as protocol
// errors: the invoking agent interprets content, not protocol failure codes.
func (r *Registry) CallTool(ctx context.Context, req *mcp.CallToolRequestReceived) (*mcp.CallToolResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: missing tool name", ErrInvalidParams)
	}
	idx, ok := r.toolIndex[req.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrCapabilityNotFound, KindTool, req.Name)
	}
	def := r.tools[idx]
	if err := validateArgs(def.Descriptor.InputSchema, req.Arguments); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidParams, err)
	}
	return safeCallTool(ctx, def.Handler, req), nil
}

// GetPrompt validates required arguments and materializes the prompt.
func (r *Registry) GetPrompt(ctx context.Context, req *mcp.GetPromptRequestReceived) (*mcp.GetPromptResult, error) {
	if req == nil || req.Name == "" {
		return nil, fmt.Errorf("%w: missing prompt name", ErrInvalidParams)
	}
	idx, ok := r.promptIndex[req.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrCapabilityNotFound, KindPrompt, req.Name)
	}
	def := r.prompts[idx]
	for _, arg := range def.Descriptor.Arguments {
		if !arg.Required {
			continue
		}
		if _, present := req.Arguments[arg.Name]; !present {
			return nil, fmt.Errorf("%w: missing required argument %q", ErrInvalidParams, arg.Name)
		}
	}
	return def.Handler(ctx, req.Arguments)
}

// safeCallTool runs a tool handler, converting panics and returned errors
// into error-content results.
func safeCallTool(ctx context.Context, h ToolHandler, req *mcp.CallToolRequestReceived) (res *mcp.CallToolResult) {
	defer func() {
		if rec := recover(); rec != nil {
			res = Errorf("Error: tool %s failed: %v", req.Name, rec)
		}
	}()
	res, err := h(ctx, req.Arguments)
	if err != nil {
		return Errorf("Error: %v", err)
	}
	if res == nil {
		return &mcp.CallToolResult{Content: []mcp.ContentBlock{}}
	}
	return res
}
