package registry

import (
	"context"

	"github.com/arunksingh16/mcp/mcp"
)

// PromptHandler materializes a prompt from its string arguments. Required
// arguments are guaranteed present when the handler runs.
type PromptHandler func(ctx context.Context, args map[string]string) (*mcp.GetPromptResult, error)

// PromptDef pairs a prompt descriptor with its handler.
type PromptDef struct {
	Descriptor mcp.Prompt
	Handler    PromptHandler
}

func (d PromptDef) capabilityKind() Kind   { return KindPrompt }
func (d PromptDef) capabilityName() string { return d.Descriptor.Name }

// PromptOption configures NewPrompt.
type PromptOption func(*mcp.Prompt)

// WithPromptDescription sets the prompt description used in listings.
func WithPromptDescription(desc string) PromptOption {
	return func(p *mcp.Prompt) { p.Description = desc }
}

// WithPromptArgument declares a named argument on the prompt descriptor.
func WithPromptArgument(name, desc string, required bool) PromptOption {
	return func(p *mcp.Prompt) {
		p.Arguments = append(p.Arguments, mcp.PromptArgument{Name: name, Description: desc, Required: required})
	}
}

// NewPrompt builds a PromptDef.
func NewPrompt(name string, fn PromptHandler, opts ...PromptOption) PromptDef {
	desc := mcp.Prompt{Name: name}
	for _, opt := range opts {
		opt(&desc)
	}
	return PromptDef{Descriptor: desc, Handler: fn}
}

// UserText builds the common single-user-message prompt result.
func UserText(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{Role: mcp.RoleUser, Content: mcp.ContentBlock{Type: "text", Text: text}},
		},
	}
}
