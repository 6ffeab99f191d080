// Package llm is the reasoning-provider transport: a conversation plus the
// tool catalog goes out, assistant text and/or tool-call requests come back.
// The provider is an external collaborator; nothing here knows inventory.
package llm

import "context"

// Role values mirror the chat-completions vocabulary.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn of the conversation.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // set on tool observations
}

// ToolCall is one structured tool request from the assistant.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON as the provider sent it
}

// ToolSpec is one catalog entry offered to the provider.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON schema
}

// Request is one provider invocation.
type Request struct {
	Messages    []Message
	Tools       []ToolSpec
	ToolChoice  string // "", "none"
	Temperature float64
	MaxTokens   int
}

// Response is the provider's full reply for one step.
type Response struct {
	Content   string
	ToolCalls []ToolCall
}

// Empty reports a response with neither text nor tool calls.
func (r *Response) Empty() bool {
	return r == nil || (r.Content == "" && len(r.ToolCalls) == 0)
}

// StreamEvent is one increment of a streamed reply. Exactly one terminal
// event arrives per stream: either Done with the accumulated response, or
// Err.
type StreamEvent struct {
	TextDelta string
	Done      *Response
	Err       error
}

// Client is what the reasoning loop talks to.
type Client interface {
	Chat(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}
