package session

import (
	"context"
	"time"
)

// Tool represents an application action the remote endpoint can invoke
// during conversation, such as updating a design prompt or kicking off
// an image render.
type Tool struct {
	// Name is the unique identifier for the tool (e.g., "update_prompt").
	Name string `json:"name"`

	// Description explains what the tool does, helping the endpoint
	// decide when to use it.
	Description string `json:"description"`

	// Parameters defines the JSON schema for the tool's arguments.
	Parameters map[string]any `json:"parameters"`

	// Handler is called when the endpoint invokes this tool. It runs
	// on its own goroutine and must honor ctx cancellation. The result
	// string is sent back to continue the conversation.
	Handler Handler `json:"-"`
}

// Handler executes a tool call and returns a result for the endpoint.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// ToolCall represents one invocation issued by the endpoint.
type ToolCall struct {
	// ID correlates the call with its eventual response.
	ID string

	// Name is the tool being invoked.
	Name string

	// Args contains the parsed arguments.
	Args map[string]any
}

// PendingCall is the correlation record for an unresolved tool call.
// It exists from the moment the call arrives until the matching
// response is sent; the broker guarantees no record leaks past the
// session's lifetime.
type PendingCall struct {
	ID       string
	Name     string
	Args     map[string]any
	IssuedAt time.Time
}
