package domain

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is the provider-agnostic chat message shape used by the handler
// and LLM integrations.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant messages that requested tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID links a tool result message back to the request it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolSpec is the function-call option exposed to the language model.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolCall is a Tool Invocation Request emitted by the model instead of a
// direct answer. Arguments holds the raw JSON object the model produced.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// CompletionRequest is a single language model invocation.
type CompletionRequest struct {
	Model       string
	Temperature float32
	Messages    []ChatMessage
	Tools       []ToolSpec
	// ForceTool, when set, constrains the model to call the named tool.
	ForceTool string
}

// Completion is either free text or one or more tool invocation requests.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// HasToolCalls reports whether the model chose a tool instead of answering.
func (c Completion) HasToolCalls() bool {
	return len(c.ToolCalls) > 0
}
