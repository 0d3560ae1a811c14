package entity

// ToolDescriptor advertises one callable tool to the decision collaborator.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolInvocation is a single tool call requested by the decision collaborator.
// Arguments is the raw JSON argument payload as produced by the model.
type ToolInvocation struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Decision is one step of the decision collaborator: the assistant's message
// plus zero or more tool invocations to forward to the tool collaborators.
type Decision struct {
	Content   string           `json:"content"`
	ToolCalls []ToolInvocation `json:"tool_calls,omitempty"`
}
