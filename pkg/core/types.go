package core

// Speaker identifies the source of a transcript interaction.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// Tool declares a callable function to the upstream realtime session.
type Tool struct {
	Type        string      `json:"type"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  *JSONSchema `json:"parameters,omitempty"`
}

const ToolTypeFunction = "function"

// JSONSchema represents the parameter schema of a tool declaration.
type JSONSchema struct {
	Type                 string                `json:"type"`
	Properties           map[string]JSONSchema `json:"properties,omitempty"`
	Required             []string              `json:"required,omitempty"`
	Description          string                `json:"description,omitempty"`
	Enum                 []string              `json:"enum,omitempty"`
	Items                *JSONSchema           `json:"items,omitempty"`
	AdditionalProperties *bool                 `json:"additionalProperties,omitempty"`
}

// ToolInvocation is one tool-call request extracted from an upstream
// function-call event. Arguments is the raw JSON payload as received;
// it is parsed by the dispatcher, not the classifier.
type ToolInvocation struct {
	InvocationID string
	Name         string
	Arguments    string
}

// HandoffRequest asks the client to reconnect under a different persona.
type HandoffRequest struct {
	TargetPersona string
	Reason        string
}

// ToolOutcome is what an executor produces: a single output string destined
// for the upstream function_call_output frame, and optionally a handoff.
type ToolOutcome struct {
	Output  string
	Handoff *HandoffRequest
}

// ToolResult is the dispatcher's answer for one invocation. It always
// exists, even when execution failed; Output then carries the error text.
type ToolResult struct {
	InvocationID string
	Output       string
	Handoff      *HandoffRequest
	Err          bool
}

// ToolCallRecord is the transcript-side summary of a dispatched tool call.
type ToolCallRecord struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// HistoryEntry is one turn of the per-call conversation history buffer kept
// for handoff context.
type HistoryEntry struct {
	Role string `json:"role"`
	Text string `json:"text"`
}
