package models

import "time"

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to run one tool with a single string argument.
type ToolCall struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Argument string `json:"argument"`
	// Signature is an opaque provider token that must be echoed back with the call.
	Signature []byte `json:"signature,omitempty"`
	// Round is the model call within the turn that requested this tool.
	// Calls sharing a round were issued together.
	Round int `json:"round,omitempty"`
}

// Message is one entry of a conversation thread. Tool messages carry the call
// that produced them so the exchange can be replayed to the model.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	ToolCall  *ToolCall `json:"tool_call,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AgentState is a node of the reasoning loop state machine.
type AgentState string

const (
	StateAwaitingModel  AgentState = "AWAITING_MODEL"
	StateModelResponded AgentState = "MODEL_RESPONDED"
	StateToolRequested  AgentState = "TOOL_REQUESTED"
	StateToolExecuted   AgentState = "TOOL_EXECUTED"
	StateFinalAnswer    AgentState = "FINAL_ANSWER"
)

// Conversation is the checkpointed state of a thread. Messages holds completed
// turns only; Pending holds the turn currently being reasoned about.
type Conversation struct {
	ThreadID     string     `json:"thread_id"`
	Messages     []Message  `json:"messages"`
	Pending      []Message  `json:"pending,omitempty"`
	PendingCalls []ToolCall `json:"pending_calls,omitempty"`
	State        AgentState `json:"state,omitempty"`
	Iteration    int        `json:"iteration,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// InFlight reports whether the conversation holds an uncommitted turn.
func (c *Conversation) InFlight() bool {
	return len(c.Pending) > 0 || len(c.PendingCalls) > 0
}

// History returns committed messages followed by the in-flight turn.
func (c *Conversation) History() []Message {
	out := make([]Message, 0, len(c.Messages)+len(c.Pending))
	out = append(out, c.Messages...)
	return append(out, c.Pending...)
}

// RunResult is what the agent returns for a completed turn.
type RunResult struct {
	ThreadID  string     `json:"thread_id"`
	Answer    string     `json:"answer"`
	State     AgentState `json:"state"`
	Steps     int        `json:"steps"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// CheckpointInfo describes one persisted checkpoint of a thread.
type CheckpointInfo struct {
	ThreadID  string     `json:"thread_id"`
	Seq       int64      `json:"seq"`
	State     AgentState `json:"state"`
	Messages  int        `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
}
