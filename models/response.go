package models

// ErrorResponse is returned by every failing endpoint.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type AddDocumentResponse struct {
	Message string `json:"message"`
	Source  string `json:"source"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped,omitempty"`
}

type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Message string         `json:"message,omitempty"`
}

type ChatResponse struct {
	Answer    string     `json:"answer"`
	ThreadID  string     `json:"thread_id"`
	State     AgentState `json:"state"`
	Steps     int        `json:"steps"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type ThreadResponse struct {
	ThreadID string    `json:"thread_id"`
	Count    int       `json:"count"`
	Messages []Message `json:"messages"`
}

type TableQueryResponse struct {
	Answer string `json:"answer"`
	Rows   int    `json:"rows"`
}

// ToolInfo describes a registered tool for GET /api/v1/tools.
type ToolInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Argument    string `json:"argument"`
}
