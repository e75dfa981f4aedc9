package models

// SearchRequest is the body of POST /api/v1/search.
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	K     int    `json:"k,omitempty"`
}

// ChatRequest is the body of POST /api/v1/chat.
type ChatRequest struct {
	Query    string `json:"query" form:"query" binding:"required"`
	ThreadID string `json:"thread_id,omitempty" form:"thread_id"`
	// Model selects a configured chat model ("gemini" or "llama") for this turn.
	Model string `json:"model,omitempty" form:"model"`
}
