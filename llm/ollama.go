package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
	"github.com/itish2003/ragagent/tools"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// Ollama is a chat model served by a local Ollama instance through /api/chat.
type Ollama struct {
	client  *http.Client
	baseURL string
	model   string
	log     *logger.Logger
}

func NewOllama(client *http.Client, baseURL, model string, log *logger.Logger) *Ollama {
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Ollama{client: client, baseURL: strings.TrimRight(baseURL, "/"), model: model, log: log}
}

func (o *Ollama) Name() string { return "ollama:" + o.model }

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []ollamaTool        `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  ollamaOptions       `json:"options"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaTool struct {
	Type     string         `json:"type"`
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Parameters  ollamaSchema `json:"parameters"`
}

type ollamaSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]ollamaProperty `json:"properties"`
	Required   []string                  `json:"required"`
}

type ollamaProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

func (o *Ollama) Generate(ctx context.Context, req Request) (*Turn, error) {
	names := argNames(req.Tools)
	body := ollamaChatRequest{
		Model:    o.model,
		Messages: toOllamaMessages(req.System, req.Messages, names),
		Tools:    ollamaTools(req.Tools),
		Stream:   false,
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: calling ollama: %v", models.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: ollama returned status %d: %s", models.ErrExternalService, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama response: %v", models.ErrExternalService, err)
	}

	turn := &Turn{Text: strings.TrimSpace(chatResp.Message.Content)}
	for _, tc := range chatResp.Message.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, models.ToolCall{
			ID:       uuid.NewString(),
			Name:     tc.Function.Name,
			Argument: argumentOf(tc.Function.Arguments, argNameFor(names, tc.Function.Name)),
		})
	}
	o.log.Debug("ollama response", "model", o.model, "tool_calls", len(turn.ToolCalls))
	return turn, nil
}

// toOllamaMessages converts history to Ollama chat messages. Tool messages
// from one model response become one assistant message carrying the calls
// followed by one tool message per result.
func toOllamaMessages(system string, msgs []models.Message, names map[string]string) []ollamaChatMessage {
	var out []ollamaChatMessage
	if system != "" {
		out = append(out, ollamaChatMessage{Role: "system", Content: system})
	}
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		switch m.Role {
		case models.RoleUser:
			out = append(out, ollamaChatMessage{Role: "user", Content: m.Content})
		case models.RoleAssistant:
			out = append(out, ollamaChatMessage{Role: "assistant", Content: m.Content})
		case models.RoleTool:
			j := toolBatchEnd(msgs, i)
			calls := ollamaChatMessage{Role: "assistant"}
			var results []ollamaChatMessage
			for _, tm := range msgs[i:j] {
				name, arg := tm.ToolName, ""
				if tm.ToolCall != nil {
					name, arg = tm.ToolCall.Name, tm.ToolCall.Argument
				}
				calls.ToolCalls = append(calls.ToolCalls, ollamaToolCall{Function: ollamaFunctionCall{
					Name:      name,
					Arguments: map[string]any{argNameFor(names, name): arg},
				}})
				results = append(results, ollamaChatMessage{Role: "tool", Content: tm.Content, ToolName: name})
			}
			out = append(out, calls)
			out = append(out, results...)
			i = j - 1
		}
	}
	return out
}

func ollamaTools(descs []tools.Descriptor) []ollamaTool {
	out := make([]ollamaTool, 0, len(descs))
	for _, d := range descs {
		out = append(out, ollamaTool{
			Type: "function",
			Function: ollamaFunction{
				Name:        d.Name,
				Description: d.Description,
				Parameters: ollamaSchema{
					Type: "object",
					Properties: map[string]ollamaProperty{
						d.ArgName: {Type: "string", Description: d.ArgDescription},
					},
					Required: []string{d.ArgName},
				},
			},
		})
	}
	return out
}
