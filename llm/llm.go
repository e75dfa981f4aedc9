// Package llm adapts chat models and embedding services to the agent's
// message and tool types.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/itish2003/ragagent/config"
	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
	"github.com/itish2003/ragagent/tools"
)

// Provider names accepted by New.
const (
	ProviderGemini = "gemini"
	ProviderLlama  = "llama"
)

// Providers lists the chat model providers New can build.
func Providers() []string {
	return []string{ProviderGemini, ProviderLlama}
}

// Request is one stateless model call: the whole conversation so far plus the
// tools the model may ask for.
type Request struct {
	System   string
	Messages []models.Message
	Tools    []tools.Descriptor
}

// Turn is what the model produced: tool calls, a text answer, or both.
type Turn struct {
	Text      string
	ToolCalls []models.ToolCall
}

// Model is a chat model with function calling.
type Model interface {
	Generate(ctx context.Context, req Request) (*Turn, error)
	Name() string
}

// New builds the chat model for provider, falling back to cfg.LLMProvider.
func New(ctx context.Context, cfg *config.Config, provider string, httpClient *http.Client, log *logger.Logger) (Model, error) {
	if provider == "" {
		provider = cfg.LLMProvider
	}
	switch strings.ToLower(provider) {
	case ProviderGemini:
		if err := cfg.RequireGemini(); err != nil {
			return nil, err
		}
		client, err := NewGeminiClient(ctx, cfg.GoogleAPIKey, httpClient)
		if err != nil {
			return nil, err
		}
		return NewGemini(client, cfg.GeminiModel, log), nil
	case ProviderLlama:
		return NewOllama(httpClient, cfg.OllamaBaseURL, cfg.LlamaModel, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown model provider %q, expected one of %v", models.ErrInvalidInput, provider, Providers())
	}
}

// toolBatchEnd returns the end of the run of tool messages starting at i that
// came from the same model response.
func toolBatchEnd(msgs []models.Message, i int) int {
	round := roundOf(msgs[i])
	j := i + 1
	for j < len(msgs) && msgs[j].Role == models.RoleTool && roundOf(msgs[j]) == round {
		j++
	}
	return j
}

func roundOf(m models.Message) int {
	if m.ToolCall == nil {
		return 0
	}
	return m.ToolCall.Round
}

// argumentOf pulls the single string argument out of a function call's
// arguments. Unexpected shapes are passed through as JSON so the tool can
// report them.
func argumentOf(args map[string]any, argName string) string {
	if v, ok := args[argName]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	if len(args) == 1 {
		for _, v := range args {
			if s, ok := v.(string); ok {
				return s
			}
			return fmt.Sprint(v)
		}
	}
	if len(args) == 0 {
		return ""
	}
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Sprint(args)
	}
	return string(b)
}

// argNames maps tool name to its argument name.
func argNames(descs []tools.Descriptor) map[string]string {
	out := make(map[string]string, len(descs))
	for _, d := range descs {
		out[d.Name] = d.ArgName
	}
	return out
}

const fallbackArgName = "input"

func argNameFor(names map[string]string, tool string) string {
	if n, ok := names[tool]; ok && n != "" {
		return n
	}
	return fallbackArgName
}
