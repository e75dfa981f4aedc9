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

	"google.golang.org/genai"

	"github.com/itish2003/ragagent/config"
	"github.com/itish2003/ragagent/models"
	"github.com/itish2003/ragagent/vectorstore"
)

// NewEmbedder builds the embedder selected by cfg.EmbeddingProvider.
func NewEmbedder(ctx context.Context, cfg *config.Config, httpClient *http.Client) (vectorstore.Embedder, error) {
	switch strings.ToLower(cfg.EmbeddingProvider) {
	case "", "ollama":
		return NewOllamaEmbedder(httpClient, cfg.OllamaBaseURL, cfg.EmbeddingModel), nil
	case "gemini":
		if err := cfg.RequireGemini(); err != nil {
			return nil, err
		}
		client, err := NewGeminiClient(ctx, cfg.GoogleAPIKey, httpClient)
		if err != nil {
			return nil, err
		}
		return NewGeminiEmbedder(client, cfg.EmbeddingModel), nil
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", models.ErrInvalidInput, cfg.EmbeddingProvider)
	}
}

// OllamaEmbedder calls Ollama's /api/embeddings endpoint.
type OllamaEmbedder struct {
	client  *http.Client
	baseURL string
	model   string
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func NewOllamaEmbedder(client *http.Client, baseURL, model string) *OllamaEmbedder {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &OllamaEmbedder{client: client, baseURL: strings.TrimRight(baseURL, "/"), model: model}
}

func (e *OllamaEmbedder) ModelID() string { return "ollama/" + e.model }

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: calling ollama embedding api: %v", models.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: ollama embedding api returned status %d: %s", models.ErrExternalService, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding ollama embedding: %v", models.ErrExternalService, err)
	}
	if len(out.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned an empty embedding for model %s", models.ErrExternalService, e.model)
	}
	return out.Embedding, nil
}

// GeminiEmbedder embeds text with a Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

func NewGeminiEmbedder(client *genai.Client, model string) *GeminiEmbedder {
	if model == "" || strings.HasPrefix(model, "nomic") {
		model = "text-embedding-004"
	}
	return &GeminiEmbedder{client: client, model: model}
}

func (e *GeminiEmbedder) ModelID() string { return "gemini/" + e.model }

func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini embed: %v", models.ErrExternalService, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: gemini returned no embedding", models.ErrExternalService)
	}
	return resp.Embeddings[0].Values, nil
}
