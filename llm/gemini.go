package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/itish2003/ragagent/logger"
	"github.com/itish2003/ragagent/models"
	"github.com/itish2003/ragagent/tools"
)

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey string, httpClient *http.Client) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: GOOGLE_API_KEY is not set", models.ErrInvalidInput)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: creating gemini client: %v", models.ErrExternalService, err)
	}
	return client, nil
}

// Gemini is a stateless Gemini chat model. Every call sends the full history.
type Gemini struct {
	client *genai.Client
	model  string
	log    *logger.Logger
}

func NewGemini(client *genai.Client, model string, log *logger.Logger) *Gemini {
	if log == nil {
		log = logger.NewNop()
	}
	return &Gemini{client: client, model: model, log: log}
}

func (g *Gemini) Name() string { return "gemini:" + g.model }

func (g *Gemini) Generate(ctx context.Context, req Request) (*Turn, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.Text(req.System)[0]
	}
	if len(req.Tools) > 0 {
		cfg.Tools = FunctionDeclarations(req.Tools)
	}

	contents := toGeminiContents(req.Messages, argNames(req.Tools))
	g.log.Debug("gemini request", "model", g.model, "contents", len(contents), "tools", len(req.Tools))

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini generate: %v", models.ErrExternalService, err)
	}
	return turnFromGemini(resp, argNames(req.Tools))
}

// Describe sends an image with an instruction and returns the model's text.
func (g *Gemini) Describe(ctx context.Context, instruction string, data []byte, mimeType string) (string, error) {
	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromBytes(data, mimeType),
			{Text: instruction},
		},
	}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", fmt.Errorf("%w: gemini image request: %v", models.ErrExternalService, err)
	}
	turn, err := turnFromGemini(resp, nil)
	if err != nil {
		return "", err
	}
	return turn.Text, nil
}

// FunctionDeclarations describes each tool to Gemini as a function with one
// required string parameter.
func FunctionDeclarations(descs []tools.Descriptor) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(descs))
	for _, d := range descs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					d.ArgName: {
						Type:        genai.TypeString,
						Description: d.ArgDescription,
					},
				},
				Required: []string{d.ArgName},
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// toGeminiContents converts history to Gemini contents. Tool messages from one
// model response become one model content holding the function calls followed
// by one user content holding their responses.
func toGeminiContents(msgs []models.Message, names map[string]string) []*genai.Content {
	var out []*genai.Content
	for i := 0; i < len(msgs); i++ {
		m := msgs[i]
		switch m.Role {
		case models.RoleUser:
			out = append(out, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		case models.RoleAssistant:
			out = append(out, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		case models.RoleTool:
			calls := &genai.Content{Role: genai.RoleModel}
			responses := &genai.Content{Role: genai.RoleUser}
			end := toolBatchEnd(msgs, i)
			for _, tm := range msgs[i:end] {
				call := tm.ToolCall
				if call == nil {
					call = &models.ToolCall{Name: tm.ToolName}
				}
				calls.Parts = append(calls.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: map[string]any{argNameFor(names, call.Name): call.Argument},
					},
					ThoughtSignature: call.Signature,
				})
				responses.Parts = append(responses.Parts, &genai.Part{
					FunctionResponse: &genai.FunctionResponse{
						ID:       call.ID,
						Name:     call.Name,
						Response: map[string]any{"result": tm.Content},
					},
				})
			}
			i = end - 1
			out = append(out, calls, responses)
		}
	}
	return out
}

func turnFromGemini(resp *genai.GenerateContentResponse, names map[string]string) (*Turn, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("%w: gemini returned no candidates", models.ErrExternalService)
	}

	turn := &Turn{}
	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil {
			continue
		}
		if p.FunctionCall != nil {
			id := p.FunctionCall.ID
			if id == "" {
				id = uuid.NewString()
			}
			turn.ToolCalls = append(turn.ToolCalls, models.ToolCall{
				ID:        id,
				Name:      p.FunctionCall.Name,
				Argument:  argumentOf(p.FunctionCall.Args, argNameFor(names, p.FunctionCall.Name)),
				Signature: p.ThoughtSignature,
			})
			continue
		}
		if p.Text != "" && !p.Thought {
			text.WriteString(p.Text)
		}
	}
	turn.Text = strings.TrimSpace(text.String())
	return turn, nil
}
