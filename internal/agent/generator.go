package agent

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"bashbuddy/internal/protocol"
	"bashbuddy/internal/tools"
)

// Reply is one unit of model output: either a tool call or plain text.
type Reply struct {
	Text string
	Call *protocol.ToolCall
}

// Generator produces one reply for a conversation. The production
// implementation talks to the Gemini API; tests use a scripted fake.
type Generator interface {
	Generate(ctx context.Context, contents []*genai.Content) (*Reply, error)
}

// GeminiGenerator calls the Gemini API with the fixed system instruction
// and tool declarations.
type GeminiGenerator struct {
	client *genai.Client
	model  string
	config *genai.GenerateContentConfig
}

// NewGeminiGenerator creates a generator bound to one model. The client
// connection is held for the daemon's lifetime; that is the whole point
// of the daemon.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &GeminiGenerator{
		client: client,
		model:  model,
		config: &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
			Tools:             tools.Declarations(),
			ThinkingConfig:    &genai.ThinkingConfig{ThinkingBudget: genai.Ptr[int32](0)},
		},
	}, nil
}

// Generate sends the conversation and returns the first part of the
// first candidate as either a tool call or text.
func (g *GeminiGenerator) Generate(ctx context.Context, contents []*genai.Content) (*Reply, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, g.config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil ||
		len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, errors.New("empty response from generation service")
	}

	part := resp.Candidates[0].Content.Parts[0]
	if part.FunctionCall != nil {
		return &Reply{Call: &protocol.ToolCall{
			Name: part.FunctionCall.Name,
			Args: part.FunctionCall.Args,
		}}, nil
	}
	return &Reply{Text: part.Text}, nil
}
