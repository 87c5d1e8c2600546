package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps an OpenAI-compatible API for chat completions and embeddings.
// One fixed chat model and one fixed embedding model per deployment; callers
// never request per-call overrides.
type Client struct {
	api        *openai.Client
	chatModel  string
	embedModel string
}

// New creates a Client against the given OpenAI-compatible endpoint.
// An empty baseURL targets the default OpenAI API.
func New(baseURL, apiKey, chatModel, embedModel string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		api:        openai.NewClientWithConfig(cfg),
		chatModel:  chatModel,
		embedModel: embedModel,
	}
}

// Generate sends a system+user prompt pair and returns the assistant's text.
func (c *Client) Generate(ctx context.Context, system, user string) (string, error) {
	return c.chat(ctx, system, user, nil)
}

// GenerateJSON is Generate with the response format pinned to a JSON object.
// The returned string is still passed through the defensive parser by callers;
// JSON mode reduces, but does not eliminate, malformed output.
func (c *Client) GenerateJSON(ctx context.Context, system, user string) (string, error) {
	format := &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	}
	return c.chat(ctx, system, user, format)
}

func (c *Client) chat(ctx context.Context, system, user string, format *openai.ChatCompletionResponseFormat) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          c.chatModel,
		Messages:       messages,
		ResponseFormat: format,
		Temperature:    0.3,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embed returns the embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.embedModel),
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}
