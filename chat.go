package relay

import (
	"context"
	"errors"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultSystemPrompt = "You are a helpful assistant."
	DefaultChatModel    = "gpt-4o"
	DefaultChatBaseURL  = "https://models.inference.ai.azure.com"
)

// Completer answers a single user message.
type Completer interface {
	Complete(ctx context.Context, message string) (string, error)
}

type ChatOptions struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	Temperature  float32
	TopP         float32
	MaxTokens    int
}

func DefaultChatOptions() ChatOptions {
	return ChatOptions{
		BaseURL:      DefaultChatBaseURL,
		Model:        DefaultChatModel,
		SystemPrompt: DefaultSystemPrompt,
		Temperature:  1.0,
		TopP:         1.0,
		MaxTokens:    1000,
	}
}

// OpenAIChat is a Completer for any OpenAI compatible
// chat completion endpoint.
type OpenAIChat struct {
	client *openai.Client
	opts   ChatOptions
}

var _ Completer = (*OpenAIChat)(nil)

func NewOpenAIChat(opts ChatOptions) *OpenAIChat {
	def := DefaultChatOptions()
	if opts.BaseURL == "" {
		opts.BaseURL = def.BaseURL
	}
	if opts.Model == "" {
		opts.Model = def.Model
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = def.SystemPrompt
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	cfg.BaseURL = opts.BaseURL
	return &OpenAIChat{
		client: openai.NewClientWithConfig(cfg),
		opts:   opts,
	}
}

func (c *OpenAIChat) Complete(ctx context.Context, message string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.opts.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
		Temperature: c.opts.Temperature,
		TopP:        c.opts.TopP,
		MaxTokens:   c.opts.MaxTokens,
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyChatError(err)
	}
	if len(resp.Choices) == 0 {
		return "", E(KindUpstream, "chat completion", ErrNoChoices)
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyChatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return E(KindAuth, "chat completion", err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return E(KindTransient, "chat completion", err)
	}
	return E(KindUpstream, "chat completion", err)
}
