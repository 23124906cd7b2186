package prompt

import (
	"context"
	"errors"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"fitstudio/internal/infra"
)

// OpenAIOptions configures the LLM-backed enhancer.
type OpenAIOptions struct {
	APIKey   string
	Model    string
	BaseURL  string
	Logger   *infra.Logger
	Fallback Enhancer
}

// OpenAIEnhancer asks a chat model to describe the product visually so that
// the edit capability can render it from text alone. Any failure falls back
// to the static enhancer; enhancement is an assist, never a hard dependency.
type OpenAIEnhancer struct {
	client   *openai.Client
	model    string
	logger   *infra.Logger
	fallback Enhancer
}

const enhancerSystemPrompt = "You write one short instruction for an image editing model. " +
	"Describe how the given product should appear on the person in the photo: shape, color, " +
	"material, placement. One sentence, no preamble."

// NewOpenAIEnhancer constructs the enhancer; the API key is required.
func NewOpenAIEnhancer(opts OpenAIOptions) (*OpenAIEnhancer, error) {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai api key is required")
	}
	cfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimRight(opts.BaseURL, "/"); base != "" {
		cfg.BaseURL = base
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = openai.GPT4oMini
	}
	fallback := opts.Fallback
	if fallback == nil {
		fallback = NewStaticEnhancer()
	}
	return &OpenAIEnhancer{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		logger:   opts.Logger,
		fallback: fallback,
	}, nil
}

// Enhance implements Enhancer.
func (e *OpenAIEnhancer) Enhance(ctx context.Context, req EnhanceRequest) (string, error) {
	user := strings.TrimSpace(strings.Join([]string{
		"Product: " + req.ProductName,
		"Description: " + req.ProductDescription,
		"Reference URL: " + req.ProductURL,
	}, "\n"))

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.4,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: enhancerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		if e.logger != nil {
			e.logger.Warn().Err(err).Msg("prompt: openai enhance failed, using static instruction")
		}
		return e.fallback.Enhance(ctx, req)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return e.fallback.Enhance(ctx, req)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

var _ Enhancer = (*OpenAIEnhancer)(nil)
