package extraction

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"
)

// langchainClient implements Client through langchaingo's OpenAI-compatible
// model. It serves self-hosted vision models behind an OpenAI-style API.
type langchainClient struct {
	llm       llms.Model
	limiter   *rate.Limiter
	maxTokens int
}

func newLangchainClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("langchain API key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	opts := []openai.Option{
		openai.WithModel(model),
		openai.WithToken(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	return newLangchainClientWithModel(llm, cfg), nil
}

func newLangchainClientWithModel(llm llms.Model, cfg Config) *langchainClient {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRPM
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &langchainClient{
		llm:       llm,
		limiter:   rate.NewLimiter(rate.Limit(rpm/60.0), defaultBurst),
		maxTokens: maxTokens,
	}
}

// ReadText implements Client.
func (l *langchainClient) ReadText(ctx context.Context, img Image) (string, error) {
	return l.generate(ctx, []llms.MessageContent{{
		Role: schema.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.BinaryPart(img.MediaType, img.Data),
			llms.TextPart(ocrPrompt),
		},
	}})
}

// ExtractFields implements Client.
func (l *langchainClient) ExtractFields(ctx context.Context, text string) (string, error) {
	return l.generate(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, fieldsPrompt),
		llms.TextParts(schema.ChatMessageTypeHuman, scrubSecrets(text)),
	})
}

func (l *langchainClient) generate(ctx context.Context, messages []llms.MessageContent) (string, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter error: %w", err)
	}
	resp, err := l.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(l.maxTokens))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from model")
	}
	return resp.Choices[0].Content, nil
}

// Available returns true if the client is configured.
func (l *langchainClient) Available() bool {
	return l.llm != nil
}
