package extraction

import (
	"context"
	"fmt"
)

// New creates a Client for cfg.Provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "disabled":
		return Disabled{}, nil
	case "anthropic":
		return newAnthropicClient(cfg)
	case "openai":
		return newOpenAIClient(cfg)
	case "langchain":
		return newLangchainClient(cfg)
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

// Disabled is the Client used when no provider is configured.
type Disabled struct{}

// ReadText returns ErrDisabled.
func (Disabled) ReadText(context.Context, Image) (string, error) { return "", ErrDisabled }

// ExtractFields returns ErrDisabled.
func (Disabled) ExtractFields(context.Context, string) (string, error) { return "", ErrDisabled }

// Available returns false.
func (Disabled) Available() bool { return false }

// Ensure interfaces are implemented.
var (
	_ Client = (*anthropicClient)(nil)
	_ Client = (*openAIClient)(nil)
	_ Client = (*langchainClient)(nil)
	_ Client = Disabled{}
)
