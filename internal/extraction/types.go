package extraction

import (
	"context"
	"errors"
	"time"

	"github.com/stephdmurray-sys/nomee-sub001/internal/config"
)

// ErrDisabled is returned by the disabled client.
var ErrDisabled = errors.New("extraction: no provider configured")

// Image is a screenshot to transcribe.
type Image struct {
	Data      []byte
	MediaType string
}

// Client calls an LLM for the two import stages.
type Client interface {
	// ReadText returns the text visible in img.
	ReadText(ctx context.Context, img Image) (string, error)

	// ExtractFields returns the model's raw answer describing the praise in
	// text. The answer should be a JSON object but is not validated here.
	ExtractFields(ctx context.Context, text string) (string, error)

	// Available returns true if the client can reach a model.
	Available() bool
}

// Config holds provider configuration.
type Config struct {
	Provider          string
	Model             string
	APIKey            string `json:"-"` // Never serialize API keys
	BaseURL           string
	MaxTokens         int
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerMinute float64
}

// FromAppConfig converts the extraction section of the application config.
func FromAppConfig(ec config.ExtractionConfig) Config {
	return Config{
		Provider:          ec.Provider,
		Model:             ec.Model,
		APIKey:            ec.APIKey.Value(),
		BaseURL:           ec.BaseURL,
		Timeout:           ec.StageTimeout.Duration(),
		MaxRetries:        ec.MaxRetries,
		RequestsPerMinute: ec.RequestsPerMinute,
	}
}
