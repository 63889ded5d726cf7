package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-sonnet-20241022"
)

// anthropicClient implements Client using Anthropic's Messages API.
type anthropicClient struct {
	apiCaller
	model     string
	apiKey    string `json:"-"` // Never serialize API keys
	baseURL   string
	maxTokens int
}

func newAnthropicClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &anthropicClient{
		apiCaller: newAPICaller(cfg),
		model:     model,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: maxTokens,
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// ReadText implements Client.
func (a *anthropicClient) ReadText(ctx context.Context, img Image) (string, error) {
	return a.complete(ctx, "", []anthropicContent{
		{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: img.MediaType,
				Data:      base64.StdEncoding.EncodeToString(img.Data),
			},
		},
		{Type: "text", Text: ocrPrompt},
	})
}

// ExtractFields implements Client.
func (a *anthropicClient) ExtractFields(ctx context.Context, text string) (string, error) {
	return a.complete(ctx, fieldsPrompt, []anthropicContent{{Type: "text", Text: scrubSecrets(text)}})
}

func (a *anthropicClient) complete(ctx context.Context, system string, content []anthropicContent) (string, error) {
	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		Temperature: 0, // Transcription and extraction should be deterministic
		System:      system,
		Messages:    []anthropicMessage{{Role: "user", Content: content}},
	}
	body, err := a.call(ctx, a.baseURL+"/v1/messages", map[string]string{
		"X-API-Key":         a.apiKey,
		"Anthropic-Version": "2023-06-01",
	}, req, func(b []byte) string {
		var errResp anthropicError
		if json.Unmarshal(b, &errResp) == nil {
			return errResp.Error.Message
		}
		return ""
	})
	if err != nil {
		return "", err
	}

	var resp anthropicResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	var out strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			out.WriteString(c.Text)
		}
	}
	if len(resp.Content) == 0 {
		return "", fmt.Errorf("empty response from API")
	}
	return out.String(), nil
}

// Available returns true if the client is configured.
func (a *anthropicClient) Available() bool {
	return a.apiKey != ""
}
