package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com"
	defaultOpenAIModel   = "gpt-4o-mini"
)

// openAIClient implements Client using OpenAI's Chat Completions API.
type openAIClient struct {
	apiCaller
	model     string
	apiKey    string `json:"-"` // Never serialize API keys
	baseURL   string
	maxTokens int
}

func newOpenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key required")
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &openAIClient{
		apiCaller: newAPICaller(cfg),
		model:     model,
		apiKey:    cfg.APIKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: maxTokens,
	}, nil
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string          `json:"role"`
	Content []openAIContent `json:"content"`
}

type openAIContent struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// ReadText implements Client.
func (o *openAIClient) ReadText(ctx context.Context, img Image) (string, error) {
	dataURL := "data:" + img.MediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	return o.complete(ctx, []openAIMessage{{
		Role: "user",
		Content: []openAIContent{
			{Type: "text", Text: ocrPrompt},
			{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURL}},
		},
	}})
}

// ExtractFields implements Client.
func (o *openAIClient) ExtractFields(ctx context.Context, text string) (string, error) {
	return o.complete(ctx, []openAIMessage{
		{Role: "system", Content: []openAIContent{{Type: "text", Text: fieldsPrompt}}},
		{Role: "user", Content: []openAIContent{{Type: "text", Text: scrubSecrets(text)}}},
	})
}

func (o *openAIClient) complete(ctx context.Context, messages []openAIMessage) (string, error) {
	req := openAIRequest{
		Model:       o.model,
		MaxTokens:   o.maxTokens,
		Temperature: 0,
		Messages:    messages,
	}
	body, err := o.call(ctx, o.baseURL+"/v1/chat/completions", map[string]string{
		"Authorization": "Bearer " + o.apiKey,
	}, req, func(b []byte) string {
		var errResp openAIError
		if json.Unmarshal(b, &errResp) == nil {
			return errResp.Error.Message
		}
		return ""
	})
	if err != nil {
		return "", err
	}

	var resp openAIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from API")
	}
	return resp.Choices[0].Message.Content, nil
}

// Available returns true if the client is configured.
func (o *openAIClient) Available() bool {
	return o.apiKey != ""
}
