package openai

import (
	"VisionProxy/pkg/provider"
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "google/gemini-2.0-flash-001"
)

type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Referer string
	Title   string
}

type routerClient struct {
	apiKey string
	client *openai.Client
	model  string
}

// headerTransport adds the attribution headers OpenRouter uses for app rankings.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(req)
}

func New(cfg Config, httpClient *http.Client) (provider.IProvider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrMissingCredential
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	withHeaders := *httpClient
	withHeaders.Transport = &headerTransport{
		base: base,
		headers: map[string]string{
			"HTTP-Referer": cfg.Referer,
			"X-Title":      cfg.Title,
		},
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = cfg.BaseURL
	config.HTTPClient = &withHeaders

	return &routerClient{
		apiKey: cfg.APIKey,
		client: openai.NewClientWithConfig(config),
		model:  cfg.Model,
	}, nil
}

func (c *routerClient) Name() string {
	return provider.OpenRouter
}

func (c *routerClient) Analyze(ctx context.Context, image []byte) (*provider.RawResponse, error) {
	if c.apiKey == "" {
		return nil, provider.ErrMissingCredential
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: provider.DetectionPrompt,
		},
		{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{
					Type: openai.ChatMessagePartTypeText,
					Text: provider.DetectionRequest,
				},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		},
	}

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: 0,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
		},
	)
	if err != nil {
		return nil, upstreamError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, provider.NewUpstreamError(provider.OpenRouter, http.StatusBadGateway, "no choices in completion", nil)
	}

	return &provider.RawResponse{
		Provider: provider.OpenRouter,
		Body:     []byte(resp.Choices[0].Message.Content),
	}, nil
}

func upstreamError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return provider.NewUpstreamError(provider.OpenRouter, apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		message := ""
		if reqErr.Err != nil {
			message = reqErr.Err.Error()
		}
		return provider.NewUpstreamError(provider.OpenRouter, reqErr.HTTPStatusCode, message, err)
	}

	return provider.NewUpstreamError(provider.OpenRouter, 0, "", err)
}
