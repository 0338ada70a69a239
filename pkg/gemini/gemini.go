package gemini

import (
	"VisionProxy/pkg/provider"
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-2.0-flash"

type Config struct {
	APIKey    string
	ModelName string
}

type geminiClient struct {
	apiKey    string
	modelName string
	client    *genai.Client
}

func NewGeminiClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (provider.IProvider, error) {
	if cfg.APIKey == "" {
		return nil, provider.ErrMissingCredential
	}
	if cfg.ModelName == "" {
		cfg.ModelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(cfg.APIKey)}, opts...)...)
	if err != nil {
		return nil, err
	}

	return &geminiClient{
		apiKey:    cfg.APIKey,
		modelName: cfg.ModelName,
		client:    client,
	}, nil
}

func (g *geminiClient) Name() string {
	return provider.Gemini
}

func (g *geminiClient) Analyze(ctx context.Context, image []byte) (*provider.RawResponse, error) {
	if g.apiKey == "" {
		return nil, provider.ErrMissingCredential
	}

	model := g.client.GenerativeModel(g.modelName)
	model.SetTemperature(0)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = genai.NewUserContent(genai.Text(provider.DetectionPrompt))

	res, err := model.GenerateContent(ctx, genai.ImageData("jpeg", image), genai.Text(provider.DetectionRequest))
	if err != nil {
		return nil, upstreamError(err)
	}

	text, err := replyText(res)
	if err != nil {
		return nil, provider.NewUpstreamError(provider.Gemini, http.StatusBadGateway, err.Error(), nil)
	}

	return &provider.RawResponse{
		Provider: provider.Gemini,
		Body:     []byte(text),
	}, nil
}

func (g *geminiClient) Close() {
	if g.client != nil {
		g.client.Close()
	}
}

func replyText(res *genai.GenerateContentResponse) (string, error) {
	if res == nil || len(res.Candidates) == 0 || res.Candidates[0].Content == nil {
		return "", errors.New("no response from Gemini API")
	}

	var sb strings.Builder
	for _, part := range res.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("unexpected response format from Gemini API")
	}

	return sb.String(), nil
}

func upstreamError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return provider.NewUpstreamError(provider.Gemini, apiErr.Code, apiErr.Message, err)
	}
	return provider.NewUpstreamError(provider.Gemini, 0, "", err)
}
