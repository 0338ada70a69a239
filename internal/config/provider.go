package config

import (
	"VisionProxy/pkg/gemini"
	"VisionProxy/pkg/openai"
	"VisionProxy/pkg/provider"
	"VisionProxy/pkg/vision"
	"context"
	"fmt"
	"net/http"
)

// NewProvider builds the single upstream adapter selected by VISION_PROVIDER.
func NewProvider(ctx context.Context, cfg *AppConfig) (provider.IProvider, error) {
	switch cfg.Provider {
	case provider.Google:
		return vision.New(ctx, cfg.Google)
	case provider.OpenRouter:
		return openai.New(cfg.OpenRouter, &http.Client{})
	case provider.Gemini:
		return gemini.NewGeminiClient(ctx, cfg.Gemini)
	default:
		return nil, fmt.Errorf("%w: unknown vision provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
