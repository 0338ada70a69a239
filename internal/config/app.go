package config

import (
	"VisionProxy/pkg/gemini"
	"VisionProxy/pkg/normalizer"
	"VisionProxy/pkg/openai"
	"VisionProxy/pkg/preprocess"
	"VisionProxy/pkg/provider"
	"VisionProxy/pkg/redis"
	"VisionProxy/pkg/vision"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// AppConfig is read once at startup. Nothing in request handling looks at the
// environment.
type AppConfig struct {
	Port     string `validate:"required,numeric"`
	Env      string
	LogLevel string
	LogDir   string

	Provider   string `validate:"oneof=google openrouter gemini"`
	Google     vision.Config
	OpenRouter openai.Config
	Gemini     gemini.Config

	MaxDimension      int           `validate:"gt=0"`
	Quality           int           `validate:"gte=1,lte=100"`
	DefaultConfidence float64       `validate:"gte=0,lte=1"`
	UpstreamTimeout   time.Duration `validate:"gt=0"`

	Redis redis.Config

	RateLimit   float64 `validate:"gt=0"`
	RateBurst   int     `validate:"gt=0"`
	BodyLimitMB int     `validate:"gt=0"`
}

// Load reads .env (when present) and the process environment into an
// AppConfig. A missing credential for the selected provider is reported as
// provider.ErrMissingCredential.
func Load(envFiles ...string) (*AppConfig, error) {
	_ = godotenv.Load(envFiles...)

	p := &envParser{}
	cfg := &AppConfig{
		Port:     p.string("APP_PORT", "3000"),
		Env:      p.string("APP_ENV", "development"),
		LogLevel: p.string("LOG_LEVEL", "debug"),
		LogDir:   p.string("LOG_DIR", ""),

		Provider: strings.ToLower(p.string("VISION_PROVIDER", provider.Google)),
		Google: vision.Config{
			APIKey:          p.string("GOOGLE_API_KEY", ""),
			CredentialsFile: p.string("GOOGLE_APPLICATION_CREDENTIALS", ""),
			Endpoint:        p.string("VISION_ENDPOINT", ""),
		},
		OpenRouter: openai.Config{
			APIKey:  p.string("OPENROUTER_OPENAI_API_KEY", ""),
			BaseURL: p.string("OPENROUTER_BASE_URL", openai.DefaultBaseURL),
			Model:   p.string("OPENROUTER_MODEL", openai.DefaultModel),
			Referer: p.string("OPENROUTER_REFERER", ""),
			Title:   p.string("OPENROUTER_TITLE", ""),
		},
		Gemini: gemini.Config{
			APIKey:    p.string("GEMINI_API_KEY", ""),
			ModelName: p.string("GEMINI_MODEL_NAME", gemini.DefaultModel),
		},

		MaxDimension:      p.int("IMAGE_MAX_DIMENSION", preprocess.DefaultMaxDimension),
		Quality:           p.int("IMAGE_QUALITY", preprocess.DefaultQuality),
		DefaultConfidence: p.float("DEFAULT_CONFIDENCE", normalizer.DefaultConfidence),
		UpstreamTimeout:   p.duration("UPSTREAM_TIMEOUT", 30*time.Second),

		Redis: redis.Config{
			Address:  p.string("REDIS_ADDRESS", ""),
			Password: p.string("REDIS_PASSWORD", ""),
			DB:       p.int("REDIS_DB", 0),
			TTL:      p.duration("CACHE_TTL", 10*time.Minute),
		},

		RateLimit:   p.float("RATE_LIMIT", 5),
		RateBurst:   p.int("RATE_BURST", 10),
		BodyLimitMB: p.int("BODY_LIMIT_MB", 20),
	}

	if len(p.errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(p.errs...))
	}

	if err := NewValidator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	if key, name := cfg.credential(); key == "" {
		return nil, fmt.Errorf("%s is empty: %w", name, provider.ErrMissingCredential)
	}

	return cfg, nil
}

func (c *AppConfig) credential() (string, string) {
	switch c.Provider {
	case provider.OpenRouter:
		return c.OpenRouter.APIKey, "OPENROUTER_OPENAI_API_KEY"
	case provider.Gemini:
		return c.Gemini.APIKey, "GEMINI_API_KEY"
	default:
		if c.Google.APIKey == "" {
			return c.Google.CredentialsFile, "GOOGLE_API_KEY or GOOGLE_APPLICATION_CREDENTIALS"
		}
		return c.Google.APIKey, "GOOGLE_API_KEY"
	}
}

type envParser struct {
	errs []error
}

func (p *envParser) string(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (p *envParser) int(key string, fallback int) int {
	raw := p.string(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return fallback
	}
	return v
}

func (p *envParser) float(key string, fallback float64) float64 {
	raw := p.string(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, raw))
		return fallback
	}
	return v
}

// duration accepts Go duration strings ("30s") or a bare number of seconds.
func (p *envParser) duration(key string, fallback time.Duration) time.Duration {
	raw := p.string(key, "")
	if raw == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return fallback
	}
	return v
}
