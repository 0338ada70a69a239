package config

import (
	detectionHandler "VisionProxy/internal/api/detection/handler"
	detectionService "VisionProxy/internal/api/detection/service"
	"VisionProxy/internal/middleware"
	"VisionProxy/pkg/normalizer"
	"VisionProxy/pkg/preprocess"
	"VisionProxy/pkg/provider"
	"VisionProxy/pkg/redis"
	"VisionProxy/pkg/utils"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine       *fiber.App
	log          *logrus.Logger
	config       *AppConfig
	middleware   middleware.Middleware
	validator    *validator.Validate
	utils        utils.IUtils
	preprocessor preprocess.IPreprocessor
	normalizer   normalizer.INormalizer
	provider     provider.IProvider
	cache        redis.IAnalysisCache
	handlers     []handler
}

type handler interface {
	Start(srv fiber.Router)
}

type closer interface {
	Close()
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if server.provider == nil {
		return nil, fmt.Errorf("vision provider is required")
	}

	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.utils == nil {
		server.utils = utils.New(int64(server.config.BodyLimitMB) * 1024 * 1024)
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log, middleware.Config{
			Rate:  server.config.RateLimit,
			Burst: server.config.RateBurst,
		})
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithConfig(cfg *AppConfig) ServerOption {
	return func(s *Server) error {
		s.config = cfg
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithProvider(p provider.IProvider) ServerOption {
	return func(s *Server) error {
		if p == nil {
			return fmt.Errorf("vision provider is nil")
		}
		s.provider = p
		return nil
	}
}

// WithCache enables the analysis cache. A nil cache leaves caching off.
func WithCache(cache redis.IAnalysisCache) ServerOption {
	return func(s *Server) error {
		s.cache = cache
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		if s.config == nil {
			return fmt.Errorf("config must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log, middleware.Config{
			Rate:  s.config.RateLimit,
			Burst: s.config.RateBurst,
		})
		return nil
	}
}

func WithPreprocessor() ServerOption {
	return func(s *Server) error {
		if s.config == nil {
			return fmt.Errorf("config must be initialized before preprocessor")
		}
		s.preprocessor = preprocess.New(s.config.MaxDimension, s.config.Quality)
		return nil
	}
}

func WithNormalizer() ServerOption {
	return func(s *Server) error {
		if s.config == nil {
			return fmt.Errorf("config must be initialized before normalizer")
		}
		s.normalizer = normalizer.New(s.config.DefaultConfidence)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		if s.config == nil {
			return fmt.Errorf("config must be initialized before utils")
		}
		s.utils = utils.New(int64(s.config.BodyLimitMB) * 1024 * 1024)
		return nil
	}
}

func (s *Server) RegisterHandler() {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())

	if s.preprocessor == nil {
		s.preprocessor = preprocess.New(s.config.MaxDimension, s.config.Quality)
	}
	if s.normalizer == nil {
		s.normalizer = normalizer.New(s.config.DefaultConfidence)
	}

	// Detection
	detectionServices := detectionService.NewDetectionService(s.log, s.preprocessor, s.provider, s.normalizer, s.cache, s.config.UpstreamTimeout)
	detectionHandlers := detectionHandler.New(s.log, s.validator, s.middleware, detectionServices, s.utils, s.config.UpstreamTimeout+5*time.Second)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, detectionHandlers)

	router := s.engine.Group("/api/v1")
	for _, h := range s.handlers {
		h.Start(router)
	}
}

// App exposes the underlying fiber app, mostly for app.Test.
func (s *Server) App() *fiber.App {
	return s.engine
}

func (s *Server) Run() error {
	s.log.WithFields(logrus.Fields{
		"provider": s.provider.Name(),
		"cache":    s.cache != nil,
	}).Info("Starting vision proxy")

	return s.engine.Listen(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(timeout time.Duration) error {
	if c, ok := s.provider.(closer); ok {
		c.Close()
	}
	return s.engine.ShutdownWithTimeout(timeout)
}

func (s *Server) setupHealthCheck() {
	health := func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message":  "Server is Healthy!",
			"provider": s.provider.Name(),
		})
	}
	s.engine.Get("/", health)
	s.engine.Get("/health", health)
}
