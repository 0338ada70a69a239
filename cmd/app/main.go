package main

import (
	"VisionProxy/internal/config"
	"VisionProxy/pkg/log"
	"VisionProxy/pkg/redis"
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

func main() {
	cfg, cfgErr := config.Load()

	opts := log.Options{}
	if cfg != nil {
		opts = log.Options{Level: cfg.LogLevel, Env: cfg.Env, Dir: cfg.LogDir}
	}
	logger := log.NewLogger(opts)

	if cfgErr != nil {
		logger.Fatalf("CONFIG_ERROR: %v", cfgErr)
	}

	visionProvider, err := config.NewProvider(context.Background(), cfg)
	if err != nil {
		logger.Fatalf("CONFIG_ERROR: failed to create %s provider: %v", cfg.Provider, err)
	}

	var cache redis.IAnalysisCache
	if cfg.Redis.Address != "" {
		cache = redis.New(cfg.Redis)
	}

	fiberApp := config.NewFiber(logger, cfg)
	validator := config.NewValidator()

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithConfig(cfg),
		config.WithValidator(validator),
		config.WithProvider(visionProvider),
		config.WithCache(cache),
		config.WithMiddleware(),
		config.WithPreprocessor(),
		config.WithNormalizer(),
		config.WithUtils(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	if err := server.Shutdown(10 * time.Second); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}
