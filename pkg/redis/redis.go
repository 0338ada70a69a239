package redis

import (
	"VisionProxy/internal/entity"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "vision:analysis"

type Config struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// IAnalysisCache stores normalized analyses keyed by provider and the exact
// bytes sent upstream. A miss is reported as (nil, nil).
type IAnalysisCache interface {
	GetAnalysis(ctx context.Context, providerName string, image []byte) (*entity.Analysis, error)
	SetAnalysis(ctx context.Context, providerName string, image []byte, analysis *entity.Analysis) error
}

type redisClient struct {
	client *redis.Client
	ttl    time.Duration
}

func New(cfg Config) IAnalysisCache {
	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", cfg.Address))

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return NewWithClient(client, cfg.TTL)
}

func NewWithClient(client *redis.Client, ttl time.Duration) IAnalysisCache {
	return &redisClient{client: client, ttl: ttl}
}

func Key(providerName string, image []byte) string {
	sum := sha256.Sum256(image)
	return fmt.Sprintf("%s:%s:%s", keyPrefix, providerName, hex.EncodeToString(sum[:]))
}

func (r *redisClient) GetAnalysis(ctx context.Context, providerName string, image []byte) (*entity.Analysis, error) {
	key := Key(providerName, image)
	logrus.Debug(fmt.Sprintf("Getting analysis for key %s", key))

	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		logrus.Debug(fmt.Sprintf("Analysis not found for key %s", key))
		return nil, nil
	} else if err != nil {
		logrus.Error(fmt.Sprintf("Error getting analysis for key %s: %v", key, err))
		return nil, err
	}

	var analysis entity.Analysis
	if err := jsoniter.Unmarshal(val, &analysis); err != nil {
		return nil, fmt.Errorf("decode cached analysis: %w", err)
	}

	return &analysis, nil
}

func (r *redisClient) SetAnalysis(ctx context.Context, providerName string, image []byte, analysis *entity.Analysis) error {
	key := Key(providerName, image)

	payload, err := jsoniter.Marshal(analysis)
	if err != nil {
		return err
	}

	logrus.Debug(fmt.Sprintf("Setting analysis for key %s with expiration %v", key, r.ttl))
	if err := r.client.Set(ctx, key, payload, r.ttl).Err(); err != nil {
		logrus.Error(fmt.Sprintf("Error setting analysis for key %s: %v", key, err))
		return err
	}

	return nil
}
