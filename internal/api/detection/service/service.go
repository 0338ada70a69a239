package detectionService

import (
	"VisionProxy/internal/entity"
	"VisionProxy/pkg/normalizer"
	"VisionProxy/pkg/preprocess"
	"VisionProxy/pkg/provider"
	"VisionProxy/pkg/redis"
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const DefaultUpstreamTimeout = 30 * time.Second

type IDetectionService interface {
	Analyze(ctx context.Context, image []byte) (*entity.Analysis, error)
	Crop(ctx context.Context, image []byte, box []float64, padding *float64) ([]byte, error)
}

type detectionService struct {
	log          *logrus.Logger
	preprocessor preprocess.IPreprocessor
	provider     provider.IProvider
	normalizer   normalizer.INormalizer
	cache        redis.IAnalysisCache
	timeout      time.Duration
}

// NewDetectionService wires the analysis pipeline. cache may be nil.
func NewDetectionService(
	log *logrus.Logger,
	preprocessor preprocess.IPreprocessor,
	provider provider.IProvider,
	normalizer normalizer.INormalizer,
	cache redis.IAnalysisCache,
	timeout time.Duration,
) IDetectionService {
	if timeout <= 0 {
		timeout = DefaultUpstreamTimeout
	}

	return &detectionService{
		log:          log,
		preprocessor: preprocessor,
		provider:     provider,
		normalizer:   normalizer,
		cache:        cache,
		timeout:      timeout,
	}
}
