package detectionService

import (
	"VisionProxy/internal/api/detection"
	"VisionProxy/internal/entity"
	contextPkg "VisionProxy/pkg/context"
	"VisionProxy/pkg/log"
	"VisionProxy/pkg/normalizer"
	"VisionProxy/pkg/preprocess"
	"VisionProxy/pkg/provider"
	"context"
	"errors"
)

func (s *detectionService) Analyze(ctx context.Context, image []byte) (*entity.Analysis, error) {
	if len(image) == 0 {
		return nil, detection.ErrNoImage
	}

	fields := log.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"provider":   s.provider.Name(),
	}

	prepared, err := s.preprocessor.Prepare(image)
	if err != nil {
		if errors.Is(err, preprocess.ErrInvalidImage) {
			return nil, detection.ErrInvalidImage
		}
		return nil, err
	}

	s.log.WithFields(fields).WithFields(log.Fields{
		"format":          prepared.Format,
		"original_width":  prepared.OriginalWidth,
		"original_height": prepared.OriginalHeight,
		"width":           prepared.Width,
		"height":          prepared.Height,
		"bytes":           len(prepared.Data),
	}).Debug("Image prepared")

	if s.cache != nil {
		cached, err := s.cache.GetAnalysis(ctx, s.provider.Name(), prepared.Data)
		if err != nil {
			s.log.WithFields(fields).WithField("error", err.Error()).Warn("Analysis cache lookup failed")
		} else if cached != nil {
			s.log.WithFields(fields).Debug("Analysis served from cache")
			// Entries outlive this process; keep the output invariants for
			// whatever wrote them.
			for i, d := range cached.Objects {
				cached.Objects[i] = normalizer.Renormalize(d)
			}
			return cached, nil
		}
	}

	raw, err := s.callProvider(ctx, prepared.Data)
	if err != nil {
		return nil, err
	}

	analysis, err := s.normalizer.Normalize(raw.Provider, raw.Body)
	if err != nil {
		return nil, err
	}

	if analysis.Dropped > 0 {
		s.log.WithFields(fields).WithField("dropped", analysis.Dropped).Warn("Dropped detections without a usable box")
	}

	s.log.WithFields(fields).WithFields(log.Fields{
		"objects": len(analysis.Objects),
		"labels":  len(analysis.Labels),
	}).Info("Image analyzed")

	if s.cache != nil {
		if err := s.cache.SetAnalysis(ctx, s.provider.Name(), prepared.Data, analysis); err != nil {
			s.log.WithFields(fields).WithField("error", err.Error()).Warn("Failed to cache analysis")
		}
	}

	return analysis, nil
}

func (s *detectionService) callProvider(ctx context.Context, image []byte) (*provider.RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.provider.Analyze(ctx, image)
	if err == nil {
		return raw, nil
	}

	if errors.Is(err, provider.ErrMissingCredential) {
		return nil, err
	}

	var upstreamErr *provider.UpstreamError
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && (!errors.As(err, &upstreamErr) || !upstreamErr.Timeout()) {
		return nil, provider.NewUpstreamError(s.provider.Name(), 0, "upstream request timed out after "+s.timeout.String(), context.DeadlineExceeded)
	}

	if !errors.As(err, &upstreamErr) {
		return nil, provider.NewUpstreamError(s.provider.Name(), 0, "", err)
	}

	return nil, err
}

func (s *detectionService) Crop(ctx context.Context, image []byte, box []float64, padding *float64) ([]byte, error) {
	if len(image) == 0 {
		return nil, detection.ErrNoImage
	}

	b, ok := normalizer.BoxFromSlice(box)
	if !ok {
		return nil, detection.ErrInvalidBox
	}

	pad := preprocess.DefaultCropPadding
	if padding != nil {
		pad = *padding
	}

	cropped, err := s.preprocessor.Crop(image, b, pad)
	if err != nil {
		switch {
		case errors.Is(err, preprocess.ErrInvalidImage):
			return nil, detection.ErrInvalidImage
		case errors.Is(err, preprocess.ErrInvalidBox):
			return nil, detection.ErrInvalidBox
		}
		return nil, err
	}

	s.log.WithFields(log.Fields{
		"request_id": contextPkg.GetRequestID(ctx),
		"box":        box,
		"padding":    pad,
		"bytes":      len(cropped),
	}).Debug("Image cropped")

	return cropped, nil
}
