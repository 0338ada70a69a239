package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

const (
	Google     = "google"
	OpenRouter = "openrouter"
	Gemini     = "gemini"
)

const DetectionRequest = "Detect the objects in this image."

// DetectionPrompt is the instruction given to model based providers.
const DetectionPrompt = `You are an object detection engine. Find every distinct physical object in the image.

Return ONLY a JSON object, no markdown and no commentary, with this shape:
{
  "objects": [
    {"name": "coffee mug", "confidence": 0.92, "box": [ymin, xmin, ymax, xmax]}
  ],
  "labels": ["kitchen", "tableware"]
}

Rules:
- "box" is [ymin, xmin, ymax, xmax] normalized to 0-1000, origin at the top-left corner
- "confidence" is between 0.0 and 1.0
- "labels" are short scene level tags
- If nothing is visible return {"objects": [], "labels": []}`

var ErrMissingCredential = errors.New("vision provider API key is not configured")

// RawResponse is the unparsed payload returned by a provider. For Google it is
// an AnnotateImageResponse document, for model based providers it is the text
// the model generated.
type RawResponse struct {
	Provider string
	Body     []byte
}

type IProvider interface {
	Name() string
	Analyze(ctx context.Context, image []byte) (*RawResponse, error)
}

// UpstreamError reports a failed upstream call. Status is the provider HTTP
// status, or zero when the request never got a response.
type UpstreamError struct {
	Provider string
	Status   int
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s request failed: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Provider, e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func NewUpstreamError(provider string, status int, message string, err error) *UpstreamError {
	if message == "" && err != nil {
		message = err.Error()
	}
	if message == "" && status != 0 {
		message = http.StatusText(status)
	}
	return &UpstreamError{
		Provider: provider,
		Status:   status,
		Message:  message,
		Err:      err,
	}
}

// Timeout reports whether the upstream call was cut short by the context.
func (e *UpstreamError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}
