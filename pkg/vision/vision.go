package vision

import (
	"VisionProxy/pkg/provider"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"
)

var features = []*visionapi.Feature{
	{Type: "OBJECT_LOCALIZATION"},
	{Type: "LABEL_DETECTION"},
}

// Config authenticates with APIKey, or with a service account key file when
// no API key is set.
type Config struct {
	APIKey          string
	CredentialsFile string
	Endpoint        string
}

type visionClient struct {
	// credential is the API key or the service account file it was built with.
	credential string
	service    *visionapi.Service
}

// New builds a Cloud Vision client. Extra options are appended after the
// credentials, so tests can swap the transport.
func New(ctx context.Context, cfg Config, opts ...option.ClientOption) (provider.IProvider, error) {
	var (
		clientOpts []option.ClientOption
		credential string
	)
	switch {
	case cfg.APIKey != "":
		credential = cfg.APIKey
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.APIKey))
	case cfg.CredentialsFile != "":
		credential = cfg.CredentialsFile
		creds, err := serviceAccount(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		clientOpts = append(clientOpts, option.WithCredentials(creds))
	default:
		return nil, provider.ErrMissingCredential
	}

	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.Endpoint))
	}
	clientOpts = append(clientOpts, opts...)

	service, err := visionapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, err
	}

	return &visionClient{
		credential: credential,
		service:    service,
	}, nil
}

func serviceAccount(ctx context.Context, path string) (*google.Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vision credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, data, visionapi.CloudVisionScope)
	if err != nil {
		return nil, fmt.Errorf("parse vision credentials: %w", err)
	}

	return creds, nil
}

func (c *visionClient) Name() string {
	return provider.Google
}

func (c *visionClient) Analyze(ctx context.Context, image []byte) (*provider.RawResponse, error) {
	if c.credential == "" || c.service == nil {
		return nil, provider.ErrMissingCredential
	}

	req := &visionapi.BatchAnnotateImagesRequest{
		Requests: []*visionapi.AnnotateImageRequest{
			{
				Image:    &visionapi.Image{Content: base64.StdEncoding.EncodeToString(image)},
				Features: features,
			},
		},
	}

	res, err := c.service.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		return nil, upstreamError(err)
	}

	if len(res.Responses) == 0 {
		return nil, provider.NewUpstreamError(provider.Google, http.StatusBadGateway, "empty annotate response", nil)
	}

	annotation := res.Responses[0]
	if annotation.Error != nil && annotation.Error.Code != 0 {
		return nil, provider.NewUpstreamError(provider.Google, statusFromRPC(annotation.Error.Code), annotation.Error.Message, nil)
	}

	body, err := jsoniter.Marshal(annotation)
	if err != nil {
		return nil, err
	}

	return &provider.RawResponse{
		Provider: provider.Google,
		Body:     body,
	}, nil
}

func upstreamError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return provider.NewUpstreamError(provider.Google, apiErr.Code, apiErr.Message, err)
	}
	return provider.NewUpstreamError(provider.Google, 0, "", err)
}

// statusFromRPC maps the google.rpc.Code of a per-image failure to HTTP.
func statusFromRPC(code int64) int {
	switch code {
	case 3, 11:
		return http.StatusBadRequest
	case 7:
		return http.StatusForbidden
	case 8:
		return http.StatusTooManyRequests
	case 16:
		return http.StatusUnauthorized
	case 4:
		return http.StatusGatewayTimeout
	case 14:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}
