package vision

import (
	"VisionProxy/pkg/normalizer"
	"VisionProxy/pkg/provider"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	visionapi "google.golang.org/api/vision/v1"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) provider.IProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(context.Background(), Config{APIKey: "test-key", Endpoint: srv.URL + "/"}, option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return client
}

func TestNew_MissingCredential(t *testing.T) {
	client, err := New(context.Background(), Config{})
	assert.Nil(t, client)
	assert.ErrorIs(t, err, provider.ErrMissingCredential)
}

func TestAnalyze_UnauthenticatedClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unauthenticated client reached the API")
	}))
	t.Cleanup(srv.Close)

	service, err := visionapi.NewService(context.Background(), option.WithoutAuthentication(), option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)

	client := &visionClient{service: service}
	_, err = client.Analyze(context.Background(), []byte("jpeg bytes"))
	assert.ErrorIs(t, err, provider.ErrMissingCredential)
}

func TestAnalyze_SendsAnnotateRequest(t *testing.T) {
	image := []byte("jpeg bytes")

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/images:annotate", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var req struct {
			Requests []struct {
				Image struct {
					Content string `json:"content"`
				} `json:"image"`
				Features []struct {
					Type string `json:"type"`
				} `json:"features"`
			} `json:"requests"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		require.Len(t, req.Requests, 1)
		assert.Equal(t, base64.StdEncoding.EncodeToString(image), req.Requests[0].Image.Content)
		require.Len(t, req.Requests[0].Features, 2)
		assert.Equal(t, "OBJECT_LOCALIZATION", req.Requests[0].Features[0].Type)
		assert.Equal(t, "LABEL_DETECTION", req.Requests[0].Features[1].Type)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"responses":[{
			"localizedObjectAnnotations":[{"mid":"/m/0k4j","name":"Car","score":0.87,
				"boundingPoly":{"normalizedVertices":[{"x":0.1,"y":0.2},{"x":0.9,"y":0.2},{"x":0.9,"y":0.7},{"x":0.1,"y":0.7}]}}],
			"labelAnnotations":[{"mid":"/m/07yv9","description":"Vehicle","score":0.95}]
		}]}`))
	})

	assert.Equal(t, provider.Google, client.Name())

	raw, err := client.Analyze(context.Background(), image)
	require.NoError(t, err)
	assert.Equal(t, provider.Google, raw.Provider)

	analysis, err := normalizer.New(normalizer.DefaultConfidence).Normalize(raw.Provider, raw.Body)
	require.NoError(t, err)
	require.Len(t, analysis.Objects, 1)
	assert.Equal(t, "Car", analysis.Objects[0].Name)
	assert.InDelta(t, 0.87, analysis.Objects[0].Confidence, 1e-9)
	assert.InDelta(t, 0.1, analysis.Objects[0].Box[0].X, 1e-9)
	assert.InDelta(t, 0.7, analysis.Objects[0].Box[2].Y, 1e-9)
	require.Len(t, analysis.Labels, 1)
	assert.Equal(t, "Vehicle", analysis.Labels[0].Description)
}

func TestAnalyze_HTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid. Please pass a valid API key.","status":"PERMISSION_DENIED"}}`))
	})

	raw, err := client.Analyze(context.Background(), []byte("img"))
	assert.Nil(t, raw)

	var upstreamErr *provider.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, provider.Google, upstreamErr.Provider)
	assert.Equal(t, http.StatusForbidden, upstreamErr.Status)
	assert.Contains(t, upstreamErr.Message, "API key not valid")
}

func TestAnalyze_PerImageError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"responses":[{"error":{"code":3,"message":"Bad image data."}}]}`))
	})

	_, err := client.Analyze(context.Background(), []byte("img"))

	var upstreamErr *provider.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, http.StatusBadRequest, upstreamErr.Status)
	assert.Equal(t, "Bad image data.", upstreamErr.Message)
}

func TestAnalyze_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client, err := New(context.Background(), Config{APIKey: "test-key", Endpoint: url + "/"}, option.WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)

	_, err = client.Analyze(context.Background(), []byte("img"))

	var upstreamErr *provider.UpstreamError
	require.ErrorAs(t, err, &upstreamErr)
	assert.Equal(t, 0, upstreamErr.Status)
	assert.NotEmpty(t, upstreamErr.Message)
}

func writeServiceAccount(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pemKey := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "vision-proxy-test",
		"private_key_id": "key-1",
		"private_key":    string(pemKey),
		"client_email":   "proxy@vision-proxy-test.iam.gserviceaccount.com",
		"client_id":      "1234567890",
		"token_uri":      "https://oauth2.googleapis.com/token",
	})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestNew_ServiceAccount(t *testing.T) {
	client, err := New(context.Background(), Config{CredentialsFile: writeServiceAccount(t)})
	require.NoError(t, err)
	assert.Equal(t, provider.Google, client.Name())
}

func TestNew_UnreadableCredentials(t *testing.T) {
	_, err := New(context.Background(), Config{CredentialsFile: filepath.Join(t.TempDir(), "missing.json")})
	require.Error(t, err)
	assert.NotErrorIs(t, err, provider.ErrMissingCredential)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o600))
	_, err = New(context.Background(), Config{CredentialsFile: bad})
	assert.Error(t, err)
}
