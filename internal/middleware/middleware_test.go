package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T, cfg Config) (*fiber.App, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	m := New(logger, cfg)

	app := fiber.New()
	app.Use(m.NewRequestIDMiddleware())
	app.Use(m.NewLoggingMiddleware())
	app.Post("/limited", m.NewRateLimiter, func(c *fiber.Ctx) error {
		return c.SendString(m.GetRequestID(c))
	})
	return app, hook
}

func TestRequestID_Generated(t *testing.T) {
	app, _ := newTestApp(t, Config{})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/limited", nil))
	require.NoError(t, err)

	id := resp.Header.Get(RequestIDKey)
	_, err = ulid.Parse(id)
	assert.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, id, string(body))
}

func TestRequestID_Propagated(t *testing.T) {
	app, _ := newTestApp(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/limited", nil)
	req.Header.Set(RequestIDKey, "client-id-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "client-id-1", resp.Header.Get(RequestIDKey))
}

func TestRateLimiter(t *testing.T) {
	app, _ := newTestApp(t, Config{Rate: 0.001, Burst: 2})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/limited", nil))
		require.NoError(t, err)
		statuses = append(statuses, resp.StatusCode)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestLoggingMiddleware_LogsRequest(t *testing.T) {
	app, hook := newTestApp(t, Config{})

	req := httptest.NewRequest(http.MethodPost, "/limited", strings.NewReader(`{"imageBase64":"aGVsbG8=","apiKey":"abc"}`))
	req.Header.Set("Content-Type", fiber.MIMEApplicationJSON)
	_, err := app.Test(req)
	require.NoError(t, err)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.InfoLevel, entry.Level)
	assert.Equal(t, http.StatusOK, entry.Data["status"])

	body, _ := entry.Data["request_body"].(string)
	assert.Contains(t, body, "[8 chars]")
	assert.Contains(t, body, "[SECRET]")
	assert.NotContains(t, body, "aGVsbG8=")
}

func TestSanitizeRequestBody_NonJSON(t *testing.T) {
	got := sanitizeRequestBody("multipart/form-data; boundary=x", []byte("0123456789"))
	assert.Equal(t, "[10 bytes multipart/form-data; boundary=x]", got)
}
