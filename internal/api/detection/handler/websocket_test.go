package detectionHandler

import (
	"VisionProxy/internal/entity"
	"VisionProxy/internal/middleware"
	"VisionProxy/pkg/handlerUtil"
	"VisionProxy/pkg/provider"
	"VisionProxy/pkg/response"
	"encoding/base64"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialAnalyze(t *testing.T, p *stubProvider) *websocket.Conn {
	t.Helper()
	return dialApp(t, newTestApp(t, p))
}

func dialApp(t *testing.T, app *fiber.App) *websocket.Conn {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()
	t.Cleanup(func() { _ = app.Shutdown() })

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/api/v1/analyze/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func TestAnalyzeWebSocket_BinaryFrame(t *testing.T) {
	conn := dialAnalyze(t, &stubProvider{body: `{"objects":[{"name":"cat","confidence":0.9,"box":[0.1,0.2,0.3,0.4]}],"labels":["pet"]}`})

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, makePNG(t, 4, 4)))

	var got entity.Analysis
	require.NoError(t, conn.ReadJSON(&got))
	require.Len(t, got.Objects, 1)
	assert.Equal(t, "cat", got.Objects[0].Name)
	assert.InDelta(t, 0.2, got.Objects[0].Box[0].X, 1e-9)
	require.Len(t, got.Labels, 1)
	assert.Equal(t, "pet", got.Labels[0].Description)
}

func TestAnalyzeWebSocket_TextFrameAndErrors(t *testing.T) {
	conn := dialAnalyze(t, &stubProvider{body: `{"objects":[]}`})

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(base64.StdEncoding.EncodeToString(makePNG(t, 2, 2)))))
	var ok entity.Analysis
	require.NoError(t, conn.ReadJSON(&ok))
	assert.Empty(t, ok.Objects)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("not an image")))
	var invalid handlerUtil.ErrorResponse
	require.NoError(t, conn.ReadJSON(&invalid))
	assert.Equal(t, response.KindInvalidInput, invalid.Code)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("%%%")))
	var encoding handlerUtil.ErrorResponse
	require.NoError(t, conn.ReadJSON(&encoding))
	assert.Equal(t, response.KindInvalidInput, encoding.Code)
}

func TestAnalyzeWebSocket_FramesShareRateLimit(t *testing.T) {
	p := &stubProvider{body: `{"objects":[]}`}
	conn := dialApp(t, newLimitedTestApp(t, p, middleware.Config{Rate: 0.001, Burst: 1}))
	frame := makePNG(t, 2, 2)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
	var first entity.Analysis
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, provider.OpenRouter, first.Provider)

	for i := 0; i < 5; i++ {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, frame))
		var limited handlerUtil.ErrorResponse
		require.NoError(t, conn.ReadJSON(&limited))
		assert.Equal(t, response.KindRateLimited, limited.Code)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&p.calls))
}
