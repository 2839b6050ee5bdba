package gateway

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

func TestGateway_StreamWithoutAPIKeyClosesWith4001(t *testing.T) {
	_, router := newTestGateway(&fakeHealth{}, newFakeLimiter())
	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + server.URL[len("http"):] + "/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusInternalError, "")

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusCode(4001), websocket.CloseStatus(err))
}

func TestGateway_StreamSubscribeAndReceiveLog(t *testing.T) {
	_, router := newTestGateway(&fakeHealth{}, newFakeLimiter())
	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + server.URL[len("http"):] + "/stream?api_key=test-key"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, _, err = conn.Read(ctx)
	require.NoError(t, err)

	err = conn.Write(ctx, websocket.MessageText,
		[]byte(`{"type":"subscribe","subscription_id":"sub-1","filters":{"severity":["error"]}}`))
	require.NoError(t, err)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Contains(t, string(data), `"subscribed"`)
	require.Contains(t, string(data), "sub-1")
}
