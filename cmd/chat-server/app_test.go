package main

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/infigaming-com/go-channels/config"
	"github.com/infigaming-com/go-channels/layer"
	"github.com/infigaming-com/go-channels/transport/websocket"
)

func startChat(t *testing.T, layers layer.Config) string {
	t.Helper()
	manager := layer.NewManager(zap.NewNop(), layers)
	t.Cleanup(func() { _ = manager.Close(context.Background()) })

	endpoint, err := newChatEndpoint(zap.NewNop(), manager, config.Default().Chat, nil)
	require.NoError(t, err)

	server := httptest.NewServer(websocket.Handler(endpoint, websocket.WithLogger(zap.NewNop())))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func join(t *testing.T, url string) *gws.Conn {
	t.Helper()
	conn, _, err := gws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *gws.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func TestChat(t *testing.T) {
	mr := miniredis.RunT(t)
	backends := map[string]layer.Config{
		"inmem": {layer.DefaultAlias: {Backend: "inmem"}},
		"redis": {layer.DefaultAlias: {Backend: "redis", Config: map[string]any{"addr": mr.Addr()}}},
	}
	for name, layers := range backends {
		t.Run(name, func(t *testing.T) {
			url := startChat(t, layers)
			alice, bob := join(t, url), join(t, url)
			// Both have to be in the room before anyone speaks.
			time.Sleep(100 * time.Millisecond)

			require.NoError(t, alice.WriteMessage(gws.TextMessage, []byte("hello room")))
			assert.Equal(t, "hello room", readText(t, alice))
			assert.Equal(t, "hello room", readText(t, bob))

			require.NoError(t, bob.WriteMessage(gws.BinaryMessage, []byte("bytes too")))
			assert.Equal(t, "bytes too", readText(t, alice))
			assert.Equal(t, "bytes too", readText(t, bob))
		})
	}
}

func TestChat_WithoutChannelLayer(t *testing.T) {
	url := startChat(t, layer.Config{})
	conn := join(t, url)

	require.NoError(t, conn.WriteMessage(gws.TextMessage, []byte("anyone?")))
	assert.Equal(t, "anyone?", readText(t, conn))
}
