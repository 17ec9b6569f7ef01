package server

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JensRahnfeld/streamlit-overlay/internal/config"
	"github.com/JensRahnfeld/streamlit-overlay/internal/types"
)

func TestHandleConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 9999
	cfg.Alpha = 0.3
	srv := New(cfg, nil, nil)

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	require.Equal(t, 200, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 9999.0, payload["port"])
	assert.Equal(t, 0.3, payload["alpha"])
	assert.Equal(t, "config", payload["type"])
}

func TestRenderReturnsDefaultUntilValueReported(t *testing.T) {
	srv := New(config.Default(), nil, nil)
	ctx := context.Background()

	args := types.ComponentArgs{Key: "viewer", NumFrames: 2, Default: 0}
	value, err := srv.Render(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, 0, value)

	assert.True(t, srv.handleClientMessage(clientMessage{Type: "value", Key: "viewer", Value: 7}))
	assert.False(t, srv.handleClientMessage(clientMessage{Type: "value", Key: "missing", Value: 1}))

	value, err = srv.Render(ctx, args)
	require.NoError(t, err)
	assert.Equal(t, 7, value)

	got, ok := srv.Value("viewer")
	assert.True(t, ok)
	assert.Equal(t, 7, got)

	states := srv.Components()
	require.Len(t, states, 1)
	assert.Equal(t, uint64(2), states[0].Renders)
	assert.Equal(t, 2, states[0].NumFrames)
}

func TestRenderAssignsKey(t *testing.T) {
	srv := New(config.Default(), nil, nil)

	_, err := srv.Render(context.Background(), types.ComponentArgs{})
	require.NoError(t, err)
	_, err = srv.Render(context.Background(), types.ComponentArgs{})
	require.NoError(t, err)

	states := srv.Components()
	require.Len(t, states, 2)
	assert.NotEmpty(t, states[0].Key)
	assert.NotEqual(t, states[0].Key, states[1].Key)
}

func TestRenderCancelledContext(t *testing.T) {
	srv := New(config.Default(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := srv.Render(ctx, types.ComponentArgs{Key: "k"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, srv.Components())
}

func TestHandleStatusIncludesComponents(t *testing.T) {
	srv := New(config.Default(), nil, func() map[string]any {
		return map[string]any{"stream": "idle"}
	})
	_, err := srv.Render(context.Background(), types.ComponentArgs{Key: "a"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest("GET", "/status", nil))

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "idle", payload["stream"])
	metrics := payload["metrics"].(map[string]any)
	assert.Equal(t, 1.0, metrics["renders_total"])
	components := payload["components"].([]any)
	require.Len(t, components, 1)
	assert.Equal(t, "a", components[0].(map[string]any)["key"])
}

func TestWebsocketRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := New(config.Default(), nil, nil)
	go srv.broadcast(ctx)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	_, err := srv.Render(ctx, types.ComponentArgs{Key: "early", Images: []byte{0, 0, 0, 1, 9}, NumFrames: 1})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.broadcasts.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, kind)
	assert.Contains(t, string(data), `"type":"config"`)

	kind, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, kind)
	var msg types.RenderMessage
	require.NoError(t, cbor.Unmarshal(data, &msg))
	assert.Equal(t, "render", msg.Type)
	assert.Equal(t, "early", msg.Args.Key)
	assert.Equal(t, []byte{0, 0, 0, 1, 9}, msg.Args.Images)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "value", "key": "early", "value": 4}))
	require.Eventually(t, func() bool {
		v, ok := srv.Value("early")
		return ok && v == 4
	}, 5*time.Second, 10*time.Millisecond)

	_, err = srv.Render(ctx, types.ComponentArgs{Key: "late"})
	require.NoError(t, err)
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, cbor.Unmarshal(data, &msg))
	assert.Equal(t, "late", msg.Args.Key)
}
