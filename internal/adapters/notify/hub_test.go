package notify_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alejandrodnm/paperbot/internal/adapters/notify"
	"github.com/alejandrodnm/paperbot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsUpdates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := notify.NewHub()
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dialHub(t, srv)
	b := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)

	hub.Notify(domain.BotUpdate{PassID: "p1", Symbol: "BTCUSDT", Action: domain.ActionBuy, Confidence: 0.8})

	for _, conn := range []*websocket.Conn{a, b} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var got domain.BotUpdate
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, "BTCUSDT", got.Symbol)
		assert.Equal(t, domain.ActionBuy, got.Action)
		assert.Equal(t, "p1", got.PassID)
	}
}

func TestHub_UpdateJSONShape(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := notify.NewHub()
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	hub.Notify(domain.BotUpdate{Symbol: "ETHUSDT", Action: domain.ActionError, Reason: "down"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"action":"error"`)
	assert.Contains(t, string(raw), `"stop_loss":0`)
}

func TestHub_ClientDisconnectRemoved(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := notify.NewHub()
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_NotifyWithoutClientsDoesNotBlock(t *testing.T) {
	hub := notify.NewHub()
	// sin Run: la cola se llena y los eventos se descartan
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.Notify(domain.BotUpdate{Symbol: "X"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked")
	}
}
