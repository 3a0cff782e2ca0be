package notify

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/nftmarket/internal/events"
)

func readEvent(t *testing.T, conn *websocket.Conn) events.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var evt events.Envelope
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func TestHub_ReplayThenStream(t *testing.T) {
	ctx := context.Background()
	bus := NewBus(nil)
	hub := NewHub(bus)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	for i := uint64(1); i <= 3; i++ {
		_, err := bus.Publish(ctx, offered(i))
		require.NoError(t, err)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?since=1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, uint64(2), readEvent(t, conn).Seq)
	assert.Equal(t, uint64(3), readEvent(t, conn).Seq)

	_, err = bus.Publish(ctx, offered(4))
	require.NoError(t, err)
	evt := readEvent(t, conn)
	assert.Equal(t, uint64(4), evt.Seq)
	assert.Equal(t, uint64(4), evt.ItemID())

	assert.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHub_BadCursor(t *testing.T) {
	hub := NewHub(NewBus(nil))
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?since=abc"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
