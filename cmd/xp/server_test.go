package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Comcast/experiences/sio"
	"github.com/Comcast/experiences/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	bs, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(bs)
}

func TestServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := sio.NewWebSocketHub(nil)
	require.NoError(t, hub.Start(ctx))
	defer hub.Stop(ctx)

	var broken atomic.Bool
	page := func(w io.Writer) error {
		if broken.Load() {
			return errors.New("no document yet")
		}
		_, err := io.WriteString(w, "<html>doc</html>")
		return err
	}

	metrics := store.NewMetrics("xptest")
	metrics.CacheHits.Inc()

	server := httptest.NewServer(NewServer(hub, page, metrics.Registry(), nil))
	defer server.Close()

	status, body := get(t, server.URL+"/")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "/ws")

	status, body = get(t, server.URL+"/page")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "<html>doc</html>", body)

	broken.Store(true)
	status, _ = get(t, server.URL+"/page")
	require.Equal(t, http.StatusServiceUnavailable, status)

	status, body = get(t, server.URL+"/metrics")
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, body, "xptest_store_cache_hits_total 1")

	status, _ = get(t, server.URL+"/nope")
	require.Equal(t, http.StatusNotFound, status)

	// The WebSocket goes through the router.
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return hub.Clients() == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, &sio.Render{Seq: 7, Screen: "s"}))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, bs, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(bs), `"seq":7`)

	cmds, err := hub.Commands(ctx)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"refresh":true}`)))
	select {
	case cmd := <-cmds:
		require.True(t, cmd.Refresh)
	case <-time.After(5 * time.Second):
		t.Fatal("no command")
	}
}
