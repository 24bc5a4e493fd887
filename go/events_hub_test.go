package tablesideserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Apurer/tableside/internal/events"
	"github.com/Apurer/tableside/internal/facade"
)

func dialEvents(t *testing.T, server *httptest.Server, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/events"
	if token != "" {
		url += "?token=" + token
	}
	return websocket.DefaultDialer.Dial(url, nil)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestEventHub_StreamsTableAndOrderChanges(t *testing.T) {
	app := newTestApp(t, "")
	server := httptest.NewServer(app.router)
	defer server.Close()

	conn, _, err := dialEvents(t, server, "")
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return app.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, ok, err := app.controller.CreateTable(context.Background(), 4, "Terraza")
	require.NoError(t, err)
	require.True(t, ok)

	msg := readMessage(t, conn)
	assert.Equal(t, string(events.ChannelTableChanged), msg.Event)
	assert.NotEmpty(t, msg.ID)
	data, err := json.Marshal(msg.Data)
	require.NoError(t, err)
	var table facade.TableView
	require.NoError(t, json.Unmarshal(data, &table))
	assert.Equal(t, "T01", table.ID)

	assert.Equal(t, string(events.ChannelTableListChanged), readMessage(t, conn).Event)

	_, _, err = app.controller.OpenOrder(context.Background(), "T01", "u1")
	require.NoError(t, err)
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[readMessage(t, conn).Event] = true
	}
	assert.True(t, seen[string(events.ChannelOrderChanged)])
	assert.True(t, seen[string(events.ChannelTableChanged)])
}

func TestEventHub_RequiresTokenWhenAuthEnabled(t *testing.T) {
	app := newTestApp(t, "s3cret")
	server := httptest.NewServer(app.router)
	defer server.Close()

	_, resp, err := dialEvents(t, server, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := app.auth.Issue("u1", "manager")
	require.NoError(t, err)
	conn, _, err := dialEvents(t, server, token)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return app.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestEventHub_CloseDisconnectsClients(t *testing.T) {
	app := newTestApp(t, "")
	server := httptest.NewServer(app.router)
	defer server.Close()

	conn, _, err := dialEvents(t, server, "")
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return app.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	app.hub.Close()
	assert.Zero(t, app.hub.ClientCount())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
