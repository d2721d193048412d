package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/example/socketchat/config"
	"github.com/example/socketchat/modules/broadcast"
	"github.com/example/socketchat/modules/chat"
	"github.com/example/socketchat/modules/presence"
	"github.com/example/socketchat/modules/store"
	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wsFrame struct {
	Type    string          `json:"type"`
	Ack     uint64          `json:"ack"`
	Payload json.RawMessage `json:"payload"`
}

// startSocketServer serves the gateway on a loopback listener with the hub
// as the coordinator's emitter and returns the /ws URL.
func startSocketServer(t *testing.T) string {
	t.Helper()
	hub := broadcast.NewHub()
	svc := chat.NewService(presence.NewMemoryStore(), store.NewMemoryStore(100), hub, nil, &mockLogger{}, chat.Options{})
	require.NoError(t, svc.Start(context.Background()))

	m := NewModule(config.Config{
		CORSAllowedOrigins: "*",
		Upload:             config.UploadConfig{Dir: t.TempDir(), MaxSizeMB: 1},
		Limits:             config.RateLimitConfig{PerSecond: 1000, Burst: 1000},
	})
	m.hub = hub
	m.history = &fakeHistory{}
	m.chat = svc
	m.newUploadID = func() string { return "upload" }
	app := m.newApp()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
		svc.Shutdown()
	})

	return "ws://" + ln.Addr().String() + "/ws"
}

func dialSocket(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, event string, ack uint64, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(ClientFrame{Type: event, Ack: &ack, Payload: data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f wsFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

// readUntil skips frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(wsFrame) bool) wsFrame {
	t.Helper()
	for {
		if f := readFrame(t, conn); match(f) {
			return f
		}
	}
}

func ackOf(id uint64) func(wsFrame) bool {
	return func(f wsFrame) bool { return f.Type == "ack" && f.Ack == id }
}

func onlineList(t *testing.T, f wsFrame) []string {
	t.Helper()
	var names []string
	require.NoError(t, json.Unmarshal(f.Payload, &names))
	return names
}

func closeSocket(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}

func TestSocket_ConnectClaimAndClose(t *testing.T) {
	url := startSocketServer(t)

	watcherNames := []string{"watcher-0", "watcher-1", "watcher-2"}
	watchers := make([]*websocket.Conn, len(watcherNames))
	for i, name := range watcherNames {
		conn := dialSocket(t, url)
		t.Cleanup(func() { closeSocket(conn) })
		watchers[i] = conn

		assert.Equal(t, "connected", readFrame(t, conn).Type)
		writeFrame(t, conn, "set_username", 1, name)
		ack := readUntil(t, conn, ackOf(1))
		assert.Contains(t, string(ack.Payload), `"ok":true`)
	}

	for cycle := 0; cycle < 25; cycle++ {
		username := fmt.Sprintf("user-%d", cycle)
		conn := dialSocket(t, url)

		greeting := readFrame(t, conn)
		require.Equal(t, "connected", greeting.Type)
		var hello ConnectedPayload
		require.NoError(t, json.Unmarshal(greeting.Payload, &hello))
		assert.NotEmpty(t, hello.ConnID)

		writeFrame(t, conn, "set_username", 1, map[string]string{"username": username})
		ack := readUntil(t, conn, ackOf(1))
		var claim struct {
			OK          bool     `json:"ok"`
			Username    string   `json:"username"`
			Rooms       []string `json:"rooms"`
			UsersOnline []string `json:"usersOnline"`
		}
		require.NoError(t, json.Unmarshal(ack.Payload, &claim))
		require.True(t, claim.OK)
		assert.Equal(t, username, claim.Username)
		assert.Equal(t, []string{"general"}, claim.Rooms)
		assert.Contains(t, claim.UsersOnline, username)

		writeFrame(t, conn, "chat_message", 2, chatMessagePayload{Room: "general", Content: "hi"})
		assert.Contains(t, string(readUntil(t, conn, ackOf(2)).Payload), `"ok":true`)

		closeSocket(conn)

		for _, watcher := range watchers {
			readUntil(t, watcher, func(f wsFrame) bool {
				return f.Type == chat.EventUsersOnline && slices.Contains(onlineList(t, f), username)
			})
			left := readUntil(t, watcher, func(f wsFrame) bool {
				return f.Type == chat.EventUsersOnline && !slices.Contains(onlineList(t, f), username)
			})
			assert.Equal(t, watcherNames, onlineList(t, left))
		}
	}
}
