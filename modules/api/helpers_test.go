package api

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/example/socketchat/config"
	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/modules/broadcast"
	"github.com/example/socketchat/modules/chat"
	"github.com/example/socketchat/modules/presence"
	"github.com/example/socketchat/modules/store"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

// mockLogger implements types.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(msg string, args ...any)          {}
func (m *mockLogger) Info(msg string, args ...any)           {}
func (m *mockLogger) Warn(msg string, args ...any)           {}
func (m *mockLogger) Error(msg string, args ...any)          {}
func (m *mockLogger) With(args ...any) types.Logger          { return m }
func (m *mockLogger) WithError(err error) types.Logger       { return m }
func (m *mockLogger) WithModule(module string) types.Logger { return m }

type emitted struct {
	conn    string
	event   string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
}

func (e *recordingEmitter) Emit(connID, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{conn: connID, event: event, payload: payload})
}

func (e *recordingEmitter) EmitAll(event string, payload any) {
	e.Emit("*", event, payload)
}

func (e *recordingEmitter) payloads(conn, event string) []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []any
	for _, ev := range e.events {
		if ev.conn == conn && ev.event == event {
			out = append(out, ev.payload)
		}
	}
	return out
}

type fakeHistory struct {
	messages []domain.Message
	users    map[string]*domain.User
	calls    []domain.CallRecord
	err      error

	lastRoom  string
	lastPair  [2]string
	lastLimit int
}

func (h *fakeHistory) RoomHistory(_ context.Context, room string, limit int) ([]domain.Message, error) {
	h.lastRoom, h.lastLimit = room, limit
	return h.messages, h.err
}

func (h *fakeHistory) DirectHistory(_ context.Context, a, b string, limit int) ([]domain.Message, error) {
	h.lastPair, h.lastLimit = [2]string{a, b}, limit
	return h.messages, h.err
}

func (h *fakeHistory) User(_ context.Context, username string) (*domain.User, error) {
	if h.err != nil {
		return nil, h.err
	}
	if u, ok := h.users[username]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (h *fakeHistory) Calls(_ context.Context, _ string, limit int) ([]domain.CallRecord, error) {
	h.lastLimit = limit
	return h.calls, h.err
}

var _ store.HistoryPort = (*fakeHistory)(nil)

type testEnv struct {
	module  *APIModule
	app     *fiber.App
	emitter *recordingEmitter
	history *fakeHistory
	svc     *chat.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	emitter := &recordingEmitter{}
	svc := chat.NewService(presence.NewMemoryStore(), store.NewMemoryStore(100), emitter, nil, &mockLogger{}, chat.Options{})
	require.NoError(t, svc.Start(context.Background()))

	history := &fakeHistory{users: map[string]*domain.User{}}
	m := NewModule(config.Config{
		Port:               "0",
		CORSAllowedOrigins: "*",
		Upload:             config.UploadConfig{Dir: t.TempDir(), MaxSizeMB: 1},
		Limits:             config.RateLimitConfig{PerSecond: 10, Burst: 20},
	})
	m.hub = broadcast.NewHub()
	m.history = history
	m.chat = svc
	m.newUploadID = func() string { return "V1StGXR8_Z5jdHi6B-myT" }

	return &testEnv{module: m, app: m.newApp(), emitter: emitter, history: history, svc: svc}
}

// send dispatches one client event and returns its ack payload.
func (e *testEnv) send(t *testing.T, connID, event string, payload any) map[string]any {
	t.Helper()
	frame := ClientFrame{Type: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		frame.Payload = data
	}
	return e.module.safeDispatch(context.Background(), connID, frame)
}
