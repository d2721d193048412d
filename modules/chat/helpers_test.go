package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/example/socketchat/events"
	"github.com/example/socketchat/modules/presence"
	"github.com/example/socketchat/modules/store"
	"github.com/go-monolith/mono/pkg/types"
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

// broadcastConn is the pseudo connection id recorded for EmitAll.
const broadcastConn = "*"

type frame struct {
	conn    string
	event   string
	payload any
}

type recordingEmitter struct {
	mu     sync.Mutex
	frames []frame
}

func (e *recordingEmitter) Emit(connID, event string, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = append(e.frames, frame{conn: connID, event: event, payload: payload})
}

func (e *recordingEmitter) EmitAll(event string, payload any) {
	e.Emit(broadcastConn, event, payload)
}

// payloads returns what conn received for event, oldest first.
func (e *recordingEmitter) payloads(conn, event string) []any {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []any
	for _, f := range e.frames {
		if f.conn == conn && f.event == event {
			out = append(out, f.payload)
		}
	}
	return out
}

// received lists the events delivered to conn, oldest first.
func (e *recordingEmitter) received(conn string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, f := range e.frames {
		if f.conn == conn {
			out = append(out, f.event)
		}
	}
	return out
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frames = nil
}

type recordingPublisher struct {
	mu         sync.Mutex
	online     []events.UserOnlineEvent
	offline    []events.UserOfflineEvent
	joined     []events.RoomJoinedEvent
	deleted    []events.RoomDeletedEvent
	callsEnded []events.CallEndedEvent
}

func (p *recordingPublisher) UserOnline(e events.UserOnlineEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = append(p.online, e)
}

func (p *recordingPublisher) UserOffline(e events.UserOfflineEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offline = append(p.offline, e)
}

func (p *recordingPublisher) RoomJoined(e events.RoomJoinedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joined = append(p.joined, e)
}

func (p *recordingPublisher) RoomDeleted(e events.RoomDeletedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, e)
}

func (p *recordingPublisher) CallEnded(e events.CallEndedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callsEnded = append(p.callsEnded, e)
}

func (p *recordingPublisher) endedCalls() []events.CallEndedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.CallEndedEvent(nil), p.callsEnded...)
}

// manualTimer fires only when the test says so.
type manualTimer struct {
	mu      sync.Mutex
	d       time.Duration
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

// fire runs the callback even if stopped, the way a timer that already
// fired races with Stop.
func (t *manualTimer) fire() {
	t.f()
}

func (t *manualTimer) isStopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{d: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) last() *manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return nil
	}
	return c.timers[len(c.timers)-1]
}

type fixture struct {
	svc      *Service
	emitter  *recordingEmitter
	pub      *recordingPublisher
	clock    *manualClock
	messages *store.MemoryStore
}

func newFixture(t *testing.T, mutate func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		emitter:  &recordingEmitter{},
		pub:      &recordingPublisher{},
		clock:    &manualClock{},
		messages: store.NewMemoryStore(500),
	}
	opts := Options{
		DefaultRoom:     "general",
		HistoryLimit:    50,
		CallTimeout:     30 * time.Second,
		PurgeEmptyRooms: true,
		AfterFunc:       f.clock.AfterFunc,
	}
	if mutate != nil {
		mutate(&opts)
	}
	f.svc = NewService(presence.NewMemoryStore(), f.messages, f.emitter, f.pub, &mockLogger{}, opts)
	require.NoError(t, f.svc.Start(context.Background()))
	return f
}

// login connects connID and claims username.
func (f *fixture) login(t *testing.T, connID, username string) ClaimResult {
	t.Helper()
	ctx := context.Background()
	f.svc.Connect(ctx, connID)
	res, err := f.svc.SetUsername(ctx, connID, username)
	require.NoError(t, err)
	return res
}
