package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/example/socketchat/config"
	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModule_StartWithMemoryDriver(t *testing.T) {
	m := NewModule(config.StoreConfig{Driver: config.StoreMemory, MemoryHistoryCap: 10}, &mockLogger{})
	assert.Equal(t, "store", m.Name())
	assert.Nil(t, m.Backend())
	assert.False(t, m.Health(context.Background()).Healthy)

	require.NoError(t, m.Start(context.Background()))
	assert.NotNil(t, m.Backend())
	assert.True(t, m.Health(context.Background()).Healthy)
	assert.NoError(t, m.Stop(context.Background()))
}

func TestModule_StartWithSQLiteDriver(t *testing.T) {
	path := t.TempDir() + "/chat.db"
	m := NewModule(config.StoreConfig{Driver: config.StoreSQLite, Path: path}, &mockLogger{})

	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })

	status := m.Health(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, config.StoreSQLite, status.Details["driver"])

	_, ok := m.Backend().(*Repository)
	assert.True(t, ok)
}

func TestModule_StartRejectsBadDriver(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.StoreConfig
	}{
		{name: "unknown", cfg: config.StoreConfig{Driver: "oracle"}},
		{name: "mysql without dsn", cfg: config.StoreConfig{Driver: config.StoreMySQL}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewModule(tt.cfg, &mockLogger{})
			assert.Error(t, m.Start(context.Background()))
		})
	}
}

func TestModule_HistoryServices(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStore(1000)
	m := NewModuleWithBackend(backend, &mockLogger{})

	for i := 0; i < 250; i++ {
		require.NoError(t, backend.CreateMessage(ctx, roomMessage("bob", "general", fmt.Sprintf("m%d", i))))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, backend.CreateMessage(ctx, directMessage("bob", "alice", fmt.Sprintf("d%d", i))))
	}

	t.Run("room default limit", func(t *testing.T) {
		resp, err := m.roomHistory(ctx, RoomHistoryRequest{Room: "general"}, nil)
		require.NoError(t, err)
		assert.Len(t, resp.Messages, DefaultHistoryLimit)
		assert.Equal(t, "m249", resp.Messages[len(resp.Messages)-1].Content)
	})

	t.Run("room limit capped", func(t *testing.T) {
		resp, err := m.roomHistory(ctx, RoomHistoryRequest{Room: "general", Limit: 1000}, nil)
		require.NoError(t, err)
		assert.Len(t, resp.Messages, MaxRoomHistory)
	})

	t.Run("room required", func(t *testing.T) {
		_, err := m.roomHistory(ctx, RoomHistoryRequest{}, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown room is empty not nil", func(t *testing.T) {
		resp, err := m.roomHistory(ctx, RoomHistoryRequest{Room: "nowhere"}, nil)
		require.NoError(t, err)
		assert.NotNil(t, resp.Messages)
		assert.Empty(t, resp.Messages)
	})

	t.Run("dm", func(t *testing.T) {
		resp, err := m.dmHistory(ctx, DMHistoryRequest{A: "alice", B: "bob", Limit: 2}, nil)
		require.NoError(t, err)
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, "d1", resp.Messages[0].Content)
	})

	t.Run("dm requires both users", func(t *testing.T) {
		_, err := m.dmHistory(ctx, DMHistoryRequest{A: "alice"}, nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestModule_EventConsumers(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryStore(10)
	m := NewModuleWithBackend(backend, &mockLogger{})
	now := time.Now()

	require.NoError(t, m.handleUserOnline(ctx, events.UserOnlineEvent{Username: "alice", ConnID: "c1", Timestamp: now}, nil))
	require.NoError(t, m.handleRoomJoined(ctx, events.RoomJoinedEvent{Room: "general", Username: "alice", Timestamp: now}, nil))

	resp, err := m.userRecord(ctx, UserRequest{Username: "alice"}, nil)
	require.NoError(t, err)
	require.True(t, resp.Found)
	assert.True(t, resp.User.Online)
	assert.Equal(t, []string{"general"}, resp.User.Rooms)

	require.NoError(t, m.handleUserOffline(ctx, events.UserOfflineEvent{Username: "alice", Timestamp: now}, nil))
	resp, err = m.userRecord(ctx, UserRequest{Username: "alice"}, nil)
	require.NoError(t, err)
	assert.False(t, resp.User.Online)

	missing, err := m.userRecord(ctx, UserRequest{Username: "nobody"}, nil)
	require.NoError(t, err)
	assert.False(t, missing.Found)

	require.NoError(t, m.handleCallEnded(ctx, events.CallEndedEvent{
		CallID:    "01HCALL",
		Caller:    "alice",
		Callee:    "bob",
		Outcome:   string(domain.CallMissed),
		StartedAt: now.Add(-30 * time.Second),
		EndedAt:   now,
	}, nil))

	calls, err := m.callLog(ctx, CallLogRequest{Username: "bob"}, nil)
	require.NoError(t, err)
	require.Len(t, calls.Calls, 1)
	assert.Equal(t, domain.CallMissed, calls.Calls[0].Outcome)
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		limit, max, want int
	}{
		{0, 200, DefaultHistoryLimit},
		{-3, 200, DefaultHistoryLimit},
		{10, 200, 10},
		{201, 200, 200},
		{700, MaxDMHistory, MaxDMHistory},
	}
	for _, tt := range tests {
		if got := ClampLimit(tt.limit, tt.max); got != tt.want {
			t.Errorf("ClampLimit(%d, %d) = %d, want %d", tt.limit, tt.max, got, tt.want)
		}
	}
}
