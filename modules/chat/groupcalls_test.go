package chat

import (
	"context"
	"encoding/json"
	"testing"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupCalls_MeshScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.login(t, "c1", "alice")
	f.login(t, "c2", "bob")

	require.NoError(t, f.svc.RoomCallInvite(ctx, "c1", "general", true))
	assert.Equal(t, []any{RoomCallIncomingPayload{Room: "general", From: "alice", IsVideo: true}},
		f.emitter.payloads("c2", EventRoomCallIncoming))
	assert.Empty(t, f.emitter.payloads("c1", EventRoomCallIncoming))
	assert.Empty(t, f.svc.RoomCallParticipants("general"), "an invite admits nobody")

	participants, err := f.svc.RoomCallJoin(ctx, "c1", "general")
	require.NoError(t, err)
	assert.Equal(t, []string{}, participants)

	participants, err = f.svc.RoomCallJoin(ctx, "c2", "general")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, participants)
	assert.Equal(t, []any{RoomCallMemberPayload{Room: "general", User: "bob"}},
		f.emitter.payloads("c1", EventRoomCallJoined))

	offer := json.RawMessage(`{"sdp":"o"}`)
	f.svc.RoomCallSignal(ctx, "c1", "general", "bob", "offer", offer)
	answer := json.RawMessage(`{"sdp":"a"}`)
	f.svc.RoomCallSignal(ctx, "c2", "general", "alice", "answer", answer)

	assert.Equal(t, []any{RoomCallSignalPayload{Room: "general", From: "alice", To: "bob", Type: "offer", Data: offer}},
		f.emitter.payloads("c2", EventRoomCallSignal))
	assert.Equal(t, []any{RoomCallSignalPayload{Room: "general", From: "bob", To: "alice", Type: "answer", Data: answer}},
		f.emitter.payloads("c1", EventRoomCallSignal))
	assert.Equal(t, []string{"alice", "bob"}, f.svc.RoomCallParticipants("general"))

	participants, err = f.svc.RoomCallJoin(ctx, "c2", "general")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, participants)
	assert.Len(t, f.emitter.payloads("c1", EventRoomCallJoined), 1, "joining twice notifies nobody")

	require.NoError(t, f.svc.RoomCallLeave(ctx, "c2", "general"))
	assert.Equal(t, []any{RoomCallMemberPayload{Room: "general", User: "bob"}},
		f.emitter.payloads("c1", EventRoomCallLeft))

	require.NoError(t, f.svc.RoomCallLeave(ctx, "c1", "general"))
	assert.Empty(t, f.svc.RoomCallParticipants("general"))
	assert.Equal(t, 0, f.svc.groups.ActiveCalls())
}

func TestGroupCalls_SignalDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.login(t, "c1", "alice")
	f.login(t, "c2", "bob")
	f.login(t, "c3", "carol")

	_, err := f.svc.RoomCallJoin(ctx, "c1", "general")
	require.NoError(t, err)
	_, err = f.svc.RoomCallJoin(ctx, "c2", "general")
	require.NoError(t, err)

	tests := []struct {
		name string
		conn string
		to   string
		typ  string
	}{
		{name: "sender not a participant", conn: "c3", to: "alice", typ: "offer"},
		{name: "target not a participant", conn: "c1", to: "carol", typ: "offer"},
		{name: "unknown type", conn: "c1", to: "bob", typ: "renegotiate"},
		{name: "to self", conn: "c1", to: "alice", typ: "candidate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.svc.RoomCallSignal(ctx, tt.conn, "general", tt.to, tt.typ, nil)
		})
	}

	for _, conn := range []string{"c1", "c2", "c3"} {
		assert.Empty(t, f.emitter.payloads(conn, EventRoomCallSignal), conn)
	}
}

func TestGroupCalls_RequiresRoomMembership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.login(t, "c1", "alice")

	_, err := f.svc.RoomCallJoin(ctx, "c1", "dev")
	assert.ErrorIs(t, err, domain.ErrNotInRoom)
	assert.ErrorIs(t, f.svc.RoomCallInvite(ctx, "c1", "dev", false), domain.ErrNotInRoom)
	_, err = f.svc.RoomCallJoin(ctx, "c1", " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestGroupCalls_LeaveRoomLeavesCall(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.login(t, "c1", "alice")
	f.login(t, "c2", "bob")

	for _, conn := range []string{"c1", "c2"} {
		_, err := f.svc.JoinRoom(ctx, conn, "dev")
		require.NoError(t, err)
		_, err = f.svc.RoomCallJoin(ctx, conn, "dev")
		require.NoError(t, err)
	}

	require.NoError(t, f.svc.LeaveRoom(ctx, "c2", "dev"))
	assert.Equal(t, []string{"alice"}, f.svc.RoomCallParticipants("dev"))
	assert.Equal(t, []any{RoomCallMemberPayload{Room: "dev", User: "bob"}},
		f.emitter.payloads("c1", EventRoomCallLeft))
}
