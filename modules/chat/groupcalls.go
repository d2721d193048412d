package chat

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
)

// Signal types accepted on the mesh relay.
var signalTypes = []string{"offer", "answer", "candidate"}

// GroupCalls tracks mesh call participants per room, in join order.
type GroupCalls struct {
	mu    sync.Mutex
	calls map[string][]string

	rooms    *RoomDirectory
	registry *Registry
	emitter  Emitter
	logger   types.Logger
}

// NewGroupCalls creates an empty group call tracker.
func NewGroupCalls(rooms *RoomDirectory, registry *Registry, emitter Emitter, logger types.Logger) *GroupCalls {
	return &GroupCalls{
		calls:    make(map[string][]string),
		rooms:    rooms,
		registry: registry,
		emitter:  emitter,
		logger:   logger,
	}
}

// Invite announces a call to the other members of the room.
func (g *GroupCalls) Invite(ctx context.Context, from, fromConn, room string, isVideo bool) error {
	room, err := domain.NormalizeRoom(room)
	if err != nil {
		return err
	}
	if !g.rooms.IsMember(fromConn, room) {
		return domain.ErrNotInRoom
	}
	g.rooms.BroadcastExcept(room, fromConn, EventRoomCallIncoming, RoomCallIncomingPayload{
		Room:    room,
		From:    from,
		IsVideo: isVideo,
	})
	g.logger.Info("Room call invite", "room", room, "from", from, "video", isVideo)
	return nil
}

// Join adds user to the room's call and returns who was already in it.
// Joining twice returns the other participants without notifying anyone.
func (g *GroupCalls) Join(ctx context.Context, user, userConn, room string) ([]string, error) {
	room, err := domain.NormalizeRoom(room)
	if err != nil {
		return nil, err
	}
	if !g.rooms.IsMember(userConn, room) {
		return nil, domain.ErrNotInRoom
	}

	g.mu.Lock()
	participants := g.calls[room]
	if slices.Contains(participants, user) {
		existing := without(participants, user)
		g.mu.Unlock()
		return existing, nil
	}
	existing := slices.Clone(participants)
	if existing == nil {
		existing = []string{}
	}
	g.calls[room] = append(participants, user)
	g.mu.Unlock()

	g.notify(ctx, existing, EventRoomCallJoined, RoomCallMemberPayload{Room: room, User: user})
	g.logger.Info("Joined room call", "room", room, "user", user, "participants", len(existing)+1)
	return existing, nil
}

// Signal relays mesh negotiation between two current participants.
func (g *GroupCalls) Signal(ctx context.Context, from, room, to, typ string, data json.RawMessage) {
	if !slices.Contains(signalTypes, typ) {
		g.logger.Warn("Room call signal with unknown type dropped", "room", room, "from", from, "type", typ)
		return
	}

	g.mu.Lock()
	participants := g.calls[room]
	ok := from != to && slices.Contains(participants, from) && slices.Contains(participants, to)
	g.mu.Unlock()
	if !ok {
		g.logger.Warn("Room call signal between non-participants dropped", "room", room, "from", from, "to", to)
		return
	}

	g.notify(ctx, []string{to}, EventRoomCallSignal, RoomCallSignalPayload{
		Room: room,
		From: from,
		To:   to,
		Type: typ,
		Data: data,
	})
}

// Leave removes user from the room's call. Empty calls are discarded.
func (g *GroupCalls) Leave(ctx context.Context, user, room string) {
	g.mu.Lock()
	participants := g.calls[room]
	if !slices.Contains(participants, user) {
		g.mu.Unlock()
		return
	}
	remaining := without(participants, user)
	if len(remaining) == 0 {
		delete(g.calls, room)
	} else {
		g.calls[room] = remaining
	}
	g.mu.Unlock()

	g.notify(ctx, remaining, EventRoomCallLeft, RoomCallMemberPayload{Room: room, User: user})
	g.logger.Info("Left room call", "room", room, "user", user)
}

// OnDisconnect leaves every call user is part of.
func (g *GroupCalls) OnDisconnect(ctx context.Context, user string) {
	g.mu.Lock()
	var joined []string
	for room, participants := range g.calls {
		if slices.Contains(participants, user) {
			joined = append(joined, room)
		}
	}
	g.mu.Unlock()

	slices.Sort(joined)
	for _, room := range joined {
		g.Leave(ctx, user, room)
	}
}

// Participants returns the room's call participants in join order.
func (g *GroupCalls) Participants(room string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := slices.Clone(g.calls[room])
	if out == nil {
		return []string{}
	}
	return out
}

// ActiveCalls returns the number of rooms with a call in progress.
func (g *GroupCalls) ActiveCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *GroupCalls) notify(ctx context.Context, users []string, event string, payload any) {
	for _, user := range users {
		if conn, ok := g.registry.Resolve(ctx, user); ok {
			g.emitter.Emit(conn, event, payload)
		}
	}
}

func without(users []string, user string) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u != user {
			out = append(out, u)
		}
	}
	return out
}
