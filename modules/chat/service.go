package chat

import (
	"context"
	"encoding/json"
	"time"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
)

// Options tunes the coordinator.
type Options struct {
	DefaultRoom     string
	HistoryLimit    int
	CallTimeout     time.Duration
	PurgeEmptyRooms bool
	OfflineInbox    bool

	// AfterFunc and Now replace the clock in tests.
	AfterFunc AfterFunc
	Now       func() time.Time
}

func (o *Options) applyDefaults() {
	if o.DefaultRoom == "" {
		o.DefaultRoom = "general"
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = 50
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Service is the chat coordinator. The transport addresses it by connection
// id only; usernames are resolved through the registry.
type Service struct {
	registry  *Registry
	rooms     *RoomDirectory
	messenger *Messenger
	calls     *CallRouter
	groups    *GroupCalls
	emitter   Emitter
	logger    types.Logger
	opts      Options
}

// NewService wires the coordinator subsystems together.
func NewService(presence domain.PresenceStore, store domain.MessageStore, emitter Emitter, pub Publisher, logger types.Logger, opts Options) *Service {
	opts.applyDefaults()
	if pub == nil {
		pub = nopPublisher{}
	}

	registry := NewRegistry(presence, emitter, pub, logger, opts.DefaultRoom)
	registry.now = opts.Now
	rooms := NewRoomDirectory(store, emitter, pub, logger, opts.HistoryLimit, opts.PurgeEmptyRooms)
	rooms.now = opts.Now
	messenger := NewMessenger(store, registry, rooms, emitter, logger, opts.OfflineInbox)
	messenger.now = opts.Now

	return &Service{
		registry:  registry,
		rooms:     rooms,
		messenger: messenger,
		calls:     NewCallRouter(registry, emitter, pub, logger, opts.CallTimeout, opts.AfterFunc, opts.Now),
		groups:    NewGroupCalls(rooms, registry, emitter, logger),
		emitter:   emitter,
		logger:    logger,
		opts:      opts,
	}
}

// Start ensures the default room exists.
func (s *Service) Start(ctx context.Context) error {
	return s.rooms.Ensure(ctx, s.opts.DefaultRoom)
}

// Shutdown disarms pending call timers.
func (s *Service) Shutdown() {
	s.calls.Shutdown()
}

func (s *Service) identify(ctx context.Context, connID string) (string, error) {
	username, ok := s.registry.UsernameOf(ctx, connID)
	if !ok {
		return "", domain.ErrNotAuthenticated
	}
	return username, nil
}

// Connect greets a new connection with the current presence list.
func (s *Service) Connect(ctx context.Context, connID string) {
	s.logger.Debug("Connection opened", "connId", connID)
	s.emitter.Emit(connID, EventUsersOnline, s.registry.OnlineUsers(ctx))
}

// SetUsername claims username for connID and joins the default room. A
// connection switching names first ends the calls of its old identity.
func (s *Service) SetUsername(ctx context.Context, connID, username string) (ClaimResult, error) {
	res, err := s.registry.Claim(ctx, connID, username)
	if err != nil {
		return ClaimResult{}, err
	}
	if res.Previous != "" {
		s.calls.OnDisconnect(ctx, res.Previous)
		s.groups.OnDisconnect(ctx, res.Previous)
		s.rooms.Rename(connID, res.Username)
	}
	if _, err := s.rooms.Join(ctx, connID, res.Username, s.opts.DefaultRoom); err != nil {
		s.logger.Warn("Failed to join default room", "username", res.Username, "error", err)
	}
	return res, nil
}

// JoinRoom joins room and returns its recent history.
func (s *Service) JoinRoom(ctx context.Context, connID, room string) ([]domain.Message, error) {
	username, err := s.identify(ctx, connID)
	if err != nil {
		return nil, err
	}
	return s.rooms.Join(ctx, connID, username, room)
}

// LeaveRoom leaves room and any call running in it.
func (s *Service) LeaveRoom(ctx context.Context, connID, room string) error {
	username, err := s.identify(ctx, connID)
	if err != nil {
		return err
	}
	room, err = domain.NormalizeRoom(room)
	if err != nil {
		return err
	}
	s.groups.Leave(ctx, username, room)
	return s.rooms.Leave(ctx, connID, username, room)
}

// SendRoomMessage posts content to room.
func (s *Service) SendRoomMessage(ctx context.Context, connID, room, content string) (*domain.Message, error) {
	username, err := s.identify(ctx, connID)
	if err != nil {
		return nil, err
	}
	return s.messenger.PostRoomMessage(ctx, username, connID, room, content)
}

// SendDirectMessage posts content to the user named to.
func (s *Service) SendDirectMessage(ctx context.Context, connID, to, content string) (*domain.Message, bool, error) {
	username, err := s.identify(ctx, connID)
	if err != nil {
		return nil, false, err
	}
	return s.messenger.PostDirectMessage(ctx, username, connID, to, content)
}

// SendFile shares an already uploaded file into room.
func (s *Service) SendFile(ctx context.Context, connID, room string, att domain.FileAttachment) (*domain.Message, error) {
	username, err := s.identify(ctx, connID)
	if err != nil {
		return nil, err
	}
	return s.messenger.PostFileMessage(ctx, username, connID, room, att)
}

// ShareUpload announces a file uploaded over HTTP on behalf of username.
func (s *Service) ShareUpload(ctx context.Context, username, room string, att domain.FileAttachment) (*domain.Message, error) {
	username, err := domain.NormalizeUsername(username)
	if err != nil {
		return nil, err
	}
	return s.messenger.PostFileMessage(ctx, username, "", room, att)
}

// MarkRead records that the connection's user has read messageID.
func (s *Service) MarkRead(ctx context.Context, connID string, messageID uint64) error {
	username, err := s.identify(ctx, connID)
	if err != nil {
		return err
	}
	return s.messenger.MarkRead(ctx, username, messageID)
}

// Typing relays a typing indicator.
func (s *Service) Typing(ctx context.Context, connID, room string, isTyping bool) {
	if username, err := s.identify(ctx, connID); err == nil {
		s.messenger.Typing(username, connID, room, isTyping)
	}
}

// CallUser rings the user named to.
func (s *Service) CallUser(ctx context.Context, connID, to string, offer json.RawMessage, isVideo bool) {
	if username, err := s.identify(ctx, connID); err == nil {
		s.calls.Call(ctx, username, to, offer, isVideo)
	}
}

// AnswerCall accepts the ringing call from `to`.
func (s *Service) AnswerCall(ctx context.Context, connID, to string, answer json.RawMessage) {
	if username, err := s.identify(ctx, connID); err == nil {
		s.calls.Answer(ctx, username, to, answer)
	}
}

// RejectCall refuses the call with `to`.
func (s *Service) RejectCall(ctx context.Context, connID, to, reason string) {
	if username, err := s.identify(ctx, connID); err == nil {
		s.calls.Reject(ctx, username, to, reason)
	}
}

// EndCall hangs up the call with `to`.
func (s *Service) EndCall(ctx context.Context, connID, to string) {
	if username, err := s.identify(ctx, connID); err == nil {
		s.calls.End(ctx, username, to)
	}
}

// IceCandidate relays a network candidate to the call peer.
func (s *Service) IceCandidate(ctx context.Context, connID, to string, candidate json.RawMessage) {
	if username, err := s.identify(ctx, connID); err == nil {
		s.calls.IceCandidate(ctx, username, to, candidate)
	}
}

// RoomCallInvite announces a group call to the room.
func (s *Service) RoomCallInvite(ctx context.Context, connID, room string, isVideo bool) error {
	username, err := s.identify(ctx, connID)
	if err != nil {
		return err
	}
	return s.groups.Invite(ctx, username, connID, room, isVideo)
}

// RoomCallJoin joins the room's call and returns the existing participants.
func (s *Service) RoomCallJoin(ctx context.Context, connID, room string) ([]string, error) {
	username, err := s.identify(ctx, connID)
	if err != nil {
		return nil, err
	}
	return s.groups.Join(ctx, username, connID, room)
}

// RoomCallSignal relays mesh negotiation to another participant.
func (s *Service) RoomCallSignal(ctx context.Context, connID, room, to, typ string, data json.RawMessage) {
	username, err := s.identify(ctx, connID)
	if err != nil {
		return
	}
	room, err = domain.NormalizeRoom(room)
	if err != nil {
		return
	}
	s.groups.Signal(ctx, username, room, to, typ, data)
}

// RoomCallLeave leaves the room's call.
func (s *Service) RoomCallLeave(ctx context.Context, connID, room string) error {
	username, err := s.identify(ctx, connID)
	if err != nil {
		return err
	}
	room, err = domain.NormalizeRoom(room)
	if err != nil {
		return err
	}
	s.groups.Leave(ctx, username, room)
	return nil
}

// Disconnect releases everything held by connID. Every step is idempotent,
// so a repeated disconnect is harmless.
func (s *Service) Disconnect(ctx context.Context, connID string) {
	username, ok := s.registry.UsernameOf(ctx, connID)
	if ok {
		s.calls.OnDisconnect(ctx, username)
		s.groups.OnDisconnect(ctx, username)
	}
	s.rooms.OnDisconnect(ctx, connID, username)
	s.registry.Release(ctx, connID)
	s.logger.Debug("Connection closed", "connId", connID, "username", username)
}

// OnlineUsers lists online usernames in claim order.
func (s *Service) OnlineUsers(ctx context.Context) []string {
	return s.registry.OnlineUsers(ctx)
}

// Rooms lists live rooms with member counts.
func (s *Service) Rooms() []domain.Room {
	return s.rooms.List()
}

// CallState returns the 1:1 call state of username.
func (s *Service) CallState(username string) CallState {
	return s.calls.State(username)
}

// RoomCallParticipants returns the participants of the room's call.
func (s *Service) RoomCallParticipants(room string) []string {
	return s.groups.Participants(room)
}

// Stats summarises coordinator state for health reporting.
func (s *Service) Stats(ctx context.Context) map[string]any {
	return map[string]any{
		"users_online": len(s.registry.OnlineUsers(ctx)),
		"rooms":        len(s.rooms.List()),
		"calls":        s.calls.ActiveSessions(),
		"room_calls":   s.groups.ActiveCalls(),
	}
}
