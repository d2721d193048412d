package chat

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/go-monolith/mono/pkg/types"
)

// Messenger persists messages and fans them out to their audience.
type Messenger struct {
	store        domain.MessageStore
	registry     *Registry
	rooms        *RoomDirectory
	emitter      Emitter
	logger       types.Logger
	offlineInbox bool
	now          func() time.Time
}

// NewMessenger creates a Messenger.
func NewMessenger(store domain.MessageStore, registry *Registry, rooms *RoomDirectory, emitter Emitter, logger types.Logger, offlineInbox bool) *Messenger {
	return &Messenger{
		store:        store,
		registry:     registry,
		rooms:        rooms,
		emitter:      emitter,
		logger:       logger,
		offlineInbox: offlineInbox,
		now:          time.Now,
	}
}

// PostRoomMessage stores a room message and broadcasts it to every member,
// the sender included.
func (m *Messenger) PostRoomMessage(ctx context.Context, sender, senderConn, room, content string) (*domain.Message, error) {
	room, err := domain.NormalizeRoom(room)
	if err != nil {
		return nil, err
	}
	content, err = domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if !m.rooms.IsMember(senderConn, room) {
		return nil, domain.ErrNotInRoom
	}

	msg := &domain.Message{
		Content:   content,
		Sender:    sender,
		Room:      room,
		CreatedAt: m.now(),
		ReadBy:    []string{},
	}
	if err := m.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	m.rooms.Broadcast(room, EventChatMessage, *msg)
	m.logger.Debug("Room message posted", "room", room, "sender", sender, "id", msg.ID)
	return msg, nil
}

// PostDirectMessage stores a direct message, delivers it to the recipient if
// online and echoes it to the sender. The bool reports live delivery.
func (m *Messenger) PostDirectMessage(ctx context.Context, sender, senderConn, to, content string) (*domain.Message, bool, error) {
	to, err := domain.NormalizeUsername(to)
	if err != nil {
		return nil, false, err
	}
	content, err = domain.NormalizeContent(content)
	if err != nil {
		return nil, false, err
	}

	targetConn, online := m.registry.Resolve(ctx, to)
	if !online && !m.offlineInbox {
		return nil, false, fmt.Errorf("%w: %s", domain.ErrTargetOffline, to)
	}

	msg := &domain.Message{
		Content:   content,
		Sender:    sender,
		To:        to,
		IsPrivate: true,
		CreatedAt: m.now(),
		ReadBy:    []string{},
	}
	if err := m.store.CreateMessage(ctx, msg); err != nil {
		return nil, false, fmt.Errorf("persist message: %w", err)
	}

	if online {
		m.emitter.Emit(targetConn, EventPrivateMessage, *msg)
	}
	if senderConn != "" && senderConn != targetConn {
		m.emitter.Emit(senderConn, EventPrivateMessage, *msg)
	}
	return msg, online, nil
}

// PostFileMessage stores a message carrying an attachment and announces it to
// the room. An empty senderConn skips the membership check, for uploads made
// outside a socket session.
func (m *Messenger) PostFileMessage(ctx context.Context, sender, senderConn, room string, att domain.FileAttachment) (*domain.Message, error) {
	room, err := domain.NormalizeRoom(room)
	if err != nil {
		return nil, err
	}
	att.URL = strings.TrimSpace(att.URL)
	if att.URL == "" {
		return nil, fmt.Errorf("%w: file url cannot be empty", domain.ErrInvalidInput)
	}
	if att.Size < 0 {
		return nil, fmt.Errorf("%w: negative file size", domain.ErrInvalidInput)
	}
	if att.Original = strings.TrimSpace(att.Original); att.Original == "" {
		att.Original = path.Base(att.URL)
	}
	if senderConn != "" && !m.rooms.IsMember(senderConn, room) {
		return nil, domain.ErrNotInRoom
	}

	msg := &domain.Message{
		Content:    "[file] " + att.Original,
		Sender:     sender,
		Room:       room,
		CreatedAt:  m.now(),
		ReadBy:     []string{},
		Attachment: &att,
	}
	if err := m.store.CreateMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist file message: %w", err)
	}

	m.rooms.Broadcast(room, EventFileMessage, FileMessagePayload{
		ID:        msg.ID,
		Username:  sender,
		URL:       att.URL,
		Original:  att.Original,
		Size:      att.Size,
		Timestamp: msg.CreatedAt,
		Room:      room,
	})
	m.logger.Info("File shared", "room", room, "sender", sender, "file", att.Original)
	return msg, nil
}

// MarkRead records reader against the message. Readers are notified only the
// first time a given user reads it; unknown ids are ignored.
func (m *Messenger) MarkRead(ctx context.Context, reader string, messageID uint64) error {
	if messageID == 0 {
		return fmt.Errorf("%w: message id required", domain.ErrInvalidInput)
	}

	msg, changed, err := m.store.MarkRead(ctx, messageID, reader)
	if errors.Is(err, domain.ErrNotFound) {
		m.logger.Debug("Read receipt for unknown message", "id", messageID, "reader", reader)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if !changed {
		return nil
	}

	receipt := ReadReceiptPayload{MessageID: msg.ID, ReadBy: msg.ReadBy}
	if !msg.IsPrivate {
		m.rooms.Broadcast(msg.Room, EventMessageRead, receipt)
		return nil
	}

	seen := make(map[string]bool, 2)
	for _, user := range []string{msg.Sender, msg.To} {
		conn, ok := m.registry.Resolve(ctx, user)
		if !ok || seen[conn] {
			continue
		}
		seen[conn] = true
		m.emitter.Emit(conn, EventMessageRead, receipt)
	}
	return nil
}

// Typing relays a typing indicator to the other members of the room.
// Non-members are ignored.
func (m *Messenger) Typing(username, connID, room string, isTyping bool) {
	room, err := domain.NormalizeRoom(room)
	if err != nil || !m.rooms.IsMember(connID, room) {
		return
	}
	m.rooms.BroadcastExcept(room, connID, EventTyping, TypingPayload{
		Room:     room,
		Username: username,
		IsTyping: isTyping,
	})
}
