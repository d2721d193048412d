package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/modules/broadcast"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// handleWebSocket handles WebSocket connections at /ws.
func (m *APIModule) handleWebSocket(c *websocket.Conn) {
	ctx := context.Background()
	connID := uuid.New().String()
	limiter := newRateLimiter(m.limits.Burst, m.limits.PerSecond)

	m.hub.Register(broadcast.NewClient(connID, c))
	defer func() {
		// The connection goes back to the pool when this handler returns, so
		// its writer must be gone before anything else is emitted.
		m.hub.Unregister(connID)
		m.chat.Disconnect(ctx, connID)
		log.Printf("[api] WebSocket client disconnected: %s", connID)
	}()

	log.Printf("[api] WebSocket client connected: %s", connID)
	m.hub.Emit(connID, "connected", ConnectedPayload{ConnID: connID})
	m.chat.Connect(ctx, connID)

	// Message loop
	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[api] Read error from %s: %v", connID, err)
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(msgBytes, &frame); err != nil {
			m.hub.Emit(connID, "error", ErrorPayload{Error: "invalid_frame", Message: "Invalid message format"})
			continue
		}

		var reply fiber.Map
		if limiter.allow() {
			reply = m.safeDispatch(ctx, connID, frame)
		} else {
			reply = fiber.Map{"ok": false, "error": "rate_limited", "message": "Rate limit exceeded, please slow down"}
		}
		if frame.Ack != nil && reply != nil {
			m.hub.Send(connID, AckFrame{Type: "ack", Ack: *frame.Ack, Payload: reply})
		}
	}
}

// safeDispatch runs dispatch, converting a handler panic into an internal
// error reply so the connection survives.
func (m *APIModule) safeDispatch(ctx context.Context, connID string, frame ClientFrame) (reply fiber.Map) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[api] Panic handling %s from %s: %v", frame.Type, connID, r)
			reply = fiber.Map{"ok": false, "error": "internal", "message": "internal error"}
		}
	}()
	return m.dispatch(ctx, connID, frame)
}

// dispatch routes one client frame to the coordinator. It returns the ack
// payload, or nil for fire-and-forget events.
func (m *APIModule) dispatch(ctx context.Context, connID string, frame ClientFrame) fiber.Map {
	switch frame.Type {
	case "set_username":
		username, err := decodeUsername(frame.Payload)
		if err != nil {
			return errorReply(err)
		}
		res, err := m.chat.SetUsername(ctx, connID, username)
		if err != nil {
			return errorReply(err)
		}
		return fiber.Map{"ok": true, "username": res.Username, "rooms": res.Rooms, "usersOnline": res.UsersOnline}

	case "join_room":
		var p roomPayload
		if err := decode(frame.Payload, &p); err != nil {
			return errorReply(err)
		}
		history, err := m.chat.JoinRoom(ctx, connID, p.Room)
		if err != nil {
			return errorReply(err)
		}
		return fiber.Map{"ok": true, "history": history}

	case "leave_room":
		var p roomPayload
		if err := decode(frame.Payload, &p); err != nil {
			return errorReply(err)
		}
		if err := m.chat.LeaveRoom(ctx, connID, p.Room); err != nil {
			return errorReply(err)
		}
		return fiber.Map{"ok": true}

	case "chat_message":
		var p chatMessagePayload
		if err := decode(frame.Payload, &p); err != nil {
			return errorReply(err)
		}
		msg, err := m.chat.SendRoomMessage(ctx, connID, p.Room, p.Content)
		if err != nil {
			return errorReply(err)
		}
		return fiber.Map{"ok": true, "id": msg.ID}

	case "private_message":
		var p privateMessagePayload
		if err := decode(frame.Payload, &p); err != nil {
			return errorReply(err)
		}
		msg, delivered, err := m.chat.SendDirectMessage(ctx, connID, p.To, p.Content)
		if err != nil {
			return errorReply(err)
		}
		return fiber.Map{"ok": true, "id": msg.ID, "delivered": delivered}

	case "file_message":
		var p fileMessagePayload
		if err := decode(frame.Payload, &p); err != nil {
			return errorReply(err)
		}
		msg, err := m.chat.SendFile(ctx, connID, p.Room, domain.FileAttachment{URL: p.URL, Original: p.Original, Size: p.Size})
		if err != nil {
			return errorReply(err)
		}
		return fiber.Map{"ok": true, "id": msg.ID}

	case "typing":
		var p typingPayload
		if decode(frame.Payload, &p) == nil {
			m.chat.Typing(ctx, connID, p.Room, p.IsTyping)
		}
		return nil

	case "message_read":
		var p messageReadPayload
		if decode(frame.Payload, &p) == nil {
			if err := m.chat.MarkRead(ctx, connID, p.MessageID); err != nil {
				log.Printf("[api] message_read from %s failed: %v", connID, err)
			}
		}
		return nil

	case "call_user":
		var p callUserPayload
		if decode(frame.Payload, &p) == nil {
			m.chat.CallUser(ctx, connID, p.To, p.Offer, p.IsVideo)
		}
		return nil

	case "answer_call":
		var p answerCallPayload
		if decode(frame.Payload, &p) == nil {
			m.chat.AnswerCall(ctx, connID, p.To, p.Answer)
		}
		return nil

	case "reject_call":
		var p rejectCallPayload
		if decode(frame.Payload, &p) == nil {
			m.chat.RejectCall(ctx, connID, p.To, p.Reason)
		}
		return nil

	case "end_call":
		var p peerPayload
		if decode(frame.Payload, &p) == nil {
			m.chat.EndCall(ctx, connID, p.To)
		}
		return nil

	case "ice_candidate":
		var p iceCandidatePayload
		if decode(frame.Payload, &p) == nil {
			m.chat.IceCandidate(ctx, connID, p.To, p.Candidate)
		}
		return nil

	case "room_call_invite":
		var p roomCallInvitePayload
		if err := decode(frame.Payload, &p); err != nil {
			return errorReply(err)
		}
		if err := m.chat.RoomCallInvite(ctx, connID, p.Room, p.IsVideo); err != nil {
			return errorReply(err)
		}
		return fiber.Map{"ok": true}

	case "room_call_join":
		var p roomPayload
		if err := decode(frame.Payload, &p); err != nil {
			return errorReply(err)
		}
		participants, err := m.chat.RoomCallJoin(ctx, connID, p.Room)
		if err != nil {
			return errorReply(err)
		}
		return fiber.Map{"ok": true, "participants": participants}

	case "room_call_signal":
		var p roomCallSignalPayload
		if decode(frame.Payload, &p) == nil {
			m.chat.RoomCallSignal(ctx, connID, p.Room, p.To, p.Type, p.Data)
		}
		return nil

	case "room_call_leave":
		var p roomPayload
		if err := decode(frame.Payload, &p); err != nil {
			return errorReply(err)
		}
		if err := m.chat.RoomCallLeave(ctx, connID, p.Room); err != nil {
			return errorReply(err)
		}
		return fiber.Map{"ok": true}

	case "get_users_online":
		return fiber.Map{"ok": true, "usersOnline": m.chat.OnlineUsers(ctx)}

	default:
		return fiber.Map{"ok": false, "error": "unknown_event", "message": "Unknown event type: " + frame.Type}
	}
}

// decode unmarshals an event payload. A missing payload decodes to the zero
// value and is left to the coordinator's validation.
func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: malformed payload", domain.ErrInvalidInput)
	}
	return nil
}

// decodeUsername accepts either a bare string or {"username": ...}.
func decodeUsername(payload json.RawMessage) (string, error) {
	var name string
	if err := json.Unmarshal(payload, &name); err == nil {
		return name, nil
	}
	var p usernamePayload
	if err := decode(payload, &p); err != nil {
		return "", err
	}
	return p.Username, nil
}

func errorReply(err error) fiber.Map {
	return fiber.Map{"ok": false, "error": domain.ErrorCode(err), "message": err.Error()}
}
