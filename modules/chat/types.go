package chat

import (
	"encoding/json"
	"time"
)

// Server-to-client event names.
const (
	EventUsersOnline      = "users_online"
	EventSystem           = "system"
	EventChatMessage      = "chat_message"
	EventPrivateMessage   = "private_message"
	EventTyping           = "typing"
	EventMessageRead      = "message_read"
	EventFileMessage      = "fileMessage"
	EventIncomingCall     = "incoming_call"
	EventCallAnswered     = "call_answered"
	EventCallRejected     = "call_rejected"
	EventCallEnded        = "call_ended"
	EventIceCandidate     = "ice_candidate"
	EventRoomCallIncoming = "room_call_incoming"
	EventRoomCallJoined   = "room_call_joined"
	EventRoomCallSignal   = "room_call_signal"
	EventRoomCallLeft     = "room_call_left"
)

// Reject reasons generated by the server.
const (
	ReasonRejected = "rejected"
	ReasonBusy     = "busy"
	ReasonNoAnswer = "no_answer"
)

// SystemNotice is a human-readable announcement.
type SystemNotice struct {
	Message   string    `json:"message"`
	Room      string    `json:"room,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TypingPayload relays a typing indicator.
type TypingPayload struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// ReadReceiptPayload announces the readers of a message.
type ReadReceiptPayload struct {
	MessageID uint64   `json:"messageId"`
	ReadBy    []string `json:"readBy"`
}

// FileMessagePayload announces a file shared into a room.
type FileMessagePayload struct {
	ID        uint64    `json:"id"`
	Username  string    `json:"username"`
	URL       string    `json:"url"`
	Original  string    `json:"original"`
	Size      int64     `json:"size"`
	Timestamp time.Time `json:"timestamp"`
	Room      string    `json:"room"`
}

// IncomingCallPayload rings the callee.
type IncomingCallPayload struct {
	From    string          `json:"from"`
	Offer   json.RawMessage `json:"offer,omitempty"`
	IsVideo bool            `json:"isVideo"`
}

// CallAnsweredPayload carries the callee's answer to the caller.
type CallAnsweredPayload struct {
	From   string          `json:"from"`
	Answer json.RawMessage `json:"answer,omitempty"`
}

// CallRejectedPayload tells a peer the call was refused.
type CallRejectedPayload struct {
	From   string `json:"from"`
	Reason string `json:"reason"`
}

// CallEndedPayload tells a peer the call is over.
type CallEndedPayload struct {
	From string `json:"from"`
}

// IceCandidatePayload relays a network candidate.
type IceCandidatePayload struct {
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// RoomCallIncomingPayload announces a group call in a room.
type RoomCallIncomingPayload struct {
	Room    string `json:"room"`
	From    string `json:"from"`
	IsVideo bool   `json:"isVideo"`
}

// RoomCallMemberPayload announces a participant joining or leaving.
type RoomCallMemberPayload struct {
	Room string `json:"room"`
	User string `json:"user"`
}

// RoomCallSignalPayload relays mesh negotiation between two participants.
type RoomCallSignalPayload struct {
	Room string          `json:"room"`
	From string          `json:"from"`
	To   string          `json:"to"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ClaimResult is returned by a successful username claim.
type ClaimResult struct {
	Username    string   `json:"username"`
	Previous    string   `json:"-"`
	Rooms       []string `json:"rooms"`
	UsersOnline []string `json:"usersOnline"`
}
