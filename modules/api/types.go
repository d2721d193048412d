package api

import (
	"encoding/json"

	domain "github.com/example/socketchat/domain/chat"
)

// ClientFrame is a frame received from a WebSocket client. Frames carrying
// an ack id are answered with an AckFrame.
type ClientFrame struct {
	Type    string          `json:"type"`
	Ack     *uint64         `json:"ack,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// AckFrame answers a ClientFrame.
type AckFrame struct {
	Type    string `json:"type"`
	Ack     uint64 `json:"ack"`
	Payload any    `json:"payload"`
}

// ConnectedPayload greets a new connection.
type ConnectedPayload struct {
	ConnID string `json:"connId"`
}

// ErrorPayload reports a frame that could not be processed.
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client event payloads.

type usernamePayload struct {
	Username string `json:"username"`
}

type roomPayload struct {
	Room string `json:"room"`
}

type chatMessagePayload struct {
	Room    string `json:"room"`
	Content string `json:"content"`
}

type privateMessagePayload struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

type fileMessagePayload struct {
	Room     string `json:"room"`
	URL      string `json:"url"`
	Original string `json:"original"`
	Size     int64  `json:"size"`
}

type typingPayload struct {
	Room     string `json:"room"`
	IsTyping bool   `json:"isTyping"`
}

type messageReadPayload struct {
	MessageID uint64 `json:"messageId"`
}

type callUserPayload struct {
	To      string          `json:"to"`
	Offer   json.RawMessage `json:"offer"`
	IsVideo bool            `json:"isVideo"`
}

type answerCallPayload struct {
	To     string          `json:"to"`
	Answer json.RawMessage `json:"answer"`
}

type rejectCallPayload struct {
	To     string `json:"to"`
	Reason string `json:"reason"`
}

type peerPayload struct {
	To string `json:"to"`
}

type iceCandidatePayload struct {
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}

type roomCallInvitePayload struct {
	Room    string `json:"room"`
	IsVideo bool   `json:"isVideo"`
}

type roomCallSignalPayload struct {
	Room string          `json:"room"`
	To   string          `json:"to"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// RoomListResponse is the API response for listing rooms.
type RoomListResponse struct {
	Rooms []domain.Room `json:"rooms"`
}

// OnlineUsersResponse is the API response for the presence list.
type OnlineUsersResponse struct {
	UsersOnline []string `json:"usersOnline"`
}

// UploadResponse is the API response for an uploaded file.
type UploadResponse struct {
	ID       uint64 `json:"id"`
	URL      string `json:"url"`
	Original string `json:"original"`
	Size     int64  `json:"size"`
	Room     string `json:"room"`
}

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}
