package store

import domain "github.com/example/socketchat/domain/chat"

// Service names registered in the store module's container.
const (
	ServiceRoomHistory = "room-history"
	ServiceDMHistory   = "dm-history"
	ServiceUserRecord  = "user-record"
	ServiceCallLog     = "call-log"
)

// Backend is everything the store module persists.
type Backend interface {
	domain.MessageStore
	domain.UserStore
	domain.CallLogStore
}

// RoomHistoryRequest asks for the latest messages of a room.
type RoomHistoryRequest struct {
	Room  string `json:"room"`
	Limit int    `json:"limit"`
}

// DMHistoryRequest asks for the latest messages between two users.
type DMHistoryRequest struct {
	A     string `json:"a"`
	B     string `json:"b"`
	Limit int    `json:"limit"`
}

// HistoryResponse carries messages oldest first.
type HistoryResponse struct {
	Messages []domain.Message `json:"messages"`
}

// UserRequest asks for a persisted user profile.
type UserRequest struct {
	Username string `json:"username"`
}

// UserResponse carries a user profile; Found is false for unknown users.
type UserResponse struct {
	Found bool         `json:"found"`
	User  *domain.User `json:"user,omitempty"`
}

// CallLogRequest asks for the calls of a user.
type CallLogRequest struct {
	Username string `json:"username"`
	Limit    int    `json:"limit"`
}

// CallLogResponse carries calls newest first.
type CallLogResponse struct {
	Calls []domain.CallRecord `json:"calls"`
}
