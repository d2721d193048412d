package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// UserOnlineEvent is emitted when a connection claims a username.
type UserOnlineEvent struct {
	Username  string    `json:"username"`
	ConnID    string    `json:"conn_id"`
	Timestamp time.Time `json:"timestamp"`
}

// UserOfflineEvent is emitted when a username is released.
type UserOfflineEvent struct {
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomJoinedEvent is emitted when a user joins a room.
type RoomJoinedEvent struct {
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

// RoomDeletedEvent is emitted when the last member leaves a room.
type RoomDeletedEvent struct {
	Room      string    `json:"room"`
	Purged    bool      `json:"purged"`
	Timestamp time.Time `json:"timestamp"`
}

// CallEndedEvent is emitted when a 1:1 call session is torn down.
type CallEndedEvent struct {
	CallID     string     `json:"call_id"`
	Caller     string     `json:"caller"`
	Callee     string     `json:"callee"`
	IsVideo    bool       `json:"is_video"`
	Outcome    string     `json:"outcome"`
	StartedAt  time.Time  `json:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	EndedAt    time.Time  `json:"ended_at"`
}

// Event definitions for the chat domain.
var (
	UserOnlineV1 = helper.EventDefinition[UserOnlineEvent](
		"chat",
		"UserOnline",
		"v1",
	)

	UserOfflineV1 = helper.EventDefinition[UserOfflineEvent](
		"chat",
		"UserOffline",
		"v1",
	)

	RoomJoinedV1 = helper.EventDefinition[RoomJoinedEvent](
		"chat",
		"RoomJoined",
		"v1",
	)

	RoomDeletedV1 = helper.EventDefinition[RoomDeletedEvent](
		"chat",
		"RoomDeleted",
		"v1",
	)

	CallEndedV1 = helper.EventDefinition[CallEndedEvent](
		"chat",
		"CallEnded",
		"v1",
	)
)
