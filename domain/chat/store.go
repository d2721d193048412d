package chat

import "context"

// MessageStore persists rooms, messages and read receipts.
//
// CreateMessage must assign ID and CreatedAt before returning. MarkRead adds
// reader to the message's readers atomically and reports whether the set grew;
// it returns ErrNotFound for an unknown id.
type MessageStore interface {
	EnsureRoom(ctx context.Context, name string) error
	DeleteRoom(ctx context.Context, name string, purge bool) error
	ListRooms(ctx context.Context) ([]Room, error)

	CreateMessage(ctx context.Context, msg *Message) error
	FindMessage(ctx context.Context, id uint64) (*Message, error)
	MarkRead(ctx context.Context, id uint64, reader string) (*Message, bool, error)
	RoomHistory(ctx context.Context, room string, limit int) ([]Message, error)
	DirectHistory(ctx context.Context, a, b string, limit int) ([]Message, error)
}

// UserStore keeps the profile of every username that has been online.
type UserStore interface {
	MarkOnline(ctx context.Context, username string) error
	MarkOffline(ctx context.Context, username string) error
	AddUserRoom(ctx context.Context, username, room string) error
	GetUser(ctx context.Context, username string) (*User, error)
}

// CallLogStore records finished 1:1 calls.
type CallLogStore interface {
	SaveCall(ctx context.Context, rec *CallRecord) error
	CallsFor(ctx context.Context, username string, limit int) ([]CallRecord, error)
}

// PresenceStore is the storage behind the connection registry.
//
// Claim fails with ErrNameTaken when another connection holds username. A
// connection re-claiming a different name drops its previous one. Online lists
// usernames in the order they were first claimed.
type PresenceStore interface {
	Claim(ctx context.Context, connID, username string) error
	Release(ctx context.Context, connID string) (string, error)
	Resolve(ctx context.Context, username string) (string, bool, error)
	UsernameOf(ctx context.Context, connID string) (string, bool, error)
	Online(ctx context.Context) ([]string, error)
}
