package chat

import (
	"slices"
	"time"
)

// Room is a named broadcast group. Membership is ephemeral and tracked by the
// room directory; the record only remembers that the room exists.
type Room struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	Members   int       `json:"members"`
}

// Message is a room or direct message. Exactly one of Room and To is set.
type Message struct {
	ID         uint64          `json:"id"`
	Content    string          `json:"content"`
	Sender     string          `json:"sender"`
	Room       string          `json:"room,omitempty"`
	To         string          `json:"to,omitempty"`
	IsPrivate  bool            `json:"isPrivate"`
	CreatedAt  time.Time       `json:"createdAt"`
	ReadBy     []string        `json:"readBy"`
	Attachment *FileAttachment `json:"attachment,omitempty"`
}

// HasReader reports whether username already appears in ReadBy.
func (m *Message) HasReader(username string) bool {
	return slices.Contains(m.ReadBy, username)
}

// FileAttachment describes an uploaded file shared into a room.
type FileAttachment struct {
	URL      string `json:"url"`
	Original string `json:"original"`
	Size     int64  `json:"size"`
}

// User is the persisted profile of a username that has been seen online.
type User struct {
	Username   string    `json:"username"`
	Online     bool      `json:"online"`
	LastActive time.Time `json:"lastActive"`
	Rooms      []string  `json:"rooms"`
}

// CallOutcome classifies how a 1:1 call session ended.
type CallOutcome string

// Call outcomes.
const (
	CallCompleted    CallOutcome = "completed"
	CallRejected     CallOutcome = "rejected"
	CallCancelled    CallOutcome = "cancelled"
	CallMissed       CallOutcome = "missed"
	CallBusy         CallOutcome = "busy"
	CallDisconnected CallOutcome = "disconnected"
)

// CallRecord is a finished 1:1 call kept in the call log.
type CallRecord struct {
	ID         string      `json:"id"`
	Caller     string      `json:"caller"`
	Callee     string      `json:"callee"`
	IsVideo    bool        `json:"isVideo"`
	Outcome    CallOutcome `json:"outcome"`
	StartedAt  time.Time   `json:"startedAt"`
	AnsweredAt *time.Time  `json:"answeredAt,omitempty"`
	EndedAt    time.Time   `json:"endedAt"`
}

// Duration returns how long the call was connected, zero if never answered.
func (c CallRecord) Duration() time.Duration {
	if c.AnsweredAt == nil {
		return 0
	}
	return c.EndedAt.Sub(*c.AnsweredAt)
}

// DMKey returns the order-independent key of a direct conversation.
func DMKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "::" + b
}
