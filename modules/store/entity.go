package store

import (
	"time"

	domain "github.com/example/socketchat/domain/chat"
)

// RoomRecord is a persisted room.
type RoomRecord struct {
	Name      string    `gorm:"primarykey;size:100"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for RoomRecord.
func (RoomRecord) TableName() string {
	return "rooms"
}

// MessageRecord is a persisted room or direct message.
type MessageRecord struct {
	ID        uint64       `gorm:"primarykey;autoIncrement"`
	Content   string       `gorm:"type:text;not null"`
	Sender    string       `gorm:"size:50;not null;index"`
	Room      string       `gorm:"size:100;index"`
	Recipient string       `gorm:"size:50"`
	DMKey     string       `gorm:"column:dm_key;size:101;index"`
	IsPrivate bool         `gorm:"not null;default:false"`
	FileURL   string       `gorm:"size:255"`
	FileName  string       `gorm:"size:255"`
	FileSize  int64        `gorm:"not null;default:0"`
	CreatedAt time.Time    `gorm:"index"`
	Reads     []ReadRecord `gorm:"foreignKey:MessageID"`
}

// TableName returns the table name for MessageRecord.
func (MessageRecord) TableName() string {
	return "messages"
}

// ReadRecord is one reader of one message. The unique index makes a repeated
// read a no-op.
type ReadRecord struct {
	ID        uint64    `gorm:"primarykey;autoIncrement"`
	MessageID uint64    `gorm:"not null;uniqueIndex:idx_message_reader"`
	Username  string    `gorm:"size:50;not null;uniqueIndex:idx_message_reader"`
	ReadAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for ReadRecord.
func (ReadRecord) TableName() string {
	return "message_reads"
}

// UserRecord is the persisted profile of a username.
type UserRecord struct {
	Username   string    `gorm:"primarykey;size:50"`
	Online     bool      `gorm:"not null"`
	LastActive time.Time `gorm:"not null"`
}

// TableName returns the table name for UserRecord.
func (UserRecord) TableName() string {
	return "users"
}

// UserRoomRecord links a user to a room they have joined.
type UserRoomRecord struct {
	Username string `gorm:"primarykey;size:50"`
	Room     string `gorm:"primarykey;size:100"`
}

// TableName returns the table name for UserRoomRecord.
func (UserRoomRecord) TableName() string {
	return "user_rooms"
}

// CallLogRecord is a finished 1:1 call.
type CallLogRecord struct {
	ID         string     `gorm:"primarykey;size:26"`
	Caller     string     `gorm:"size:50;not null;index"`
	Callee     string     `gorm:"size:50;not null;index"`
	IsVideo    bool       `gorm:"not null;default:false"`
	Outcome    string     `gorm:"size:20;not null"`
	StartedAt  time.Time  `gorm:"not null;index"`
	AnsweredAt *time.Time
	EndedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for CallLogRecord.
func (CallLogRecord) TableName() string {
	return "call_logs"
}

func toMessageRecord(msg *domain.Message) *MessageRecord {
	rec := &MessageRecord{
		Content:   msg.Content,
		Sender:    msg.Sender,
		Room:      msg.Room,
		Recipient: msg.To,
		IsPrivate: msg.IsPrivate,
		CreatedAt: msg.CreatedAt,
	}
	if msg.IsPrivate {
		rec.DMKey = domain.DMKey(msg.Sender, msg.To)
	}
	if msg.Attachment != nil {
		rec.FileURL = msg.Attachment.URL
		rec.FileName = msg.Attachment.Original
		rec.FileSize = msg.Attachment.Size
	}
	return rec
}

func (r *MessageRecord) toDomain() domain.Message {
	msg := domain.Message{
		ID:        r.ID,
		Content:   r.Content,
		Sender:    r.Sender,
		Room:      r.Room,
		To:        r.Recipient,
		IsPrivate: r.IsPrivate,
		CreatedAt: r.CreatedAt,
		ReadBy:    make([]string, 0, len(r.Reads)),
	}
	for _, read := range r.Reads {
		msg.ReadBy = append(msg.ReadBy, read.Username)
	}
	if r.FileURL != "" {
		msg.Attachment = &domain.FileAttachment{URL: r.FileURL, Original: r.FileName, Size: r.FileSize}
	}
	return msg
}

func (r *CallLogRecord) toDomain() domain.CallRecord {
	return domain.CallRecord{
		ID:         r.ID,
		Caller:     r.Caller,
		Callee:     r.Callee,
		IsVideo:    r.IsVideo,
		Outcome:    domain.CallOutcome(r.Outcome),
		StartedAt:  r.StartedAt,
		AnsweredAt: r.AnsweredAt,
		EndedAt:    r.EndedAt,
	}
}
