package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	domain "github.com/example/socketchat/domain/chat"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the gorm-backed store for rooms, messages, users and calls.
type Repository struct {
	db *gorm.DB
}

var (
	_ domain.MessageStore = (*Repository)(nil)
	_ domain.UserStore    = (*Repository)(nil)
	_ domain.CallLogStore = (*Repository)(nil)
)

// NewRepository creates a repository over an open database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates or updates the schema.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&RoomRecord{},
		&MessageRecord{},
		&ReadRecord{},
		&UserRecord{},
		&UserRoomRecord{},
		&CallLogRecord{},
	)
}

// EnsureRoom creates the room record if it does not exist.
func (r *Repository) EnsureRoom(ctx context.Context, name string) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&RoomRecord{Name: name, CreatedAt: time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to ensure room: %w", err)
	}
	return nil
}

// DeleteRoom removes the room record and, if purge is set, its messages.
func (r *Repository) DeleteRoom(ctx context.Context, name string, purge bool) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&RoomRecord{}, "name = ?", name).Error; err != nil {
			return fmt.Errorf("failed to delete room: %w", err)
		}
		if !purge {
			return nil
		}

		var ids []uint64
		if err := tx.Model(&MessageRecord{}).
			Where("room = ? AND is_private = ?", name, false).
			Pluck("id", &ids).Error; err != nil {
			return fmt.Errorf("failed to list room messages: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("message_id IN ?", ids).Delete(&ReadRecord{}).Error; err != nil {
			return fmt.Errorf("failed to purge read receipts: %w", err)
		}
		if err := tx.Where("id IN ?", ids).Delete(&MessageRecord{}).Error; err != nil {
			return fmt.Errorf("failed to purge room messages: %w", err)
		}
		return nil
	})
}

// ListRooms returns all persisted rooms ordered by name.
func (r *Repository) ListRooms(ctx context.Context) ([]domain.Room, error) {
	var recs []RoomRecord
	if err := r.db.WithContext(ctx).Order("name asc").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	rooms := make([]domain.Room, 0, len(recs))
	for _, rec := range recs {
		rooms = append(rooms, domain.Room{Name: rec.Name, CreatedAt: rec.CreatedAt})
	}
	return rooms, nil
}

// CreateMessage inserts msg and fills in its ID and CreatedAt.
func (r *Repository) CreateMessage(ctx context.Context, msg *domain.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	rec := toMessageRecord(msg)
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	msg.ID = rec.ID
	msg.CreatedAt = rec.CreatedAt
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	return nil
}

// FindMessage loads a message with its readers.
func (r *Repository) FindMessage(ctx context.Context, id uint64) (*domain.Message, error) {
	return r.findMessage(r.db.WithContext(ctx), id)
}

func (r *Repository) findMessage(db *gorm.DB, id uint64) (*domain.Message, error) {
	var rec MessageRecord
	if err := db.Preload("Reads", orderReads).First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find message: %w", err)
	}
	msg := rec.toDomain()
	return &msg, nil
}

// MarkRead records reader against message id. The returned bool is false
// when the reader was already present.
func (r *Repository) MarkRead(ctx context.Context, id uint64, reader string) (*domain.Message, bool, error) {
	var (
		msg     *domain.Message
		changed bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&MessageRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to find message: %w", err)
		}
		if count == 0 {
			return domain.ErrNotFound
		}

		res := tx.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&ReadRecord{MessageID: id, Username: reader, ReadAt: time.Now()})
		if res.Error != nil {
			return fmt.Errorf("failed to record read: %w", res.Error)
		}
		changed = res.RowsAffected > 0

		var err error
		msg, err = r.findMessage(tx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return msg, changed, nil
}

// RoomHistory returns up to limit room messages, oldest first.
func (r *Repository) RoomHistory(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	return r.latest(ctx, limit, "room = ? AND is_private = ?", room, false)
}

// DirectHistory returns up to limit messages between a and b, oldest first.
func (r *Repository) DirectHistory(ctx context.Context, a, b string, limit int) ([]domain.Message, error) {
	return r.latest(ctx, limit, "dm_key = ?", domain.DMKey(a, b))
}

func (r *Repository) latest(ctx context.Context, limit int, query string, args ...any) ([]domain.Message, error) {
	var recs []MessageRecord
	db := r.db.WithContext(ctx).Preload("Reads", orderReads).Where(query, args...).Order("id desc")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	slices.Reverse(recs)

	messages := make([]domain.Message, 0, len(recs))
	for i := range recs {
		messages = append(messages, recs[i].toDomain())
	}
	return messages, nil
}

func orderReads(db *gorm.DB) *gorm.DB {
	return db.Order("id asc")
}

// MarkOnline upserts the user as online.
func (r *Repository) MarkOnline(ctx context.Context, username string) error {
	return r.upsertUser(ctx, username, true)
}

// MarkOffline upserts the user as offline and stamps last activity.
func (r *Repository) MarkOffline(ctx context.Context, username string) error {
	return r.upsertUser(ctx, username, false)
}

func (r *Repository) upsertUser(ctx context.Context, username string, online bool) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"online", "last_active"}),
		}).
		Create(&UserRecord{Username: username, Online: online, LastActive: time.Now()}).Error
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// AddUserRoom remembers that username joined room.
func (r *Repository) AddUserRoom(ctx context.Context, username, room string) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&UserRoomRecord{Username: username, Room: room}).Error
	if err != nil {
		return fmt.Errorf("failed to add user room: %w", err)
	}
	return nil
}

// GetUser loads a user profile.
func (r *Repository) GetUser(ctx context.Context, username string) (*domain.User, error) {
	db := r.db.WithContext(ctx)

	var rec UserRecord
	if err := db.First(&rec, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	rooms := []string{}
	if err := db.Model(&UserRoomRecord{}).
		Where("username = ?", username).
		Order("room asc").
		Pluck("room", &rooms).Error; err != nil {
		return nil, fmt.Errorf("failed to load user rooms: %w", err)
	}

	return &domain.User{
		Username:   rec.Username,
		Online:     rec.Online,
		LastActive: rec.LastActive,
		Rooms:      rooms,
	}, nil
}

// SaveCall appends a finished call to the log.
func (r *Repository) SaveCall(ctx context.Context, call *domain.CallRecord) error {
	rec := &CallLogRecord{
		ID:         call.ID,
		Caller:     call.Caller,
		Callee:     call.Callee,
		IsVideo:    call.IsVideo,
		Outcome:    string(call.Outcome),
		StartedAt:  call.StartedAt,
		AnsweredAt: call.AnsweredAt,
		EndedAt:    call.EndedAt,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to save call: %w", err)
	}
	return nil
}

// CallsFor returns the calls username took part in, newest first.
func (r *Repository) CallsFor(ctx context.Context, username string, limit int) ([]domain.CallRecord, error) {
	var recs []CallLogRecord
	db := r.db.WithContext(ctx).
		Where("caller = ? OR callee = ?", username, username).
		Order("started_at desc")
	if limit > 0 {
		db = db.Limit(limit)
	}
	if err := db.Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	calls := make([]domain.CallRecord, 0, len(recs))
	for i := range recs {
		calls = append(calls, recs[i].toDomain())
	}
	return calls, nil
}
