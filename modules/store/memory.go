package store

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	domain "github.com/example/socketchat/domain/chat"
)

// MemoryStore keeps everything in process memory. Each room and each direct
// conversation retains at most maxHistory messages.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     uint64
	rooms      map[string]time.Time
	messages   map[uint64]*domain.Message
	roomLog    map[string][]uint64 // room -> message ids
	dmLog      map[string][]uint64 // dm key -> message ids
	users      map[string]*domain.User
	calls      []domain.CallRecord
	maxHistory int
}

var (
	_ domain.MessageStore = (*MemoryStore)(nil)
	_ domain.UserStore    = (*MemoryStore)(nil)
	_ domain.CallLogStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(maxHistory int) *MemoryStore {
	if maxHistory <= 0 {
		maxHistory = 500
	}
	return &MemoryStore{
		rooms:      make(map[string]time.Time),
		messages:   make(map[uint64]*domain.Message),
		roomLog:    make(map[string][]uint64),
		dmLog:      make(map[string][]uint64),
		users:      make(map[string]*domain.User),
		maxHistory: maxHistory,
	}
}

// EnsureRoom creates the room record if it does not exist.
func (s *MemoryStore) EnsureRoom(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[name]; !ok {
		s.rooms[name] = time.Now()
	}
	return nil
}

// DeleteRoom removes the room record and, if purge is set, its messages.
func (s *MemoryStore) DeleteRoom(_ context.Context, name string, purge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, name)
	if purge {
		for _, id := range s.roomLog[name] {
			delete(s.messages, id)
		}
		delete(s.roomLog, name)
	}
	return nil
}

// ListRooms returns all rooms ordered by name.
func (s *MemoryStore) ListRooms(_ context.Context) ([]domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rooms := make([]domain.Room, 0, len(s.rooms))
	for name, created := range s.rooms {
		rooms = append(rooms, domain.Room{Name: name, CreatedAt: created})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Name < rooms[j].Name })
	return rooms, nil
}

// CreateMessage stores msg and fills in its ID and CreatedAt.
func (s *MemoryStore) CreateMessage(_ context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg.ID = s.nextID
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.ReadBy == nil {
		msg.ReadBy = []string{}
	}
	stored := cloneMessage(msg)
	s.messages[msg.ID] = stored

	if msg.IsPrivate {
		key := domain.DMKey(msg.Sender, msg.To)
		s.dmLog[key] = s.trim(append(s.dmLog[key], msg.ID))
	} else {
		s.roomLog[msg.Room] = s.trim(append(s.roomLog[msg.Room], msg.ID))
	}
	return nil
}

// trim drops the oldest ids beyond maxHistory. Caller holds the lock.
func (s *MemoryStore) trim(ids []uint64) []uint64 {
	if len(ids) <= s.maxHistory {
		return ids
	}
	drop := len(ids) - s.maxHistory
	for _, id := range ids[:drop] {
		delete(s.messages, id)
	}
	return slices.Clone(ids[drop:])
}

// FindMessage returns a copy of the message with the given id.
func (s *MemoryStore) FindMessage(_ context.Context, id uint64) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneMessage(msg), nil
}

// MarkRead appends reader to the message's readers if not already present.
func (s *MemoryStore) MarkRead(_ context.Context, id uint64, reader string) (*domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, false, domain.ErrNotFound
	}
	if msg.HasReader(reader) {
		return cloneMessage(msg), false, nil
	}
	msg.ReadBy = append(msg.ReadBy, reader)
	return cloneMessage(msg), true, nil
}

// RoomHistory returns up to limit room messages, oldest first.
func (s *MemoryStore) RoomHistory(_ context.Context, room string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.roomLog[room], limit), nil
}

// DirectHistory returns up to limit messages between a and b, oldest first.
func (s *MemoryStore) DirectHistory(_ context.Context, a, b string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(s.dmLog[domain.DMKey(a, b)], limit), nil
}

func (s *MemoryStore) collect(ids []uint64, limit int) []domain.Message {
	if limit <= 0 || limit > len(ids) {
		limit = len(ids)
	}
	result := make([]domain.Message, 0, limit)
	for _, id := range ids[len(ids)-limit:] {
		if msg, ok := s.messages[id]; ok {
			result = append(result, *cloneMessage(msg))
		}
	}
	return result
}

// MarkOnline upserts the user as online.
func (s *MemoryStore) MarkOnline(_ context.Context, username string) error {
	s.touchUser(username, true)
	return nil
}

// MarkOffline upserts the user as offline.
func (s *MemoryStore) MarkOffline(_ context.Context, username string) error {
	s.touchUser(username, false)
	return nil
}

func (s *MemoryStore) touchUser(username string, online bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		user = &domain.User{Username: username, Rooms: []string{}}
		s.users[username] = user
	}
	user.Online = online
	user.LastActive = time.Now()
}

// AddUserRoom remembers that username joined room.
func (s *MemoryStore) AddUserRoom(_ context.Context, username, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		user = &domain.User{Username: username, LastActive: time.Now(), Rooms: []string{}}
		s.users[username] = user
	}
	if !slices.Contains(user.Rooms, room) {
		user.Rooms = append(user.Rooms, room)
		slices.Sort(user.Rooms)
	}
	return nil
}

// GetUser returns a copy of the user profile.
func (s *MemoryStore) GetUser(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[username]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u := *user
	u.Rooms = slices.Clone(user.Rooms)
	return &u, nil
}

// SaveCall appends a finished call to the log.
func (s *MemoryStore) SaveCall(_ context.Context, call *domain.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, *call)
	return nil
}

// CallsFor returns the calls username took part in, newest first.
func (s *MemoryStore) CallsFor(_ context.Context, username string, limit int) ([]domain.CallRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var calls []domain.CallRecord
	for i := len(s.calls) - 1; i >= 0; i-- {
		c := s.calls[i]
		if c.Caller != username && c.Callee != username {
			continue
		}
		calls = append(calls, c)
		if limit > 0 && len(calls) == limit {
			break
		}
	}
	return calls, nil
}

func cloneMessage(msg *domain.Message) *domain.Message {
	c := *msg
	c.ReadBy = slices.Clone(msg.ReadBy)
	if c.ReadBy == nil {
		c.ReadBy = []string{}
	}
	if msg.Attachment != nil {
		a := *msg.Attachment
		c.Attachment = &a
	}
	return &c
}
