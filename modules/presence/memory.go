package presence

import (
	"context"
	"slices"
	"sync"

	domain "github.com/example/socketchat/domain/chat"
)

// MemoryStore is an in-process PresenceStore.
type MemoryStore struct {
	mu     sync.RWMutex
	byUser map[string]string // username -> connID
	byConn map[string]string // connID -> username
	order  []string          // usernames in claim order
}

var _ domain.PresenceStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory presence store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byUser: make(map[string]string),
		byConn: make(map[string]string),
	}
}

// Claim associates username with connID.
func (s *MemoryStore) Claim(_ context.Context, connID, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if holder, ok := s.byUser[username]; ok && holder != connID {
		return domain.ErrNameTaken
	}

	if prev, ok := s.byConn[connID]; ok && prev != username {
		delete(s.byUser, prev)
		s.order = removeName(s.order, prev)
	}

	if _, ok := s.byUser[username]; !ok {
		s.order = append(s.order, username)
	}
	s.byUser[username] = connID
	s.byConn[connID] = username
	return nil
}

// Release drops the mapping for connID and returns the freed username.
func (s *MemoryStore) Release(_ context.Context, connID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username, ok := s.byConn[connID]
	if !ok {
		return "", nil
	}
	delete(s.byConn, connID)
	if s.byUser[username] == connID {
		delete(s.byUser, username)
		s.order = removeName(s.order, username)
	}
	return username, nil
}

// Resolve returns the connection holding username.
func (s *MemoryStore) Resolve(_ context.Context, username string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	connID, ok := s.byUser[username]
	return connID, ok, nil
}

// UsernameOf returns the username claimed by connID.
func (s *MemoryStore) UsernameOf(_ context.Context, connID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	username, ok := s.byConn[connID]
	return username, ok, nil
}

// Online returns the claimed usernames in claim order.
func (s *MemoryStore) Online(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.order), nil
}

// Count returns the number of claimed usernames.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func removeName(names []string, name string) []string {
	if i := slices.Index(names, name); i >= 0 {
		return slices.Delete(names, i, i+1)
	}
	return names
}
