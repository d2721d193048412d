package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/events"
	"github.com/go-monolith/mono/pkg/types"
)

// room is a live broadcast group. Members are connection ids in join order.
// A room is usable once ready is closed; err is set if persisting it failed.
type room struct {
	createdAt time.Time
	members   []string
	usernames map[string]string // connID -> username
	ready     chan struct{}
	err       error
}

func newRoom(createdAt time.Time) *room {
	return &room{createdAt: createdAt, usernames: make(map[string]string), ready: make(chan struct{})}
}

func (r *room) isReady() bool {
	select {
	case <-r.ready:
		return r.err == nil
	default:
		return false
	}
}

func (r *room) has(connID string) bool {
	_, ok := r.usernames[connID]
	return ok
}

func (r *room) add(connID, username string) bool {
	if r.has(connID) {
		return false
	}
	r.members = append(r.members, connID)
	r.usernames[connID] = username
	return true
}

func (r *room) remove(connID string) bool {
	if !r.has(connID) {
		return false
	}
	delete(r.usernames, connID)
	r.members = slices.DeleteFunc(r.members, func(id string) bool { return id == connID })
	return true
}

func (r *room) others(connID string) []string {
	out := make([]string, 0, len(r.members))
	for _, id := range r.members {
		if id != connID {
			out = append(out, id)
		}
	}
	return out
}

// RoomDirectory tracks room membership per connection. A room exists while it
// has members; the last leave deletes it.
type RoomDirectory struct {
	mu       sync.Mutex
	rooms    map[string]*room
	byConn   map[string][]string      // connID -> joined rooms
	deleting map[string]chan struct{} // room -> closed when its store delete is done

	store        domain.MessageStore
	emitter      Emitter
	pub          Publisher
	logger       types.Logger
	historyLimit int
	purge        bool
	now          func() time.Time
}

// NewRoomDirectory creates an empty directory.
func NewRoomDirectory(store domain.MessageStore, emitter Emitter, pub Publisher, logger types.Logger, historyLimit int, purge bool) *RoomDirectory {
	return &RoomDirectory{
		rooms:        make(map[string]*room),
		byConn:       make(map[string][]string),
		deleting:     make(map[string]chan struct{}),
		store:        store,
		emitter:      emitter,
		pub:          pub,
		logger:       logger,
		historyLimit: historyLimit,
		purge:        purge,
		now:          time.Now,
	}
}

// acquire returns the room, creating it if needed. The store is written
// outside d.mu: the creator reserves the entry, waits for any pending delete
// of the same name, persists, and drops the entry again if that fails.
func (d *RoomDirectory) acquire(ctx context.Context, name string) (*room, error) {
	d.mu.Lock()
	r, ok := d.rooms[name]
	var pendingDelete chan struct{}
	if !ok {
		r = newRoom(d.now())
		d.rooms[name] = r
		pendingDelete = d.deleting[name]
	}
	d.mu.Unlock()

	if ok {
		select {
		case <-r.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if r.err != nil {
			return nil, r.err
		}
		return r, nil
	}

	if pendingDelete != nil {
		<-pendingDelete
	}
	err := d.store.EnsureRoom(ctx, name)
	if err != nil {
		err = fmt.Errorf("ensure room %s: %w", name, err)
		d.mu.Lock()
		if d.rooms[name] == r {
			delete(d.rooms, name)
		}
		d.mu.Unlock()
	}
	r.err = err
	close(r.ready)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Ensure makes sure the room exists.
func (d *RoomDirectory) Ensure(ctx context.Context, name string) error {
	name, err := domain.NormalizeRoom(name)
	if err != nil {
		return err
	}
	_, err = d.acquire(ctx, name)
	return err
}

// Join adds connID to the room and returns its recent history, oldest first.
func (d *RoomDirectory) Join(ctx context.Context, connID, username, name string) ([]domain.Message, error) {
	name, err := domain.NormalizeRoom(name)
	if err != nil {
		return nil, err
	}

	var (
		joined bool
		others []string
	)
	for {
		r, err := d.acquire(ctx, name)
		if err != nil {
			return nil, err
		}
		d.mu.Lock()
		if d.rooms[name] != r {
			// Deleted by a concurrent last leave; start over.
			d.mu.Unlock()
			continue
		}
		joined = r.add(connID, username)
		if joined {
			d.byConn[connID] = append(d.byConn[connID], name)
		}
		others = r.others(connID)
		d.mu.Unlock()
		break
	}

	if joined {
		d.emitTo(others, EventSystem, SystemNotice{
			Message:   fmt.Sprintf("%s joined %s", username, name),
			Room:      name,
			Timestamp: d.now(),
		})
		d.pub.RoomJoined(events.RoomJoinedEvent{Room: name, Username: username, Timestamp: d.now()})
		d.logger.Info("User joined room", "room", name, "username", username)
	}

	history, err := d.store.RoomHistory(ctx, name, d.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load history of %s: %w", name, err)
	}
	if history == nil {
		history = []domain.Message{}
	}
	return history, nil
}

// Leave removes connID from the room. The room is deleted once empty.
func (d *RoomDirectory) Leave(ctx context.Context, connID, username, name string) error {
	name, err := domain.NormalizeRoom(name)
	if err != nil {
		return err
	}

	d.mu.Lock()
	r, ok := d.rooms[name]
	if !ok || !r.remove(connID) {
		d.mu.Unlock()
		return domain.ErrNotInRoom
	}
	d.byConn[connID] = slices.DeleteFunc(d.byConn[connID], func(n string) bool { return n == name })
	if len(d.byConn[connID]) == 0 {
		delete(d.byConn, connID)
	}
	remaining := slices.Clone(r.members)
	empty := len(remaining) == 0
	var deleted chan struct{}
	if empty {
		delete(d.rooms, name)
		deleted = make(chan struct{})
		d.deleting[name] = deleted
	}
	d.mu.Unlock()

	if empty {
		if err := d.store.DeleteRoom(ctx, name, d.purge); err != nil {
			d.logger.Error("Failed to delete room from store", "room", name, "error", err)
		}
		d.mu.Lock()
		if d.deleting[name] == deleted {
			delete(d.deleting, name)
		}
		d.mu.Unlock()
		close(deleted)
	}

	d.logger.Info("User left room", "room", name, "username", username)
	if !empty {
		d.emitTo(remaining, EventSystem, SystemNotice{
			Message:   fmt.Sprintf("%s left %s", username, name),
			Room:      name,
			Timestamp: d.now(),
		})
		return nil
	}

	d.pub.RoomDeleted(events.RoomDeletedEvent{Room: name, Purged: d.purge, Timestamp: d.now()})
	d.logger.Info("Room deleted", "room", name, "purged", d.purge)
	return nil
}

// OnDisconnect leaves every room connID is in.
func (d *RoomDirectory) OnDisconnect(ctx context.Context, connID, username string) {
	for _, name := range d.RoomsOf(connID) {
		if err := d.Leave(ctx, connID, username, name); err != nil {
			d.logger.Debug("Leave on disconnect skipped", "room", name, "connId", connID, "error", err)
		}
	}
}

// Rename updates the username recorded for connID in every joined room.
func (d *RoomDirectory) Rename(connID, username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, name := range d.byConn[connID] {
		if r, ok := d.rooms[name]; ok {
			r.usernames[connID] = username
		}
	}
}

// IsMember reports whether connID has joined the room.
func (d *RoomDirectory) IsMember(connID, name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[name]
	return ok && r.has(connID)
}

// Members returns the connection ids of the room in join order.
func (d *RoomDirectory) Members(name string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[name]
	if !ok {
		return []string{}
	}
	return slices.Clone(r.members)
}

// RoomsOf returns the rooms connID has joined, in join order.
func (d *RoomDirectory) RoomsOf(connID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.byConn[connID])
}

// List returns the live rooms ordered by name.
func (d *RoomDirectory) List() []domain.Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]domain.Room, 0, len(d.rooms))
	for name, r := range d.rooms {
		if !r.isReady() {
			continue
		}
		out = append(out, domain.Room{Name: name, CreatedAt: r.createdAt, Members: len(r.members)})
	}
	slices.SortFunc(out, func(a, b domain.Room) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Broadcast emits event to every member of the room.
func (d *RoomDirectory) Broadcast(name, event string, payload any) {
	d.emitTo(d.Members(name), event, payload)
}

// BroadcastExcept emits event to every member of the room but connID.
func (d *RoomDirectory) BroadcastExcept(name, connID, event string, payload any) {
	d.mu.Lock()
	var targets []string
	if r, ok := d.rooms[name]; ok {
		targets = r.others(connID)
	}
	d.mu.Unlock()
	d.emitTo(targets, event, payload)
}

func (d *RoomDirectory) emitTo(connIDs []string, event string, payload any) {
	for _, id := range connIDs {
		d.emitter.Emit(id, event, payload)
	}
}
