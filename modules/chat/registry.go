package chat

import (
	"context"
	"fmt"
	"time"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/events"
	"github.com/go-monolith/mono/pkg/types"
)

// Registry maps live connections to usernames and broadcasts presence.
type Registry struct {
	store       domain.PresenceStore
	emitter     Emitter
	pub         Publisher
	logger      types.Logger
	defaultRoom string
	now         func() time.Time
}

// NewRegistry creates a registry over store.
func NewRegistry(store domain.PresenceStore, emitter Emitter, pub Publisher, logger types.Logger, defaultRoom string) *Registry {
	return &Registry{
		store:       store,
		emitter:     emitter,
		pub:         pub,
		logger:      logger,
		defaultRoom: defaultRoom,
		now:         time.Now,
	}
}

// Claim binds username to connID.
func (r *Registry) Claim(ctx context.Context, connID, username string) (ClaimResult, error) {
	username, err := domain.NormalizeUsername(username)
	if err != nil {
		return ClaimResult{}, err
	}

	previous, _, err := r.store.UsernameOf(ctx, connID)
	if err != nil {
		return ClaimResult{}, fmt.Errorf("lookup connection: %w", err)
	}
	if err := r.store.Claim(ctx, connID, username); err != nil {
		return ClaimResult{}, err
	}
	if previous == username {
		previous = ""
	}

	online := r.OnlineUsers(ctx)
	r.emitter.EmitAll(EventUsersOnline, online)

	now := r.now()
	if previous != "" {
		r.pub.UserOffline(events.UserOfflineEvent{Username: previous, Timestamp: now})
	}
	r.pub.UserOnline(events.UserOnlineEvent{Username: username, ConnID: connID, Timestamp: now})

	r.logger.Info("Username claimed", "username", username, "connId", connID, "previous", previous)

	return ClaimResult{
		Username:    username,
		Previous:    previous,
		Rooms:       []string{r.defaultRoom},
		UsersOnline: online,
	}, nil
}

// Release frees the username held by connID. Releasing twice is a no-op.
func (r *Registry) Release(ctx context.Context, connID string) (string, bool) {
	username, err := r.store.Release(ctx, connID)
	if err != nil {
		r.logger.Error("Failed to release connection", "connId", connID, "error", err)
		return "", false
	}
	if username == "" {
		return "", false
	}

	r.emitter.EmitAll(EventUsersOnline, r.OnlineUsers(ctx))
	r.pub.UserOffline(events.UserOfflineEvent{Username: username, Timestamp: r.now()})
	r.logger.Info("Username released", "username", username, "connId", connID)
	return username, true
}

// Resolve returns the connection currently holding username.
func (r *Registry) Resolve(ctx context.Context, username string) (string, bool) {
	connID, ok, err := r.store.Resolve(ctx, username)
	if err != nil {
		r.logger.Error("Failed to resolve username", "username", username, "error", err)
		return "", false
	}
	return connID, ok
}

// UsernameOf returns the username claimed by connID.
func (r *Registry) UsernameOf(ctx context.Context, connID string) (string, bool) {
	username, ok, err := r.store.UsernameOf(ctx, connID)
	if err != nil {
		r.logger.Error("Failed to look up connection", "connId", connID, "error", err)
		return "", false
	}
	return username, ok
}

// OnlineUsers lists online usernames in claim order.
func (r *Registry) OnlineUsers(ctx context.Context) []string {
	users, err := r.store.Online(ctx)
	if err != nil {
		r.logger.Error("Failed to list online users", "error", err)
		return []string{}
	}
	if users == nil {
		return []string{}
	}
	return users
}
