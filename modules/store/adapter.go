package store

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// HistoryPort is the read side of the store as seen by other modules.
type HistoryPort interface {
	RoomHistory(ctx context.Context, room string, limit int) ([]domain.Message, error)
	DirectHistory(ctx context.Context, a, b string, limit int) ([]domain.Message, error)
	User(ctx context.Context, username string) (*domain.User, error)
	Calls(ctx context.Context, username string, limit int) ([]domain.CallRecord, error)
}

// historyAdapter calls the store services through the service container.
type historyAdapter struct {
	container mono.ServiceContainer
}

// NewHistoryAdapter creates a HistoryPort over the store module's container.
func NewHistoryAdapter(container mono.ServiceContainer) HistoryPort {
	if container == nil {
		panic("store: history adapter requires non-nil ServiceContainer")
	}
	return &historyAdapter{container: container}
}

// callService invokes a store service with JSON encoding on both sides.
func callService[Req, Resp any](ctx context.Context, container mono.ServiceContainer, service string, req Req, resp *Resp) error {
	if err := helper.CallRequestReplyService(
		ctx,
		container,
		service,
		json.Marshal,
		json.Unmarshal,
		req,
		resp,
	); err != nil {
		return fmt.Errorf("%s service call failed: %w", service, err)
	}
	return nil
}

// RoomHistory returns the latest room messages, oldest first.
func (a *historyAdapter) RoomHistory(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	req := RoomHistoryRequest{Room: room, Limit: limit}
	var resp HistoryResponse
	if err := callService(ctx, a.container, ServiceRoomHistory, &req, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DirectHistory returns the latest messages between a and b, oldest first.
func (a *historyAdapter) DirectHistory(ctx context.Context, userA, userB string, limit int) ([]domain.Message, error) {
	req := DMHistoryRequest{A: userA, B: userB, Limit: limit}
	var resp HistoryResponse
	if err := callService(ctx, a.container, ServiceDMHistory, &req, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// User returns a persisted profile or ErrNotFound.
func (a *historyAdapter) User(ctx context.Context, username string) (*domain.User, error) {
	req := UserRequest{Username: username}
	var resp UserResponse
	if err := callService(ctx, a.container, ServiceUserRecord, &req, &resp); err != nil {
		return nil, err
	}
	if !resp.Found {
		return nil, fmt.Errorf("user %s: %w", username, domain.ErrNotFound)
	}
	return resp.User, nil
}

// Calls returns the call log of username, newest first.
func (a *historyAdapter) Calls(ctx context.Context, username string, limit int) ([]domain.CallRecord, error) {
	req := CallLogRequest{Username: username, Limit: limit}
	var resp CallLogResponse
	if err := callService(ctx, a.container, ServiceCallLog, &req, &resp); err != nil {
		return nil, err
	}
	return resp.Calls, nil
}
