package store

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/go-monolith/mono"
)

// Read limits for the history services.
const (
	DefaultHistoryLimit = 50
	MaxRoomHistory      = 200
	MaxDMHistory        = 500
	MaxCallLog          = 200
)

// ClampLimit applies the default and the upper bound to a requested limit.
func ClampLimit(limit, max int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > max {
		return max
	}
	return limit
}

// roomHistory serves the room history service. Identical concurrent reads
// share one query.
func (m *Module) roomHistory(ctx context.Context, req RoomHistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	if req.Room == "" {
		return HistoryResponse{}, fmt.Errorf("%w: room is required", domain.ErrInvalidInput)
	}
	limit := ClampLimit(req.Limit, MaxRoomHistory)

	val, err, _ := m.sfGroup.Do(fmt.Sprintf("room:%s:%d", req.Room, limit), func() (any, error) {
		return m.backend.RoomHistory(ctx, req.Room, limit)
	})
	if err != nil {
		return HistoryResponse{}, err
	}
	return HistoryResponse{Messages: nonNil(val.([]domain.Message))}, nil
}

func (m *Module) dmHistory(ctx context.Context, req DMHistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	if req.A == "" || req.B == "" {
		return HistoryResponse{}, fmt.Errorf("%w: both usernames are required", domain.ErrInvalidInput)
	}
	limit := ClampLimit(req.Limit, MaxDMHistory)

	val, err, _ := m.sfGroup.Do(fmt.Sprintf("dm:%s:%d", domain.DMKey(req.A, req.B), limit), func() (any, error) {
		return m.backend.DirectHistory(ctx, req.A, req.B, limit)
	})
	if err != nil {
		return HistoryResponse{}, err
	}
	return HistoryResponse{Messages: nonNil(val.([]domain.Message))}, nil
}

func (m *Module) userRecord(ctx context.Context, req UserRequest, _ *mono.Msg) (UserResponse, error) {
	user, err := m.backend.GetUser(ctx, req.Username)
	if errors.Is(err, domain.ErrNotFound) {
		return UserResponse{Found: false}, nil
	}
	if err != nil {
		return UserResponse{}, err
	}
	return UserResponse{Found: true, User: user}, nil
}

func (m *Module) callLog(ctx context.Context, req CallLogRequest, _ *mono.Msg) (CallLogResponse, error) {
	if req.Username == "" {
		return CallLogResponse{}, fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	calls, err := m.backend.CallsFor(ctx, req.Username, ClampLimit(req.Limit, MaxCallLog))
	if err != nil {
		return CallLogResponse{}, err
	}
	if calls == nil {
		calls = []domain.CallRecord{}
	}
	return CallLogResponse{Calls: calls}, nil
}

func nonNil(messages []domain.Message) []domain.Message {
	if messages == nil {
		return []domain.Message{}
	}
	return messages
}
