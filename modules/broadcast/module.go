package broadcast

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/socketchat/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// EventSystem is the client event carrying process-wide notices.
const EventSystem = "system"

// BroadcastModule owns the WebSocket hub and turns domain events into
// process-wide notices.
type BroadcastModule struct {
	hub       *Hub
	cancelHub context.CancelFunc
}

// Compile-time interface checks.
var _ mono.Module = (*BroadcastModule)(nil)
var _ mono.EventConsumerModule = (*BroadcastModule)(nil)
var _ mono.HealthCheckableModule = (*BroadcastModule)(nil)

// NewModule creates a new BroadcastModule.
func NewModule() *BroadcastModule {
	return &BroadcastModule{
		hub: NewHub(),
	}
}

// Name returns the module name.
func (m *BroadcastModule) Name() string {
	return "broadcast"
}

// Start initializes the module and starts the hub.
func (m *BroadcastModule) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	log.Println("[broadcast] Module started - WebSocket hub running")
	return nil
}

// Stop shuts down the module.
func (m *BroadcastModule) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait() // Wait for hub to finish
	}
	log.Printf("[broadcast] Module stopped - %d clients were connected", clientCount)
	return nil
}

// Health returns the health status.
func (m *BroadcastModule) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// RegisterEventConsumers registers event handlers.
func (m *BroadcastModule) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomDeletedV1, m.handleRoomDeleted, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomDeleted consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.UserOfflineV1, m.handleUserOffline, m,
	); err != nil {
		return fmt.Errorf("failed to register UserOffline consumer: %w", err)
	}

	log.Println("[broadcast] Registered event consumers: RoomDeleted, UserOffline")
	return nil
}

// Event handlers

func (m *BroadcastModule) handleRoomDeleted(_ context.Context, event events.RoomDeletedEvent, _ *mono.Msg) error {
	log.Printf("[broadcast] Broadcasting room deleted: %s", event.Room)

	m.hub.Broadcast(EventSystem, Notice{
		Message:   fmt.Sprintf("Room %s was deleted", event.Room),
		Room:      event.Room,
		Timestamp: event.Timestamp,
	})
	return nil
}

func (m *BroadcastModule) handleUserOffline(_ context.Context, event events.UserOfflineEvent, _ *mono.Msg) error {
	log.Printf("[broadcast] Broadcasting user offline: %s", event.Username)

	m.hub.Broadcast(EventSystem, Notice{
		Message:   fmt.Sprintf("%s went offline", event.Username),
		Timestamp: event.Timestamp,
	})
	return nil
}

// GetHub returns the WebSocket hub for the API and chat modules to use.
func (m *BroadcastModule) GetHub() *Hub {
	return m.hub
}

// Notice is the payload of a process-wide system event.
type Notice struct {
	Message   string    `json:"message"`
	Room      string    `json:"room,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
