package chat

import (
	"context"
	"fmt"

	"github.com/example/socketchat/config"
	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
)

// MessageStoreProvider hands out the message store once it has started.
type MessageStoreProvider interface {
	MessageStore() domain.MessageStore
}

// PresenceStoreProvider hands out the presence store once it has started.
type PresenceStoreProvider interface {
	PresenceStore() domain.PresenceStore
}

// Module hosts the chat coordinator and publishes its domain events.
type Module struct {
	cfg      config.ChatConfig
	stores   MessageStoreProvider
	presence PresenceStoreProvider
	emitter  Emitter
	eventBus mono.EventBus
	logger   types.Logger
	service  *Service
}

// Compile-time interface checks
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new chat module. Stores are resolved on Start, so the
// store and presence modules must be registered before this one.
func NewModule(cfg config.ChatConfig, stores MessageStoreProvider, presence PresenceStoreProvider, emitter Emitter, logger types.Logger) *Module {
	return &Module{
		cfg:      cfg,
		stores:   stores,
		presence: presence,
		emitter:  emitter,
		logger:   logger.WithModule("chat"),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "chat"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.eventBus = bus
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.UserOnlineV1.ToBase(),
		events.UserOfflineV1.ToBase(),
		events.RoomJoinedV1.ToBase(),
		events.RoomDeletedV1.ToBase(),
		events.CallEndedV1.ToBase(),
	}
}

// Start builds the coordinator and ensures the default room.
func (m *Module) Start(ctx context.Context) error {
	if m.emitter == nil {
		return fmt.Errorf("emitter dependency not set")
	}
	store := m.stores.MessageStore()
	if store == nil {
		return fmt.Errorf("message store not started")
	}
	presence := m.presence.PresenceStore()
	if presence == nil {
		return fmt.Errorf("presence store not started")
	}

	m.service = NewService(presence, store, m.emitter, newBusPublisher(m.eventBus, m.logger), m.logger, Options{
		DefaultRoom:     m.cfg.DefaultRoom,
		HistoryLimit:    m.cfg.HistoryLimit,
		CallTimeout:     m.cfg.CallTimeout,
		PurgeEmptyRooms: m.cfg.PurgeEmptyRooms,
		OfflineInbox:    m.cfg.OfflineInbox,
	})
	if err := m.service.Start(ctx); err != nil {
		return fmt.Errorf("start chat service: %w", err)
	}

	m.logger.Info("Chat module started", "defaultRoom", m.cfg.DefaultRoom, "purgeEmptyRooms", m.cfg.PurgeEmptyRooms)
	return nil
}

// Stop disarms pending call timers.
func (m *Module) Stop(_ context.Context) error {
	if m.service != nil {
		m.service.Shutdown()
	}
	m.logger.Info("Chat module stopped")
	return nil
}

// Health reports coordinator state.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.service == nil {
		return mono.HealthStatus{Healthy: false, Message: "not started"}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: m.service.Stats(ctx),
	}
}

// Service returns the coordinator. It is nil until Start has run.
func (m *Module) Service() *Service {
	return m.service
}
