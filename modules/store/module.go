package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/example/socketchat/config"
	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/events"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
	"github.com/go-monolith/mono/pkg/types"
	"golang.org/x/sync/singleflight"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Module owns message persistence and serves history over request-reply.
type Module struct {
	cfg     config.StoreConfig
	logger  types.Logger
	db      *gorm.DB
	backend Backend
	sfGroup singleflight.Group
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.ServiceProviderModule = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the store module for the configured driver.
func NewModule(cfg config.StoreConfig, logger types.Logger) *Module {
	return &Module{
		cfg:    cfg,
		logger: logger.WithModule("store"),
	}
}

// NewModuleWithBackend creates a store module over an existing backend.
func NewModuleWithBackend(backend Backend, logger types.Logger) *Module {
	return &Module{
		cfg:     config.StoreConfig{Driver: config.StoreMemory},
		logger:  logger.WithModule("store"),
		backend: backend,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "store"
}

// Start opens the database and runs migrations.
func (m *Module) Start(_ context.Context) error {
	if m.backend != nil {
		return nil
	}

	var dialector gorm.Dialector
	switch m.cfg.Driver {
	case config.StoreMemory:
		m.backend = NewMemoryStore(m.cfg.MemoryHistoryCap)
		m.logger.Info("Store module started", "driver", config.StoreMemory)
		return nil
	case config.StoreMySQL:
		if m.cfg.DSN == "" {
			return errors.New("DB_DSN is required for the mysql driver")
		}
		dialector = mysql.Open(m.cfg.DSN)
	case config.StoreSQLite, "":
		dialector = sqlite.Open(m.cfg.Path)
	default:
		return fmt.Errorf("unknown store driver: %s", m.cfg.Driver)
	}

	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "true" {
		logLevel = logger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	m.db = db

	repo := NewRepository(db)
	if err := repo.Migrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	m.backend = repo

	m.logger.Info("Store module started", "driver", m.cfg.Driver, "path", m.cfg.Path)
	return nil
}

// Stop closes the database connection.
func (m *Module) Stop(_ context.Context) error {
	if m.db == nil {
		return nil
	}
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	m.logger.Info("Database connection closed")
	return nil
}

// Health pings the database.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.backend == nil {
		return mono.HealthStatus{Healthy: false, Message: "store not initialized"}
	}
	if m.db == nil {
		return mono.HealthStatus{
			Healthy: true,
			Message: "operational",
			Details: map[string]any{"driver": config.StoreMemory},
		}
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("failed to get sql.DB: %v", err)}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: fmt.Sprintf("database ping failed: %v", err)}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"driver": m.cfg.Driver},
	}
}

// Backend returns the active store. It is nil until Start has run.
func (m *Module) Backend() Backend {
	return m.backend
}

// MessageStore exposes the backend to the chat coordinator.
func (m *Module) MessageStore() domain.MessageStore {
	if m.backend == nil {
		return nil
	}
	return m.backend
}

// RegisterServices registers the history services. Names are prefixed by the
// framework, so "room-history" becomes "services.store.room-history".
func (m *Module) RegisterServices(container mono.ServiceContainer) error {
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceRoomHistory, json.Unmarshal, json.Marshal, m.roomHistory,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceRoomHistory, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceDMHistory, json.Unmarshal, json.Marshal, m.dmHistory,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceDMHistory, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceUserRecord, json.Unmarshal, json.Marshal, m.userRecord,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceUserRecord, err)
	}
	if err := helper.RegisterTypedRequestReplyService(
		container, ServiceCallLog, json.Unmarshal, json.Marshal, m.callLog,
	); err != nil {
		return fmt.Errorf("failed to register %s service: %w", ServiceCallLog, err)
	}

	m.logger.Info("Registered services", "services", []string{ServiceRoomHistory, ServiceDMHistory, ServiceUserRecord, ServiceCallLog})
	return nil
}

// RegisterEventConsumers subscribes to the chat events that feed user
// profiles and the call log.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(registry, events.UserOnlineV1, m.handleUserOnline, m); err != nil {
		return fmt.Errorf("failed to register UserOnline consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.UserOfflineV1, m.handleUserOffline, m); err != nil {
		return fmt.Errorf("failed to register UserOffline consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.RoomJoinedV1, m.handleRoomJoined, m); err != nil {
		return fmt.Errorf("failed to register RoomJoined consumer: %w", err)
	}
	if err := helper.RegisterTypedEventConsumer(registry, events.CallEndedV1, m.handleCallEnded, m); err != nil {
		return fmt.Errorf("failed to register CallEnded consumer: %w", err)
	}

	m.logger.Info("Registered event consumers: UserOnline, UserOffline, RoomJoined, CallEnded")
	return nil
}

func (m *Module) handleUserOnline(ctx context.Context, event events.UserOnlineEvent, _ *mono.Msg) error {
	if err := m.backend.MarkOnline(ctx, event.Username); err != nil {
		m.logger.Error("Failed to mark user online", "username", event.Username, "error", err)
		return err
	}
	return nil
}

func (m *Module) handleUserOffline(ctx context.Context, event events.UserOfflineEvent, _ *mono.Msg) error {
	if err := m.backend.MarkOffline(ctx, event.Username); err != nil {
		m.logger.Error("Failed to mark user offline", "username", event.Username, "error", err)
		return err
	}
	return nil
}

func (m *Module) handleRoomJoined(ctx context.Context, event events.RoomJoinedEvent, _ *mono.Msg) error {
	if err := m.backend.AddUserRoom(ctx, event.Username, event.Room); err != nil {
		m.logger.Error("Failed to record room join", "username", event.Username, "room", event.Room, "error", err)
		return err
	}
	return nil
}

func (m *Module) handleCallEnded(ctx context.Context, event events.CallEndedEvent, _ *mono.Msg) error {
	rec := &domain.CallRecord{
		ID:         event.CallID,
		Caller:     event.Caller,
		Callee:     event.Callee,
		IsVideo:    event.IsVideo,
		Outcome:    domain.CallOutcome(event.Outcome),
		StartedAt:  event.StartedAt,
		AnsweredAt: event.AnsweredAt,
		EndedAt:    event.EndedAt,
	}
	if err := m.backend.SaveCall(ctx, rec); err != nil {
		m.logger.Error("Failed to save call log", "callID", event.CallID, "error", err)
		return err
	}
	m.logger.Debug("Saved call log", "callID", event.CallID, "outcome", event.Outcome)
	return nil
}
