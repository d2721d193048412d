package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/example/socketchat/config"
	domain "github.com/example/socketchat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/redis/go-redis/v9"
)

// Module owns the storage behind the connection registry.
type Module struct {
	cfg    config.PresenceConfig
	logger types.Logger

	client *redis.Client
	redis  *RedisStore
	memory *MemoryStore
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates the presence module for the configured backend.
func NewModule(cfg config.PresenceConfig, logger types.Logger) *Module {
	m := &Module{
		cfg:    cfg,
		logger: logger.WithModule("presence"),
	}
	if cfg.Backend == config.PresenceRedis {
		m.client = redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     50,
			MinIdleConns: 5,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		})
		m.redis = NewRedisStore(m.client, cfg.Prefix)
	} else {
		m.memory = NewMemoryStore()
	}
	return m
}

// Name returns the module name.
func (m *Module) Name() string {
	return "presence"
}

// Start verifies the backend and clears mappings left by a previous run.
func (m *Module) Start(ctx context.Context) error {
	if m.redis == nil {
		m.logger.Info("Presence module started", "backend", config.PresenceMemory)
		return nil
	}
	if err := m.redis.Ping(ctx); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if err := m.redis.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset presence keys: %w", err)
	}
	m.logger.Info("Presence module started",
		"backend", config.PresenceRedis,
		"addr", m.cfg.RedisAddr,
		"prefix", m.cfg.Prefix)
	return nil
}

// Stop closes the Redis connection, if any.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}
	m.logger.Info("Presence module stopped")
	return nil
}

// Health reports backend reachability.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.redis == nil {
		return mono.HealthStatus{
			Healthy: true,
			Message: "operational",
			Details: map[string]any{"backend": config.PresenceMemory, "online": m.memory.Count()},
		}
	}
	if err := m.redis.Ping(ctx); err != nil {
		return mono.HealthStatus{
			Healthy: false,
			Message: fmt.Sprintf("redis unreachable: %v", err),
			Details: map[string]any{"backend": config.PresenceRedis},
		}
	}
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{"backend": config.PresenceRedis, "addr": m.cfg.RedisAddr},
	}
}

// PresenceStore returns the configured store.
func (m *Module) PresenceStore() domain.PresenceStore {
	if m.redis != nil {
		return m.redis
	}
	return m.memory
}
