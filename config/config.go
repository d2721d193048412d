// Package config loads runtime settings from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers.
const (
	StoreSQLite = "sqlite"
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

// Presence backends.
const (
	PresenceMemory = "memory"
	PresenceRedis  = "redis"
)

// Config holds every tunable of the service.
type Config struct {
	Port               string
	CORSAllowedOrigins string
	NATSPort           int
	JetStreamDir       string
	LogLevel           string
	ShutdownTimeout    time.Duration

	Chat     ChatConfig
	Store    StoreConfig
	Presence PresenceConfig
	Upload   UploadConfig
	Limits   RateLimitConfig
}

// ChatConfig tunes the coordination core.
type ChatConfig struct {
	DefaultRoom     string
	HistoryLimit    int
	CallTimeout     time.Duration
	PurgeEmptyRooms bool
	OfflineInbox    bool
}

// StoreConfig selects and configures the message store.
type StoreConfig struct {
	Driver           string
	Path             string
	DSN              string
	MemoryHistoryCap int
}

// PresenceConfig selects and configures the registry backing store.
type PresenceConfig struct {
	Backend       string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

// UploadConfig configures the file upload endpoint.
type UploadConfig struct {
	Dir       string
	MaxSizeMB int
}

// RateLimitConfig bounds per-connection inbound events.
type RateLimitConfig struct {
	PerSecond int
	Burst     int
}

// Load reads the configuration from environment variables, applying defaults.
func Load() Config {
	cfg := Config{
		Port:               getEnv("PORT", "3000"),
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		NATSPort:           getEnvInt("NATS_PORT", 4222),
		JetStreamDir:       getEnv("JETSTREAM_DIR", "/tmp/socketchat-jetstream"),
		LogLevel:           strings.ToLower(getEnv("LOG_LEVEL", "info")),
		ShutdownTimeout:    getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		Chat: ChatConfig{
			DefaultRoom:     getEnv("DEFAULT_ROOM", "general"),
			HistoryLimit:    getEnvInt("HISTORY_LIMIT", 50),
			CallTimeout:     getEnvDuration("CALL_TIMEOUT", 30*time.Second),
			PurgeEmptyRooms: getEnvBool("PURGE_EMPTY_ROOMS", true),
			OfflineInbox:    getEnvBool("OFFLINE_INBOX", false),
		},
		Store: StoreConfig{
			Driver:           strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
			Path:             getEnv("DB_PATH", "socketchat.db"),
			DSN:              getEnv("DB_DSN", ""),
			MemoryHistoryCap: getEnvInt("MEMORY_HISTORY_CAP", 500),
		},
		Presence: PresenceConfig{
			Backend:       strings.ToLower(getEnv("PRESENCE_BACKEND", PresenceMemory)),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
			Prefix:        getEnv("PRESENCE_PREFIX", "socketchat:presence:"),
		},
		Upload: UploadConfig{
			Dir:       getEnv("UPLOAD_DIR", "./uploads"),
			MaxSizeMB: getEnvInt("MAX_UPLOAD_MB", 20),
		},
		Limits: RateLimitConfig{
			PerSecond: getEnvInt("RATE_LIMIT_PER_SECOND", 10),
			Burst:     getEnvInt("RATE_LIMIT_BURST", 20),
		},
	}
	cfg.sanitize()
	return cfg
}

func (c *Config) sanitize() {
	if c.Chat.HistoryLimit <= 0 {
		c.Chat.HistoryLimit = 50
	}
	if c.Chat.CallTimeout <= 0 {
		c.Chat.CallTimeout = 30 * time.Second
	}
	if strings.TrimSpace(c.Chat.DefaultRoom) == "" {
		c.Chat.DefaultRoom = "general"
	}
	if c.Store.MemoryHistoryCap <= 0 {
		c.Store.MemoryHistoryCap = 500
	}
	if c.Upload.MaxSizeMB <= 0 {
		c.Upload.MaxSizeMB = 20
	}
	if c.Limits.PerSecond <= 0 {
		c.Limits.PerSecond = 10
	}
	if c.Limits.Burst < c.Limits.PerSecond {
		c.Limits.Burst = c.Limits.PerSecond
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("[config] Warning: invalid int value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("[config] Warning: invalid bool value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Printf("[config] Warning: invalid duration value for %s: %s, using default: %s", key, value, defaultValue)
	}
	return defaultValue
}
