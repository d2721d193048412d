package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/example/socketchat/config"
	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/modules/broadcast"
	"github.com/example/socketchat/modules/chat"
	"github.com/example/socketchat/modules/store"
	"github.com/go-monolith/mono"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Coordinator is the chat API the gateway drives. *chat.Service implements it.
type Coordinator interface {
	Connect(ctx context.Context, connID string)
	Disconnect(ctx context.Context, connID string)
	SetUsername(ctx context.Context, connID, username string) (chat.ClaimResult, error)
	JoinRoom(ctx context.Context, connID, room string) ([]domain.Message, error)
	LeaveRoom(ctx context.Context, connID, room string) error
	SendRoomMessage(ctx context.Context, connID, room, content string) (*domain.Message, error)
	SendDirectMessage(ctx context.Context, connID, to, content string) (*domain.Message, bool, error)
	SendFile(ctx context.Context, connID, room string, att domain.FileAttachment) (*domain.Message, error)
	ShareUpload(ctx context.Context, username, room string, att domain.FileAttachment) (*domain.Message, error)
	MarkRead(ctx context.Context, connID string, messageID uint64) error
	Typing(ctx context.Context, connID, room string, isTyping bool)
	CallUser(ctx context.Context, connID, to string, offer json.RawMessage, isVideo bool)
	AnswerCall(ctx context.Context, connID, to string, answer json.RawMessage)
	RejectCall(ctx context.Context, connID, to, reason string)
	EndCall(ctx context.Context, connID, to string)
	IceCandidate(ctx context.Context, connID, to string, candidate json.RawMessage)
	RoomCallInvite(ctx context.Context, connID, room string, isVideo bool) error
	RoomCallJoin(ctx context.Context, connID, room string) ([]string, error)
	RoomCallSignal(ctx context.Context, connID, room, to, typ string, data json.RawMessage)
	RoomCallLeave(ctx context.Context, connID, room string) error
	OnlineUsers(ctx context.Context) []string
	Rooms() []domain.Room
}

// ChatProvider hands out the coordinator once the chat module has started.
type ChatProvider interface {
	Service() *chat.Service
}

// APIModule is the HTTP API module with WebSocket support.
type APIModule struct {
	app          *fiber.App
	history      store.HistoryPort
	hub          *broadcast.Hub
	chatProvider ChatProvider
	chat         Coordinator
	newUploadID  func() string

	port        string
	corsOrigins string
	upload      config.UploadConfig
	limits      config.RateLimitConfig
}

// Compile-time interface checks.
var _ mono.Module = (*APIModule)(nil)
var _ mono.DependentModule = (*APIModule)(nil)
var _ mono.HealthCheckableModule = (*APIModule)(nil)

// NewModule creates a new APIModule.
func NewModule(cfg config.Config) *APIModule {
	return &APIModule{
		port:        cfg.Port,
		corsOrigins: cfg.CORSAllowedOrigins,
		upload:      cfg.Upload,
		limits:      cfg.Limits,
	}
}

// Name returns the module name.
func (m *APIModule) Name() string {
	return "api"
}

// Dependencies returns the list of module dependencies.
func (m *APIModule) Dependencies() []string {
	return []string{"store"}
}

// SetDependencyServiceContainer receives service containers from dependencies.
func (m *APIModule) SetDependencyServiceContainer(dependency string, container mono.ServiceContainer) {
	switch dependency {
	case "store":
		m.history = store.NewHistoryAdapter(container)
	}
}

// SetHub sets the broadcast hub (called from main.go).
func (m *APIModule) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// SetChat sets the chat module whose coordinator serves socket events
// (called from main.go).
func (m *APIModule) SetChat(provider ChatProvider) {
	m.chatProvider = provider
}

// Start initializes the Fiber HTTP server.
func (m *APIModule) Start(_ context.Context) error {
	if m.history == nil {
		return fmt.Errorf("store history dependency not set")
	}
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}
	if m.chatProvider == nil {
		return fmt.Errorf("chat dependency not set")
	}
	svc := m.chatProvider.Service()
	if svc == nil {
		return fmt.Errorf("chat service not started")
	}
	m.chat = svc

	if err := os.MkdirAll(m.upload.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}
	newID, err := newUploadIDGenerator()
	if err != nil {
		return err
	}
	m.newUploadID = newID

	m.app = m.newApp()

	// Start server in goroutine
	go func() {
		if err := m.app.Listen(":" + m.port); err != nil {
			log.Printf("[api] HTTP server error: %v", err)
		}
	}()

	log.Printf("[api] HTTP server started on :%s", m.port)
	return nil
}

// newApp builds the Fiber app with middleware and routes.
func (m *APIModule) newApp() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
		BodyLimit:             (m.upload.MaxSizeMB + 1) * 1024 * 1024,
	})

	// Add recovery middleware
	app.Use(recover.New())

	app.Use(cors.New(cors.Config{
		AllowOrigins: m.corsOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	// Add logging middleware
	app.Use(loggerMiddleware())

	m.setupRoutes(app)
	return app
}

// Stop shuts down the Fiber HTTP server.
func (m *APIModule) Stop(_ context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[api] Shutting down HTTP server...")
	return m.app.Shutdown()
}

// Health returns the health status.
func (m *APIModule) Health(_ context.Context) mono.HealthStatus {
	details := map[string]any{"port": m.port}
	if m.hub != nil {
		details["connected_clients"] = m.hub.ClientCount()
	}
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: details,
	}
}

// customErrorHandler handles Fiber errors.
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   "server_error",
		Message: message,
	})
}

// loggerMiddleware returns a Fiber middleware for request logging.
func loggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip logging for WebSocket upgrade requests
		if c.Get("Upgrade") == "websocket" {
			return c.Next()
		}
		err := c.Next()
		log.Printf("[api] %s %s %d", c.Method(), c.Path(), c.Response().StatusCode())
		return err
	}
}
