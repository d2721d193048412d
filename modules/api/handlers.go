package api

import (
	"errors"
	"log"

	domain "github.com/example/socketchat/domain/chat"
	"github.com/example/socketchat/modules/store"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// setupRoutes configures all HTTP routes.
func (m *APIModule) setupRoutes(app *fiber.App) {
	// Health check
	app.Get("/health", m.healthHandler)

	// WebSocket endpoint
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(m.handleWebSocket))

	// Uploads
	app.Post("/upload-file", m.uploadFile)
	app.Static("/uploads", m.upload.Dir)

	api := app.Group("/api")

	api.Get("/rooms", m.listRooms)
	api.Get("/rooms/:room/messages", m.roomMessages)
	api.Get("/dm/:a/:b", m.directMessages)
	api.Get("/users/online", m.onlineUsers)
	api.Get("/users/:username", m.getUser)
	api.Get("/calls/:username", m.callLog)
}

// healthHandler handles GET /health.
func (m *APIModule) healthHandler(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status: "healthy",
		Details: map[string]any{
			"module":            "api",
			"connected_clients": m.hub.ClientCount(),
			"users_online":      len(m.chat.OnlineUsers(c.UserContext())),
		},
	})
}

// listRooms handles GET /api/rooms.
func (m *APIModule) listRooms(c *fiber.Ctx) error {
	return c.JSON(RoomListResponse{Rooms: m.chat.Rooms()})
}

// onlineUsers handles GET /api/users/online.
func (m *APIModule) onlineUsers(c *fiber.Ctx) error {
	return c.JSON(OnlineUsersResponse{UsersOnline: m.chat.OnlineUsers(c.UserContext())})
}

// roomMessages handles GET /api/rooms/:room/messages.
func (m *APIModule) roomMessages(c *fiber.Ctx) error {
	room, err := domain.NormalizeRoom(c.Params("room"))
	if err != nil {
		return badRequest(c, err)
	}
	limit := store.ClampLimit(c.QueryInt("limit", store.DefaultHistoryLimit), store.MaxRoomHistory)

	messages, err := m.history.RoomHistory(c.UserContext(), room, limit)
	if err != nil {
		return serviceError(c, "history_failed", "Failed to load room history", err)
	}
	return c.JSON(nonNilMessages(messages))
}

// directMessages handles GET /api/dm/:a/:b.
func (m *APIModule) directMessages(c *fiber.Ctx) error {
	a, err := domain.NormalizeUsername(c.Params("a"))
	if err != nil {
		return badRequest(c, err)
	}
	b, err := domain.NormalizeUsername(c.Params("b"))
	if err != nil {
		return badRequest(c, err)
	}
	limit := store.ClampLimit(c.QueryInt("limit", store.DefaultHistoryLimit), store.MaxDMHistory)

	messages, err := m.history.DirectHistory(c.UserContext(), a, b, limit)
	if err != nil {
		return serviceError(c, "history_failed", "Failed to load direct messages", err)
	}
	return c.JSON(nonNilMessages(messages))
}

// getUser handles GET /api/users/:username.
func (m *APIModule) getUser(c *fiber.Ctx) error {
	username, err := domain.NormalizeUsername(c.Params("username"))
	if err != nil {
		return badRequest(c, err)
	}

	user, err := m.history.User(c.UserContext(), username)
	if errors.Is(err, domain.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error:   "not_found",
			Message: "User not found",
		})
	}
	if err != nil {
		return serviceError(c, "lookup_failed", "Failed to load user", err)
	}
	return c.JSON(user)
}

// callLog handles GET /api/calls/:username.
func (m *APIModule) callLog(c *fiber.Ctx) error {
	username, err := domain.NormalizeUsername(c.Params("username"))
	if err != nil {
		return badRequest(c, err)
	}
	limit := store.ClampLimit(c.QueryInt("limit", store.DefaultHistoryLimit), store.MaxCallLog)

	calls, err := m.history.Calls(c.UserContext(), username, limit)
	if err != nil {
		return serviceError(c, "history_failed", "Failed to load call log", err)
	}
	if calls == nil {
		calls = []domain.CallRecord{}
	}
	return c.JSON(calls)
}

func nonNilMessages(messages []domain.Message) []domain.Message {
	if messages == nil {
		return []domain.Message{}
	}
	return messages
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error:   domain.ErrorCode(err),
		Message: err.Error(),
	})
}

func serviceError(c *fiber.Ctx, code, message string, err error) error {
	log.Printf("[api] %s: %v", message, err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   code,
		Message: message,
	})
}
