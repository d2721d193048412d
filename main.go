package main

import (
	"context"
	"log"
	"os"

	"github.com/example/socketchat/config"
	"github.com/example/socketchat/modules/api"
	"github.com/example/socketchat/modules/broadcast"
	"github.com/example/socketchat/modules/chat"
	"github.com/example/socketchat/modules/presence"
	"github.com/example/socketchat/modules/store"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"
)

func main() {
	log.Println("=== Socket Chat - Rooms, Direct Messages and Call Signaling ===")

	cfg := config.Load()
	level := mono.LogLevelInfo
	if cfg.LogLevel == "error" {
		level = mono.LogLevelError
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(cfg.ShutdownTimeout),
		mono.WithLogLevel(level),
		mono.WithLogFormat(mono.LogFormatText),
		mono.WithJetStreamStorageDir(cfg.JetStreamDir),
		mono.WithNATSPort(cfg.NATSPort),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	logger := app.Logger()

	// Create modules
	storeModule := store.NewModule(cfg.Store, logger)
	presenceModule := presence.NewModule(cfg.Presence, logger)
	broadcastModule := broadcast.NewModule()
	chatModule := chat.NewModule(cfg.Chat, storeModule, presenceModule, broadcastModule.GetHub(), logger)
	apiModule := api.NewModule(cfg)

	// The hub and the chat coordinator are not exposed via ServiceContainer,
	// so they are injected by hand.
	apiModule.SetHub(broadcastModule.GetHub())
	apiModule.SetChat(chatModule)

	// Register modules with the framework. Start order follows registration:
	// - store: message, user and call log persistence (ServiceProviderModule)
	// - presence: username registry backend
	// - broadcast: WebSocket hub + event consumer for system notices
	// - chat: coordinator, needs the stores and the hub (EventEmitterModule)
	// - api: Fiber HTTP/WebSocket gateway, depends on store and chat
	modules := []mono.Module{storeModule, presenceModule, broadcastModule, chatModule, apiModule}
	for _, module := range modules {
		if err := app.Register(module); err != nil {
			log.Fatalf("Failed to register %s module: %v", module.Name(), err)
		}
	}

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config.Config) {
	port := cfg.Port

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Event Bus: NATS JetStream (internal pubsub)")
	log.Printf("  - Store: %s", cfg.Store.Driver)
	log.Printf("  - Presence: %s", cfg.Presence.Backend)
	log.Println("")
	log.Printf("REST API Endpoints (http://localhost:%s):", port)
	log.Println("  GET    /health                        - Health check")
	log.Println("  GET    /api/rooms                     - List active rooms")
	log.Println("  GET    /api/rooms/:room/messages      - Room history")
	log.Println("  GET    /api/dm/:a/:b                  - Direct message history")
	log.Println("  GET    /api/users/online              - Online usernames")
	log.Println("  GET    /api/users/:username           - User profile")
	log.Println("  GET    /api/calls/:username           - Call log")
	log.Println("  POST   /upload-file                   - Share a file into a room")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", port)
	log.Println("  Frames: {\"type\": ..., \"ack\": n, \"payload\": {...}}")
	log.Println("  Start with set_username, then join_room / chat_message / call_user ...")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
