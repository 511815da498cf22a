// Package web exposes the conversation engine over HTTP and websocket.
package web

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/voxcart/voxcart/pkg/engine"
	"github.com/voxcart/voxcart/pkg/hub"
)

// Config holds server configuration.
type Config struct {
	// Port to listen on.
	Port string

	// BodyLimit caps request body size in bytes, sized for audio uploads.
	BodyLimit int

	// Logger for request-level events.
	Logger *slog.Logger
}

// DefaultConfig returns server defaults.
func DefaultConfig() Config {
	return Config{
		Port:      "8080",
		BodyLimit: 32 << 20,
		Logger:    slog.Default(),
	}
}

// Server routes conversation requests to the engine and fans events out
// through the hub.
type Server struct {
	app    *fiber.App
	engine *engine.Engine
	events *hub.Hub
	config Config
	logger *slog.Logger
}

// NewServer creates the HTTP server. The hub must already be running.
func NewServer(eng *engine.Engine, events *hub.Hub, cfg Config) *Server {
	def := DefaultConfig()
	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.BodyLimit == 0 {
		cfg.BodyLimit = def.BodyLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		engine: eng,
		events: events,
		config: cfg,
		logger: cfg.Logger.With("component", "web"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voxcart",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/health", s.handleHealth)
	api.Post("/conversations", s.handleStartConversation)
	api.Post("/conversations/:id/voice", s.handleVoiceTurn)
	api.Delete("/conversations/:id", s.handleEndConversation)
	api.Post("/text", s.handleTextTurn)
	api.Get("/users/:id/history", s.handleHistory)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEventsWS))

	s.app = app
	return s
}

// Start listens on the configured port. Blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Info("listening", "port", s.config.Port)
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// handleEventsWS attaches an observer to the event hub.
func (s *Server) handleEventsWS(c *websocket.Conn) {
	client := hub.NewClient(s.events, c)
	client.Run()
}
