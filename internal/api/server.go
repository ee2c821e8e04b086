package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/qcchat/qcchat/internal/api/handlers"
	"github.com/qcchat/qcchat/internal/api/middleware"
	"github.com/qcchat/qcchat/internal/api/registry"
	"github.com/qcchat/qcchat/internal/pairing"
	"github.com/qcchat/qcchat/internal/protocol"
	"github.com/qcchat/qcchat/internal/sessionfactory"
)

// ServerConfig holds the dependencies the API server is built from.
// Unlike the teacher's single SessionManager, qcchat splits the control
// plane across the factory (spec.md §4.6, listening/dialing), a
// registry (live session bookkeeping the factory itself doesn't do),
// and the local identity (keys) the pairing endpoint fingerprints.
type ServerConfig struct {
	Port     string
	Logger   *zap.SugaredLogger
	Factory  *sessionfactory.Factory
	Registry *registry.Registry
	Keys     *protocol.KeyPair
}

// Server is the qcchat control-plane HTTP API: it never carries chat
// traffic itself (that's the session/transport packages, over the
// qcchat wire protocol), only commands and status for the sessions a
// host process is managing.
type Server struct {
	app            *fiber.App
	config         ServerConfig
	sessionHandler *handlers.SessionHandler
	messageHandler *handlers.MessageHandler
	pairingHandler *handlers.PairingHandler
}

// NewServer creates a new API server.
func NewServer(config ServerConfig) *Server {
	app := fiber.New(fiber.Config{
		AppName:      "qcchatd",
		ServerHeader: "qcchatd",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-API-Key, Authorization",
		AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
	}))

	qrGen := pairing.NewGenerator(256)

	server := &Server{
		app:            app,
		config:         config,
		sessionHandler: handlers.NewSessionHandler(config.Factory, config.Registry, config.Keys, config.Logger),
		messageHandler: handlers.NewMessageHandler(config.Registry, config.Logger),
		pairingHandler: handlers.NewPairingHandler(config.Keys, qrGen),
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthHandler)

	v1 := s.app.Group("/api/v1", middleware.APIKeyAuth())

	v1.Get("/pairing/fingerprint", s.pairingHandler.Fingerprint)

	sessions := v1.Group("/sessions")
	sessions.Post("/", s.sessionHandler.Connect)
	sessions.Get("/", s.sessionHandler.List)
	sessions.Get("/:id", s.sessionHandler.Get)
	sessions.Delete("/:id", s.sessionHandler.Disconnect)
	sessions.Post("/:id/messages", s.messageHandler.Send)
	sessions.Patch("/:id/messages", s.messageHandler.Edit)
}

func (s *Server) healthHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"sessions": len(s.config.Registry.List()),
	})
}

// Start starts the server, blocking until it stops or errors.
func (s *Server) Start() error {
	return s.app.Listen(fmt.Sprintf(":%s", s.config.Port))
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	return s.app.Shutdown()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
	})
}
