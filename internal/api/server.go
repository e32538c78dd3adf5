// Package api exposes the REST surface the web client talks to: push
// subscription lifecycle, reminder acknowledgement, and the CRUD slices
// behind the tracking UI.
package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inrcare/backend/internal/config"
	"github.com/inrcare/backend/internal/metrics"
	"github.com/inrcare/backend/internal/push"
	"github.com/inrcare/backend/internal/store"
)

// Server handles the HTTP API
type Server struct {
	app        *fiber.App
	config     *config.Config
	store      *store.Store
	dispatcher *push.Dispatcher
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// New creates a new API server
func New(cfg *config.Config, st *store.Store, dispatcher *push.Dispatcher, log *zap.Logger, m *metrics.Metrics) *Server {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	s := &Server{
		app:        app,
		config:     cfg,
		store:      st,
		dispatcher: dispatcher,
		logger:     log,
		metrics:    m,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.app.Use(recover.New())
	s.app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(s.config.Security.AllowOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	s.app.Get("/api/health", s.handleHealth)
	s.app.Get("/metrics", adaptor.HTTPHandler(
		promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}),
	))

	api := s.app.Group("/api")

	// Public: the VAPID key bootstraps registration before any auth, and
	// the taken-redirect is opened straight from a notification action.
	api.Get("/push/vapid-public-key", s.handleVAPIDPublicKey)
	api.Get("/reminders/taken", s.handleReminderTaken)

	protected := api.Use(s.authMiddleware())

	protected.Post("/push/register", s.handlePushRegister)
	protected.Post("/push/send-test", s.handlePushSendTest)
	protected.Post("/push/check", s.handlePushCheck)
	protected.Delete("/push/unregister", s.handlePushUnregister)

	protected.Get("/medications", s.handleListMedications)
	protected.Post("/medications", s.handleCreateMedication)

	protected.Get("/reminders", s.handleListReminders)
	protected.Post("/reminders", s.handleCreateReminder)
	protected.Delete("/reminders/:id", s.handleDeleteReminder)

	protected.Get("/labs", s.handleListLabResults)
	protected.Post("/labs", s.handleCreateLabResult)

	protected.Get("/logs", s.handleListMedicationLogs)
}

// Listen starts serving on the configured address
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}
