package api

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swagger "github.com/go-swagno/swagno-fiber/swagger"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/docs"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/handler"
	"github.com/saturnino-fabrica-de-software/ponto/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/ponto/internal/ws"
)

type Dependencies struct {
	Service      handler.AttendanceService
	HealthChecks map[string]handler.Pinger
	// Hub is optional; without it /ws is not mounted
	Hub *ws.Hub
	// RateLimit guards the capture routes; Max 0 leaves them unthrottled
	RateLimit   middleware.RateLimiterConfig
	CORSOrigins string
}

type Router struct {
	app         *fiber.App
	logger      *slog.Logger
	deps        *Dependencies
	rateLimiter *middleware.RateLimiter
	wsHub       *ws.Hub
	cancelHub   context.CancelFunc
}

func NewRouter(logger *slog.Logger, deps *Dependencies) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(logger),
		AppName:      "Ponto API",
		BodyLimit:    12 * 1024 * 1024,
	})

	return &Router{
		app:    app,
		logger: logger,
		deps:   deps,
	}
}

func (r *Router) Setup() {
	origins := "*"
	if r.deps != nil && r.deps.CORSOrigins != "" {
		origins = r.deps.CORSOrigins
	}

	// Global middlewares
	r.app.Use(requestid.New())
	r.app.Use(middleware.Recover(r.logger))
	r.app.Use(middleware.Logger(r.logger))
	r.app.Use(middleware.Metrics())
	r.app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	// Swagger documentation
	sw := docs.NewSwagger()
	swagger.SwaggerHandler(r.app, sw.MustToJson())

	var checks map[string]handler.Pinger
	if r.deps != nil {
		checks = r.deps.HealthChecks
	}
	healthHandler := handler.NewHealthHandler(r.logger, checks)
	r.app.Get("/health", healthHandler.Health)
	r.app.Get("/ready", healthHandler.Ready)
	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	if r.deps == nil || r.deps.Service == nil {
		return
	}

	// Capture routes call the face providers
	var limit fiber.Handler
	if r.deps.RateLimit.Max > 0 {
		r.rateLimiter = middleware.NewRateLimiter(r.deps.RateLimit)
		limit = r.rateLimiter.Handler()
	}
	capture := func(path string, next fiber.Handler) {
		if limit != nil {
			r.app.Post(path, limit, next)
			return
		}
		r.app.Post(path, next)
	}

	h := handler.NewAttendanceHandler(r.deps.Service, r.logger)

	capture("/register_new_user", h.Register)
	capture("/login", h.Login)
	r.app.Post("/logout", h.Logout)
	r.app.Get("/get_attendance_logs", h.AttendanceLogs)
	r.app.Get("/get_registered_users_logs", h.RegisteredUsers)
	r.app.Get("/status", h.CheckedIn)
	r.app.Get("/status/:email", h.Status)

	if r.deps.Hub != nil {
		r.wsHub = r.deps.Hub
		hubCtx, hubCancel := context.WithCancel(context.Background())
		r.cancelHub = hubCancel
		go r.wsHub.Run(hubCtx)

		r.app.Get("/ws", ws.UpgradeMiddleware(), ws.Handler(r.wsHub))
	}
}

func (r *Router) App() *fiber.App {
	return r.app
}

func (r *Router) Listen(addr string) error {
	return r.app.Listen(addr)
}

func (r *Router) Shutdown() error {
	// Stop WebSocket hub
	if r.cancelHub != nil {
		r.cancelHub()
	}

	// Stop rate limiter cleanup goroutine
	if r.rateLimiter != nil {
		r.rateLimiter.Stop()
	}

	return r.app.Shutdown()
}
