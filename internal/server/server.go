// Package server contains HTTP and WebSocket handlers for the feed API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	_ "minisocial/docs" // swagger docs
	"minisocial/internal/bootstrap"
	"minisocial/internal/config"
	"minisocial/internal/middleware"
	"minisocial/internal/models"
	"minisocial/internal/notifications"
	"minisocial/internal/repository"
	"minisocial/internal/service"
	"minisocial/internal/upload"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
)

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	posts          repository.PostRepository
	redis          *redis.Client
	uploader       *upload.Uploader
	mediaDir       string
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc
	hub            *notifications.Hub
	notifier       *notifications.Notifier
	broadcaster    notifications.Broadcaster
	postService    *service.PostService
	tokens         middleware.TokenOptions
	closeRuntime   func(context.Context) error
}

// Option customizes a Server built by NewServer.
type Option func(*Server)

// WithBroadcaster replaces the default hub-backed broadcaster.
func WithBroadcaster(b notifications.Broadcaster) Option {
	return func(s *Server) { s.broadcaster = b }
}

// WithRedis enables the redis notifier and the per-route rate limiter.
func WithRedis(rdb *redis.Client) Option {
	return func(s *Server) { s.redis = rdb }
}

// WithUploader sets the blob uploader used for post images.
func WithUploader(u *upload.Uploader) Option {
	return func(s *Server) { s.uploader = u }
}

// WithMediaDir serves files written by the local upload backend under /media.
func WithMediaDir(dir string) Option {
	return func(s *Server) { s.mediaDir = dir }
}

// NewServer builds a server over an already connected post repository.
func NewServer(cfg *config.Config, posts repository.PostRepository, opts ...Option) *Server {
	s := &Server{
		config:         cfg,
		posts:          posts,
		promMiddleware: middleware.InitMetrics("minisocial-api"),
		hub:            notifications.NewHub(),
		tokens: middleware.TokenOptions{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.redis != nil {
		s.notifier = notifications.NewNotifier(s.redis)
	}
	if s.broadcaster == nil {
		s.broadcaster = notifications.NewFeedBroadcaster(s.hub, s.notifier)
	}
	s.postService = service.NewPostService(s.posts, s.uploader)
	return s
}

// NewServerFromRuntime builds a server over the dependencies bootstrap connected.
// Shutdown closes them.
func NewServerFromRuntime(cfg *config.Config, rt *bootstrap.Runtime) *Server {
	s := NewServer(cfg, rt.Posts,
		WithRedis(rt.Redis),
		WithUploader(rt.Uploader),
		WithMediaDir(rt.MediaDir),
	)
	s.closeRuntime = rt.Close
	return s
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	// Panic recovery
	app.Use(recover.New())

	// Request ID for tracing
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID and User ID
	app.Use(middleware.ContextMiddleware())

	app.Use(middleware.TracingMiddleware())

	// Prometheus Metrics
	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}

	// Security headers; media is embedded cross-origin by the web client.
	app.Use(helmet.New(helmet.Config{
		CrossOriginResourcePolicy: "cross-origin",
	}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS runs before the limiter so rejected requests still carry CORS headers.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version",
		// Credentials cannot be combined with a wildcard origin.
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	perMinute := s.config.RateLimitPerMinute
	if perMinute <= 0 {
		perMinute = 100
	}
	app.Use(limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: 1 * time.Minute,
		// Never rate-limit preflight requests; they should be handled by CORS.
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	api := app.Group("/api")

	// Health checks
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)
	app.Get("/health", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	api.Get("/metrics/dashboard", monitor.New(monitor.Config{
		Title: "minisocial Metrics Dashboard",
	}))
	api.Get("/swagger/*", swagger.HandlerDefault)

	if s.mediaDir != "" {
		app.Static("/media", s.mediaDir, fiber.Static{
			MaxAge: int((24 * time.Hour).Seconds()),
		})
	}

	feedAuth := middleware.OptionalAuth(s.tokens)
	if s.config.AuthRequiredForFeed {
		feedAuth = middleware.AuthRequired(s.tokens)
	}
	authRequired := middleware.AuthRequired(s.tokens)

	posts := api.Group("/posts")
	posts.Get("/", feedAuth, s.GetPosts)
	posts.Post("/", authRequired, middleware.RateLimit(
		s.redis, 10, time.Minute, "create_post"), s.CreatePost)
	// Define specific /:id/:resource routes BEFORE generic /:id route
	posts.Post("/:id/like", authRequired, s.ToggleLike)
	posts.Post("/:id/comment", authRequired, middleware.RateLimit(
		s.redis, 30, time.Minute, "create_comment"), s.AddComment)
	posts.Get("/:id", feedAuth, s.GetPost)
	posts.Put("/:id", authRequired, s.UpdatePost)
	posts.Delete("/:id", authRequired, s.DeletePost)

	// The feed socket accepts anonymous viewers; a token only tags the connection.
	api.Get("/ws", middleware.OptionalAuth(s.tokens), s.FeedWebsocketHandler())
}

// App builds the fiber application with middleware and routes installed.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "minisocial API",
		BodyLimit: s.config.UploadMaxBytes() + 1024*1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck reports the store and, when configured, redis.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := s.posts.Ping(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	redisStatus := "disabled"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus != "healthy" || redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"store": dbStatus,
			"redis": redisStatus,
		},
		"time": time.Now(),
	})
}

// Start wires the hub to redis and serves until the listener closes.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.App()

	if err := s.StartHubWiring(s.shutdownCtx); err != nil {
		middleware.Logger.Error("feed hub wiring failed; events stay local",
			slog.String("error", err.Error()))
		if _, ok := s.broadcaster.(*notifications.FeedBroadcaster); ok {
			s.broadcaster = notifications.NewFeedBroadcaster(s.hub, nil)
		}
	}

	addr := ":" + strings.TrimPrefix(s.config.Port, ":")
	middleware.Logger.Info("server starting", slog.String("addr", addr))
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := s.hub.Shutdown(ctx); err != nil {
		middleware.Logger.Error("error shutting down feed hub", slog.String("error", err.Error()))
	}

	if s.closeRuntime != nil {
		if err := s.closeRuntime(ctx); err != nil {
			middleware.Logger.Error("error closing runtime", slog.String("error", err.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
