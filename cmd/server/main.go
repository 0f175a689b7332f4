// Command main is the entry point for the minisocial backend server.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"minisocial/internal/bootstrap"
	"minisocial/internal/config"
	"minisocial/internal/observability"
	"minisocial/internal/server"

	"github.com/joho/godotenv"
)

// @title minisocial API
// @version 1.0
// @description Social feed API with posts, likes, comments and a live websocket feed

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:5000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

func main() {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    "minisocial-api",
		ServiceVersion: "1.0",
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   cfg.TracingSampleRatio,
	})
	if err != nil {
		log.Fatalf("Failed to initialize tracing: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	cancel()
	if err != nil {
		log.Fatalf("Failed to initialize runtime: %v", err)
	}

	srv := server.NewServerFromRuntime(cfg, rt)

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := shutdownTracing(ctx); err != nil {
			log.Printf("Tracing shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s...", cfg.Port)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
