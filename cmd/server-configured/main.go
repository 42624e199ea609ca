package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/datafed/fednode/pkg/fednode/api"
	"github.com/datafed/fednode/pkg/fednode/config"
)

func main() {
	// Load configuration from environment
	serverConfig, err := config.Load(config.WithEnv("FEDNODE_"))
	if err != nil {
		log.Fatalf("Failed to load server configuration: %v", err)
	}

	// Verify database connectivity before taking traffic
	if serverConfig.DatabaseType == "postgres" {
		if err := config.PingPostgres(serverConfig.DatabaseURL, serverConfig.DBSchema); err != nil {
			log.Fatalf("Database check failed: %v", err)
		}
	}

	// Build service from configuration
	svc, err := serverConfig.BuildService()
	if err != nil {
		log.Fatalf("Failed to build service: %v", err)
	}

	var tokenAuth *jwtauth.JWTAuth
	if serverConfig.JWTSecret != "" {
		tokenAuth = jwtauth.New("HS256", []byte(serverConfig.JWTSecret), nil)
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})

	r.Mount("/v1", api.Routes(svc, tokenAuth))

	// Create HTTP server instance
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%s", serverConfig.Port),
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Member node starting on port %s (env: %s)", serverConfig.Port, serverConfig.Environment)
		log.Printf("Node: %s, scope: %s", serverConfig.NodeID, serverConfig.ScopeName)
		log.Printf("Database: %s, storage: %s", serverConfig.DatabaseType, serverConfig.DefaultStorageBackend)

		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Create a deadline to wait for
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown server gracefully
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}
