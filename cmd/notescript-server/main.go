// notescript-server is the NoteScript evaluation service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/notevault/notescript/internal/api"
	"github.com/notevault/notescript/internal/config"
	"github.com/notevault/notescript/internal/events"
	"github.com/notevault/notescript/internal/history"
	"github.com/notevault/notescript/internal/vault"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	devMode := flag.Bool("dev", false, "Enable development mode (no auth, in-memory store)")
	port := flag.Int("port", 8080, "Server port")
	flag.Parse()

	// Load configuration (uses defaults if no config file found)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Override with flags
	if *port != 8080 {
		cfg.Server.Port = *port
	}

	// Development mode
	if *devMode {
		log.Println("Running in development mode")
		cfg.Auth.ServiceToken = ""
		cfg.MongoDB.Enabled = false
		cfg.Redis.Enabled = false
		cfg.History.Enabled = false
	}

	// Vault storage
	var svc vault.Service
	if cfg.MongoDB.Enabled {
		store, err := vault.NewMongoStore(cfg.MongoDB.URI, cfg.MongoDB.Database)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			store.Close(ctx)
		}()
		log.Printf("Connected to MongoDB: %s", cfg.MongoDB.Database)
		svc = store
	} else {
		log.Println("Using in-memory vault store")
		svc = vault.NewMemoryStore()
	}

	// Evaluation history
	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.NewStore(cfg.History.DatabaseDSN)
		if err != nil {
			log.Fatalf("Failed to connect to PostgreSQL: %v", err)
		}
		defer hist.Close()
		log.Println("Connected to PostgreSQL history store")
	}

	// Event publishing
	var publisher *events.Publisher
	if cfg.Redis.Enabled {
		redisClient, err := events.ConnectRedis(&cfg.Redis)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		publisher = events.NewPublisher(redisClient)
		log.Printf("Connected to Redis: %s", cfg.Redis.Addr)
	}

	// Create server
	server := api.NewServer(cfg, svc, hist, publisher)

	// Configure HTTP server
	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Starting NoteScript server on port %d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
