package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"

	"github.com/carelink/telehealth-signaling/internal/config"
	"github.com/carelink/telehealth-signaling/internal/handler"
	"github.com/carelink/telehealth-signaling/internal/hub"
	"github.com/carelink/telehealth-signaling/internal/metrics"
	"github.com/carelink/telehealth-signaling/internal/middleware"
	"github.com/carelink/telehealth-signaling/internal/registry"
	"github.com/carelink/telehealth-signaling/internal/router"
)

func main() {
	log.Println("Starting telehealth signaling relay")

	// Optional .env file for local runs; the deployed instance uses real
	// environment variables.
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create metrics collector
	m := metrics.NewPrometheusCollector()

	// Create registry, router and hub
	reg := registry.New()
	rt := router.New(reg, m)
	h := hub.NewHub(cfg.WebSocket, reg, rt, m)
	go h.Run()

	// Create handlers
	wsHandler := handler.NewWebSocketHandler(cfg, h)
	httpHandler := handler.NewHTTPHandler(cfg, reg, m)

	// Create HTTP router. The WebSocket endpoint is mounted outside the
	// middleware chain: the response-writer wrappers would hide the Hijacker
	// the upgrader needs.
	muxRouter := mux.NewRouter()
	muxRouter.Handle(cfg.WebSocket.Path, wsHandler)

	api := muxRouter.NewRoute().Subrouter()
	api.Use(middleware.Recovery, middleware.Logging, middleware.Metrics)
	httpHandler.SetupRoutes(api)

	// Create HTTP server
	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      muxRouter,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	// Start HTTP server
	go func() {
		log.Printf("Starting HTTP server on %s", cfg.HTTP.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// Stop the hub
	h.Shutdown()

	log.Println("Server shutdown complete")
}
