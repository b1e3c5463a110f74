package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"classroom/backend/internal/gateway"
	"classroom/backend/internal/shared"
)

func main() {
	log.Println("INFO: Starting Gateway Service...")

	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}
	config, err := shared.LoadGatewayConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := shared.ValidateGatewayConfig(config); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 1. Initialize gRPC Clients
	serviceClients, err := gateway.NewServiceClients(config.ClassroomAddr)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	defer serviceClients.Close()

	// 2. Setup Routes and Middleware
	router := gateway.SetupRoutes(serviceClients, config.CORS)

	// 3. Configure Server
	// No WriteTimeout: live statistics websockets stay open; regular routes
	// are bounded by the router's timeout middleware
	server := &http.Server{
		Addr:              ":" + config.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 4. Start Server in a Goroutine
	go func() {
		log.Printf("INFO: Gateway listening on port %s", config.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("FATAL: HTTP server error: %v", err)
		}
	}()

	// 5. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("INFO: Shutting down Gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("WARN: Gateway shutdown: %v", err)
	}
	log.Println("INFO: Gateway stopped.")
}
