// ============================================================================
// backend/cmd/gradebook/main.go
// Entry point for the Classroom gRPC service
// ============================================================================

package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"classroom/backend/internal/directory"
	"classroom/backend/internal/enrollment"
	"classroom/backend/internal/gradebook"
	"classroom/backend/internal/metrics"
	"classroom/backend/internal/rpc"
	"classroom/backend/internal/shared"
	"classroom/backend/internal/store"
	"classroom/backend/internal/store/backends"
)

func main() {
	// Load environment variables
	if err := shared.LoadEnv(".env"); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Load service configuration
	config, err := shared.LoadServiceConfig("classroom-service")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := shared.ValidateServiceConfig(config); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	shared.PrintConfig(config)

	ctx := context.Background()

	// Open the document store
	ds, err := backends.Open(ctx, config)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer func() {
		if err := ds.Close(context.Background()); err != nil {
			log.Printf("Error closing store: %v", err)
		}
	}()
	records := store.NewRecords(ds)

	dir, err := openDirectory(ctx, config, records)
	if err != nil {
		log.Fatalf("Failed to open directory: %v", err)
	}

	// Create gRPC server
	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(config.GRPC.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(config.GRPC.MaxSendMsgSize),
		grpc.ChainUnaryInterceptor(
			metrics.UnaryServerInterceptor(),
			rpc.TimeoutInterceptor(config.GRPC.RequestTimeout),
		),
	)

	// Initialize and register the Classroom service
	server := rpc.NewServer(
		enrollment.NewService(records, enrollment.NewGenerator(), nil),
		gradebook.NewService(records, nil),
		dir,
	)
	server.Register(grpcServer)

	// Register health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(rpc.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	// Metrics listener
	go func() {
		log.Printf("INFO: Metrics listening on port %s", config.MetricsPort)
		if err := metrics.Serve(":" + config.MetricsPort); err != nil {
			log.Printf("ERROR: metrics listener stopped: %v", err)
		}
	}()

	// Start listening
	listener, err := net.Listen("tcp", ":"+config.ServicePort)
	if err != nil {
		log.Fatalf("Failed to listen on port %s: %v", config.ServicePort, err)
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Classroom Service is listening on port %s", config.ServicePort)
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down Classroom Service...")
	healthServer.SetServingStatus(rpc.ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpcServer.GracefulStop()
	log.Println("Classroom Service stopped")
}

func openDirectory(ctx context.Context, config *shared.ServiceConfig, records *store.Records) (directory.Directory, error) {
	switch config.DirectoryBackend {
	case shared.DirectoryJWT:
		return directory.NewJWTDirectory(records, config.Security), nil
	case shared.DirectoryFirebase:
		app, err := shared.NewFirebaseApp(ctx, config.Firebase)
		if err != nil {
			return nil, err
		}
		return directory.NewFirebaseDirectory(ctx, app)
	}
	return nil, fmt.Errorf("unknown directory backend %q", config.DirectoryBackend)
}
