package gateway

import (
	"fmt"
	"log"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"classroom/backend/internal/rpc"
)

// ServiceClients holds the gRPC clients the gateway calls.
type ServiceClients struct {
	Classroom *rpc.Client
	Health    healthpb.HealthClient

	// Keep the connection to close it when the gateway shuts down
	conn *grpc.ClientConn
}

// NewServiceClients connects to the classroom service.
// We use insecure credentials here as per the architecture (internal node communication).
func NewServiceClients(addr string) (*ServiceClients, error) {
	log.Printf("INFO: Connecting to gRPC service at %s...", addr)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	clients := NewServiceClientsFromConn(conn)
	clients.conn = conn
	return clients, nil
}

// NewServiceClientsFromConn builds the clients over an existing connection
func NewServiceClientsFromConn(cc grpc.ClientConnInterface) *ServiceClients {
	return &ServiceClients{
		Classroom: rpc.NewClient(cc),
		Health:    healthpb.NewHealthClient(cc),
	}
}

// Close closes the underlying gRPC connection.
// Should be called via defer in main().
func (sc *ServiceClients) Close() {
	if sc.conn == nil {
		return
	}
	if err := sc.conn.Close(); err != nil {
		log.Printf("WARN: Error closing gRPC connection: %v", err)
	}
}
