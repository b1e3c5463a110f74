// ============================================================================
// backend/internal/shared/config.go
// Shared configuration management and environment variable helpers
// ============================================================================

package shared

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ============================================================================
// Configuration Structs
// ============================================================================

// ServiceConfig holds common configuration for all binaries
type ServiceConfig struct {
	ServiceName string
	ServicePort string
	MetricsPort string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error

	// Store backend: mongo, firestore, memory
	StoreBackend string
	Store        StoreConfig
	MongoDB      MongoConfig
	Firebase     FirebaseConfig

	// Directory backend: jwt, firebase
	DirectoryBackend string

	// gRPC Configuration
	GRPC GRPCConfig

	// Security Configuration
	Security SecurityConfig
}

// StoreConfig holds the retry and cache wrappers applied to every backend
type StoreConfig struct {
	RetryAttempts int
	RetryDelay    time.Duration
	CacheTTL      time.Duration // 0 disables the point-read cache
	QueryTimeout  time.Duration
}

// FirebaseConfig holds Firestore / Firebase Auth configuration
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// GRPCConfig holds gRPC-specific configuration
type GRPCConfig struct {
	MaxRecvMsgSize    int // Maximum receive message size in bytes
	MaxSendMsgSize    int // Maximum send message size in bytes
	ConnectionTimeout time.Duration
	RequestTimeout    time.Duration
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	JWTSecret          string
	JWTExpirationHours int
	BCryptCost         int // BCrypt hashing cost (10-12 recommended)
}

// GatewayConfig holds gateway-specific configuration
type GatewayConfig struct {
	ServiceConfig
	HTTPPort      string
	ClassroomAddr string

	// CORS Configuration
	CORS CORSConfig
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           int // in seconds
}

// ============================================================================
// Configuration Loading Functions
// ============================================================================

// LoadEnv loads environment variables from .env file
func LoadEnv(envFile string) error {
	if envFile == "" {
		envFile = ".env"
	}

	if err := godotenv.Load(envFile); err != nil {
		log.Printf("WARN: %s file not found, using system environment variables", envFile)
		return err
	}

	log.Printf("INFO: Loaded environment from %s", envFile)
	return nil
}

// LoadServiceConfig loads common service configuration from environment
func LoadServiceConfig(serviceName string) (*ServiceConfig, error) {
	config := &ServiceConfig{
		ServiceName:      serviceName,
		ServicePort:      GetEnv("SERVICE_PORT", GetServicePort(serviceName)),
		MetricsPort:      GetEnv("METRICS_PORT", DefaultMetricsPort),
		Environment:      GetEnv("ENVIRONMENT", "development"),
		LogLevel:         GetEnv("LOG_LEVEL", "info"),
		StoreBackend:     strings.ToLower(GetEnv("STORE_BACKEND", StoreMongo)),
		DirectoryBackend: strings.ToLower(GetEnv("DIRECTORY_BACKEND", DirectoryJWT)),
	}

	config.Store = StoreConfig{
		RetryAttempts: GetIntEnv("STORE_RETRY_ATTEMPTS", 3),
		RetryDelay:    GetDurationEnv("STORE_RETRY_DELAY", 100*time.Millisecond),
		CacheTTL:      GetDurationEnv("STORE_CACHE_TTL", 5*time.Second),
		QueryTimeout:  GetDurationEnv("STORE_QUERY_TIMEOUT", 10*time.Second),
	}

	switch config.StoreBackend {
	case StoreMongo:
		// A missing URI is reported by ValidateServiceConfig; the gateway
		// loads this config without touching a store
		mongoConfig := DefaultMongoConfig(GetEnv("MONGO_URI", ""), GetEnv("MONGO_DB_NAME", "Classroom"))
		mongoConfig.ConnectTimeout = GetDurationEnv("MONGO_CONNECT_TIMEOUT", mongoConfig.ConnectTimeout)
		mongoConfig.MaxPoolSize = uint64(GetIntEnv("MONGO_MAX_POOL_SIZE", int(mongoConfig.MaxPoolSize)))
		mongoConfig.MinPoolSize = uint64(GetIntEnv("MONGO_MIN_POOL_SIZE", int(mongoConfig.MinPoolSize)))
		mongoConfig.MaxIdleTime = GetDurationEnv("MONGO_MAX_IDLE_TIME", mongoConfig.MaxIdleTime)
		mongoConfig.Compressors = GetStringSliceEnv("MONGO_COMPRESSORS", mongoConfig.Compressors)
		config.MongoDB = *mongoConfig
	case StoreFirestore, StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", config.StoreBackend)
	}

	config.Firebase = FirebaseConfig{
		ProjectID:       GetEnv("FIREBASE_PROJECT_ID", ""),
		CredentialsFile: GetEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
	}

	// Load gRPC configuration
	config.GRPC = GRPCConfig{
		MaxRecvMsgSize:    GetIntEnv("GRPC_MAX_RECV_MSG_SIZE", 10*1024*1024), // 10MB
		MaxSendMsgSize:    GetIntEnv("GRPC_MAX_SEND_MSG_SIZE", 10*1024*1024), // 10MB
		ConnectionTimeout: GetDurationEnv("GRPC_CONNECTION_TIMEOUT", 10*time.Second),
		RequestTimeout:    GetDurationEnv("GRPC_REQUEST_TIMEOUT", 30*time.Second),
	}

	// Load security configuration
	config.Security = SecurityConfig{
		JWTSecret:          GetEnv("JWT_SECRET", ""),
		JWTExpirationHours: GetIntEnv("JWT_EXPIRATION_HOURS", 24),
		BCryptCost:         GetIntEnv("BCRYPT_COST", 10),
	}

	return config, nil
}

// LoadGatewayConfig loads gateway-specific configuration
func LoadGatewayConfig() (*GatewayConfig, error) {
	baseConfig, err := LoadServiceConfig("gateway")
	if err != nil {
		return nil, err
	}

	config := &GatewayConfig{
		ServiceConfig: *baseConfig,
		HTTPPort:      GetEnv("HTTP_PORT", DefaultGatewayHTTPPort),
		ClassroomAddr: GetEnv("CLASSROOM_SERVICE_ADDR", "localhost:"+DefaultClassroomServicePort),
	}

	// Load CORS configuration
	config.CORS = CORSConfig{
		AllowedOrigins:   GetStringSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		AllowedMethods:   GetStringSliceEnv("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"}),
		AllowedHeaders:   GetStringSliceEnv("CORS_ALLOWED_HEADERS", []string{"Accept", "Authorization", "Content-Type"}),
		AllowCredentials: GetBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		MaxAge:           GetIntEnv("CORS_MAX_AGE", 300),
	}

	return config, nil
}

// ============================================================================
// Environment Variable Helper Functions
// ============================================================================

// GetEnv retrieves an environment variable or returns a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetIntEnv retrieves an integer environment variable or returns a default value
func GetIntEnv(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("WARN: Invalid integer value for %s: %s, using default: %d", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// GetBoolEnv retrieves a boolean environment variable or returns a default value
func GetBoolEnv(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("WARN: Invalid boolean value for %s: %s, using default: %t", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// GetDurationEnv retrieves a duration environment variable or returns a default value
// Supports format like "30s", "5m", "1h"
func GetDurationEnv(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("WARN: Invalid duration value for %s: %s, using default: %v", key, valueStr, defaultValue)
		return defaultValue
	}

	return value
}

// GetStringSliceEnv retrieves a comma-separated string list or returns a default value
func GetStringSliceEnv(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var result []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}

	return result
}

// ============================================================================
// Configuration Validation
// ============================================================================

// ValidateServiceConfig validates service configuration
func ValidateServiceConfig(config *ServiceConfig) error {
	if config.ServiceName == "" {
		return fmt.Errorf("service name is required")
	}

	if config.ServicePort == "" {
		return fmt.Errorf("service port is required")
	}

	switch config.StoreBackend {
	case StoreMongo:
		if config.MongoDB.URI == "" {
			return fmt.Errorf("MongoDB URI is required")
		}
		if config.MongoDB.Database == "" {
			return fmt.Errorf("MongoDB database name is required")
		}
	case StoreFirestore:
		if config.Firebase.ProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firestore backend")
		}
	}

	switch config.DirectoryBackend {
	case DirectoryJWT:
		if config.Security.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required for the jwt directory")
		}
	case DirectoryFirebase:
		if config.Firebase.ProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID is required for the firebase directory")
		}
	default:
		return fmt.Errorf("unknown DIRECTORY_BACKEND %q", config.DirectoryBackend)
	}

	if config.Store.RetryAttempts < 1 {
		return fmt.Errorf("STORE_RETRY_ATTEMPTS must be at least 1")
	}

	return nil
}

// ValidateGatewayConfig validates gateway configuration
// Only the gateway fields are checked; it holds no store.
func ValidateGatewayConfig(config *GatewayConfig) error {
	if config.HTTPPort == "" {
		return fmt.Errorf("HTTP port is required")
	}

	if config.ClassroomAddr == "" {
		return fmt.Errorf("classroom service address is required")
	}

	return nil
}

// ============================================================================
// Configuration Display (for debugging)
// ============================================================================

// PrintConfig prints configuration (sanitized) for debugging
func PrintConfig(config *ServiceConfig) {
	log.Println("=== Service Configuration ===")
	log.Printf("Service Name: %s", config.ServiceName)
	log.Printf("Service Port: %s", config.ServicePort)
	log.Printf("Environment: %s", config.Environment)
	log.Printf("Log Level: %s", GetLogLevel(config))
	log.Printf("Store Backend: %s", config.StoreBackend)
	log.Printf("Directory Backend: %s", config.DirectoryBackend)
	log.Printf("Store Retry: %d attempts, %v delay", config.Store.RetryAttempts, config.Store.RetryDelay)
	log.Printf("Store Cache TTL: %v", config.Store.CacheTTL)
	if config.StoreBackend == StoreMongo {
		log.Println("=== MongoDB Configuration ===")
		log.Printf("Database: %s", config.MongoDB.Database)
		log.Printf("Max Pool Size: %d", config.MongoDB.MaxPoolSize)
		log.Printf("Min Pool Size: %d", config.MongoDB.MinPoolSize)
		log.Printf("Compressors: %v", config.MongoDB.Compressors)
	}
	log.Println("=== gRPC Configuration ===")
	log.Printf("Max Recv Msg Size: %d bytes", config.GRPC.MaxRecvMsgSize)
	log.Printf("Max Send Msg Size: %d bytes", config.GRPC.MaxSendMsgSize)
	log.Printf("Connection Timeout: %v", config.GRPC.ConnectionTimeout)
	log.Println("=============================")
}

// ============================================================================
// Environment-Specific Configuration
// ============================================================================

// IsDevelopment checks if running in development environment
func IsDevelopment(config *ServiceConfig) bool {
	return config.Environment == "development"
}

// IsProduction checks if running in production environment
func IsProduction(config *ServiceConfig) bool {
	return config.Environment == "production"
}

// GetLogLevel returns the configured log level
func GetLogLevel(config *ServiceConfig) string {
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
		return config.LogLevel
	}
	return "info"
}

// ============================================================================
// Defaults
// ============================================================================

const (
	StoreMongo     = "mongo"
	StoreFirestore = "firestore"
	StoreMemory    = "memory"

	DirectoryJWT      = "jwt"
	DirectoryFirebase = "firebase"

	DefaultGatewayHTTPPort      = "8080"
	DefaultClassroomServicePort = "50061"
	DefaultMetricsPort          = "9090"
)

// GetServicePort returns the default port for a service
func GetServicePort(serviceName string) string {
	switch serviceName {
	case "gateway":
		return DefaultGatewayHTTPPort
	case "classroom-service":
		return DefaultClassroomServicePort
	}
	return DefaultClassroomServicePort
}
