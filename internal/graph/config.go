package graph

import (
	"time"

	"github.com/gkeb/node4j/internal/types"
)

// ErrCodeInvalidConfig marks an invalid client configuration.
const ErrCodeInvalidConfig types.ErrorCode = "GRAPH_INVALID_CONFIG"

// Config contains the connection settings for the Neo4j driver.
type Config struct {
	// URI is the connection URI for the graph database.
	// For Neo4j, use:
	//   - "bolt://host:port" for unencrypted connections
	//   - "bolt+s://host:port" for TLS encrypted connections
	//   - "neo4j://" or "neo4j+s://" for routing
	URI string

	// Username for basic authentication. Empty disables authentication.
	Username string

	// Password for basic authentication.
	Password string

	// Database name to connect to.
	// Empty string uses the default database.
	Database string

	// MaxConnectionPoolSize limits the number of connections in the pool.
	// Zero or negative values use the driver default.
	MaxConnectionPoolSize int

	// ConnectionTimeout bounds connection acquisition and the initial
	// connectivity check.
	ConnectionTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URI:                   "bolt://localhost:7687",
		Username:              "neo4j",
		Password:              "password",
		Database:              "",
		MaxConnectionPoolSize: 50,
		ConnectionTimeout:     30 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.URI == "" {
		return types.NewError(ErrCodeInvalidConfig, "URI cannot be empty")
	}
	if c.Username != "" && c.Password == "" {
		return types.NewError(ErrCodeInvalidConfig, "Password cannot be empty when Username is set")
	}
	if c.ConnectionTimeout <= 0 {
		return types.NewError(ErrCodeInvalidConfig, "ConnectionTimeout must be positive")
	}
	return nil
}
