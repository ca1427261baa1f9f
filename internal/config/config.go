package config

import (
	"time"

	"github.com/gkeb/node4j/internal/graph"
)

// Config is the root configuration for node4j.
type Config struct {
	Neo4j     Neo4jConfig     `mapstructure:"neo4j" yaml:"neo4j" validate:"required"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Tracing   TracingConfig   `mapstructure:"tracing" yaml:"tracing"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Compiler  CompilerConfig  `mapstructure:"compiler" yaml:"compiler"`
	Relations RelationsConfig `mapstructure:"relations" yaml:"relations"`
}

// Neo4jConfig contains Neo4j connection settings.
type Neo4jConfig struct {
	URI               string        `mapstructure:"uri" yaml:"uri" validate:"required"`
	Username          string        `mapstructure:"username" yaml:"username"`
	Password          string        `mapstructure:"password" yaml:"password"`
	Database          string        `mapstructure:"database" yaml:"database"`
	MaxConnections    int           `mapstructure:"max_connections" yaml:"max_connections" validate:"min=1,max=1000"`
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout" yaml:"connection_timeout" validate:"min=1s"`
}

// GraphConfig converts the settings for graph.NewClient.
func (c Neo4jConfig) GraphConfig() graph.Config {
	return graph.Config{
		URI:                   c.URI,
		Username:              c.Username,
		Password:              c.Password,
		Database:              c.Database,
		MaxConnectionPoolSize: c.MaxConnections,
		ConnectionTimeout:     c.ConnectionTimeout,
	}
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=json text"`
}

// TracingConfig contains distributed tracing configuration. Spans are
// exported over OTLP/gRPC to Endpoint, or written to stdout when Endpoint
// is empty.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate" yaml:"sample_rate" validate:"min=0,max=1"`
}

// MetricsConfig contains metrics export configuration. Metrics are pushed
// over OTLP/gRPC to Endpoint.
type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool          `mapstructure:"insecure" yaml:"insecure"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval" validate:"min=1s"`
}

// CompilerConfig tunes the statement compiler.
type CompilerConfig struct {
	// StatementCacheSize bounds the compiled predicate cache. Zero disables it.
	StatementCacheSize int `mapstructure:"statement_cache_size" yaml:"statement_cache_size" validate:"min=0"`
}

// RelationsConfig tunes relationship writes.
type RelationsConfig struct {
	// ConnectPolicy is "always" (every connect adds an edge) or "dedupe"
	// (connect merges onto an existing edge).
	ConnectPolicy string `mapstructure:"connect_policy" yaml:"connect_policy" validate:"oneof=always dedupe"`
}
