package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Neo4j: Neo4jConfig{
			URI:               "bolt://localhost:7687",
			Username:          "neo4j",
			Password:          "password",
			Database:          "",
			MaxConnections:    50,
			ConnectionTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "node4j",
			SampleRate:  1.0,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Interval: time.Minute,
		},
		Compiler: CompilerConfig{
			StatementCacheSize: 512,
		},
		Relations: RelationsConfig{
			ConnectPolicy: "always",
		},
	}
}

// DefaultHomeDir returns ~/.node4j, or a directory under the temp dir when
// the user home cannot be determined.
func DefaultHomeDir() string {
	userHome, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".node4j")
	}
	return filepath.Join(userHome, ".node4j")
}

// DefaultConfigPath returns the default config file path for a given home directory.
func DefaultConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}
