package config

import (
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"

	"github.com/gkeb/node4j/internal/types"
)

// EnvPrefix prefixes environment overrides: NODE4J_NEO4J_URI overrides
// neo4j.uri.
const EnvPrefix = "NODE4J"

// ConfigLoader handles loading configuration from files.
type ConfigLoader interface {
	Load(path string) (*Config, error)
	LoadWithDefaults(path string) (*Config, error)
}

// viperConfigLoader implements ConfigLoader using Viper.
type viperConfigLoader struct {
	validator ConfigValidator
}

// NewConfigLoader creates a new ConfigLoader instance.
func NewConfigLoader(validator ConfigValidator) ConfigLoader {
	return &viperConfigLoader{
		validator: validator,
	}
}

// Load loads configuration from the specified file path. Values missing
// from the file keep their defaults and NODE4J_* environment variables
// override both. Returns an error if the file doesn't exist or cannot be
// parsed.
func (l *viperConfigLoader) Load(path string) (*Config, error) {
	return l.load(path)
}

// LoadWithDefaults is Load, except that a missing file yields the default
// configuration with environment overrides applied.
func (l *viperConfigLoader) LoadWithDefaults(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return l.load("")
	}
	return l.load(path)
}

func (l *viperConfigLoader) load(path string) (*Config, error) {
	v := newViper()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, types.WrapError(types.CONFIG_LOAD_FAILED, "failed to read config file", err).
				WithContext("path", path)
		}
	}

	for _, key := range v.AllKeys() {
		if s, ok := v.Get(key).(string); ok && strings.Contains(s, "${") {
			v.Set(key, interpolateString(s))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_PARSE_FAILED, "failed to unmarshal config", err)
	}

	if err := l.validator.Validate(&cfg); err != nil {
		return nil, types.WrapError(types.CONFIG_VALIDATION_FAILED, "invalid configuration", err)
	}
	return &cfg, nil
}

// newViper returns a Viper seeded with DefaultConfig and bound to the
// environment.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	defaults := map[string]any{
		"neo4j.uri":                     d.Neo4j.URI,
		"neo4j.username":                d.Neo4j.Username,
		"neo4j.password":                d.Neo4j.Password,
		"neo4j.database":                d.Neo4j.Database,
		"neo4j.max_connections":         d.Neo4j.MaxConnections,
		"neo4j.connection_timeout":      d.Neo4j.ConnectionTimeout,
		"logging.level":                 d.Logging.Level,
		"logging.format":                d.Logging.Format,
		"tracing.enabled":               d.Tracing.Enabled,
		"tracing.endpoint":              d.Tracing.Endpoint,
		"tracing.insecure":              d.Tracing.Insecure,
		"tracing.service_name":          d.Tracing.ServiceName,
		"tracing.sample_rate":           d.Tracing.SampleRate,
		"metrics.enabled":               d.Metrics.Enabled,
		"metrics.endpoint":              d.Metrics.Endpoint,
		"metrics.insecure":              d.Metrics.Insecure,
		"metrics.interval":              d.Metrics.Interval,
		"compiler.statement_cache_size": d.Compiler.StatementCacheSize,
		"relations.connect_policy":      d.Relations.ConnectPolicy,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// interpolateString replaces ${VAR_NAME} with environment variable values.
// Unset variables are left as written.
func interpolateString(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(match string) string {
		varName := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		if envValue := os.Getenv(varName); envValue != "" {
			return envValue
		}
		return match
	})
}
