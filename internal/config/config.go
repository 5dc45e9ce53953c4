// Package config provides configuration management for the products API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Default configuration values.
const (
	DefaultServerPort         = 8080
	DefaultLogLevel           = "info"
	DefaultShutdownTimeout    = 30 * time.Second
	DefaultMetricsEnabled     = true
	DefaultDataFilePath       = "productos.json"
	DefaultStoreDriver        = "file"
	DefaultCORSAllowedOrigins = "*"
	DefaultStrictNotFound     = false
	DefaultWebSocketEnabled   = true
	DefaultEnvFile            = ".env"
)

// Environment variable names.
const (
	EnvPrefix             = "APP_"
	EnvPort               = "PORT"
	EnvConfigFile         = "APP_CONFIG_FILE"
	EnvServerPort         = "APP_SERVER_PORT"
	EnvLogLevel           = "APP_LOG_LEVEL"
	EnvShutdownTimeout    = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled     = "APP_METRICS_ENABLED"
	EnvDataFilePath       = "APP_DATA_FILE_PATH"
	EnvStoreDriver        = "APP_STORE_DRIVER"
	EnvCORSAllowedOrigins = "APP_CORS_ALLOWED_ORIGINS"
	EnvStrictNotFound     = "APP_STRICT_NOT_FOUND"
	EnvRateLimitRPS       = "APP_RATE_LIMIT_RPS"
	EnvRateLimitBurst     = "APP_RATE_LIMIT_BURST"
	EnvWebSocketEnabled   = "APP_WEBSOCKET_ENABLED"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int           `koanf:"server_port" validate:"min=1,max=65535"`
	LogLevel        string        `koanf:"log_level" validate:"oneof=debug info warn error"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
	MetricsEnabled  bool          `koanf:"metrics_enabled"`

	// Storage settings.
	DataFilePath string `koanf:"data_file_path" validate:"required_if=StoreDriver file"`
	StoreDriver  string `koanf:"store_driver" validate:"oneof=file memory"`

	// HTTP API behaviour.
	// CORSAllowedOrigins is a comma separated list; "*" allows any origin,
	// an empty value disables CORS headers.
	CORSAllowedOrigins string  `koanf:"cors_allowed_origins"`
	StrictNotFound     bool    `koanf:"strict_not_found"`
	RateLimitRPS       float64 `koanf:"rate_limit_rps" validate:"gte=0"`
	RateLimitBurst     int     `koanf:"rate_limit_burst" validate:"gte=0"`
	WebSocketEnabled   bool    `koanf:"websocket_enabled"`
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidStoreDriver     = errors.New("store driver must be one of: file, memory")
	ErrInvalidDataFilePath    = errors.New("data file path must be set when store driver is file")
	ErrInvalidRateLimit       = errors.New("rate limit rps and burst must not be negative")
)

// fieldErrors maps struct fields to the sentinel reported when they fail validation.
var fieldErrors = map[string]error{
	"ServerPort":      ErrInvalidServerPort,
	"LogLevel":        ErrInvalidLogLevel,
	"ShutdownTimeout": ErrInvalidShutdownTimeout,
	"StoreDriver":     ErrInvalidStoreDriver,
	"DataFilePath":    ErrInvalidDataFilePath,
	"RateLimitRPS":    ErrInvalidRateLimit,
	"RateLimitBurst":  ErrInvalidRateLimit,
}

var validate = validator.New()

// defaults returns the built-in configuration layer.
func defaults() map[string]any {
	return map[string]any{
		"server_port":          DefaultServerPort,
		"log_level":            DefaultLogLevel,
		"shutdown_timeout":     DefaultShutdownTimeout,
		"metrics_enabled":      DefaultMetricsEnabled,
		"data_file_path":       DefaultDataFilePath,
		"store_driver":         DefaultStoreDriver,
		"cors_allowed_origins": DefaultCORSAllowedOrigins,
		"strict_not_found":     DefaultStrictNotFound,
		"rate_limit_rps":       0.0,
		"rate_limit_burst":     0,
		"websocket_enabled":    DefaultWebSocketEnabled,
	}
}

// Load reads configuration with the following precedence, lowest first:
// defaults, the YAML file at configFile (or $APP_CONFIG_FILE), a .env file in
// the working directory, $PORT, and APP_* environment variables.
func Load(configFile string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configFile == "" {
		configFile = os.Getenv(EnvConfigFile)
	}
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configFile, err)
		}
	}

	if err := loadEnvFile(k, DefaultEnvFile); err != nil {
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPort, ".", portKey), nil); err != nil {
		return nil, fmt.Errorf("loading %s: %w", EnvPort, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadEnvFile merges APP_* entries of a dotenv file, if present.
func loadEnvFile(k *koanf.Koanf, path string) error {
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	m := make(map[string]any, len(values))
	for name, value := range values {
		if key := envKey(name); key != "" {
			m[key] = value
		}
	}

	if err := k.Load(confmap.Provider(m, "."), nil); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	return nil
}

// envKey turns APP_SERVER_PORT into server_port. Names without the prefix
// are ignored.
func envKey(name string) string {
	if !strings.HasPrefix(name, EnvPrefix) || name == EnvConfigFile {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
}

// portKey maps exactly $PORT onto the server port.
func portKey(name string) string {
	if name != EnvPort {
		return ""
	}
	return "server_port"
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	for _, fieldErr := range validationErrors {
		if sentinel, ok := fieldErrors[fieldErr.StructField()]; ok {
			return sentinel
		}
	}

	return validationErrors
}

// AllowedOrigins returns the parsed CORS origin list. An empty result means
// CORS is disabled.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.CORSAllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

// RateLimitEnabled reports whether requests should be throttled.
func (c *Config) RateLimitEnabled() bool {
	return c.RateLimitRPS > 0
}

// EffectiveRateLimitBurst returns the configured burst, or the per-second
// rate rounded up when no burst was set.
func (c *Config) EffectiveRateLimitBurst() int {
	if c.RateLimitBurst > 0 {
		return c.RateLimitBurst
	}
	burst := int(c.RateLimitRPS)
	if float64(burst) < c.RateLimitRPS {
		burst++
	}
	if burst < 1 {
		burst = 1
	}
	return burst
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}
