package server

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"gopkg.in/yaml.v3"
)

// Config holds the server settings. Values are layered: defaults, then an
// optional YAML file, then environment variables.
type Config struct {
	Port           string   `yaml:"port" env:"SERVER_PORT"`
	AllowedOrigins []string `yaml:"allowed_origins"` // ALLOWED_ORIGINS, comma separated
	MaxMessageSize int      `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`

	RateLimitBurst          int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	RateLimitRefillInterval time.Duration `yaml:"rate_limit_refill_interval" env:"RATE_LIMIT_REFILL_INTERVAL"`

	BroadcastCapacity int           `yaml:"broadcast_capacity" env:"BROADCAST_CAPACITY"`
	KeepaliveInterval time.Duration `yaml:"keepalive_interval" env:"KEEPALIVE_INTERVAL"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`

	StoreDriver string `yaml:"store_driver" env:"STORE_DRIVER"`
	BadgerPath  string `yaml:"badger_path" env:"BADGER_PATH"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	DBMaxConns  int    `yaml:"db_max_conns" env:"DB_MAX_CONNS"`
	DBMinConns  int    `yaml:"db_min_conns" env:"DB_MIN_CONNS"`

	JWTSecret         string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	AuthTokenDuration time.Duration `yaml:"auth_token_duration" env:"AUTH_TOKEN_DURATION"`

	UploadDir          string `yaml:"upload_dir" env:"UPLOAD_DIR"`
	MaxUploadSize      int    `yaml:"max_upload_size" env:"MAX_UPLOAD_SIZE"`
	PublicHistoryLimit int    `yaml:"public_history_limit" env:"PUBLIC_HISTORY_LIMIT"`

	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

const (
	StoreBadger   = "badger"
	StorePostgres = "postgres"
)

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Port:                    ":8080",
		AllowedOrigins:          []string{"http://localhost:8080"},
		MaxMessageSize:          4096,
		RateLimitBurst:          5,
		RateLimitRefillInterval: time.Second,
		BroadcastCapacity:       100,
		KeepaliveInterval:       54 * time.Second,
		WriteTimeout:            10 * time.Second,
		StoreDriver:             StoreBadger,
		BadgerPath:              "data/badger",
		DBMaxConns:              10,
		DBMinConns:              1,
		AuthTokenDuration:       24 * time.Hour,
		UploadDir:               "data",
		MaxUploadSize:           10 << 20,
		PublicHistoryLimit:      100,
		LogLevel:                "info",
		ShutdownTimeout:         10 * time.Second,
	}
}

// LoadConfig builds the configuration. path names an optional YAML file in
// which ${VAR} references are expanded; environment variables override it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config yaml: %w", err)
		}
	}

	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config from environment: %w", err)
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	cfg = sanitizeConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings that cannot be defaulted.
func (c Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.StoreDriver {
	case StoreBadger:
		if c.BadgerPath == "" {
			errs = append(errs, errors.New("BADGER_PATH is required for the badger store"))
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	return errors.Join(errs...)
}

// sanitizeConfig replaces unusable values with defaults.
func sanitizeConfig(cfg Config) Config {
	def := DefaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = def.RateLimitBurst
	}
	if cfg.RateLimitRefillInterval <= 0 {
		cfg.RateLimitRefillInterval = def.RateLimitRefillInterval
	}
	if cfg.BroadcastCapacity <= 0 {
		cfg.BroadcastCapacity = def.BroadcastCapacity
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = def.KeepaliveInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.AuthTokenDuration <= 0 {
		cfg.AuthTokenDuration = def.AuthTokenDuration
	}
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = def.MaxUploadSize
	}
	if cfg.PublicHistoryLimit <= 0 {
		cfg.PublicHistoryLimit = def.PublicHistoryLimit
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	if cfg.StoreDriver == "" {
		cfg.StoreDriver = def.StoreDriver
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// pongWait is how long a connection may stay silent; it leaves room for one
// keepalive round trip.
func (c Config) pongWait() time.Duration {
	return c.KeepaliveInterval * 10 / 9
}
