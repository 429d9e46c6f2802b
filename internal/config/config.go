package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tourbook/internal/cache"
	"tourbook/internal/database"
	"tourbook/internal/external"
	"tourbook/internal/messaging"
)

type Config struct {
	HTTP      HTTPConfig `yaml:"http"`
	LogLevel  string     `yaml:"log_level"`
	LogFormat string     `yaml:"log_format"`

	Database      database.Config     `yaml:"database"`
	NATS          messaging.Config    `yaml:"nats"`
	Redis         cache.Config        `yaml:"redis"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Payment       PaymentConfig       `yaml:"payment"`
	Booking       BookingConfig       `yaml:"booking"`
}

type HTTPConfig struct {
	Port           string        `yaml:"port"`
	GinMode        string        `yaml:"gin_mode"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// DebugErrors adds errorId and stack to error responses.
	DebugErrors    bool     `yaml:"debug_errors"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type PaymentConfig struct {
	Gateway     external.PaymentConfig `yaml:"gateway"`
	Currency    string                 `yaml:"currency"`
	CallbackURL string                 `yaml:"callback_url"`
}

type BookingConfig struct {
	// PendingHold is how long a PENDING booking keeps its inventory unit.
	PendingHold   time.Duration `yaml:"pending_hold"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

func defaults() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Port:           "8080",
			GinMode:        "debug",
			RequestTimeout: 30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		LogLevel:  "info",
		LogFormat: "json",
		Database: database.Config{
			Host:               "localhost",
			Port:               5432,
			User:               "tourbook",
			Password:           "tourbook",
			DBName:             "tourbook",
			SSLMode:            "disable",
			MaxOpenConns:       50,
			MaxIdleConns:       10,
			ConnMaxLifetimeMin: 5,
			ConnMaxIdleTimeMin: 1,
		},
		NATS: messaging.Config{
			URL:       "nats://localhost:4222",
			ClusterID: "tourbook",
			ClientID:  "tourbook-api",
			Enabled:   true,
		},
		Redis: cache.Config{
			Addr:         "localhost:6379",
			UsersHashKey: "users:auth",
			WebhookTTL:   24 * time.Hour,
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:    true,
			URL:        "http://localhost:9200",
			Index:      "bookings",
			MaxRetries: 3,
			Timeout:    30 * time.Second,
		},
		Payment: PaymentConfig{
			Gateway: external.PaymentConfig{
				BaseURL: "https://api.paystack.co",
				Timeout: 15 * time.Second,
			},
			Currency: "NGN",
		},
		Booking: BookingConfig{
			PendingHold:   30 * time.Minute,
			SweepInterval: time.Minute,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE and the environment, in that order of precedence. A .env file in
// the working directory is loaded into the environment first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTP.Port = getEnv("PORT", c.HTTP.Port)
	c.HTTP.GinMode = getEnv("GIN_MODE", c.HTTP.GinMode)
	c.HTTP.RequestTimeout = time.Duration(getEnvInt("REQUEST_TIMEOUT_SEC", int(c.HTTP.RequestTimeout/time.Second))) * time.Second
	c.HTTP.DebugErrors = getEnvBool("DEBUG_ERRORS", c.HTTP.DebugErrors)
	c.HTTP.AllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", c.HTTP.AllowedOrigins)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	db := &c.Database
	db.Host = getEnv("DB_HOST", db.Host)
	db.Port = getEnvInt("DB_PORT", db.Port)
	db.User = getEnv("DB_USER", db.User)
	db.Password = getEnv("DB_PASSWORD", db.Password)
	db.DBName = getEnv("DB_NAME", db.DBName)
	db.SSLMode = getEnv("DB_SSLMODE", db.SSLMode)
	db.MaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", db.MaxOpenConns)
	db.MaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", db.MaxIdleConns)
	db.ConnMaxLifetimeMin = getEnvInt("DB_CONN_MAX_LIFETIME_MIN", db.ConnMaxLifetimeMin)
	db.ConnMaxIdleTimeMin = getEnvInt("DB_CONN_MAX_IDLE_TIME_MIN", db.ConnMaxIdleTimeMin)

	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.NATS.ClusterID = getEnv("NATS_CLUSTER_ID", c.NATS.ClusterID)
	c.NATS.ClientID = getEnv("NATS_CLIENT_ID", c.NATS.ClientID)
	c.NATS.Enabled = getEnvBool("NATS_ENABLED", c.NATS.Enabled)

	c.Redis.Addr = getEnv("VALKEY_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("VALKEY_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("VALKEY_DB", c.Redis.DB)
	c.Redis.UsersHashKey = getEnv("VALKEY_USERS_HASH_KEY", c.Redis.UsersHashKey)
	c.Redis.WebhookTTL = getEnvDuration("VALKEY_WEBHOOK_TTL", c.Redis.WebhookTTL)

	c.Elasticsearch.applyEnv()

	c.Payment.Gateway.BaseURL = getEnv("PAYMENT_GATEWAY_URL", c.Payment.Gateway.BaseURL)
	c.Payment.Gateway.SecretKey = getEnv("PAYMENT_SECRET_KEY", c.Payment.Gateway.SecretKey)
	c.Payment.Gateway.Timeout = time.Duration(getEnvInt("PAYMENT_TIMEOUT_SEC", int(c.Payment.Gateway.Timeout/time.Second))) * time.Second
	c.Payment.Currency = getEnv("PAYMENT_CURRENCY", c.Payment.Currency)
	c.Payment.CallbackURL = getEnv("PAYMENT_CALLBACK_URL", c.Payment.CallbackURL)

	c.Booking.PendingHold = getEnvDuration("BOOKING_PENDING_HOLD", c.Booking.PendingHold)
	c.Booking.SweepInterval = getEnvDuration("BOOKING_SWEEP_INTERVAL", c.Booking.SweepInterval)
}

func (c *Config) Validate() error {
	if c.HTTP.Port == "" {
		return fmt.Errorf("config: http port is required")
	}
	if c.Payment.Currency == "" {
		return fmt.Errorf("config: payment currency is required")
	}
	if c.Booking.PendingHold <= 0 {
		return fmt.Errorf("config: booking pending hold must be positive")
	}
	if c.Booking.SweepInterval <= 0 {
		return fmt.Errorf("config: booking sweep interval must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
