package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBUser  string
	DBPass  string
	DBHost  string
	DBPort  string
	DBName  string
	SSLMode string

	RedisHost string
	RedisPort string

	NatsHost string
	NatsPort string

	ApiPort    string
	ApiEnabled string

	JWTSecret      string
	CompletionAddr string
	LogLevel       string

	// DefaultChargeCents is the charge recorded on a payment row created by
	// the webhook-first path, where the provider event carries credits but
	// no charge breakdown.
	DefaultChargeCents int64
}

// New loads and validates configuration from environment variables.
// NATS is optional: if SCRIVO_NATS_HOST is empty the bus simply isn't wired
// and credit events are not published. The same applies to the HTTP API via
// ApiAddr().
func New() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:             os.Getenv("SCRIVO_POSTGRES_USER"),
		DBPass:             os.Getenv("SCRIVO_POSTGRES_PASSWORD"),
		DBHost:             os.Getenv("SCRIVO_POSTGRES_HOST"),
		DBPort:             os.Getenv("SCRIVO_POSTGRES_PORT"),
		DBName:             os.Getenv("SCRIVO_POSTGRES_DB"),
		SSLMode:            os.Getenv("SCRIVO_POSTGRES_SSLMODE"),
		RedisHost:          os.Getenv("SCRIVO_REDIS_HOST"),
		RedisPort:          os.Getenv("SCRIVO_REDIS_PORT"),
		NatsHost:           os.Getenv("SCRIVO_NATS_HOST"),
		NatsPort:           os.Getenv("SCRIVO_NATS_PORT"),
		ApiPort:            os.Getenv("SCRIVO_API_PORT"),
		ApiEnabled:         os.Getenv("SCRIVO_API_ENABLED"),
		JWTSecret:          os.Getenv("SCRIVO_JWT_SECRET"),
		CompletionAddr:     os.Getenv("SCRIVO_COMPLETION_ADDR"),
		LogLevel:           getEnvDefault("SCRIVO_LOG_LEVEL", "info"),
		DefaultChargeCents: getEnvInt64("SCRIVO_DEFAULT_CHARGE_CENTS", 3000),
	}

	// Required: database
	if cfg.DBUser == "" || cfg.DBHost == "" || cfg.DBName == "" || cfg.SSLMode == "" {
		return nil, fmt.Errorf("missing required env for database: SCRIVO_POSTGRES_USER/HOST/DB/SSLMODE")
	}

	// Required: redis (webhook dedup fast path)
	if cfg.RedisHost == "" || cfg.RedisPort == "" {
		return nil, fmt.Errorf("missing required env for redis: SCRIVO_REDIS_HOST/PORT")
	}

	// Required: token signing
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("missing required env: SCRIVO_JWT_SECRET")
	}

	if cfg.NatsHost != "" && cfg.NatsPort == "" {
		return nil, fmt.Errorf("SCRIVO_NATS_PORT is required when SCRIVO_NATS_HOST is set")
	}

	return cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBName, c.SSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func (c *Config) NatsAddr() string {
	return fmt.Sprintf("nats://%s:%s", c.NatsHost, c.NatsPort)
}

// NatsEnabled reports whether the event bus should be wired at all.
func (c *Config) NatsEnabled() bool {
	return c.NatsHost != ""
}

// ApiAddr returns the HTTP listen address if the API is enabled.
// Returns an error if SCRIVO_API_ENABLED != "true"; callers should skip
// starting the HTTP server when the API is disabled.
func (c *Config) ApiAddr() (string, error) {
	if c.ApiEnabled == "true" {
		if c.ApiPort == "" {
			return "", fmt.Errorf("SCRIVO_API_PORT is required when SCRIVO_API_ENABLED=true")
		}
		return ":" + c.ApiPort, nil
	}
	return "", fmt.Errorf("HTTP API is disabled (SCRIVO_API_ENABLED != true)")
}

func getEnvDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var intVal int64
	if _, err := fmt.Sscanf(val, "%d", &intVal); err != nil {
		return defaultVal
	}
	return intVal
}
