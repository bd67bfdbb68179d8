package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
	Stripe    StripeConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Static    StaticConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Host                    string
	Port                    int
	ReadTimeout             time.Duration
	WriteTimeout            time.Duration
	IdleTimeout             time.Duration
	GracefulShutdownTimeout time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string // json or text
}

type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// StripeConfig carries the payment provider credential and the product
// identity used to derive price lookup keys. The secret key is never set
// process-globally; it is handed to the gateway at construction.
type StripeConfig struct {
	SecretKey      string
	PublishableKey string
	ProductName    string
	Currency       string
	SuccessURL     string
	CancelURL      string
}

// Configured reports whether payment calls can be attempted at all.
func (c StripeConfig) Configured() bool {
	return c.SecretKey != ""
}

type RedisConfig struct {
	URL           string
	PriceCacheTTL time.Duration
}

type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

// StaticConfig maps the served document routes onto files in Dir.
type StaticConfig struct {
	Dir         string
	LandingPage string
	PaymentPage string
	PrivacyPage string
	TermsPage   string
	AppLinkPage string
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:                    getEnv("SERVER_HOST", "0.0.0.0"),
			Port:                    getEnvInt("SERVER_PORT", 4242),
			ReadTimeout:             getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:            getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:             getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			GracefulShutdownTimeout: getEnvDuration("SERVER_GRACEFUL_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Port:    getEnvInt("METRICS_PORT", 9090),
			Path:    getEnv("METRICS_PATH", "/metrics"),
		},
		Stripe: StripeConfig{
			SecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
			PublishableKey: getEnv("STRIPE_PUBLIC_KEY", ""),
			ProductName:    getEnv("STRIPE_PRODUCT_NAME", "openfolio"),
			Currency:       getEnv("STRIPE_CURRENCY", "chf"),
			SuccessURL:     getEnv("STRIPE_CHECKOUT_SUCCESS_URL", "https://openfolio.ch/payment?status=success"),
			CancelURL:      getEnv("STRIPE_CHECKOUT_CANCEL_URL", "https://openfolio.ch/payment?status=cancel"),
		},
		Redis: RedisConfig{
			URL:           getEnv("REDIS_URL", ""),
			PriceCacheTTL: getEnvDuration("PRICE_CACHE_TTL", 12*time.Hour),
		},
		RateLimit: RateLimitConfig{
			Enabled:           getEnvBool("RATE_LIMIT_ENABLED", true),
			RequestsPerMinute: getEnvInt("RATE_LIMIT_RPM", 60),
		},
		Static: StaticConfig{
			Dir:         getEnv("STATIC_DIR", "."),
			LandingPage: getEnv("STATIC_LANDING_PAGE", "landing.html"),
			PaymentPage: getEnv("STATIC_PAYMENT_PAGE", "payment.html"),
			PrivacyPage: getEnv("STATIC_PRIVACY_PAGE", "privacy.html"),
			TermsPage:   getEnv("STATIC_TERMS_PAGE", "terms.html"),
			AppLinkPage: getEnv("STATIC_APP_LINK_PAGE", "app.html"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		return fmt.Errorf("rate limit rpm must be at least 1")
	}
	if c.Stripe.Currency == "" {
		return fmt.Errorf("stripe currency must not be empty")
	}
	if c.Stripe.ProductName == "" {
		return fmt.Errorf("stripe product name must not be empty")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}
