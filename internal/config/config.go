// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Razorpay gateway
	RazorpayKeyID     string
	RazorpayKeySecret string // Shared secret for signature verification; never exposed to clients

	// Payment settings
	Currency       string // ISO currency code for orders
	OrderTTLHours  int    // Pending orders older than this are expired
	GlobalViewCost int64  // Credits charged per cross-company resume view

	// External HR backend (company/resume directory)
	DirectoryURL string

	// Security
	AdminSecret string // Admin API secret for plan management and refunds

	// Observability
	OTLPEndpoint string

	// DemoMode runs with in-memory stores and a simulated gateway.
	DemoMode bool
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultCurrency       = "INR"
	DefaultOrderTTLHours  = 24
	DefaultGlobalViewCost = 1
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RazorpayKeyID:     os.Getenv("RAZORPAY_KEY_ID"),
		RazorpayKeySecret: os.Getenv("RAZORPAY_KEY_SECRET"),
		Currency:          getEnv("CURRENCY", DefaultCurrency),
		OrderTTLHours:     getEnvInt("ORDER_TTL_HOURS", DefaultOrderTTLHours),
		GlobalViewCost:    int64(getEnvInt("GLOBAL_VIEW_COST", DefaultGlobalViewCost)),
		DirectoryURL:      os.Getenv("DIRECTORY_URL"),
		AdminSecret:       os.Getenv("ADMIN_SECRET"),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		DemoMode:          os.Getenv("DEMO_MODE") == "true",
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present.
func (c *Config) Validate() error {
	if !c.DemoMode {
		if c.RazorpayKeyID == "" {
			return fmt.Errorf("RAZORPAY_KEY_ID is required (or set DEMO_MODE=true)")
		}
		if c.RazorpayKeySecret == "" {
			return fmt.Errorf("RAZORPAY_KEY_SECRET is required (or set DEMO_MODE=true)")
		}
	}

	if c.OrderTTLHours <= 0 {
		return fmt.Errorf("ORDER_TTL_HOURS must be positive")
	}
	if c.GlobalViewCost <= 0 {
		return fmt.Errorf("GLOBAL_VIEW_COST must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
