package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Backend       BackendConfig
	Database      *DatabaseConfig // Optional: direct Postgres access. When nil, records are read over PostgREST.
	Session       SessionConfig
	Contact       ContactConfig
	Pixel         PixelConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// BackendConfig holds the hosted auth/database backend (GoTrue + PostgREST) settings
type BackendConfig struct {
	URL           string
	AnonKey       string
	JWTSecret     string // HS256 secret; when empty, tokens are checked against the backend JWKS
	JWKSURL       string
	SiteURL       string // Base for email redirect links (/auth/callback, /reset-password)
	HTTPTimeout   time.Duration
	RefreshMargin time.Duration // Refresh access tokens this long before they expire
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	RLSRole          string // role assumed per transaction so row-level security applies; empty keeps the login role
}

// SessionConfig holds per-visitor application instance settings
type SessionConfig struct {
	CookieName    string
	CookieSecure  bool
	IdleTTL       time.Duration
	AnonymousTTL  time.Duration // idle lifetime of visitors that never signed in
	MaxVisitors   int
	ReadyTimeout  time.Duration
	SweepSchedule string // cron spec for the idle sweeper
}

// ContactConfig holds the contact form relay settings
type ContactConfig struct {
	RelayURL string
	Timeout  time.Duration
}

// PixelConfig holds Meta pixel / Conversions API settings
type PixelConfig struct {
	PixelID     string
	AccessToken string
	GraphURL    string
	APIVersion  string
	QueueSize   int
	Workers     int
	Timeout     time.Duration
}

// Enabled reports whether events can be forwarded to the Conversions API
func (p PixelConfig) Enabled() bool {
	return p.PixelID != "" && p.AccessToken != ""
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or text
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		Backend:  loadBackendConfig(),
		Database: loadDatabaseConfig(),
		Session: SessionConfig{
			CookieName:    getEnv("SESSION_COOKIE_NAME", "dh_visitor"),
			CookieSecure:  getEnvAsBool("SESSION_COOKIE_SECURE", false),
			IdleTTL:       getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute),
			AnonymousTTL:  getEnvAsDuration("SESSION_ANONYMOUS_TTL", 5*time.Minute),
			MaxVisitors:   getEnvAsInt("SESSION_MAX_VISITORS", 10000),
			ReadyTimeout:  getEnvAsDuration("SESSION_READY_TIMEOUT", 5*time.Second),
			SweepSchedule: getEnv("SESSION_SWEEP_SCHEDULE", "@every 1m"),
		},
		Contact: ContactConfig{
			RelayURL: getEnv("CONTACT_RELAY_URL", ""),
			Timeout:  getEnvAsDuration("CONTACT_RELAY_TIMEOUT", 10*time.Second),
		},
		Pixel: PixelConfig{
			PixelID:     getEnv("META_PIXEL_ID", ""),
			AccessToken: getEnv("META_ACCESS_TOKEN", ""),
			GraphURL:    strings.TrimRight(getEnv("META_GRAPH_URL", "https://graph.facebook.com"), "/"),
			APIVersion:  getEnv("META_API_VERSION", "v19.0"),
			QueueSize:   getEnvAsInt("PIXEL_QUEUE_SIZE", 256),
			Workers:     getEnvAsInt("PIXEL_WORKERS", 2),
			Timeout:     getEnvAsDuration("PIXEL_TIMEOUT", 5*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	// Backend validation
	if c.Backend.URL == "" {
		return fmt.Errorf("backend URL is required: set SUPABASE_URL")
	}
	if _, err := url.ParseRequestURI(c.Backend.URL); err != nil {
		return fmt.Errorf("invalid SUPABASE_URL: %w", err)
	}
	if c.Backend.HTTPTimeout <= 0 {
		return fmt.Errorf("backend HTTP timeout must be positive")
	}
	if c.IsProduction() {
		if c.Backend.AnonKey == "" {
			return fmt.Errorf("backend anon key is required in production")
		}
		if c.Backend.SiteURL == "" {
			return fmt.Errorf("site URL is required in production")
		}
	}

	// Optional database validation (DATABASE_URL or DB_* vars)
	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	// Session validation
	if c.Session.IdleTTL <= 0 {
		return fmt.Errorf("session idle TTL must be positive")
	}
	if c.Session.AnonymousTTL <= 0 {
		return fmt.Errorf("session anonymous TTL must be positive")
	}
	if c.Session.MaxVisitors <= 0 {
		return fmt.Errorf("session max visitors must be positive")
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session cookie name is required")
	}

	// Pixel validation
	if c.Pixel.QueueSize <= 0 || c.Pixel.Workers <= 0 {
		return fmt.Errorf("pixel queue size and workers must be positive")
	}

	// Observability validation
	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadBackendConfig() BackendConfig {
	baseURL := strings.TrimRight(getEnv("SUPABASE_URL", "http://localhost:54321"), "/")
	return BackendConfig{
		URL:           baseURL,
		AnonKey:       getEnv("SUPABASE_ANON_KEY", ""),
		JWTSecret:     getEnv("SUPABASE_JWT_SECRET", ""),
		JWKSURL:       getEnv("SUPABASE_JWKS_URL", baseURL+"/auth/v1/.well-known/jwks.json"),
		SiteURL:       strings.TrimRight(getEnv("SITE_URL", "http://localhost:5173"), "/"),
		HTTPTimeout:   getEnvAsDuration("BACKEND_HTTP_TIMEOUT", 10*time.Second),
		RefreshMargin: getEnvAsDuration("BACKEND_REFRESH_MARGIN", time.Minute),
	}
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() *DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			RLSRole:          getEnv("DB_RLS_ROLE", ""),
		}
	}
	if getEnv("DB_HOST", "") == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "postgres"),
		SSLMode:         getEnv("DB_SSLMODE", "require"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		RLSRole:         getEnv("DB_RLS_ROLE", ""),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
