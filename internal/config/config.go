// Package config loads and validates application configuration from a
// YAML file and environment variables, in that order of increasing
// priority, using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ============================================
// Main Configuration
// ============================================

// Config is the root configuration for the service.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	DeadMan   DeadManConfig   `mapstructure:"dead_man"`
	Log       LogConfig       `mapstructure:"log"`
}

// ============================================
// App Configuration
// ============================================

// AppConfig describes the running service instance.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	BuildTime   string `mapstructure:"build_time"`
	GitCommit   string `mapstructure:"git_commit"`
}

// IsDevelopment reports whether the environment is development.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the environment is production.
func (c *AppConfig) IsProduction() bool {
	return c.Environment == "production"
}

// ============================================
// Server Configuration
// ============================================

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the listen address "host:port".
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ============================================
// Database Configuration
// ============================================

// DatabaseConfig configures the Postgres connection pool.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// DSN returns the Postgres connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
		c.SSLMode,
	)
}

// ============================================
// Redis Configuration
// ============================================

// RedisConfig configures the Dead-Man Switch's cross-instance
// coordination cache (heartbeats, frozen-agent set).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ============================================
// NATS Configuration
// ============================================

// NATSConfig configures the domain-event fan-out publisher that drains
// the transactional outbox.
type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	SubjectPrefix  string        `mapstructure:"subject_prefix"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
}

// ============================================
// Auth Configuration
// ============================================

// AuthConfig holds JWT and mock-auth settings. Only Validate reads them;
// the API-key auth middleware does not use this section.
type AuthConfig struct {
	JWTSecret          string        `mapstructure:"jwt_secret"`
	JWTIssuer          string        `mapstructure:"jwt_issuer"`
	AccessTokenExpiry  time.Duration `mapstructure:"access_token_expiry"`
	RefreshTokenExpiry time.Duration `mapstructure:"refresh_token_expiry"`
	EnableMockAuth     bool          `mapstructure:"enable_mock_auth"` // development only
}

// ============================================
// CORS Configuration
// ============================================

// CORSConfig configures cross-origin access to the HTTP API.
type CORSConfig struct {
	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	AllowedMethods   []string      `mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `mapstructure:"allowed_headers"`
	ExposedHeaders   []string      `mapstructure:"exposed_headers"`
	AllowCredentials bool          `mapstructure:"allow_credentials"`
	MaxAge           time.Duration `mapstructure:"max_age"`
}

// ============================================
// Rate Limit Configuration
// ============================================

// RateLimitConfig configures request throttling, with a lower ceiling
// for money-moving endpoints.
type RateLimitConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	RequestsPerMinute  int           `mapstructure:"requests_per_minute"`
	BurstSize          int           `mapstructure:"burst_size"`
	FinancialOpsPerMin int           `mapstructure:"financial_ops_per_min"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
}

// ============================================
// Dead-Man Switch Configuration
// ============================================

// DeadManConfig configures the background sweep that enforces
// per-agent heartbeat deadlines (§4.6) independent of any one agent's
// own DeadManSwitchConfig.
type DeadManConfig struct {
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// ============================================
// Log Configuration
// ============================================

// LogConfig configures the structured logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	Output     string `mapstructure:"output"` // stdout, stderr, file
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`    // MB
	MaxBackups int    `mapstructure:"max_backups"` // file count
	MaxAge     int    `mapstructure:"max_age"`     // days
	Compress   bool   `mapstructure:"compress"`
}

// ============================================
// Configuration Loading
// ============================================

// Load reads configuration from a YAML file under configPath/configName
// and overlays environment variables.
func Load(configPath, configName string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/agentwallet")

	v.SetEnvPrefix("AGENTWALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file found; defaults and env vars still apply
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only, with
// defaults for anything unset.
func LoadFromEnv() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("AGENTWALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults installs the service's default configuration values.
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "agentwallet")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.debug", true)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "agentwallet")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// NATS defaults
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject_prefix", "agentwallet")
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.max_reconnects", 10)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("auth.jwt_issuer", "agentwallet")
	v.SetDefault("auth.access_token_expiry", "15m")
	v.SetDefault("auth.refresh_token_expiry", "168h") // 7 days
	v.SetDefault("auth.enable_mock_auth", true)

	// CORS defaults
	v.SetDefault("cors.allowed_origins", []string{"*"})
	v.SetDefault("cors.allowed_methods", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	v.SetDefault("cors.allowed_headers", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"})
	v.SetDefault("cors.exposed_headers", []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining"})
	v.SetDefault("cors.allow_credentials", true)
	v.SetDefault("cors.max_age", "12h")

	// Rate limit defaults
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 100)
	v.SetDefault("rate_limit.burst_size", 20)
	v.SetDefault("rate_limit.financial_ops_per_min", 30)
	v.SetDefault("rate_limit.cleanup_interval", "1m")

	// Dead-man switch defaults
	v.SetDefault("dead_man.sweep_interval", "10s")

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
}

// bindEnvVars binds a handful of common aliases alongside the prefixed
// AGENTWALLET_* names, for operators migrating from a generic deployment.
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.host", "AGENTWALLET_DATABASE_HOST", "DB_HOST")
	_ = v.BindEnv("database.port", "AGENTWALLET_DATABASE_PORT", "DB_PORT")
	_ = v.BindEnv("database.user", "AGENTWALLET_DATABASE_USER", "DB_USER")
	_ = v.BindEnv("database.password", "AGENTWALLET_DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("database.database", "AGENTWALLET_DATABASE_DATABASE", "DB_NAME")

	_ = v.BindEnv("redis.addr", "AGENTWALLET_REDIS_ADDR", "REDIS_ADDR")
	_ = v.BindEnv("nats.url", "AGENTWALLET_NATS_URL", "NATS_URL")

	_ = v.BindEnv("auth.jwt_secret", "AGENTWALLET_AUTH_JWT_SECRET", "JWT_SECRET")

	_ = v.BindEnv("server.port", "AGENTWALLET_SERVER_PORT", "PORT")

	_ = v.BindEnv("app.environment", "AGENTWALLET_APP_ENVIRONMENT", "ENVIRONMENT", "ENV")
}

// ============================================
// Configuration Validation
// ============================================

// Validate enforces the configuration invariants that must hold before
// the service starts, including production-only hardening checks.
func (c *Config) Validate() error {
	if c.App.IsProduction() {
		if c.Auth.JWTSecret == "change-me-in-production" {
			return fmt.Errorf("JWT secret must be changed in production")
		}
		if c.Auth.EnableMockAuth {
			return fmt.Errorf("mock auth must be disabled in production")
		}
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	return nil
}

// ============================================
// Development Helpers
// ============================================

// Development returns a configuration suitable for local development.
func Development() *Config {
	return &Config{
		App: AppConfig{
			Name:        "agentwallet",
			Version:     "dev",
			Environment: "development",
			Debug:       true,
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Password:        "postgres",
			Database:        "agentwallet",
			SSLMode:         "disable",
			MaxConnections:  10,
			MinConnections:  2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			SubjectPrefix: "agentwallet",
			ReconnectWait: 2 * time.Second,
			MaxReconnects: 10,
		},
		Auth: AuthConfig{
			JWTSecret:          "dev-secret-key",
			JWTIssuer:          "agentwallet-dev",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 168 * time.Hour,
			EnableMockAuth:     true,
		},
		CORS: CORSConfig{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:            true,
			RequestsPerMinute:  100,
			BurstSize:          20,
			FinancialOpsPerMin: 30,
			CleanupInterval:    time.Minute,
		},
		DeadMan: DeadManConfig{
			SweepInterval: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Test returns a configuration suitable for automated tests.
func Test() *Config {
	cfg := Development()
	cfg.App.Environment = "test"
	cfg.Database.Database = "agentwallet_test"
	cfg.DeadMan.SweepInterval = 100 * time.Millisecond
	cfg.Log.Level = "error" // keep test output quiet
	return cfg
}
