package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/bastion/internal/models"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit models.RateLimitConfig
	Security  models.SecuritySettings
	Archive   ArchiveConfig
	Alerts    AlertConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
	TrustedProxies []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

type AuthConfig struct {
	AdminJWTSecret          string
	CSRFTokenTTL            time.Duration
	CleanupInterval         time.Duration
	PublicRequestsPerMinute int
	TimingDelayBaseMs       int
	TimingDelayRandomMs     int
}

// ArchiveConfig controls the optional Postgres mirror of security events
type ArchiveConfig struct {
	Enabled       bool
	RetentionDays int
	Database      DatabaseConfig
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// AlertConfig controls e-mail alerts for high severity events. Empty To disables alerts.
type AlertConfig struct {
	To        string
	From      string
	AWSRegion string
}

// fileConfig is the shape of the optional YAML file named by SECURITY_CONFIG_FILE
type fileConfig struct {
	RateLimit        models.RateLimitConfig  `yaml:"rate_limit"`
	SecuritySettings models.SecuritySettings `yaml:"security_settings"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("ENV", "development")

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
			TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Auth: AuthConfig{
			AdminJWTSecret:          getEnv("ADMIN_JWT_SECRET", ""),
			CSRFTokenTTL:            getEnvAsDuration("CSRF_TOKEN_TTL", models.DefaultCSRFTokenTTL),
			CleanupInterval:         getEnvAsDuration("SECURITY_CLEANUP_INTERVAL", 5*time.Minute),
			PublicRequestsPerMinute: getEnvAsInt("PUBLIC_REQUESTS_PER_MINUTE", 60),
			TimingDelayBaseMs:       getEnvAsInt("TIMING_DELAY_BASE_MS", 100),
			TimingDelayRandomMs:     getEnvAsInt("TIMING_DELAY_RANDOM_MS", 50),
		},
		RateLimit: models.DefaultRateLimitConfig(),
		Security:  models.DefaultSecuritySettings(),
		Archive: ArchiveConfig{
			Enabled:       getEnvAsBool("AUDIT_ARCHIVE_ENABLED", false),
			RetentionDays: getEnvAsInt("AUDIT_ARCHIVE_RETENTION_DAYS", 90),
			Database: DatabaseConfig{
				Host:            getEnv("DB_HOST", "localhost"),
				Port:            getEnvAsInt("DB_PORT", 5432),
				User:            getEnv("DB_USER", "postgres"),
				Password:        getEnv("DB_PASSWORD", ""),
				Name:            getEnv("DB_NAME", "bastion"),
				SSLMode:         getEnv("DB_SSLMODE", "disable"),
				MaxConns:        int32(getEnvAsInt("DB_MAX_CONNS", 5)),
				MinConns:        int32(getEnvAsInt("DB_MIN_CONNS", 1)),
				MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
				MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			},
		},
		Alerts: AlertConfig{
			To:        getEnv("ALERT_EMAIL_TO", ""),
			From:      getEnv("ALERT_EMAIL_FROM", ""),
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
		},
	}

	if path := getEnv("SECURITY_CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate fails fast on settings the security layer cannot enforce
func (c *Config) Validate() error {
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if err := c.Security.Validate(); err != nil {
		return err
	}
	if c.Auth.CSRFTokenTTL <= 0 {
		return fmt.Errorf("%w: CSRF_TOKEN_TTL must be positive", models.ErrInvalidConfig)
	}
	if c.Auth.CleanupInterval <= 0 {
		return fmt.Errorf("%w: SECURITY_CLEANUP_INTERVAL must be positive", models.ErrInvalidConfig)
	}
	if err := validateAdminSecret(c.Auth.AdminJWTSecret, c.Server.Env); err != nil {
		return err
	}
	if c.Archive.Enabled && c.Archive.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required when AUDIT_ARCHIVE_ENABLED is set")
	}
	if c.Alerts.To != "" && c.Alerts.From == "" {
		return fmt.Errorf("ALERT_EMAIL_FROM is required when ALERT_EMAIL_TO is set")
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read security config file: %w", err)
	}

	// Keys missing from the file keep their current values
	fc := fileConfig{
		RateLimit:        cfg.RateLimit,
		SecuritySettings: cfg.Security,
	}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("failed to parse security config file: %w", err)
	}

	cfg.RateLimit = fc.RateLimit
	cfg.Security = fc.SecuritySettings
	return nil
}

func applyEnvOverrides(cfg *Config) {
	rl := &cfg.RateLimit
	rl.MaxAttempts = getEnvAsInt("RATE_LIMIT_MAX_ATTEMPTS", rl.MaxAttempts)
	rl.Window = getEnvAsDuration("RATE_LIMIT_WINDOW", rl.Window)
	rl.LockoutDuration = getEnvAsDuration("RATE_LIMIT_LOCKOUT_DURATION", rl.LockoutDuration)
	rl.ProgressiveDelay = getEnvAsBool("RATE_LIMIT_PROGRESSIVE_DELAY", rl.ProgressiveDelay)
	rl.MaxDelay = getEnvAsDuration("RATE_LIMIT_MAX_DELAY", rl.MaxDelay)
	rl.DelayStep = getEnvAsDuration("RATE_LIMIT_DELAY_STEP", rl.DelayStep)

	s := &cfg.Security
	s.EnableRateLimiting = getEnvAsBool("ENABLE_RATE_LIMITING", s.EnableRateLimiting)
	s.EnableSessionTimeout = getEnvAsBool("ENABLE_SESSION_TIMEOUT", s.EnableSessionTimeout)
	s.EnableCSRFProtection = getEnvAsBool("ENABLE_CSRF_PROTECTION", s.EnableCSRFProtection)
	s.EnableSuspiciousActivityDetection = getEnvAsBool("ENABLE_SUSPICIOUS_ACTIVITY_DETECTION", s.EnableSuspiciousActivityDetection)
	s.MaxSessionDuration = getEnvAsDuration("MAX_SESSION_DURATION", s.MaxSessionDuration)
	s.ActivityTimeout = getEnvAsDuration("ACTIVITY_TIMEOUT", s.ActivityTimeout)
	s.RequireStrongPasswords = getEnvAsBool("REQUIRE_STRONG_PASSWORDS", s.RequireStrongPasswords)
	s.EnableTwoFactor = getEnvAsBool("ENABLE_TWO_FACTOR", s.EnableTwoFactor)
}

// validateAdminSecret enforces minimum strength for the admin token secret
func validateAdminSecret(secret, env string) error {
	if secret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required")
	}

	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("ADMIN_JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func splitList(raw string) []string {
	if raw == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		return splitList(getEnv("ALLOWED_ORIGINS", ""))
	}

	// Development: allow localhost variants
	return []string{
		"http://localhost:3000",
		"http://localhost:5173", // Vite default
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
}
