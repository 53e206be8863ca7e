package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultIdentityTimeout bounds every call to the identity service.
const DefaultIdentityTimeout = 15 * time.Second

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // seconds
	MigrationsPath  string
}

// IdentityConfig points at the Kratos public and admin APIs.
// AdminURL and AdminToken are elevated credentials and stay server-side.
type IdentityConfig struct {
	PublicURL  string
	AdminURL   string
	AdminToken string
	Timeout    time.Duration
}

// SessionConfig controls the session cookie and post-auth redirects.
type SessionConfig struct {
	CookieName          string
	CookieSecure        bool
	CookieDomain        string
	AdminRedirectPath   string
	DefaultRedirectPath string
	LandingPath         string
}

// EventsConfig selects the change-notification transport.
// An empty RedisURL keeps notifications in-process.
type EventsConfig struct {
	RedisURL string
	Channel  string
}

// AvatarConfig configures S3 avatar storage. An empty Bucket disables uploads.
type AvatarConfig struct {
	Bucket        string
	Region        string
	Endpoint      string
	PublicBaseURL string
	MaxBytes      int64
}

// RateLimitConfig bounds auth submissions per client IP.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

type Config struct {
	Port           string
	Environment    string
	LogLevel       string
	AllowedOrigins []string
	Database       DatabaseConfig
	Identity       IdentityConfig
	Session        SessionConfig
	Events         EventsConfig
	Avatar         AvatarConfig
	RateLimit      RateLimitConfig
}

// Load reads configuration from environment variables, after loading an
// optional .env file. It fails fast with clear errors for missing required
// values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var missing []string

	port := getEnv("PORT", "8080")

	env := getEnv("ENV", "development")
	if env != "development" && env != "staging" && env != "production" {
		return nil, fmt.Errorf("invalid ENV value %q: must be development, staging, or production", env)
	}

	databaseURL := getEnv("DATABASE_URL", "")
	if databaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	kratosPublic := getEnv("KRATOS_PUBLIC_URL", "")
	if kratosPublic == "" {
		missing = append(missing, "KRATOS_PUBLIC_URL")
	}

	kratosAdmin := getEnv("KRATOS_ADMIN_URL", "")
	if kratosAdmin == "" {
		missing = append(missing, "KRATOS_ADMIN_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	if err := validateDatabaseURL(databaseURL); err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if err := validateHTTPURL(kratosPublic); err != nil {
		return nil, fmt.Errorf("invalid KRATOS_PUBLIC_URL: %w", err)
	}
	if err := validateHTTPURL(kratosAdmin); err != nil {
		return nil, fmt.Errorf("invalid KRATOS_ADMIN_URL: %w", err)
	}

	redisURL := getEnv("REDIS_URL", "")
	if redisURL != "" {
		if err := validateRedisURL(redisURL); err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
	}

	timeout, err := getEnvDuration("IDENTITY_TIMEOUT", DefaultIdentityTimeout)
	if err != nil {
		return nil, err
	}

	landing := getEnv("LANDING_PATH", "/")
	adminRedirect := getEnv("ADMIN_REDIRECT_PATH", "/admin")
	defaultRedirect := getEnv("DEFAULT_REDIRECT_PATH", "/")
	for key, val := range map[string]string{
		"LANDING_PATH":          landing,
		"ADMIN_REDIRECT_PATH":   adminRedirect,
		"DEFAULT_REDIRECT_PATH": defaultRedirect,
	} {
		if !strings.HasPrefix(val, "/") || strings.HasPrefix(val, "//") {
			return nil, fmt.Errorf("invalid %s: must be an absolute path", key)
		}
	}

	return &Config{
		Port:           port,
		Environment:    env,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "")),
		Database: DatabaseConfig{
			URL:             databaseURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvInt("DB_CONN_MAX_LIFETIME", 300),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", ""),
		},
		Identity: IdentityConfig{
			PublicURL:  kratosPublic,
			AdminURL:   kratosAdmin,
			AdminToken: getEnv("KRATOS_ADMIN_TOKEN", ""),
			Timeout:    timeout,
		},
		Session: SessionConfig{
			CookieName:          getEnv("SESSION_COOKIE_NAME", "folio_session"),
			CookieSecure:        getEnvBool("COOKIE_SECURE", env == "production"),
			CookieDomain:        getEnv("COOKIE_DOMAIN", ""),
			AdminRedirectPath:   adminRedirect,
			DefaultRedirectPath: defaultRedirect,
			LandingPath:         landing,
		},
		Events: EventsConfig{
			RedisURL: redisURL,
			Channel:  getEnv("EVENTS_CHANNEL", "folio:auth-events"),
		},
		Avatar: AvatarConfig{
			Bucket:        getEnv("AVATAR_BUCKET", ""),
			Region:        getEnv("AVATAR_REGION", "us-east-1"),
			Endpoint:      getEnv("AVATAR_ENDPOINT", ""),
			PublicBaseURL: strings.TrimRight(getEnv("AVATAR_PUBLIC_BASE_URL", ""), "/"),
			MaxBytes:      int64(getEnvPositiveInt("AVATAR_MAX_BYTES", 2<<20)),
		},
		RateLimit: RateLimitConfig{
			PerSecond: getEnvFloat("AUTH_RATE_LIMIT", 1),
			Burst:     getEnvPositiveInt("AUTH_RATE_BURST", 5),
		},
	}, nil
}

// validateDatabaseURL ensures the database URL is a valid PostgreSQL connection string.
func validateDatabaseURL(dbURL string) error {
	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}

	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fmt.Errorf("URL must use postgres or postgresql scheme, got %q", parsed.Scheme)
	}

	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}

	return nil
}

func validateHTTPURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme, got %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL must include a host")
	}
	return nil
}

func validateRedisURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if parsed.Scheme != "redis" && parsed.Scheme != "rediss" {
		return fmt.Errorf("URL must use redis or rediss scheme, got %q", parsed.Scheme)
	}
	return nil
}

// getEnv reads key, falling back to the contents of the file named by
// key_FILE, then to defaultVal.
func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	if path := os.Getenv(key + "_FILE"); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return defaultVal
}

// getEnvInt reads an environment variable as an integer with a default fallback.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return intVal
}

// getEnvPositiveInt is getEnvInt for settings where zero or a negative
// value would disable the feature outright.
func getEnvPositiveInt(key string, defaultVal int) int {
	if v := getEnvInt(key, defaultVal); v > 0 {
		return v
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil || f <= 0 {
		return defaultVal
	}
	return f
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, val)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
