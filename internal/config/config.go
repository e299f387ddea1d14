package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Access   AccessConfig
	Ledger   LedgerConfig
	Content  ContentConfig
	Notify   NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Format is "json" or "console".
	Format  string
	Service string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// AccessConfig points at the identity-to-role mapping.
type AccessConfig struct {
	RolesFile    string
	ManagersFile string
	SelfAssign   bool
}

// LedgerBackend selects the ledger gateway implementation.
type LedgerBackend string

const (
	LedgerBackendMemory   LedgerBackend = "memory"
	LedgerBackendPostgres LedgerBackend = "postgres"
)

// LedgerConfig controls the ledger gateway and background sync.
type LedgerConfig struct {
	Backend             LedgerBackend
	SyncIntervalSeconds int
	RetryAttempts       int
}

// ContentConfig controls the content store client.
type ContentConfig struct {
	RemoteURL          string
	Backend            string
	CacheEntries       int
	NegativeTTLSeconds int
	PutRetries         int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	backend := LedgerBackend(strings.ToLower(getEnv("LEDGER_BACKEND", string(LedgerBackendMemory))))
	switch backend {
	case LedgerBackendMemory, LedgerBackendPostgres:
	default:
		return nil, fmt.Errorf("invalid LEDGER_BACKEND: %q", backend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "ledgerdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:   getEnv("LOG_LEVEL", "info"),
			Format:  strings.ToLower(getEnv("LOG_FORMAT", "json")),
			Service: getEnv("APP_NAME", "ledgerdesk"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Access: AccessConfig{
			RolesFile:    os.Getenv("ACCESS_ROLES_FILE"),
			ManagersFile: os.Getenv("ACCESS_MANAGERS_FILE"),
			SelfAssign:   getEnvAsBool("WORKFLOW_SELF_ASSIGN", true),
		},
		Ledger: LedgerConfig{
			Backend:             backend,
			SyncIntervalSeconds: getEnvAsInt("LEDGER_SYNC_INTERVAL_SECONDS", 5),
			RetryAttempts:       getEnvAsInt("LEDGER_RETRY_ATTEMPTS", 3),
		},
		Content: ContentConfig{
			RemoteURL:          os.Getenv("CONTENT_REMOTE_URL"),
			Backend:            strings.ToLower(getEnv("CONTENT_BACKEND", "redis")),
			CacheEntries:       getEnvAsInt("CONTENT_CACHE_ENTRIES", 1024),
			NegativeTTLSeconds: getEnvAsInt("CONTENT_NEGATIVE_TTL_SECONDS", 10),
			PutRetries:         getEnvAsInt("CONTENT_PUT_RETRIES", 3),
		},
		Notify: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SyncInterval returns the ledger polling interval.
func (l LedgerConfig) SyncInterval() time.Duration {
	if l.SyncIntervalSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(l.SyncIntervalSeconds) * time.Second
}

// NegativeTTL returns how long a failed content lookup is remembered.
func (c ContentConfig) NegativeTTL() time.Duration {
	if c.NegativeTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.NegativeTTLSeconds) * time.Second
}

// AccessTokenTTL returns the bearer token lifetime.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
