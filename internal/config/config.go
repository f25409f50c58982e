package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers understood by the repository factory.
const (
	StoreDriverMemory    = "memory"
	StoreDriverFirestore = "firestore"
	StoreDriverPostgres  = "postgres"
)

// Session drivers for the anonymous session registry.
const (
	SessionDriverMemory = "memory"
	SessionDriverRedis  = "redis"
)

// Development-only auth defaults. Durable deployments must override both.
const (
	DefaultJWTSecret  = "dev-secret"
	DefaultAdminEmail = "admin@example.com"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Store        StoreConfig
	Firestore    FirestoreConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Session      SessionConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Realtime     RealtimeConfig
	Notification NotificationConfig
	NATS         NATSConfig
	Metrics      MetricsConfig
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

// StoreConfig selects the ticket document store.
type StoreConfig struct {
	Driver     string
	Collection string
}

// FirestoreConfig holds Firebase project credentials.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
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

// SessionConfig controls anonymous sessions.
type SessionConfig struct {
	Driver     string
	TTLHours   int
	KeyPrefix  string
	HeaderName string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level       string
	Format      string
	Development bool
}

// AuthConfig defines how identity-provider tokens are verified and who is
// an admin.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	AdminEmails []string
}

// RealtimeConfig controls the websocket listener.
type RealtimeConfig struct {
	Host           string
	Port           string
	AllowedOrigins []string
}

// NotificationConfig holds notification endpoints.
type NotificationConfig struct {
	EmailFrom   string
	WebhookURL  string
	FCMEnabled  bool
	TopicPrefix string
}

// NATSConfig controls the outbound event bridge.
type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
}

// MetricsConfig controls the Prometheus exposition.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
	Path      string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	storeDriver := strings.ToLower(getEnv("STORE_DRIVER", StoreDriverMemory))
	sessionDriver := SessionDriverMemory
	var adminEmails []string
	if storeDriver == StoreDriverMemory {
		adminEmails = []string{DefaultAdminEmail}
	} else {
		sessionDriver = SessionDriverRedis
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-ticket-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Store: StoreConfig{
			Driver:     storeDriver,
			Collection: getEnv("STORE_COLLECTION", "tickets"),
		},
		Firestore: FirestoreConfig{
			ProjectID:       os.Getenv("FIREBASE_PROJECT_ID"),
			CredentialsFile: os.Getenv("FIREBASE_CREDENTIALS_FILE"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Session: SessionConfig{
			Driver:     strings.ToLower(getEnv("SESSION_DRIVER", sessionDriver)),
			TTLHours:   getEnvAsInt("SESSION_TTL_HOURS", 24*180),
			KeyPrefix:  getEnv("SESSION_KEY_PREFIX", "support:session:"),
			HeaderName: getEnv("SESSION_HEADER", "X-Session-ID"),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("AUTH_JWT_SECRET", DefaultJWTSecret),
			JWTIssuer:   os.Getenv("AUTH_JWT_ISSUER"),
			AdminEmails: getEnvAsList("AUTH_ADMIN_EMAILS", adminEmails),
		},
		Realtime: RealtimeConfig{
			Host:           getEnv("REALTIME_HOST", "0.0.0.0"),
			Port:           getEnv("REALTIME_PORT", "8081"),
			AllowedOrigins: getEnvAsList("REALTIME_ALLOWED_ORIGINS", nil),
		},
		Notification: NotificationConfig{
			EmailFrom:   getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:  getEnv("NOTIFY_WEBHOOK_URL", ""),
			FCMEnabled:  getEnvAsBool("NOTIFY_FCM_ENABLED", false),
			TopicPrefix: getEnv("NOTIFY_FCM_TOPIC_PREFIX", "support-"),
		},
		NATS: NATSConfig{
			URL:           os.Getenv("NATS_URL"),
			Name:          getEnv("NATS_CLIENT_NAME", "support-ticket-service"),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "support.tickets"),
		},
		Metrics: MetricsConfig{
			Enabled:   getEnvAsBool("METRICS_ENABLED", true),
			Namespace: getEnv("METRICS_NAMESPACE", "support_tickets"),
			Path:      getEnv("METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverFirestore:
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID required for store driver %q", c.Store.Driver)
		}
	case StoreDriverPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN required for store driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	switch c.Session.Driver {
	case SessionDriverMemory, SessionDriverRedis:
	default:
		return fmt.Errorf("unknown SESSION_DRIVER %q", c.Session.Driver)
	}
	if c.Store.Driver != StoreDriverMemory {
		// Anonymous ownership must survive a restart along with the tickets.
		if c.Session.Driver == SessionDriverMemory {
			return fmt.Errorf("SESSION_DRIVER %q cannot back store driver %q", c.Session.Driver, c.Store.Driver)
		}
		if c.Auth.JWTSecret == DefaultJWTSecret {
			return fmt.Errorf("AUTH_JWT_SECRET must be set for store driver %q", c.Store.Driver)
		}
		if len(c.Auth.AdminEmails) == 0 {
			return fmt.Errorf("AUTH_ADMIN_EMAILS must be set for store driver %q", c.Store.Driver)
		}
	}
	if c.Notification.FCMEnabled && c.Firestore.ProjectID == "" {
		return fmt.Errorf("FIREBASE_PROJECT_ID required when NOTIFY_FCM_ENABLED is set")
	}
	return nil
}

// UsesFirebase reports whether a Firebase app must be initialized.
func (c *Config) UsesFirebase() bool {
	return c.Store.Driver == StoreDriverFirestore || c.Notification.FCMEnabled
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

// Addr returns the websocket bind address.
func (r RealtimeConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// TTL returns how long an idle anonymous session stays valid.
func (s SessionConfig) TTL() time.Duration {
	if s.TTLHours <= 0 {
		return 0
	}
	return time.Duration(s.TTLHours) * time.Hour
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

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
