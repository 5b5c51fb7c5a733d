package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Live     LiveConfig
	RTC      RTCConfig
	AWS      AWSConfig
	Push     PushConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig selects and configures the durable store.
type DatabaseConfig struct {
	Driver     string // "postgres" or "sqlite"
	URL        string // if set, used as-is (e.g. postgres://localhost:5432/live?sslmode=disable)
	Host       string
	Port       string
	User       string
	Password   string
	DBName     string
	SSLMode    string
	SQLitePath string
}

// RedisConfig holds Redis connection settings. Empty Addr disables the event mirror and job queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LiveConfig tunes the room engine.
type LiveConfig struct {
	Shards         int
	PersistTimeout time.Duration
	PersistRetries int
	PersistBackoff time.Duration
	SendBuffer     int // per-connection outbound queue
}

// RTCConfig configures the media token provider.
type RTCConfig struct {
	Provider         string // "zego" or "jwt"
	ZegoAppID        uint32
	ZegoServerSecret string
	JWTSecret        string
	JWTIssuer        string
	TokenTTLSeconds  int64
}

// AWSConfig holds AWS credentials and the bucket for archived comment logs.
type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	ArchiveBucket   string
}

// PushConfig points at the push gateway used for "host is live" notifications.
type PushConfig struct {
	GatewayURL string
	APIKey     string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "3000"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(getEnv("DB_DRIVER", "postgres")),
			URL:        os.Getenv("DATABASE_URL"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			DBName:     getEnv("DB_NAME", "live"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("SQLITE_PATH", "./live.db"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Live: LiveConfig{
			Shards:         getEnvInt("LIVE_SHARDS", 32),
			PersistTimeout: getEnvDuration("LIVE_PERSIST_TIMEOUT", 3*time.Second),
			PersistRetries: getEnvInt("LIVE_PERSIST_RETRIES", 2),
			PersistBackoff: getEnvDuration("LIVE_PERSIST_BACKOFF", 100*time.Millisecond),
			SendBuffer:     getEnvInt("LIVE_SEND_BUFFER", 256),
		},
		RTC: RTCConfig{
			Provider:         strings.ToLower(getEnv("RTC_TOKEN_PROVIDER", "zego")),
			ZegoAppID:        uint32(getEnvInt("ZEGO_APP_ID", 0)),
			ZegoServerSecret: getEnv("ZEGO_SERVER_SECRET", ""),
			JWTSecret:        getEnv("RTC_JWT_SECRET", ""),
			JWTIssuer:        getEnv("RTC_JWT_ISSUER", "aura-live"),
			TokenTTLSeconds:  int64(getEnvInt("RTC_TOKEN_TTL_SEC", 3600)),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:   getEnv("AWS_S3_ARCHIVE_BUCKET", "live-archive-bucket"),
		},
		Push: PushConfig{
			GatewayURL: getEnv("PUSH_GATEWAY_URL", ""),
			APIKey:     getEnv("PUSH_API_KEY", ""),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with. Missing token credentials are not
// an error here: token issuance reports them at request time.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Driver != "postgres" && c.Database.Driver != "sqlite" {
		errs = append(errs, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver))
	}
	if c.Live.Shards <= 0 {
		errs = append(errs, errors.New("LIVE_SHARDS must be positive"))
	}
	if c.Live.PersistTimeout <= 0 {
		errs = append(errs, errors.New("LIVE_PERSIST_TIMEOUT must be positive"))
	}
	if c.Live.PersistRetries < 0 {
		errs = append(errs, errors.New("LIVE_PERSIST_RETRIES must not be negative"))
	}
	if c.Live.SendBuffer <= 0 {
		errs = append(errs, errors.New("LIVE_SEND_BUFFER must be positive"))
	}
	if c.RTC.Provider != "zego" && c.RTC.Provider != "jwt" {
		errs = append(errs, fmt.Errorf("RTC_TOKEN_PROVIDER must be zego or jwt, got %q", c.RTC.Provider))
	}
	return errors.Join(errs...)
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
