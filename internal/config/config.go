package config

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	ServiceName string

	DBURL       string
	DBMaxConns  int32
	AutoMigrate bool

	JWTAccessSecret  string
	JWTRefreshSecret string
	JWTAccessTTL     time.Duration
	JWTRefreshTTL    time.Duration
	RotateRefresh    bool

	RedisURL       string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisPoolSize  int
	UnreadCacheTTL time.Duration

	AllowedOrigins []string
	MaxBodyBytes   int64
	HSTS           bool
	AuthRateLimit  int
	AuthRateWindow time.Duration

	// per-user cap on project chat posts; 0 disables it
	MessageRateLimit  int
	MessageRateWindow time.Duration

	OTELEnabled     bool
	OTELEndpoint    string
	OTELInsecure    bool
	OTELSampleRatio float64

	BootstrapEmail    string
	BootstrapPassword string
	BootstrapName     string
}

var (
	ErrMissingJWTSecret = errors.New("JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	ErrSharedJWTSecret  = errors.New("access and refresh token secrets must differ")
)

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "dev")

	return Config{
		Env:         env,
		Port:        getEnvInt("PORT", 8080),
		ServiceName: getEnv("SERVICE_NAME", "synergysphere-api"),

		DBURL:       buildDBURL(),
		DBMaxConns:  int32(getEnvInt("DB_MAX_CONNS", 10)),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", env == "dev"),

		JWTAccessSecret:  getEnv("JWT_ACCESS_SECRET", devSecret(env, "dev-access-secret")),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", devSecret(env, "dev-refresh-secret")),
		JWTAccessTTL:     getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:    getEnvDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		RotateRefresh:    getEnvBool("AUTH_ROTATE_REFRESH", false),

		RedisURL:       getEnv("REDIS_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisDB:        getEnvInt("REDIS_DB", 0),
		RedisPoolSize:  getEnvInt("REDIS_POOL_SIZE", 0),
		UnreadCacheTTL: getEnvDuration("UNREAD_CACHE_TTL", 30*time.Second),

		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		MaxBodyBytes:   int64(getEnvInt("MAX_BODY_BYTES", 1<<20)),
		HSTS:           getEnvBool("HTTP_HSTS", false),
		AuthRateLimit:  getEnvInt("AUTH_RATE_LIMIT", 20),
		AuthRateWindow: getEnvDuration("AUTH_RATE_WINDOW", time.Minute),

		MessageRateLimit:  getEnvInt("MESSAGE_RATE_LIMIT", 60),
		MessageRateWindow: getEnvDuration("MESSAGE_RATE_WINDOW", time.Minute),

		OTELEnabled:     getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELInsecure:    getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", env == "dev"),
		OTELSampleRatio: getEnvFloat("OTEL_SAMPLE_RATIO", 1),

		BootstrapEmail:    getEnv("BOOTSTRAP_EMAIL", ""),
		BootstrapPassword: getEnv("BOOTSTRAP_PASSWORD", ""),
		BootstrapName:     getEnv("BOOTSTRAP_NAME", "Workspace Admin"),
	}
}

// Validate rejects configurations that would let one token class forge the other.
func (c Config) Validate() error {
	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return ErrMissingJWTSecret
	}

	if c.JWTAccessSecret == c.JWTRefreshSecret {
		return ErrSharedJWTSecret
	}

	return nil
}

func (c Config) IsDev() bool {
	return c.Env == "dev"
}

func buildDBURL() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "synergy")
	pass := getEnv("DB_PASSWORD", "synergy")
	name := getEnv("DB_NAME", "synergysphere")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

// only dev gets baked-in secrets
func devSecret(env, value string) string {
	if env == "dev" {
		return value
	}
	return ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	num, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return num
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}

	return b
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}

	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}
