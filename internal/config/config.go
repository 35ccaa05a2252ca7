package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration. It is built once at process start
// and handed to constructors; nothing below cmd/ reads the environment.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	// DBLogLevel is the gorm log level: silent, error, warn or info.
	DBLogLevel           string
	DBSlowQueryThreshold time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Auth    AuthConfig
	Payment PaymentConfig

	AllowedOrigins []string
	HTTPAddr       string
	OTLPEndpoint   string

	// ReconcileInterval is how often the scheduler refreshes monthly
	// invoices. Zero, the default, disables the scheduler; invoices are then
	// only written on request.
	ReconcileInterval time.Duration
}

type AuthConfig struct {
	JWTSecret       string
	AccessTokenTTL  time.Duration
	LoginRatePerMin float64
	LoginBurst      int
}

// PaymentConfig carries provider credentials for the payment glue layer.
type PaymentConfig struct {
	SecretKey      string
	PublishableKey string
	WebhookSecret  string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:           getenv("APP_SERVICE", "leadgate"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "leadgate"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		DBLogLevel:           getenv("DATABASE_LOG_LEVEL", "warn"),
		DBSlowQueryThreshold: time.Duration(getenvInt("DATABASE_SLOW_QUERY_MS", 200)) * time.Millisecond,

		RedisAddr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
		RedisPassword: getenv("REDIS_PASSWORD", ""),
		RedisDB:       getenvInt("REDIS_DB", 0),
		Auth: AuthConfig{
			JWTSecret:       strings.TrimSpace(getenv("JWT_SECRET_KEY", "")),
			AccessTokenTTL:  time.Duration(getenvInt("ACCESS_TOKEN_EXPIRE_MINUTES", 60*8)) * time.Minute,
			LoginRatePerMin: getenvFloat("RATE_LIMIT_LOGIN_PER_MINUTE", 5),
			LoginBurst:      getenvInt("RATE_LIMIT_LOGIN_BURST", 5),
		},
		Payment: PaymentConfig{
			SecretKey:      strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			PublishableKey: strings.TrimSpace(getenv("STRIPE_PUBLISHABLE_KEY", "")),
			WebhookSecret:  strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
		},
		AllowedOrigins: splitList(getenv("ALLOWED_ORIGINS", "http://localhost:5173")),
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:   getenv("OTLP_ENDPOINT", "localhost:4317"),

		ReconcileInterval: time.Duration(getenvInt("RECONCILE_INTERVAL_MINUTES", 0)) * time.Minute,
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
