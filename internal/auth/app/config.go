package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Issuer    string // Optional: issuer claim for access tokens (default: photolib)
	JWTSecret string // Required in prod: HS256 signing secret, at least 32 bytes

	DatabaseFile string // Optional: path to SQLite database file (default: ./photolib.db)
	ClientsFile  string // Optional: path to the YAML clients file (default: ./clients.yaml)

	AccessTokenTTL       time.Duration // Optional: access token lifetime (default: 1h)
	CodeTTL              time.Duration // Optional: authorization code lifetime (default: 10m)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
	TokenRetention       time.Duration // How long expired token rows are kept (default: 30 days)

	BanThreshold int           // Failed logins before an origin is banned (default: 3)
	BanTTL       time.Duration // How long bans and counters live (default: 1h)

	RedisAddr     string // Optional: host:port; when set the ban list runs on Redis
	RedisPassword string
	RedisDB       int

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 7777)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		Issuer:    getEnvOrDefault("AUTH_ISSUER", "photolib"),
		JWTSecret: os.Getenv("AUTH_JWT_SECRET"),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "photolib.db"),
		ClientsFile:  getEnvOrDefault("AUTH_CLIENTS_FILE", "clients.yaml"),

		AccessTokenTTL:       getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_TTL", time.Hour),
		CodeTTL:              getEnvDurationOrDefault("AUTH_CODE_TTL", 10*time.Minute),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
		TokenRetention:       getEnvDurationOrDefault("AUTH_TOKEN_RETENTION", 30*24*time.Hour),

		BanThreshold: getEnvIntOrDefault("AUTH_BAN_THRESHOLD", 3),
		BanTTL:       getEnvDurationOrDefault("AUTH_BAN_TTL", 1*time.Hour),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 7777),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Duration strings first (e.g. "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Plain integers are taken as seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
