// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type Config struct {
	HTTPAddr   string
	BridgeAddr string
	BridgeURL  string
	BridgeCmd  []string
	BridgeLog  string
	UploadDir  string

	SendDelay      time.Duration
	ReadyTimeout   time.Duration
	MirrorInterval time.Duration
	RespawnBackoff time.Duration

	DB DBConfig

	AMQPURL  string
	LogDir   string
	LogLevel string
}

type DBConfig struct {
	Dialect  string
	Path     string
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// Load reads .env (if present) and then the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		zap.L().Info("⚠️ No .env file found, relying on OS environment variables")
	}

	return &Config{
		HTTPAddr:   getEnv("HTTP_ADDR", ":8000"),
		BridgeAddr: getEnv("BRIDGE_ADDR", ":3001"),
		BridgeURL:  strings.TrimRight(getEnv("BRIDGE_URL", "http://localhost:3001"), "/"),
		BridgeCmd:  strings.Fields(getEnv("BRIDGE_CMD", "thunderlink-bridge")),
		BridgeLog:  getEnv("BRIDGE_LOG", "bridge_log.txt"),
		UploadDir:  getEnv("UPLOAD_DIR", "uploads"),

		SendDelay:      getSeconds("SEND_DELAY", 20*time.Second),
		ReadyTimeout:   getSeconds("READY_TIMEOUT", 5*time.Minute),
		MirrorInterval: getSeconds("MIRROR_INTERVAL", time.Second),
		RespawnBackoff: getSeconds("RESPAWN_BACKOFF", 10*time.Second),

		DB: DBConfig{
			Dialect:  getEnv("DB_DIALECT", "sqlite3"),
			Path:     getEnv("DB_PATH", "bridge/session.db"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			Name:     os.Getenv("DB_NAME"),
		},

		AMQPURL:  os.Getenv("AMQP_URL"),
		LogDir:   getEnv("LOG_DIR", "logs"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// getSeconds accepts either a bare number of seconds or a Go duration string.
func getSeconds(key string, fallback time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil && n >= 0 {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	zap.L().Warn("invalid duration, using default", zap.String("key", key), zap.String("value", v))
	return fallback
}
