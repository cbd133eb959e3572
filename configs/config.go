package configs

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort         string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	ExtensionTokenTTL  time.Duration
	IDPVerifyURL       string
	CORSOrigins        []string
	LeaderboardLimit   int
	CacheTTL           time.Duration
	EnableWebSocket    bool
	AgentListenAddr    string
	AgentBackendURL    string
	AgentStatePath     string
	AgentSendInterval  time.Duration
	AgentMaxAttempts   int
	TransactionRetries int
}

var AppConfig *Config

func LoadConfig() error {

	godotenv.Load()

	AppConfig = &Config{
		ServerPort:         getEnv("SERVER_PORT", "4000"),
		DatabaseURL:        getEnv("DATABASE_URL", "root:password@tcp(localhost:3306)/co2ounter?charset=utf8mb4&parseTime=True&loc=UTC"),
		RedisURL:           getEnv("REDIS_URL", "localhost:6379"),
		JWTSecret:          getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		ExtensionTokenTTL:  parseDuration(getEnv("EXTENSION_TOKEN_TTL", "720h")),
		IDPVerifyURL:       getEnv("IDP_VERIFY_URL", ""),
		CORSOrigins:        splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		LeaderboardLimit:   parseInt(getEnv("LEADERBOARD_LIMIT", "20")),
		CacheTTL:           parseDuration(getEnv("CACHE_TTL", "5m")),
		EnableWebSocket:    parseBool(getEnv("ENABLE_WEBSOCKET", "true")),
		AgentListenAddr:    getEnv("AGENT_LISTEN_ADDR", "127.0.0.1:4646"),
		AgentBackendURL:    getEnv("AGENT_BACKEND_URL", "http://localhost:4000"),
		AgentStatePath:     getEnv("AGENT_STATE_PATH", "co2ounter-agent.json"),
		AgentSendInterval:  parseDuration(getEnv("AGENT_SEND_INTERVAL", "100ms")),
		AgentMaxAttempts:   parseInt(getEnv("AGENT_MAX_ATTEMPTS", "0")),
		TransactionRetries: parseInt(getEnv("TRANSACTION_RETRIES", "3")),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

func parseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Hour
	}
	return d
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func init() {
	if err := LoadConfig(); err != nil {
		log.Fatal("Failed to load config:", err)
	}
}
