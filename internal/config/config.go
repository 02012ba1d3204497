package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server (relayd)
	Port string
	Env  string

	// Redis (optional; empty runs single-instance)
	RedisURL string

	// Relay (client side)
	RelayURL string

	// Execution / AI-assist services
	ExecutionServiceURL string
	AssistServiceURL    string
	CompileTimeoutSec   int
	AssistTimeoutSec    int

	// Activity ledger
	LedgerPath string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:                getEnvOrDefault("PORT", "8090"),
		Env:                 getEnvOrDefault("ENV", "development"),
		RedisURL:            getEnvOrDefault("REDIS_URL", ""),
		RelayURL:            getEnvOrDefault("RELAY_URL", "ws://localhost:8090/ws"),
		ExecutionServiceURL: getEnvOrDefault("EXECUTION_SERVICE_URL", "http://localhost:8001"),
		AssistServiceURL:    getEnvOrDefault("ASSIST_SERVICE_URL", "http://localhost:8002"),
		CompileTimeoutSec:   getEnvAsIntOrDefault("COMPILE_TIMEOUT_SECONDS", 45),
		AssistTimeoutSec:    getEnvAsIntOrDefault("ASSIST_TIMEOUT_SECONDS", 60),
		LedgerPath:          getEnvOrDefault("LEDGER_PATH", defaultLedgerPath()),
		FrontendURL:         getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

func defaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "activity.json"
	}
	return filepath.Join(home, ".justcoding", "activity.json")
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
