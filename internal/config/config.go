package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Common
	Env      string
	LogLevel string
	// API
	Port           string
	RequestTimeout time.Duration
	// Storage: "pg" (pgx pool) or "sql" (database/sql)
	Storage     string
	DatabaseURL string
	SQLDriver   string
	PGMaxConns  int
	PGMinConns  int
	// Transactions
	ReadTx          string
	IsolationLevel  string
	RollbackTimeout time.Duration
	// Redis (idempotency)
	IdempotencyBackend string
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	RedisTTL           time.Duration
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func durMS(key string, defMS int) time.Duration {
	return time.Duration(atoiDef(getEnv(key, strconv.Itoa(defMS)), defMS)) * time.Millisecond
}

// Load reads environment variables and applies defaults.
func Load() Config {
	return Config{
		Env:                getEnv("ENV", "local"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		Port:               getEnv("PORT", "8080"),
		RequestTimeout:     durMS("REQUEST_TIMEOUT_MS", 3000),
		Storage:            getEnv("STORAGE", "pg"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		SQLDriver:          getEnv("SQL_DRIVER", "sqlite"),
		PGMaxConns:         atoiDef(getEnv("PG_MAX_CONNS", "5"), 5),
		PGMinConns:         atoiDef(getEnv("PG_MIN_CONNS", "1"), 1),
		ReadTx:             getEnv("READ_TX", "tx"),
		IsolationLevel:     getEnv("TX_ISOLATION", "read committed"),
		RollbackTimeout:    durMS("ROLLBACK_TIMEOUT_MS", 5000),
		IdempotencyBackend: getEnv("IDEMPOTENCY_BACKEND", "redis"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      getEnv("REDIS_PASSWORD", ""),
		RedisDB:            atoiDef(getEnv("REDIS_DB", "0"), 0),
		RedisTTL:           durMS("IDEMPOTENCY_TTL_MS", 86400000),
	}
}
