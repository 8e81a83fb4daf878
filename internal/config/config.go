package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	AllowedOrigin       string
	DatabaseURL         string
	MongoURI            string
	MongoDatabase       string
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	CatalogCacheTTL     time.Duration
	CatalogCacheSize    int
	AMQPURL             string
	SalesEventsQueue    string
	LowStockQueue       string
	DefaultBranchID     string
	DefaultStockMinimum int
	LogLevel            string
	LogFormat           string
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	redisDB := getInt("REDIS_DB", 0, 0)
	ttl := getInt("CATALOG_CACHE_TTL_SECONDS", 30, 1)
	size := getInt("CATALOG_CACHE_SIZE", 512, 1)
	minimum := getInt("DEFAULT_STOCK_MINIMUM", 10, 0)

	return Config{
		Port:                getEnv("PORT", "8080"),
		AllowedOrigin:       getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		MongoURI:            os.Getenv("MONGO_URI"),
		MongoDatabase:       getEnv("MONGO_DATABASE", "retailpos"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             redisDB,
		CatalogCacheTTL:     time.Duration(ttl) * time.Second,
		CatalogCacheSize:    size,
		AMQPURL:             os.Getenv("AMQP_URL"),
		SalesEventsQueue:    getEnv("SALES_EVENTS_QUEUE", "sales.settled"),
		LowStockQueue:       getEnv("LOW_STOCK_QUEUE", "stock.low"),
		DefaultBranchID:     strings.ToUpper(getEnv("DEFAULT_BRANCH_ID", "S01")),
		DefaultStockMinimum: minimum,
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", "json")),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back when the value is missing, malformed or below min.
func getInt(key string, fallback int, min int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < min {
		return fallback
	}
	return val
}
