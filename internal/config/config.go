package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIBaseURL string
	ShopSecret string

	HTTPPort string
	Username string
	Password string

	CacheDir     string
	CacheTTL     time.Duration
	PastCacheTTL time.Duration

	ReclaimInterval time.Duration
	Stagger         time.Duration

	SigningKey string
	TokenTTL   time.Duration

	DSN           string
	MigrationsDir string
	KafkaBrokers  []string
	KafkaTopic    string
	FilterWord    string
}

func LoadConfig() *Config {
	brokersStr := getEnv("KAFKA_BROKERS", "")
	var brokers []string
	if brokersStr != "" {
		brokers = strings.Split(brokersStr, ",")
	}
	return &Config{
		APIBaseURL:      getEnv("RESERVE_API_URL", ""),
		ShopSecret:      getEnv("RESERVE_SHOP_SECRET", ""),
		HTTPPort:        getEnv("APP_PORT", "9000"),
		Username:        getEnv("APP_USER", "admin"),
		Password:        getEnv("APP_PASS", "secret"),
		CacheDir:        getEnv("RESERVE_CACHE_DIR", ".reservesync"),
		CacheTTL:        getDuration("RESERVE_CACHE_TTL", 30*time.Second),
		PastCacheTTL:    getDuration("RESERVE_PAST_CACHE_TTL", 5*time.Minute),
		ReclaimInterval: getDuration("RESERVE_RECLAIM_INTERVAL", 5*time.Minute),
		Stagger:         getDuration("RESERVE_WRITE_STAGGER", 200*time.Millisecond),
		SigningKey:      getEnv("RESERVE_SIGNING_KEY", ""),
		TokenTTL:        getDuration("RESERVE_TOKEN_TTL", 5*time.Minute),
		DSN:             getEnv("APP_DSN", ""),
		MigrationsDir:   getEnv("APP_MIGRATIONS", "migrations"),
		KafkaBrokers:    brokers,
		KafkaTopic:      getEnv("KAFKA_TOPIC", "reservation-audit"),
		FilterWord:      getEnv("APP_FILTER", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%s", c.HTTPPort)
}
