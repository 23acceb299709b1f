package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port            string
	DBDSN           string
	LogFile         string
	LogLevel        string
	RedisAddr       string
	RedisPassword   string
	CartCacheTTL    time.Duration
	KafkaBrokers    []string
	OrderTopic      string
	CheckoutTimeout time.Duration
	TxIsolation     string
	SeedDemo        bool
}

// DefaultDSN opens transactions with BEGIN IMMEDIATE so the write lock is taken up front.
const DefaultDSN = "file:bazaar.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_txlock=immediate"

func Load() Config {
	cfg := Config{
		Port:            env("PORT", "8081"),
		DBDSN:           env("DB_DSN", DefaultDSN),
		LogFile:         os.Getenv("LOG_FILE"),
		LogLevel:        env("LOG_LEVEL", "info"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		CartCacheTTL:    duration("CART_CACHE_TTL", 30*time.Second),
		KafkaBrokers:    list(os.Getenv("KAFKA_BROKERS")),
		OrderTopic:      env("ORDER_EVENTS_TOPIC", "order-events"),
		CheckoutTimeout: duration("CHECKOUT_TIMEOUT", 30*time.Second),
		TxIsolation:     env("TX_ISOLATION", "default"), // default or serializable; _txlock=immediate serializes writers
		SeedDemo:        boolean("SEED_DEMO", true),
	}
	pw := ""
	if cfg.RedisPassword != "" {
		pw = "***"
	}
	log.Printf("[config] PORT=%s DB_DSN=%s LOG_LEVEL=%s REDIS_ADDR=%s REDIS_PASSWORD=%s KAFKA_BROKERS=%v CHECKOUT_TIMEOUT=%s TX_ISOLATION=%s",
		cfg.Port, cfg.DBDSN, cfg.LogLevel, cfg.RedisAddr, pw, cfg.KafkaBrokers, cfg.CheckoutTimeout, cfg.TxIsolation)
	return cfg
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Printf("[config] invalid %s=%q, using %s", key, raw, def)
		return def
	}
	return d
}

func boolean(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using %v", key, raw, def)
		return def
	}
	return b
}

func list(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
