package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

// DefaultSessionSecret 仅用于本地开发，非 dev 环境必须覆盖。
const DefaultSessionSecret = "dev-secret-change-me"

type Config struct {
	Port             string
	DatabaseDSN      string
	RedisAddr        string
	RedisPassword    string
	SessionSecret    string
	LoginURL         string
	BroadcastChannel string
	CacheBackend     string
	Env              string
	CacheTTLSeconds  int
}

// CacheTTL 返回会话缓存条目的存活时间。
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

// getenvInt 读取正整数配置，非法值回退到默认值。
func getenvInt(key string, def int) int {
	v, err := strconv.Atoi(getenv(key, strconv.Itoa(def)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func Load() Config {
	return Config{
		Port:             getenv("APP_PORT", "8000"),
		DatabaseDSN:      getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=chatrelay port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:        getenv("REDIS_ADDR", "redis:6379"),
		RedisPassword:    getenv("REDIS_PASSWORD", ""),
		SessionSecret:    getenv("SESSION_SECRET", DefaultSessionSecret),
		LoginURL:         getenv("LOGIN_URL", "/"),
		BroadcastChannel: getenv("BROADCAST_CHANNEL", "messages"),
		CacheBackend:     getenv("CACHE_BACKEND", "redis"),
		Env:              getenv("APP_ENV", "dev"),
		CacheTTLSeconds:  getenvInt("CACHE_TTL_SECONDS", 3600),
	}
}

// Validate 在启动前检查配置，避免带着明显错误的配置对外服务。
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: empty port")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("config: empty database dsn")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: empty redis addr")
	}
	if cfg.BroadcastChannel == "" {
		return errors.New("config: empty broadcast channel")
	}
	if cfg.CacheBackend != "" && cfg.CacheBackend != "redis" && cfg.CacheBackend != "memory" {
		return errors.New("config: unknown cache backend " + cfg.CacheBackend)
	}
	if cfg.SessionSecret == "" || (cfg.Env != "dev" && cfg.SessionSecret == DefaultSessionSecret) {
		return errors.New("config: session secret must be set outside dev")
	}
	return nil
}
