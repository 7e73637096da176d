package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv          string
	HTTPAddr        string
	MetricsAddr     string
	RequestTimeout  time.Duration
	MySQLDSN        string
	RedisAddr       string
	RedisDB         int
	RedisPass       string
	CacheTTL        time.Duration
	ImportWorkers   int
	ImportRPS       int
	ImportBaseURL   string
	DefaultProvince string
}

func Load() Config {
	// .env is optional; real env vars always win.
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg("loaded .env")
	}

	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		// per-request budget enforced by the router
		RequestTimeout: time.Duration(atoi("HTTP_TIMEOUT_SECONDS", 15)) * time.Second,
		// hosting panels sometimes paste the DSN with stray spaces
		MySQLDSN:        strings.TrimSpace(env("MYSQL_DSN", "root:root@tcp(localhost:3306)/pisos?parseTime=true&charset=utf8mb4,utf8&loc=UTC")),
		RedisAddr:       env("REDIS_ADDR", "localhost:6379"),
		RedisPass:       env("REDIS_PASSWORD", ""),
		RedisDB:         atoi("REDIS_DB", 0),
		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 300)) * time.Second,
		ImportWorkers:   atoi("IMPORT_WORKERS", 4),
		ImportRPS:       atoi("IMPORT_RPS", 2),
		ImportBaseURL:   env("IMPORT_BASE_URL", ""),
		DefaultProvince: env("DEFAULT_PROVINCE", "Murcia"),
	}
	if c.ImportWorkers <= 0 {
		log.Warn().Int("workers", c.ImportWorkers).Msg("IMPORT_WORKERS must be positive, using 1")
		c.ImportWorkers = 1
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
