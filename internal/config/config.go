package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN       string
	RedisDSN    string
	HTTPAddr    string
	MetricsAddr string
	LogLevel    string

	// Twitter API access. An empty bearer token switches the whole pipeline
	// to the unauthenticated scraper; this is a static decision, not retried
	// per call.
	TwitterBearerToken string
	TwitterAPIBase     string
	ScraperBase        string

	WorkerCount     int
	RefreshSchedule string // cron spec for the periodic profile refresh

	CORSOrigins []string

	// optional raw-payload archive (S3/R2 compatible)
	ArchiveEndpoint string
	ArchiveBucket   string
	ArchiveKeysRaw  string // json: access_key_id / secret_access_key
}

func Load() (Config, error) {
	// .env is a convenience for local runs; absence is not an error
	_ = godotenv.Load()

	cfg := Config{
		DBDSN:              os.Getenv("DB_DSN"),
		RedisDSN:           getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		HTTPAddr:           getenvDefault("HTTP_ADDR", ":8080"),
		MetricsAddr:        getenvDefault("METRICS_ADDR", ""),
		LogLevel:           getenvDefault("LOG_LEVEL", "info"),
		TwitterBearerToken: os.Getenv("TWITTER_BEARER_TOKEN"),
		TwitterAPIBase:     getenvDefault("TWITTER_API_BASE", "https://api.twitter.com/1.1"),
		ScraperBase:        getenvDefault("SCRAPER_BASE", "https://cdn.syndication.twimg.com"),
		RefreshSchedule:    getenvDefault("REFRESH_SCHEDULE", "*/15 * * * *"),
		ArchiveEndpoint:    getenvDefault("ARCHIVE_ENDPOINT", ""),
		ArchiveBucket:      getenvDefault("ARCHIVE_BUCKET", ""),
		ArchiveKeysRaw:     os.Getenv("ARCHIVE_KEYS"),
	}

	if cfg.DBDSN == "" {
		return Config{}, errors.New("missing DB_DSN")
	}

	cfg.WorkerCount = getenvInt("WORKER_COUNT", 8)

	// light validation: archive keys must be valid json if set
	if cfg.ArchiveKeysRaw != "" {
		var tmp any
		if err := json.Unmarshal([]byte(cfg.ArchiveKeysRaw), &tmp); err != nil {
			return Config{}, errors.New("ARCHIVE_KEYS must be valid json")
		}
	}

	corsOrigins := getenvDefault("CORS_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = strings.Split(corsOrigins, ",")
		for i := range cfg.CORSOrigins {
			cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
		}
	} else {
		cfg.CORSOrigins = []string{"http://localhost:3000"} // default
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}
