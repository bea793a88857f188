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
	ServerPort string
	LogLevel   string

	Database struct {
		Driver      string
		URL         string
		InitSQLPath string
	}

	Identity struct {
		AssociationsPath string
		OrgDomain        string
	}

	Catalog struct {
		PublicBaseURL string
		ImagesDir     string
	}

	RateLimit struct {
		Store    string
		Requests int
		Window   time.Duration
	}

	Redis struct {
		Addr     string
		Password string
		DB       int
	}
}

func Load() (*Config, error) {
	// Load .env file if it exists (useful for local dev)
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.ServerPort = getEnv("SERVER_PORT", "25408")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	cfg.Database.Driver = strings.ToLower(getEnv("DATABASE_DRIVER", "sqlite"))
	switch cfg.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported DATABASE_DRIVER: %s", cfg.Database.Driver)
	}

	cfg.Database.URL = getEnv("DATABASE_URL", "")
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}
	cfg.Database.InitSQLPath = getEnv("INIT_SQL_PATH", "")

	cfg.Identity.AssociationsPath = getEnv("ASSOCIATIONS_PATH", "")
	if cfg.Identity.AssociationsPath == "" {
		return nil, fmt.Errorf("ASSOCIATIONS_PATH must be set")
	}
	cfg.Identity.OrgDomain = getEnv("IDENTITY_ORG_DOMAIN", "wisc.edu")

	cfg.Catalog.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", "https://www.cs571.org/s23/hw8"), "/")
	cfg.Catalog.ImagesDir = getEnv("IMAGES_DIR", "./images")

	cfg.RateLimit.Store = strings.ToLower(getEnv("RATE_LIMIT_STORE", "memory"))
	if cfg.RateLimit.Store != "memory" && cfg.RateLimit.Store != "redis" {
		return nil, fmt.Errorf("unsupported RATE_LIMIT_STORE: %s", cfg.RateLimit.Store)
	}

	requests, err := strconv.Atoi(getEnv("RATE_LIMIT_REQUESTS", "100"))
	if err != nil || requests <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_REQUESTS: %q", os.Getenv("RATE_LIMIT_REQUESTS"))
	}
	cfg.RateLimit.Requests = requests

	windowSeconds, err := strconv.Atoi(getEnv("RATE_LIMIT_WINDOW_SECONDS", "30"))
	if err != nil || windowSeconds <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW_SECONDS: %q", os.Getenv("RATE_LIMIT_WINDOW_SECONDS"))
	}
	cfg.RateLimit.Window = time.Duration(windowSeconds) * time.Second

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.Redis.DB = redisDB

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
