package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"campus-care-api/internal/model"
)

// Config is read from the environment once at startup.
type Config struct {
	DatabaseURL string
	JWTSecret   string

	GRPCPort string
	WebPort  string

	// optional backends; empty disables them
	RedisURL       string
	MeiliURL       string
	MeiliMasterKey string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	DefaultRole     model.Role

	RateLimitRPS   float64
	RateLimitBurst int

	OutboxInterval time.Duration
	OutboxBatch    int
	PresenceTTL    time.Duration

	CORSAllowedOrigin    string
	WSInsecureSkipOrigin bool
}

func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	cfg.GRPCPort = env("PORT", "50051")
	cfg.WebPort = env("WEB_PORT", "8080")
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.MeiliURL = os.Getenv("MEILI_URL")
	cfg.MeiliMasterKey = os.Getenv("MEILI_MASTER_KEY")
	cfg.AccessTokenTTL = envDuration("ACCESS_TOKEN_TTL", 15*time.Minute)
	cfg.RefreshTokenTTL = envDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	cfg.RateLimitRPS = envFloat("RATE_LIMIT_RPS", 5)
	cfg.RateLimitBurst = envInt("RATE_LIMIT_BURST", 10)
	cfg.OutboxInterval = envDuration("OUTBOX_INTERVAL", 2*time.Second)
	cfg.OutboxBatch = envInt("OUTBOX_BATCH", 100)
	cfg.PresenceTTL = envDuration("PRESENCE_TTL", 90*time.Second)
	cfg.CORSAllowedOrigin = env("CORS_ALLOWED_ORIGIN", "*")
	cfg.WSInsecureSkipOrigin = os.Getenv("WS_INSECURE_SKIP_ORIGIN") == "true"

	role, ok := model.ParseRole(env("DEFAULT_ROLE", string(model.RoleRequester)))
	if !ok {
		return nil, fmt.Errorf("DEFAULT_ROLE %q is not a known role", os.Getenv("DEFAULT_ROLE"))
	}
	cfg.DefaultRole = role

	return cfg, nil
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return d
}
