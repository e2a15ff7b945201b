package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const DefaultHubBaseURL = "https://services.myfileguardian.com/"

var (
	ErrMissingAPIKey    = errors.New("HUB_API_KEY is required")
	ErrMissingAPISecret = errors.New("HUB_API_SECRET is required")
)

// HubConfig is the credential and endpoint set for the platform transport.
type HubConfig struct {
	BaseURL         string
	APIKey          string
	APISecret       string
	RateLimitPerMin int
	Timeout         time.Duration
}

func init() {
	// Load env from .env
	godotenv.Load()
}

// LoadHubConfig reads the platform credentials from the environment.
// A missing key or secret is a startup error, reported before any sync work starts.
func LoadHubConfig() (HubConfig, error) {
	cfg := HubConfig{
		BaseURL:         strings.TrimSpace(os.Getenv("HUB_API_BASE_URL")),
		APIKey:          strings.TrimSpace(os.Getenv("HUB_API_KEY")),
		APISecret:       strings.TrimSpace(os.Getenv("HUB_API_SECRET")),
		RateLimitPerMin: intFromEnv("HUB_RATE_LIMIT_PER_MIN", 60),
		Timeout:         time.Duration(intFromEnv("HUB_HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultHubBaseURL
	}
	if cfg.APIKey == "" {
		return HubConfig{}, ErrMissingAPIKey
	}
	if cfg.APISecret == "" {
		return HubConfig{}, ErrMissingAPISecret
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 60
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg, nil
}
