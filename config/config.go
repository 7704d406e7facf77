package config

import (
	"fmt"
	"strings"
	"time"

	"go-and-tell/utils"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is everything the service reads from its environment.
type Config struct {
	DatabaseURL       string        `env:"DATABASE_URL"`
	Port              string        `env:"PORT"               envDefault:"5200"`
	ServiceToken      string        `env:"SERVICE_TOKEN"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS"    envDefault:"http://localhost:3000" envSeparator:","`
	LogLevel          string        `env:"LOG_LEVEL"          envDefault:"info"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`

	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GeminiModel  string `env:"GEMINI_MODEL"`

	R2 R2
}

type R2 struct {
	AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	Bucket          string `env:"R2_BUCKET_NAME"`
	CDNBaseURL      string `env:"CDN_BASE_URL"`
}

func (r R2) Uploader() utils.R2Config {
	return utils.R2Config{
		AccountID:       r.AccountID,
		AccessKeyID:     r.AccessKeyID,
		AccessKeySecret: r.AccessKeySecret,
		Bucket:          r.Bucket,
		CDNBaseURL:      r.CDNBaseURL,
	}
}

// LoadDotEnv loads .env files into the process environment. Existing
// variables win over file values.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	return cfg, nil
}

// ValidateServe checks the settings the HTTP server cannot run without.
func (c Config) ValidateServe() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if c.ServiceToken == "" {
		return fmt.Errorf("SERVICE_TOKEN environment variable not set")
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must not be negative")
	}
	return nil
}
