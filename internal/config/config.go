package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment configuration values for the engine.
// Values are loaded from a .env file when present and then from the process
// environment.
type Config struct {
	// SupabaseURL is the URL of the Supabase project backing the chat
	SupabaseURL string `env:"SUPABASE_URL"`

	// SupabaseKey is the anon key; requests are scoped by the access token
	SupabaseKey string `env:"SUPABASE_ANON_KEY"`

	// AccessToken is the signed-in user's JWT. Empty means anonymous.
	AccessToken string `env:"SUPABASE_ACCESS_TOKEN"`

	// UserID is the current actor. Writes fail with ErrUnauthenticated without it.
	UserID string `env:"CHATSYNC_USER_ID"`

	// ServerPort is the port the local API listens on
	ServerPort string `env:"PORT" envDefault:"8080"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:5173,http://localhost:3000"`

	MessagePageSize int           `env:"MESSAGE_PAGE_SIZE" envDefault:"50"`
	TypingTimeout   time.Duration `env:"TYPING_TIMEOUT" envDefault:"2s"`
	ExpiryTick      time.Duration `env:"EXPIRY_TICK" envDefault:"1s"`
	MediaBucket     string        `env:"MEDIA_BUCKET" envDefault:"chat-media"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY"`
}

// Load reads a .env file if one exists and parses the environment into a
// Config. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.MessagePageSize <= 0 {
		return fmt.Errorf("MESSAGE_PAGE_SIZE must be positive, got %d", c.MessagePageSize)
	}
	if c.TypingTimeout <= 0 {
		return fmt.Errorf("TYPING_TIMEOUT must be positive, got %s", c.TypingTimeout)
	}
	if c.ExpiryTick <= 0 {
		return fmt.Errorf("EXPIRY_TICK must be positive, got %s", c.ExpiryTick)
	}
	return nil
}

// Warnings lists settings that are allowed but probably wrong.
func (c *Config) Warnings() []string {
	var out []string
	if c.SupabaseURL == "" {
		out = append(out, "SUPABASE_URL is not set")
	}
	if c.SupabaseKey == "" {
		out = append(out, "SUPABASE_ANON_KEY is not set")
	}
	if c.UserID == "" {
		out = append(out, "CHATSYNC_USER_ID is not set; writes will be rejected")
	}
	return out
}
