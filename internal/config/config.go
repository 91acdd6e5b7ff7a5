// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultHintCap is the number of hints after which a session reports done.
const DefaultHintCap = 12

// Config holds all application configuration.
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       slog.Level
	LLM            LLMConfig
	Session        SessionConfig
	Archive        ArchiveConfig
}

// LLMConfig controls the outbound chat-completion endpoint.
type LLMConfig struct {
	APIURL      string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature float32
}

// SessionConfig controls hint session policy.
type SessionConfig struct {
	HintCap int
	IdleTTL time.Duration // 0 disables idle expiry
}

// ArchiveConfig controls the optional SQLite transcript archive.
type ArchiveConfig struct {
	DBPath    string        // empty disables the archive
	Retention time.Duration // 0 keeps archived sessions forever
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "3000"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		LLM: LLMConfig{
			APIURL:      getEnv("LLM_API_URL", "https://api.openai.com/v1/chat/completions"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Model:       getEnv("MODEL", "gpt-4o-mini"),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 60*time.Second),
			Temperature: getEnvFloat32("LLM_TEMPERATURE", 0.7),
		},
		Session: SessionConfig{
			HintCap: getEnvInt("HINT_CAP", DefaultHintCap),
			IdleTTL: getEnvDuration("SESSION_IDLE_TTL", 0),
		},
		Archive: ArchiveConfig{
			DBPath:    getEnv("ARCHIVE_DB_PATH", ""),
			Retention: getEnvDuration("ARCHIVE_RETENTION", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// A missing API key is not an error; see Warnings.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.LLM.APIURL == "" {
		return fmt.Errorf("LLM_API_URL cannot be empty")
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("MODEL cannot be empty")
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be > 0")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be within [0, 2]")
	}
	if c.Session.HintCap <= 0 {
		return fmt.Errorf("HINT_CAP must be > 0")
	}
	if c.Session.IdleTTL < 0 {
		return fmt.Errorf("SESSION_IDLE_TTL cannot be negative")
	}
	if c.Archive.Retention < 0 {
		return fmt.Errorf("ARCHIVE_RETENTION cannot be negative")
	}
	return nil
}

// Warnings returns non-fatal configuration problems worth logging at startup.
func (c *Config) Warnings() []string {
	var out []string
	if c.LLM.APIKey == "" {
		out = append(out, "LLM_API_KEY is not set; completion calls will be rejected upstream")
	}
	return out
}

// ArchiveEnabled returns true if resolved sessions should be archived.
func (c *Config) ArchiveEnabled() bool {
	return c.Archive.DBPath != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat32(key string, fallback float32) float32 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 32)
	if err != nil {
		return fallback
	}
	return float32(f)
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return lvl
}
