package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
	ErrMissingSecret         = errors.New("missing required configuration value")
)

// CurrentVersion is the expected version of the config file.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version   int       `koanf:"version"`
	Debug     Debug     `koanf:"debug"`
	Sentry    Sentry    `koanf:"sentry"`
	Redis     Redis     `koanf:"redis"`
	Market    Market    `koanf:"market"`
	AI        AI        `koanf:"ai"`
	Renderer  Renderer  `koanf:"renderer"`
	Schedule  Schedule  `koanf:"schedule"`
	Twitter   Twitter   `koanf:"twitter"`
	Instagram Instagram `koanf:"instagram"`
	Telegram  Telegram  `koanf:"telegram"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
}

// Sentry contains error tracking configuration.
type Sentry struct {
	// DSN for the error tracking sink. Empty disables forwarding.
	DSN string `koanf:"dsn"`
	// Environment tag attached to every event.
	Environment string `koanf:"environment"`
}

// Redis contains Redis connection configuration for the queue store.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Market contains market data API configuration.
type Market struct {
	// Base URL of the market data API.
	BaseURL string `koanf:"base_url"`
	// Bearer token for authentication.
	APIKey string `koanf:"api_key"`
}

// ProviderConfig holds the credential and model selection for one AI provider.
type ProviderConfig struct {
	// API key for the provider. Empty marks the provider unavailable.
	APIKey string `koanf:"api_key"`
	// Base URL of the OpenAI-compatible endpoint.
	BaseURL string `koanf:"base_url"`
	// Model identifier to request.
	Model string `koanf:"model"`
}

// AI contains AI content service configuration.
type AI struct {
	// Operator-forced primary provider name. Empty selects by priority.
	ForcedProvider string `koanf:"forced_provider"`
	// Maximum concurrent completion requests.
	MaxConcurrent int64 `koanf:"max_concurrent"`
	// Maximum completion tokens per request.
	MaxTokens int64 `koanf:"max_tokens"`
	// Sampling temperature.
	Temperature float64 `koanf:"temperature"`
	// Provider credentials in priority order.
	OpenAI     ProviderConfig `koanf:"openai"`
	OpenRouter ProviderConfig `koanf:"openrouter"`
	Groq       ProviderConfig `koanf:"groq"`
}

// Renderer contains headless-browser rendering configuration.
type Renderer struct {
	// Directory holding HTML post templates.
	TemplatesDir string `koanf:"templates_dir"`
	// Run the browser headless. Disable for local template debugging.
	Headless bool `koanf:"headless"`
}

// Schedule contains post scheduling configuration.
type Schedule struct {
	// IANA timezone for all calendar math, e.g. "Asia/Tehran".
	Timezone string `koanf:"timezone"`
	// Hour of day (0-23) for the first post of each family.
	PostHour int `koanf:"post_hour"`
	// Hours between staggered posts of a multi-post family.
	StaggerHours int `koanf:"stagger_hours"`
	// Weekday (0=Sunday) on which the weekly recap fires.
	WeeklyWeekday int `koanf:"weekly_weekday"`
	// Minimum minutes between delivery runs.
	MinRunSpacing int `koanf:"min_run_spacing"`
	// Number of entries fetched per recap.
	RecapLimit int `koanf:"recap_limit"`
}

// Twitter contains Twitter API credentials.
type Twitter struct {
	// OAuth2 client ID.
	ClientID string `koanf:"client_id"`
	// OAuth2 client secret.
	ClientSecret string `koanf:"client_secret"`
	// Bootstrap access token used before any refresh has been persisted.
	AccessToken string `koanf:"access_token"`
	// Bootstrap refresh token.
	RefreshToken string `koanf:"refresh_token"`
}

// Instagram contains Instagram account credentials.
type Instagram struct {
	// Account username.
	Username string `koanf:"username"`
	// Account password.
	Password string `koanf:"password"`
}

// Telegram contains Telegram Bot API configuration.
type Telegram struct {
	// Bot token.
	BotToken string `koanf:"bot_token"`
	// Target channel or chat ID.
	ChatID string `koanf:"chat_id"`
}

// LoadConfig loads the configuration from the first marketbot.toml found in
// the search paths. Returns the config along with the used config directory.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	configPaths := []string{
		".marketbot",
		homeDir + "/.marketbot/config",
		"/etc/marketbot/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/marketbot.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: marketbot.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if config.Version == 0 {
		return nil, "", fmt.Errorf("%w: marketbot.toml", ErrConfigVersionMissing)
	}

	if config.Version != CurrentVersion {
		return nil, "", fmt.Errorf("%w: marketbot.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, config.Version, CurrentVersion)
	}

	applyDefaults(&config)

	return &config, usedConfigPath, nil
}

// applyDefaults fills in values the config file may omit.
func applyDefaults(cfg *Config) {
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "Asia/Tehran"
	}

	if cfg.Schedule.PostHour == 0 {
		cfg.Schedule.PostHour = 9
	}

	if cfg.Schedule.StaggerHours == 0 {
		cfg.Schedule.StaggerHours = 1
	}

	if cfg.Schedule.MinRunSpacing == 0 {
		cfg.Schedule.MinRunSpacing = 58
	}

	if cfg.Schedule.RecapLimit == 0 {
		cfg.Schedule.RecapLimit = 10
	}

	if cfg.AI.MaxConcurrent == 0 {
		cfg.AI.MaxConcurrent = 1
	}

	if cfg.AI.MaxTokens == 0 {
		cfg.AI.MaxTokens = 512
	}

	if cfg.Renderer.TemplatesDir == "" {
		cfg.Renderer.TemplatesDir = "templates"
	}
}
