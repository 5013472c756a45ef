package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/satriahrh/obrolan/server/domain/entities"
)

// Backends and stores understood by the server
const (
	BackendMock   = "mock"
	BackendGemini = "gemini"
	BackendOllama = "ollama"

	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Config stores all configuration of the server.
// Values come from the environment (optionally seeded from .env) and an
// optional YAML file named by CONFIG_FILE; the environment wins.
type Config struct {
	Port     string `mapstructure:"port"`
	AppEnv   string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`

	Backend         string        `mapstructure:"backend"`
	GeminiAPIKey    string        `mapstructure:"gemini_api_key"`
	ModelName       string        `mapstructure:"model_name"`
	OllamaHost      string        `mapstructure:"ollama_host"`
	SystemPrompt    string        `mapstructure:"system_prompt"`
	MockStreamDelay time.Duration `mapstructure:"mock_stream_delay"`

	HistoryMaxTurns    int    `mapstructure:"history_max_turns"`
	HistoryRenderStyle string `mapstructure:"history_render_style"`

	Store           string `mapstructure:"store"`
	MongoDBURI      string `mapstructure:"mongodb_uri"`
	MongoDBDatabase string `mapstructure:"mongodb_database"`

	SessionTTL             time.Duration `mapstructure:"session_ttl"`
	SessionCleanupInterval time.Duration `mapstructure:"session_cleanup_interval"`

	GenerationTimeout time.Duration `mapstructure:"generation_timeout"`
	StreamIdleTimeout time.Duration `mapstructure:"stream_idle_timeout"`

	JWTSecret   string   `mapstructure:"jwt_secret"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

var defaults = map[string]interface{}{
	"port":                     "8080",
	"app_env":                  "production",
	"log_level":                "info",
	"backend":                  BackendMock,
	"gemini_api_key":           "",
	"model_name":               "",
	"ollama_host":              "http://localhost:11434",
	"system_prompt":            "",
	"mock_stream_delay":        "50ms",
	"history_max_turns":        0,
	"history_render_style":     string(entities.RenderPlain),
	"store":                    StoreMemory,
	"mongodb_uri":              "",
	"mongodb_database":         "obrolan",
	"session_ttl":              "24h",
	"session_cleanup_interval": "30m",
	"generation_timeout":       "60s",
	"stream_idle_timeout":      "20s",
	"jwt_secret":               "",
	"cors_origins":             []string{"*"},
}

// Load reads configuration. configFile may be empty, in which case the
// CONFIG_FILE environment variable is consulted.
func Load(configFile string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	cfg.CORSOrigins = trimAll(cfg.CORSOrigins)

	return &cfg, nil
}

// Validate checks the configuration for values the server cannot run with
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("PORT must be a number between 1 and 65535, got %q", c.Port)
	}

	switch c.Backend {
	case BackendMock, BackendGemini, BackendOllama:
	default:
		return fmt.Errorf("BACKEND must be one of mock, gemini, ollama, got %q", c.Backend)
	}

	switch c.Store {
	case StoreMemory:
	case StoreMongo:
		if c.MongoDBURI == "" {
			return fmt.Errorf("MONGODB_URI is required when STORE=mongo")
		}
	default:
		return fmt.Errorf("STORE must be one of memory, mongo, got %q", c.Store)
	}

	if c.HistoryMaxTurns < 0 {
		return fmt.Errorf("HISTORY_MAX_TURNS must not be negative, got %d", c.HistoryMaxTurns)
	}
	// an odd window would drop a user turn and leave its reply behind
	if c.HistoryMaxTurns%2 != 0 {
		return fmt.Errorf("HISTORY_MAX_TURNS must be even, got %d", c.HistoryMaxTurns)
	}

	if _, err := entities.ParseRenderStyle(c.HistoryRenderStyle); err != nil {
		return fmt.Errorf("HISTORY_RENDER_STYLE: %w", err)
	}

	for name, value := range map[string]time.Duration{
		"SESSION_TTL":              c.SessionTTL,
		"SESSION_CLEANUP_INTERVAL": c.SessionCleanupInterval,
		"GENERATION_TIMEOUT":       c.GenerationTimeout,
		"STREAM_IDLE_TIMEOUT":      c.StreamIdleTimeout,
		"MOCK_STREAM_DELAY":        c.MockStreamDelay,
	} {
		if value < 0 {
			return fmt.Errorf("%s must not be negative, got %s", name, value)
		}
	}

	return nil
}

// RenderStyle returns the parsed history render style
func (c *Config) RenderStyle() entities.RenderStyle {
	style, err := entities.ParseRenderStyle(c.HistoryRenderStyle)
	if err != nil {
		return entities.RenderPlain
	}
	return style
}

// IsDevelopment reports whether APP_ENV selects development mode
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.AppEnv, "development")
}

func trimAll(values []string) []string {
	trimmed := make([]string, 0, len(values))
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			trimmed = append(trimmed, value)
		}
	}
	return trimmed
}
