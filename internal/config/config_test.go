package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/satriahrh/obrolan/server/domain/entities"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HISTORY_MAX_TURNS", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, BackendMock, cfg.Backend)
	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Zero(t, cfg.HistoryMaxTurns)
	assert.Equal(t, entities.RenderPlain, cfg.RenderStyle())
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 30*time.Minute, cfg.SessionCleanupInterval)
	assert.Equal(t, 60*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, 20*time.Second, cfg.StreamIdleTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("BACKEND", "Gemini")
	t.Setenv("MODEL_NAME", "gemini-1.5-pro")
	t.Setenv("HISTORY_MAX_TURNS", "6")
	t.Setenv("HISTORY_RENDER_STYLE", "tagged")
	t.Setenv("GENERATION_TIMEOUT", "5s")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, BackendGemini, cfg.Backend)
	assert.Equal(t, "gemini-1.5-pro", cfg.ModelName)
	assert.Equal(t, 6, cfg.HistoryMaxTurns)
	assert.Equal(t, entities.RenderTagged, cfg.RenderStyle())
	assert.Equal(t, 5*time.Second, cfg.GenerationTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.IsDevelopment())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "obrolan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: ollama\nollama_host: http://ollama:11434\nstream_idle_timeout: 3s\nport: \"7070\"\n"), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7171")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendOllama, cfg.Backend)
	assert.Equal(t, "http://ollama:11434", cfg.OllamaHost)
	assert.Equal(t, 3*time.Second, cfg.StreamIdleTimeout)
	// environment wins over the file
	assert.Equal(t, "7171", cfg.Port)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:               "8080",
			Backend:            BackendMock,
			Store:              StoreMemory,
			HistoryMaxTurns:    20,
			HistoryRenderStyle: "plain",
		}
	}

	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{name: "bad port", modify: func(c *Config) { c.Port = "http" }},
		{name: "port out of range", modify: func(c *Config) { c.Port = "70000" }},
		{name: "unknown backend", modify: func(c *Config) { c.Backend = "openai" }},
		{name: "unknown store", modify: func(c *Config) { c.Store = "redis" }},
		{name: "mongo without uri", modify: func(c *Config) { c.Store = StoreMongo }},
		{name: "negative window", modify: func(c *Config) { c.HistoryMaxTurns = -1 }},
		{name: "odd window", modify: func(c *Config) { c.HistoryMaxTurns = 5 }},
		{name: "unknown render style", modify: func(c *Config) { c.HistoryRenderStyle = "chatml" }},
		{name: "negative timeout", modify: func(c *Config) { c.GenerationTimeout = -time.Second }},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&Config{LogLevel: "debug"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = NewLogger(&Config{LogLevel: "warn", AppEnv: "development"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))

	_, err = NewLogger(&Config{LogLevel: "loud"})
	assert.Error(t, err)
}
