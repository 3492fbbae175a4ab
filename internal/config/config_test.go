package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "chat_history.db", cfg.DatabaseURL)
	assert.Equal(t, LLMProviderGemini, cfg.LLMProvider)
	assert.Equal(t, IndexBackendSQLite, cfg.IndexBackend)
	assert.Equal(t, 20*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 10*time.Second, cfg.MessagingTimeout)
	assert.Equal(t, []string{"moblaw.ru"}, cfg.ClientSourceAllow)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.False(t, cfg.LoadedDotEnv)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("LLM_PROVIDER", "Yandex")
	t.Setenv("YANDEX_FOLDER_ID", "folder")
	t.Setenv("YANDEX_AUTHORIZATION", "Api-Key abc")
	t.Setenv("INDEX_BACKEND", "qdrant")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("CLIENT_SOURCE_ALLOWLIST", " moblaw.ru , partner.example ,")
	t.Setenv("LLM_TIMEOUT_SECONDS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, LLMProviderYandex, cfg.LLMProvider)
	assert.Equal(t, IndexBackendQdrant, cfg.IndexBackend)
	assert.Equal(t, 7000, cfg.QdrantPort)
	assert.Equal(t, []string{"moblaw.ru", "partner.example"}, cfg.ClientSourceAllow)
	assert.Equal(t, 20*time.Second, cfg.LLMTimeout)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			GeminiAPIKey:     "key",
			LLMProvider:      LLMProviderGemini,
			IndexBackend:     IndexBackendSQLite,
			LLMTimeout:       time.Second,
			MessagingTimeout: time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing gemini key", mutate: func(c *Config) { c.GeminiAPIKey = "" }, wantErr: "GEMINI_API_KEY"},
		{name: "yandex without credentials", mutate: func(c *Config) { c.LLMProvider = LLMProviderYandex }, wantErr: "YANDEX_FOLDER_ID"},
		{name: "unknown provider", mutate: func(c *Config) { c.LLMProvider = "other" }, wantErr: "LLM_PROVIDER"},
		{name: "unknown backend", mutate: func(c *Config) { c.IndexBackend = "chroma" }, wantErr: "INDEX_BACKEND"},
		{name: "zero timeout", mutate: func(c *Config) { c.LLMTimeout = 0 }, wantErr: "must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
