package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	LLMProviderGemini = "gemini"
	LLMProviderYandex = "yandex"

	IndexBackendSQLite = "sqlite"
	IndexBackendQdrant = "qdrant"
)

type Config struct {
	HTTPPort    string
	DatabaseURL string
	LogMode     string
	StaticDir   string
	CORSOrigins []string

	GeminiAPIKey         string
	GeminiChatModel      string
	GeminiEmbeddingModel string

	LLMProvider         string
	YandexFolderID      string
	YandexAuthorization string
	LLMTimeout          time.Duration

	IndexBackend     string
	QdrantHost       string
	QdrantPort       int
	QdrantAPIKey     string
	QdrantCollection string

	GreenIDInstance   string
	GreenAPIToken     string
	GreenAPIURL       string
	OperatorChatID    string
	MessagingTimeout  time.Duration
	ClientSourceAllow []string

	RedisAddr string

	IngestRatePerSecond int
	IngestConcurrency   int

	// LoadedDotEnv reports whether a .env file was found.
	LoadedDotEnv bool
}

// LoadConfig reads a .env file if present, then the environment.
func LoadConfig() (*Config, error) {
	loaded := godotenv.Load() == nil

	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", "chat_history.db"),
		LogMode:     getEnv("LOG_MODE", "dev"),
		StaticDir:   getEnv("STATIC_DIR", ""),
		CORSOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiChatModel:      getEnv("GEMINI_CHAT_MODEL", "gemini-1.5-flash-latest"),
		GeminiEmbeddingModel: getEnv("GEMINI_EMBEDDING_MODEL", "text-embedding-004"),

		LLMProvider:         strings.ToLower(getEnv("LLM_PROVIDER", LLMProviderGemini)),
		YandexFolderID:      getEnv("YANDEX_FOLDER_ID", ""),
		YandexAuthorization: getEnv("YANDEX_AUTHORIZATION", ""),
		LLMTimeout:          time.Duration(getEnvAsInt("LLM_TIMEOUT_SECONDS", 20)) * time.Second,

		IndexBackend:     strings.ToLower(getEnv("INDEX_BACKEND", IndexBackendSQLite)),
		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvAsInt("QDRANT_PORT", 6334),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "qa_dataset"),

		GreenIDInstance:   getEnv("GREEN_ID_INSTANCE", ""),
		GreenAPIToken:     getEnv("GREEN_API_TOKEN", ""),
		GreenAPIURL:       getEnv("GREEN_API_URL", "https://api.green-api.com"),
		OperatorChatID:    getEnv("WHATSAPP_CHAT_ID", ""),
		MessagingTimeout:  time.Duration(getEnvAsInt("MESSAGING_TIMEOUT_SECONDS", 10)) * time.Second,
		ClientSourceAllow: getEnvAsList("CLIENT_SOURCE_ALLOWLIST", []string{"moblaw.ru"}),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		IngestRatePerSecond: getEnvAsInt("INGEST_RATE_PER_SECOND", 25),
		IngestConcurrency:   getEnvAsInt("INGEST_CONCURRENCY", 4),

		LoadedDotEnv: loaded,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	switch c.LLMProvider {
	case LLMProviderGemini:
	case LLMProviderYandex:
		if c.YandexFolderID == "" || c.YandexAuthorization == "" {
			return fmt.Errorf("YANDEX_FOLDER_ID and YANDEX_AUTHORIZATION are required when LLM_PROVIDER=yandex")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}
	switch c.IndexBackend {
	case IndexBackendSQLite, IndexBackendQdrant:
	default:
		return fmt.Errorf("unsupported INDEX_BACKEND %q", c.IndexBackend)
	}
	if c.LLMTimeout <= 0 || c.MessagingTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_SECONDS and MESSAGING_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := strings.TrimSpace(getEnv(key, ""))
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
