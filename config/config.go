// Package config loads runtime configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// OpenAIAPIKey may be empty; sessions then start without credentials and
	// a key must be supplied per session. It is never persisted.
	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string

	// PostgresDSN enables chat-history persistence when set. Empty disables it.
	PostgresDSN string

	Addr    string
	DataDir string

	// PollInterval and PollTimeout bound every remote operation poll.
	PollInterval time.Duration
	PollTimeout  time.Duration

	// ContinueOnUploadError keeps a batch going after one file fails to ingest.
	ContinueOnUploadError bool

	// SampleDocURLs are fetched by the "load samples" convenience path.
	SampleDocURLs []string
}

func Load() Config {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	return Config{
		OpenAIAPIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:         getEnv("OPENAI_BASE_URL", ""),
		Model:                 getEnv("DOCQA_MODEL", "gpt-4o-mini"),
		PostgresDSN:           getEnv("DOCQA_POSTGRES_DSN", ""),
		Addr:                  getEnv("DOCQA_ADDR", ":8080"),
		DataDir:               getEnv("DOCQA_DATA_DIR", "./data"),
		PollInterval:          getEnvDuration("DOCQA_POLL_INTERVAL", 3*time.Second),
		PollTimeout:           getEnvDuration("DOCQA_POLL_TIMEOUT", 5*time.Minute),
		ContinueOnUploadError: getEnvBool("DOCQA_UPLOAD_CONTINUE_ON_ERROR", false),
		SampleDocURLs: getEnvList("DOCQA_SAMPLE_DOC_URLS", []string{
			"https://www.rfc-editor.org/rfc/rfc2324.txt",
			"https://www.rfc-editor.org/rfc/rfc1149.txt",
		}),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
