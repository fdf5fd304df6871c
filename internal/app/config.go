package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr   string
	StreamAddr string
	PublicHost string

	DownloadRoot string

	// MongoURI empty disables stream history persistence.
	MongoURI        string
	MongoDatabase   string
	MongoCollection string

	LogLevel  string
	LogFormat string

	MetadataTimeout time.Duration
	GraceWindow     time.Duration
	PollInterval    time.Duration
	IdleInterval    time.Duration

	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string

	SubtitleIndexURL string
	SubtitleAPIKey   string
	SubtitleLanguage string
}

func LoadConfig() Config {
	return Config{
		HTTPAddr:         getEnv("HTTP_ADDR", ":8080"),
		StreamAddr:       getEnv("STREAM_ADDR", ":8888"),
		PublicHost:       getEnv("PUBLIC_HOST", "localhost"),
		DownloadRoot:     getEnv("DOWNLOAD_ROOT", "downloads"),
		MongoURI:         getEnv("MONGO_URI", ""),
		MongoDatabase:    getEnv("MONGO_DB", "magnetcast"),
		MongoCollection:  getEnv("MONGO_COLLECTION", "streams"),
		LogLevel:         strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(getEnv("LOG_FORMAT", "text")),
		MetadataTimeout:  getEnvDuration("METADATA_TIMEOUT", 2*time.Minute),
		GraceWindow:      getEnvDuration("IDLE_GRACE_WINDOW", 5*time.Minute),
		PollInterval:     getEnvDuration("PROGRESS_POLL_INTERVAL", 5*time.Second),
		IdleInterval:     getEnvDuration("IDLE_CHECK_INTERVAL", time.Minute),
		LLMBaseURL:       getEnv("LLM_BASE_URL", ""),
		LLMAPIKey:        getEnv("LLM_API_KEY", ""),
		LLMModel:         getEnv("LLM_MODEL", ""),
		SubtitleIndexURL: getEnv("SUBTITLE_INDEX_URL", ""),
		SubtitleAPIKey:   getEnv("SUBTITLE_API_KEY", ""),
		SubtitleLanguage: getEnv("SUBTITLE_LANGUAGE", "en"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}
