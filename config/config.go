package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string

	PineconeAPIKey    string
	PineconeIndexName string
	OpenAIAPIKey      string
	AnthropicAPIKey   string

	// VectorMode selects the semantic index backend: "pinecone" or "memory".
	// Memory mode keeps everything in-process and needs no external services.
	VectorMode string

	AnalysisTimeout time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("[INFO] No .env file found, using environment variables")
	}

	return &Config{
		Port:              getenvDefault("PORT", "5000"),
		DatabaseURL:       os.Getenv("DB_URL"),
		PineconeAPIKey:    os.Getenv("PINECONE_API_KEY"),
		PineconeIndexName: getenvDefault("PINECONE_INDEX_NAME", "exam-questions-index"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:   os.Getenv("ANTHROPIC_API_KEY"),
		VectorMode:        getenvDefault("VECTOR_MODE", "pinecone"),
		AnalysisTimeout:   getenvDuration("ANALYSIS_TIMEOUT", 50*time.Second),
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[WARN] Invalid duration for %s=%q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
