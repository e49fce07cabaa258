package concierge

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config is the environment-driven service configuration. All credentials
// are required at startup; a missing credential aborts the process rather
// than limping into a half-working deployment.
type Config struct {
	Addr string

	GeminiAPIKey string
	GeminiModel  string
	SystemPrompt string

	EmbeddingModel  string
	VendorIndexPath string

	ModerationAPIKey string
	BraveAPIKey      string

	StoreType string
	StoreDSN  string
}

// DefaultSystemPrompt frames the assistant for the general chat path.
const DefaultSystemPrompt = "You are ShaadiScout, a friendly concierge for a weddings and events vendor marketplace in Mumbai. Help users plan their event, answer general questions, and use web search when fresh information is needed. Keep answers concise and practical."

// LoadConfig reads configuration from the environment, loading a .env file
// first when one exists.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Addr:             envOr("ADDR", ":8080"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      envOr("GEMINI_MODEL", "gemini-2.0-flash"),
		SystemPrompt:     envOr("SYSTEM_PROMPT", DefaultSystemPrompt),
		EmbeddingModel:   envOr("EMBEDDING_MODEL", "gemini-embedding-001"),
		VendorIndexPath:  envOr("VENDOR_INDEX_PATH", "vendors.sqlite"),
		ModerationAPIKey: os.Getenv("MODERATION_API_KEY"),
		BraveAPIKey:      os.Getenv("BRAVE_API_KEY"),
		StoreType:        envOr("STORE_TYPE", "sqlite"),
		StoreDSN:         envOr("STORE_DSN", "concierge.sqlite"),
	}

	missing := []string{}
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if cfg.ModerationAPIKey == "" {
		missing = append(missing, "MODERATION_API_KEY")
	}
	if cfg.BraveAPIKey == "" {
		missing = append(missing, "BRAVE_API_KEY")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
