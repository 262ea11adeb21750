// Package tripflow - config.go
// Environment-driven configuration. A local .env file is loaded when
// present; real deployments set the variables directly.

package tripflow

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Port int

	PostgresURI string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	Model         string

	WhatsAppToken       string
	WhatsAppPhoneID     string
	WhatsAppVerifyToken string
	WhatsAppAgentID     string
}

const defaultPort = 8080
const defaultModel = "gpt-4o-mini"

// LoadConfig reads configuration from the environment, preferring a .env
// file when one exists in the working directory.
func LoadConfig() (*Config, error) {
	// Missing .env is fine; env vars win either way.
	_ = godotenv.Load()

	cfg := &Config{
		Env:  getEnv("TRIPFLOW_ENV", "development"),
		Port: defaultPort,

		PostgresURI: os.Getenv("POSTGRES_URI"),

		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:         getEnv("OPENAI_MODEL", defaultModel),

		WhatsAppToken:       os.Getenv("WHATSAPP_TOKEN"),
		WhatsAppPhoneID:     os.Getenv("WHATSAPP_PHONE_ID"),
		WhatsAppVerifyToken: os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		WhatsAppAgentID:     os.Getenv("WHATSAPP_AGENT_ID"),
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return nil, validationErr("PORT must be an integer, got %q", raw)
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the settings the current environment cannot run
// without. Development tolerates missing WhatsApp credentials.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return validationErr("OPENAI_API_KEY is required")
	}
	if c.Env == "production" {
		if c.PostgresURI == "" {
			return validationErr("POSTGRES_URI is required in production")
		}
		if c.WhatsAppToken == "" || c.WhatsAppPhoneID == "" || c.WhatsAppVerifyToken == "" {
			return validationErr("WHATSAPP_TOKEN, WHATSAPP_PHONE_ID and WHATSAPP_VERIFY_TOKEN are required in production")
		}
	}
	return nil
}

func (c *Config) WhatsAppEnabled() bool {
	return c.WhatsAppToken != "" && c.WhatsAppPhoneID != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
