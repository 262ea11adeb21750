package tripflow

import (
	"errors"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Run("DevelopmentNeedsOnlyAPIKey", func(t *testing.T) {
		cfg := &Config{Env: "development", OpenAIAPIKey: "sk-test"}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Expected development config to validate, got %v", err)
		}
	})

	t.Run("MissingAPIKey", func(t *testing.T) {
		cfg := &Config{Env: "development"}
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("Expected error for missing API key")
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("Expected a validation error, got %v", err)
		}
	})

	t.Run("ProductionRequiresPostgres", func(t *testing.T) {
		cfg := &Config{Env: "production", OpenAIAPIKey: "sk-test"}
		if err := cfg.Validate(); err == nil {
			t.Fatalf("Expected error for missing postgres URI in production")
		}
	})

	t.Run("ProductionRequiresWhatsAppCredentials", func(t *testing.T) {
		cfg := &Config{
			Env:          "production",
			OpenAIAPIKey: "sk-test",
			PostgresURI:  "postgres://localhost/tripflow",
		}
		if err := cfg.Validate(); err == nil {
			t.Fatalf("Expected error for missing WhatsApp credentials in production")
		}

		cfg.WhatsAppToken = "token"
		cfg.WhatsAppPhoneID = "12345"
		cfg.WhatsAppVerifyToken = "verify"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Expected complete production config to validate, got %v", err)
		}
	})

	t.Run("WhatsAppEnabled", func(t *testing.T) {
		cfg := &Config{}
		if cfg.WhatsAppEnabled() {
			t.Fatalf("Expected WhatsApp to be disabled without credentials")
		}
		cfg.WhatsAppToken = "token"
		cfg.WhatsAppPhoneID = "12345"
		if !cfg.WhatsAppEnabled() {
			t.Fatalf("Expected WhatsApp to be enabled with token and phone ID")
		}
	})
}
