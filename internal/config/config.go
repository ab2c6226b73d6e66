package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/user/waclaw/internal/types"
)

type Config struct {
	Listen   string `json:"listen"`
	LogLevel string `json:"log_level"`
	Database struct {
		Driver   string `json:"driver"` // "sqlite3" or "postgres"
		Path     string `json:"path"`   // sqlite3 file path
		DSN      string `json:"dsn"`    // full postgres DSN/URL; wins over the discrete fields
		Host     string `json:"host"`
		Port     string `json:"port"`
		User     string `json:"user"`
		Name     string `json:"name"`
		Password string `json:"password"`
	} `json:"database"`
	WhatsApp struct {
		AccessToken   string `json:"access_token"`
		PhoneNumberID string `json:"phone_number_id"`
		VerifyToken   string `json:"verify_token"`
		AppSecret     string `json:"app_secret"`
		APIVersion    string `json:"api_version"`
		BaseURL       string `json:"base_url"`
	} `json:"whatsapp"`
	LLM struct {
		Provider         string  `json:"provider"`
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key"`
		Model            string  `json:"model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
		SystemPrompt     string  `json:"system_prompt"`
	} `json:"llm"`
	Billing struct {
		APIKey        string `json:"api_key"`
		BaseURL       string `json:"base_url"`
		ReconcileCron string `json:"reconcile_cron"`
	} `json:"billing"`
	Throttle struct {
		WindowSeconds      int `json:"window_seconds"`
		AdmissionThreshold int `json:"admission_threshold"`
		PacingDelayMS      int `json:"pacing_delay_ms"`
	} `json:"throttle"`
	Limits struct {
		FreeMessages int64 `json:"free_messages"`
		ContextTurns int   `json:"context_turns"`
	} `json:"limits"`
	Messages struct {
		Upsell  string `json:"upsell"`
		Apology string `json:"apology"`
	} `json:"messages"`
}

// WindowDuration returns the throttle reset interval.
func (c *Config) WindowDuration() time.Duration {
	return time.Duration(c.Throttle.WindowSeconds) * time.Second
}

// PacingDelay returns the delay inserted between drained queue entries.
func (c *Config) PacingDelay() time.Duration {
	return time.Duration(c.Throttle.PacingDelayMS) * time.Millisecond
}

func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Listen = ":8080"
	cfg.LogLevel = "info"
	cfg.Database.Driver = "sqlite3"
	cfg.Database.Path = filepath.Join(os.Getenv("HOME"), ".waclaw", "waclaw.db")
	cfg.WhatsApp.APIVersion = "v20.0"
	cfg.WhatsApp.BaseURL = "https://graph.facebook.com"
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 1024
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 4096
	cfg.LLM.SystemPrompt = "You are a helpful, concise WhatsApp assistant."
	cfg.Billing.BaseURL = "https://api.stripe.com"
	cfg.Billing.ReconcileCron = "0 * * * *"
	cfg.Throttle.WindowSeconds = 60
	cfg.Throttle.AdmissionThreshold = 50
	cfg.Throttle.PacingDelayMS = 500
	cfg.Limits.FreeMessages = 10
	cfg.Limits.ContextTurns = 20
	cfg.Messages.Upsell = "You've used all your free messages. Upgrade your subscription to keep chatting!"
	cfg.Messages.Apology = "Sorry, something went wrong processing your message. Please try again."

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if token := os.Getenv("WHATSAPP_ACCESS_TOKEN"); token != "" {
		cfg.WhatsApp.AccessToken = token
	}
	if phoneID := os.Getenv("WHATSAPP_PHONE_NUMBER_ID"); phoneID != "" {
		cfg.WhatsApp.PhoneNumberID = phoneID
	}
	if secret := os.Getenv("WHATSAPP_APP_SECRET"); secret != "" {
		cfg.WhatsApp.AppSecret = secret
	}
	if verify := os.Getenv("WHATSAPP_VERIFY_TOKEN"); verify != "" {
		cfg.WhatsApp.VerifyToken = verify
	}
	if stripeKey := os.Getenv("STRIPE_API_KEY"); stripeKey != "" {
		cfg.Billing.APIKey = stripeKey
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = dsn
	}

	return cfg, nil
}

// Validate checks the settings the serve command cannot run without.
func (c *Config) Validate() error {
	required := map[string]string{
		"whatsapp.access_token":    c.WhatsApp.AccessToken,
		"whatsapp.phone_number_id": c.WhatsApp.PhoneNumberID,
		"whatsapp.verify_token":    c.WhatsApp.VerifyToken,
		"whatsapp.app_secret":      c.WhatsApp.AppSecret,
		"llm.api_key":              c.LLM.APIKey,
		// Every message consults the billing oracle; an unconfigured key would
		// fail the whole pipeline on the first event.
		"billing.api_key": c.Billing.APIKey,
	}
	for key, val := range required {
		if val == "" {
			return &types.ConfigurationError{Key: key}
		}
	}
	if c.Throttle.AdmissionThreshold <= 0 {
		return &types.ConfigurationError{Key: "throttle.admission_threshold"}
	}
	if c.Throttle.WindowSeconds <= 0 {
		return &types.ConfigurationError{Key: "throttle.window_seconds"}
	}
	return nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}

// Save writes the config to disk with the same atomic tmp+rename dance used
// for defaults.
func Save(path string, cfg *Config) error {
	return writeDefaults(path, cfg)
}
