package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/user/waclaw/internal/types"
)

func TestLoadWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("expected default listen, got %q", cfg.Listen)
	}
	if cfg.Throttle.AdmissionThreshold != 50 {
		t.Errorf("expected default threshold 50, got %d", cfg.Throttle.AdmissionThreshold)
	}
	if cfg.Limits.FreeMessages != 10 {
		t.Errorf("expected default free messages 10, got %d", cfg.Limits.FreeMessages)
	}

	// The default file should now exist and round-trip.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var onDisk Config
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatal(err)
	}
	if onDisk.Database.Driver != "sqlite3" {
		t.Errorf("expected sqlite3 driver on disk, got %q", onDisk.Database.Driver)
	}
}

func TestLoadReadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"listen": ":9999", "throttle": {"window_seconds": 30}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":9999" {
		t.Errorf("expected file value, got %q", cfg.Listen)
	}
	if cfg.Throttle.WindowSeconds != 30 {
		t.Errorf("expected file throttle window, got %d", cfg.Throttle.WindowSeconds)
	}
	// Untouched fields keep their defaults.
	if cfg.WhatsApp.APIVersion != "v20.0" {
		t.Errorf("expected default api version, got %q", cfg.WhatsApp.APIVersion)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"llm": {"api_key": "file-key"}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("OPENAI_API_KEY", "env-key")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "env-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("expected env to win, got %q", cfg.LLM.APIKey)
	}
	if cfg.WhatsApp.AccessToken != "env-token" {
		t.Errorf("expected env access token, got %q", cfg.WhatsApp.AccessToken)
	}
}

func TestLoadDatabaseURLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	t.Setenv("DATABASE_URL", "postgres://user:pw@db.example.com:5432/waclaw")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected postgres driver, got %q", cfg.Database.Driver)
	}
	// The URL goes through verbatim as a DSN, not into the host field.
	if cfg.Database.DSN != "postgres://user:pw@db.example.com:5432/waclaw" {
		t.Errorf("expected full DSN preserved, got %q", cfg.Database.DSN)
	}
	if cfg.Database.Host != "" {
		t.Errorf("expected host untouched, got %q", cfg.Database.Host)
	}
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	err = cfg.Validate()
	var cerr *types.ConfigurationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected configuration error, got %v", err)
	}

	cfg.WhatsApp.AccessToken = "t"
	cfg.WhatsApp.PhoneNumberID = "p"
	cfg.WhatsApp.VerifyToken = "v"
	cfg.WhatsApp.AppSecret = "s"
	cfg.LLM.APIKey = "k"

	// Billing is consulted on every message, so its key is required too.
	err = cfg.Validate()
	if !errors.As(err, &cerr) || cerr.Key != "billing.api_key" {
		t.Errorf("expected billing.api_key required, got %v", err)
	}
	cfg.Billing.APIKey = "sk"

	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Throttle.AdmissionThreshold = 0
	err = cfg.Validate()
	if !errors.As(err, &cerr) || cerr.Key != "throttle.admission_threshold" {
		t.Errorf("expected threshold validation error, got %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	cfg.Listen = ":7070"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Listen != ":7070" {
		t.Errorf("expected saved value, got %q", reloaded.Listen)
	}
}

func TestMaskSecrets(t *testing.T) {
	flat := map[string]any{
		"llm.api_key":         "sk-secret-1234",
		"whatsapp.app_secret": "hush-5678",
		"listen":              ":8080",
	}
	masked := MaskSecrets(flat)
	if masked["llm.api_key"] != "***1234" {
		t.Errorf("expected llm.api_key masked, got %v", masked["llm.api_key"])
	}
	if masked["whatsapp.app_secret"] != "***5678" {
		t.Errorf("expected whatsapp.app_secret masked, got %v", masked["whatsapp.app_secret"])
	}
	if masked["listen"] != ":8080" {
		t.Errorf("expected non-secret untouched, got %v", masked["listen"])
	}
}

func TestFlattenUnflattenRoundTrip(t *testing.T) {
	nested := map[string]any{
		"listen": ":8080",
		"llm": map[string]any{
			"provider": "openai",
			"model":    "gpt-4o-mini",
		},
	}
	flat := Flatten(nested)
	if flat["llm.provider"] != "openai" {
		t.Errorf("expected flattened key, got %v", flat["llm.provider"])
	}
	back := Unflatten(flat)
	llm, ok := back["llm"].(map[string]any)
	if !ok || llm["model"] != "gpt-4o-mini" {
		t.Errorf("expected nested structure restored, got %v", back["llm"])
	}
}

func TestSetValueCoercion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}

	if err := SetValue(path, "throttle.window_seconds", "120"); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Throttle.WindowSeconds != 120 {
		t.Errorf("expected int coercion, got %d", cfg.Throttle.WindowSeconds)
	}

	if err := SetValue(path, "listen", ":6060"); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Listen != ":6060" {
		t.Errorf("expected string set, got %q", cfg.Listen)
	}

	if err := SetValue(path, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestGetValueMasksSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if _, err := Load(path); err != nil {
		t.Fatal(err)
	}
	if err := SetValue(path, "billing.api_key", "sk_live_abcd"); err != nil {
		t.Fatal(err)
	}

	val, err := GetValue(path, "billing.api_key")
	if err != nil {
		t.Fatal(err)
	}
	if val != "***abcd" {
		t.Errorf("expected masked secret, got %v", val)
	}
}
