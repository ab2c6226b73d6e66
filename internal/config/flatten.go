package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// secretKeys lists the dot-separated keys whose values should be masked.
var secretKeys = map[string]bool{
	"llm.api_key":           true,
	"billing.api_key":       true,
	"whatsapp.access_token": true,
	"whatsapp.app_secret":   true,
	"database.password":     true,
	"database.dsn":          true,
}

// IsSecretKey returns true if the given dot-separated key is a secret.
func IsSecretKey(key string) bool {
	return secretKeys[key]
}

// Flatten converts a nested map into a flat map with dot-separated keys.
// For example, {"llm": {"provider": "openai"}} becomes {"llm.provider": "openai"}.
func Flatten(m map[string]any) map[string]any {
	out := make(map[string]any)
	flatten("", m, out)
	return out
}

func flatten(prefix string, m map[string]any, out map[string]any) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch child := v.(type) {
		case map[string]any:
			flatten(key, child, out)
		default:
			out[key] = v
		}
	}
}

// Unflatten converts a flat map with dot-separated keys back into a nested map.
func Unflatten(flat map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range flat {
		parts := strings.Split(k, ".")
		current := out
		for i, part := range parts {
			if i == len(parts)-1 {
				current[part] = v
			} else {
				next, ok := current[part]
				if !ok {
					next = make(map[string]any)
					current[part] = next
				}
				m, ok := next.(map[string]any)
				if !ok {
					m = make(map[string]any)
					current[part] = m
				}
				current = m
			}
		}
	}
	return out
}

// MaskSecrets returns a copy of the flat map with secret values masked.
// Secret values are shown as "***xxxx" where xxxx is the last 4 characters.
func MaskSecrets(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for k, v := range flat {
		if secretKeys[k] {
			s, ok := v.(string)
			if ok && s != "" {
				if len(s) <= 4 {
					out[k] = "***" + s
				} else {
					out[k] = "***" + s[len(s)-4:]
				}
			} else {
				out[k] = v
			}
		} else {
			out[k] = v
		}
	}
	return out
}

// asFlatMap round-trips a Config through JSON into a flat dotted-key map.
func asFlatMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, err
	}
	return Flatten(nested), nil
}

// ListValues returns all config values keyed by dotted path. When mask is
// true, secret values are masked.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	flat, err := asFlatMap(cfg)
	if err != nil {
		return nil, err
	}
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue loads the config at path and returns the value for a dotted key.
func GetValue(path, key string) (any, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	flat, err := asFlatMap(cfg)
	if err != nil {
		return nil, err
	}
	val, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key %q", key)
	}
	if IsSecretKey(key) {
		masked := MaskSecrets(map[string]any{key: val})
		return masked[key], nil
	}
	return val, nil
}

// SetValue loads the config at path, sets the dotted key to the given value
// (coercing numerics and booleans), and saves it back.
func SetValue(path, key, value string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	flat, err := asFlatMap(cfg)
	if err != nil {
		return err
	}
	if _, ok := flat[key]; !ok {
		return fmt.Errorf("unknown config key %q", key)
	}
	flat[key] = coerce(value)

	nested := Unflatten(flat)
	data, err := json.Marshal(nested)
	if err != nil {
		return err
	}
	updated := &Config{}
	if err := json.Unmarshal(data, updated); err != nil {
		return err
	}
	return Save(path, updated)
}

func coerce(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// LoadOrExit loads the config and exits on error. For CLI paths that cannot
// meaningfully continue without one.
func LoadOrExit(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}
