// internal/types/errors.go
package types

import (
	"context"
	"errors"
	"strings"
)

// GenerationError wraps a completion-provider failure.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }
func (e *GenerationError) Unwrap() error { return e.Err }

// DeliveryError wraps an outbound messaging failure.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string { return "delivery failed: " + e.Err.Error() }
func (e *DeliveryError) Unwrap() error { return e.Err }

// ConfigurationError reports a missing or invalid required setting. Fatal at
// startup.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string { return "missing required setting: " + e.Key }

// IsUnavailable classifies an error as a transient collaborator outage
// (network trouble or timeout talking to the ledger, oracle, AI provider, or
// messenger) based on its message.
func IsUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "temporary failure")
}
