// internal/types/interfaces.go
package types

import (
	"context"
)

// UsageLedger persists per-user message counts and subscription flags.
type UsageLedger interface {
	GetOrCreate(ctx context.Context, waID WaID) (*UserRecord, error)
	IncrementCount(ctx context.Context, waID WaID) (int64, error)
	SetSubscribed(ctx context.Context, waID WaID, subscribed bool) error
}

// ConversationStore persists and retrieves conversation history per user.
type ConversationStore interface {
	// RecentTurns returns up to limit prior turns, oldest first.
	RecentTurns(ctx context.Context, waID WaID, limit int) ([]*ConversationTurn, error)
	Append(ctx context.Context, waID WaID, role Role, content string) error
}

// SubscriptionOracle answers whether a user currently holds an active paid
// subscription. Best-effort: the backing billing API may be slow. A user the
// billing system has never heard of is (false, nil), not an error.
type SubscriptionOracle interface {
	IsEntitled(ctx context.Context, waID WaID) (bool, error)
}

// Responder generates a reply from an ordered prompt.
type Responder interface {
	Generate(ctx context.Context, parts []PromptPart) (string, error)
}

// OutboundMessenger delivers a text message back to the user.
type OutboundMessenger interface {
	Send(ctx context.Context, waID WaID, text string) error
}
