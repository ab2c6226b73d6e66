// internal/types/models.go
package types

import (
	"time"
)

// MessageType classifies the inbound WhatsApp message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeAudio MessageType = "audio"
	MessageTypeImage MessageType = "image"
)

// Role identifies the author of a conversation turn or prompt part.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// PromptPart is one ordered segment of the completion prompt. For media
// messages the parts are fixed at ingestion time; for plain text they are
// built later from conversation history.
type PromptPart struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// InboundEvent is a single message lifted out of a webhook delivery.
// Immutable once constructed; consumed exactly once by the pipeline.
type InboundEvent struct {
	ID          EventID      `json:"id"`
	Sender      WaID         `json:"sender"`
	Type        MessageType  `json:"type"`
	Text        string       `json:"text"`
	PromptParts []PromptPart `json:"prompt_parts,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
}

// UserRecord tracks per-sender usage and the last known subscription flag.
// Created lazily on first contact, never deleted.
type UserRecord struct {
	WaID         string    `gorm:"column:wa_id;primary_key" json:"wa_id"`
	MessageCount int64     `gorm:"not null;default:0" json:"message_count"`
	Subscribed   bool      `gorm:"not null;default:false" json:"subscribed"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (UserRecord) TableName() string { return "users" }

// ConversationTurn is one utterance in a user's conversation. Append-only.
type ConversationTurn struct {
	ID        int64     `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	WaID      string    `gorm:"column:wa_id;not null;index" json:"wa_id"`
	Role      Role      `gorm:"not null" json:"role"`
	Content   string    `gorm:"type:text" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (ConversationTurn) TableName() string { return "conversation_turns" }
