// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

// WaID is a WhatsApp sender identifier: E.164 digits without the plus sign,
// as delivered in the Cloud API webhook "from" field.
type WaID string

type EventID string

func NewEventID() EventID {
	return EventID(uuid.New().String())
}
