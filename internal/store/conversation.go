package store

import (
	"context"
	"fmt"

	"github.com/jinzhu/gorm"

	"github.com/user/waclaw/internal/types"
)

// Conversations is the GORM-backed types.ConversationStore.
type Conversations struct {
	db *gorm.DB
}

func NewConversations(db *gorm.DB) *Conversations {
	return &Conversations{db: db}
}

// RecentTurns returns up to limit of the user's most recent turns, oldest
// first. Reads newest-first from the database, then reverses in memory.
func (c *Conversations) RecentTurns(ctx context.Context, waID types.WaID, limit int) ([]*types.ConversationTurn, error) {
	var turns []*types.ConversationTurn
	err := c.db.
		Where("wa_id = ?", string(waID)).
		Order("id desc").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, fmt.Errorf("load turns for %s: %w", waID, err)
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// Append records one new turn. Append-only; turns are never updated.
func (c *Conversations) Append(ctx context.Context, waID types.WaID, role types.Role, content string) error {
	turn := types.ConversationTurn{
		WaID:    string(waID),
		Role:    role,
		Content: content,
	}
	if err := c.db.Create(&turn).Error; err != nil {
		return fmt.Errorf("append %s turn for %s: %w", role, waID, err)
	}
	return nil
}
