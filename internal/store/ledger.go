package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jinzhu/gorm"

	"github.com/user/waclaw/internal/types"
)

// Ledger is the GORM-backed types.UsageLedger.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// GetOrCreate returns the user's record, creating an empty one on first
// contact. A lost create race falls back to re-reading the winner's row.
func (l *Ledger) GetOrCreate(ctx context.Context, waID types.WaID) (*types.UserRecord, error) {
	var user types.UserRecord
	err := l.db.Where("wa_id = ?", string(waID)).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, fmt.Errorf("load user %s: %w", waID, err)
	}

	user = types.UserRecord{WaID: string(waID)}
	if createErr := l.db.Create(&user).Error; createErr != nil {
		if err := l.db.Where("wa_id = ?", string(waID)).First(&user).Error; err != nil {
			return nil, fmt.Errorf("create user %s: %w", waID, createErr)
		}
	}
	return &user, nil
}

// IncrementCount bumps the user's message count atomically at the database
// level and returns the updated count. The update also touches updated_at so
// the user stays visible to ActiveSince; UpdateColumns alone skips the
// timestamp callbacks.
func (l *Ledger) IncrementCount(ctx context.Context, waID types.WaID) (int64, error) {
	res := l.db.Model(&types.UserRecord{}).
		Where("wa_id = ?", string(waID)).
		UpdateColumns(map[string]interface{}{
			"message_count": gorm.Expr("message_count + ?", 1),
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("increment count for %s: %w", waID, res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, fmt.Errorf("increment count for %s: no such user", waID)
	}

	var user types.UserRecord
	if err := l.db.Where("wa_id = ?", string(waID)).First(&user).Error; err != nil {
		return 0, fmt.Errorf("reload count for %s: %w", waID, err)
	}
	return user.MessageCount, nil
}

// SetSubscribed records the latest known entitlement flag.
func (l *Ledger) SetSubscribed(ctx context.Context, waID types.WaID, subscribed bool) error {
	res := l.db.Model(&types.UserRecord{}).
		Where("wa_id = ?", string(waID)).
		Update("subscribed", subscribed)
	if res.Error != nil {
		return fmt.Errorf("set subscribed for %s: %w", waID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set subscribed for %s: no such user", waID)
	}
	return nil
}

// ActiveSince lists users whose records were touched at or after the given
// time. Used by the entitlement reconcile sweep.
func (l *Ledger) ActiveSince(ctx context.Context, since time.Time) ([]*types.UserRecord, error) {
	var users []*types.UserRecord
	if err := l.db.Where("updated_at >= ?", since).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	return users, nil
}
