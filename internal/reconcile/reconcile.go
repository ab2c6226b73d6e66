// Package reconcile runs the periodic entitlement sweep: stored subscription
// flags for recently active users are refreshed against the billing oracle
// so dormant flags do not go stale between messages.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/waclaw/internal/types"
)

// activeLookback bounds how far back a user's last activity may be to still
// be swept.
const activeLookback = 24 * time.Hour

// UserSource is the slice of the ledger the sweep needs.
type UserSource interface {
	ActiveSince(ctx context.Context, since time.Time) ([]*types.UserRecord, error)
	SetSubscribed(ctx context.Context, waID types.WaID, subscribed bool) error
}

// Sweeper drives the cron-scheduled reconcile pass.
type Sweeper struct {
	spec   string
	users  UserSource
	oracle types.SubscriptionOracle
	cron   *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a Sweeper firing on the given cron expression.
func New(spec string, users UserSource, oracle types.SubscriptionOracle) *Sweeper {
	return &Sweeper{
		spec:   spec,
		users:  users,
		oracle: oracle,
		cron:   cron.New(cron.WithParser(cronParser)),
	}
}

// Start registers the sweep and starts the cron ticker.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		s.Sweep(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the cron ticker. Running sweeps finish on their own.
func (s *Sweeper) Stop() {
	s.cron.Stop()
}

// Sweep refreshes the stored flag for every recently active user. Oracle
// failures skip that user; the sweep is purely best-effort.
func (s *Sweeper) Sweep(ctx context.Context) {
	users, err := s.users.ActiveSince(ctx, time.Now().Add(-activeLookback))
	if err != nil {
		slog.Error("reconcile sweep: list users failed", "error", err)
		return
	}

	var drifted int
	for _, user := range users {
		entitled, err := s.oracle.IsEntitled(ctx, types.WaID(user.WaID))
		if err != nil {
			slog.Warn("reconcile sweep: entitlement check failed", "wa_id", user.WaID, "error", err)
			continue
		}
		if entitled == user.Subscribed {
			continue
		}
		if err := s.users.SetSubscribed(ctx, types.WaID(user.WaID), entitled); err != nil {
			slog.Warn("reconcile sweep: flag update failed", "wa_id", user.WaID, "error", err)
			continue
		}
		drifted++
	}

	slog.Info("reconcile sweep complete", "users", len(users), "corrected", drifted)
}
