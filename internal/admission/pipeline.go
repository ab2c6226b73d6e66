package admission

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/waclaw/internal/transcript"
	"github.com/user/waclaw/internal/types"
)

// Collaborators bundles the external services the pipeline drives.
type Collaborators struct {
	Ledger        types.UsageLedger
	Oracle        types.SubscriptionOracle
	Conversations types.ConversationStore
	Responder     types.Responder
	Messenger     types.OutboundMessenger
}

// PipelineConfig carries the policy values the pipeline decides with.
type PipelineConfig struct {
	FreeMessageLimit int64
	ContextLimit     int
	UpsellMessage    string
	ApologyMessage   string
}

// Pipeline runs the per-message business logic: entitlement check, usage
// accounting, limit decision, context retrieval, reply generation, delivery,
// and persistence. One logical unit per message.
type Pipeline struct {
	c           Collaborators
	cfg         PipelineConfig
	transcripts *transcript.Builder
}

func NewPipeline(c Collaborators, cfg PipelineConfig, transcripts *transcript.Builder) *Pipeline {
	return &Pipeline{c: c, cfg: cfg, transcripts: transcripts}
}

// Process runs one admitted event through the pipeline.
func (p *Pipeline) Process(ctx context.Context, event *types.InboundEvent) Outcome {
	// Entitlement and user record are independent remote reads; fetch both
	// before anything is committed.
	var (
		entitled bool
		user     *types.UserRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entitled, err = p.c.Oracle.IsEntitled(gctx, event.Sender)
		if err != nil {
			return fmt.Errorf("entitlement check: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		user, err = p.c.Ledger.GetOrCreate(gctx, event.Sender)
		if err != nil {
			return fmt.Errorf("user lookup: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return p.fail(ctx, event, err)
	}

	// Reconcile the stored flag with what billing just said. Best-effort:
	// a failure here must not block the message.
	if entitled != user.Subscribed {
		if err := p.c.Ledger.SetSubscribed(ctx, event.Sender, entitled); err != nil {
			slog.Warn("entitlement reconciliation failed",
				"wa_id", event.Sender, "entitled", entitled, "error", err)
		}
	}

	// The increment happens before the limit decision: over-limit messages
	// still count.
	count, err := p.c.Ledger.IncrementCount(ctx, event.Sender)
	if err != nil {
		return p.fail(ctx, event, fmt.Errorf("increment count: %w", err))
	}

	// Free tier covers counts up to the limit; subscribers bypass it.
	if count > p.cfg.FreeMessageLimit && !entitled {
		if err := p.c.Messenger.Send(ctx, event.Sender, p.cfg.UpsellMessage); err != nil {
			slog.Error("upsell delivery failed", "wa_id", event.Sender, "error", err)
		}
		slog.Info("free limit reached", "wa_id", event.Sender, "count", count)
		return limitReached(p.cfg.UpsellMessage)
	}

	turns, err := p.c.Conversations.RecentTurns(ctx, event.Sender, p.cfg.ContextLimit)
	if err != nil {
		return p.fail(ctx, event, fmt.Errorf("load context: %w", err))
	}

	// Media events carry their prompt parts from ingestion; text events get
	// the rendered transcript plus the new utterance.
	parts := event.PromptParts
	if len(parts) == 0 {
		parts = p.transcripts.Build(turns, event.Text)
	}

	reply, err := p.c.Responder.Generate(ctx, parts)
	if err != nil {
		return p.fail(ctx, event, err)
	}

	// Deliver and persist concurrently. Both are attempted; neither rolls
	// the other back.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := p.c.Messenger.Send(ctx, event.Sender, reply); err != nil {
			slog.Error("reply delivery failed", "wa_id", event.Sender, "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := p.c.Conversations.Append(ctx, event.Sender, types.RoleUser, event.Text); err != nil {
			slog.Error("persist user turn failed", "wa_id", event.Sender, "error", err)
			return
		}
		if err := p.c.Conversations.Append(ctx, event.Sender, types.RoleAssistant, reply); err != nil {
			slog.Error("persist assistant turn failed", "wa_id", event.Sender, "error", err)
		}
	}()
	wg.Wait()

	return success(reply)
}

// fail logs the abort with enough context to diagnose and notifies the
// sender with the apology template, itself best-effort.
func (p *Pipeline) fail(ctx context.Context, event *types.InboundEvent, err error) Outcome {
	slog.Error("pipeline failed",
		"wa_id", event.Sender, "message_type", event.Type,
		"unavailable", types.IsUnavailable(err), "error", err)

	if sendErr := p.c.Messenger.Send(ctx, event.Sender, p.cfg.ApologyMessage); sendErr != nil {
		slog.Error("apology delivery failed", "wa_id", event.Sender, "error", sendErr)
	}
	return failed(err)
}
