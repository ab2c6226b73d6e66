package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/waclaw/internal/admission"
	"github.com/user/waclaw/internal/billing"
	"github.com/user/waclaw/internal/reconcile"
	"github.com/user/waclaw/internal/responder"
	"github.com/user/waclaw/internal/store"
	"github.com/user/waclaw/internal/transcript"
	"github.com/user/waclaw/internal/webhook"
	"github.com/user/waclaw/internal/whatsapp"
	"github.com/user/waclaw/pkg/llm"
	"github.com/user/waclaw/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the waclaw daemon",
	RunE:  runServe,
}

func writePIDFile(dir string) (string, error) {
	pidPath := filepath.Join(dir, "waclaw.pid")
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	dataDir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(dataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Stores
	db, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	ledger := store.NewLedger(db)
	conversations := store.NewConversations(db)

	// Collaborators
	oracle := billing.New(cfg.Billing.APIKey, cfg.Billing.BaseURL)
	messenger := whatsapp.NewClient(
		cfg.WhatsApp.AccessToken,
		cfg.WhatsApp.PhoneNumberID,
		cfg.WhatsApp.APIVersion,
		cfg.WhatsApp.BaseURL,
	)
	provider := openai.New(&llm.Config{
		BaseURL:     cfg.LLM.BaseURL,
		APIKey:      cfg.LLM.APIKey,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	replies := responder.New(provider, cfg.LLM.SystemPrompt)

	transcripts, err := transcript.New(cfg.LLM.Model, cfg.LLM.MaxContextTokens, cfg.LLM.OutputReserve)
	if err != nil {
		return fmt.Errorf("create transcript builder: %w", err)
	}

	// Pipeline + admission queue
	pipeline := admission.NewPipeline(
		admission.Collaborators{
			Ledger:        ledger,
			Oracle:        oracle,
			Conversations: conversations,
			Responder:     replies,
			Messenger:     messenger,
		},
		admission.PipelineConfig{
			FreeMessageLimit: cfg.Limits.FreeMessages,
			ContextLimit:     cfg.Limits.ContextTurns,
			UpsellMessage:    cfg.Messages.Upsell,
			ApologyMessage:   cfg.Messages.Apology,
		},
		transcripts,
	)
	queue := admission.NewQueue(
		pipeline.Process,
		cfg.Throttle.AdmissionThreshold,
		cfg.WindowDuration(),
		cfg.PacingDelay(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue.Start(ctx)
	defer queue.Stop()

	// Entitlement reconcile sweep
	sweeper := reconcile.New(cfg.Billing.ReconcileCron, ledger, oracle)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("start reconcile sweep: %w", err)
	}
	defer sweeper.Stop()

	// Webhook HTTP server
	srv := webhook.NewServer(queue, ledger, conversations, cfg.WhatsApp.VerifyToken, cfg.WhatsApp.AppSecret)
	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Handler(),
	}
	go func() {
		slog.Info("webhook server started", "listen", cfg.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	slog.Info("waclaw started",
		"listen", cfg.Listen,
		"log_level", cfg.LogLevel,
		"database", cfg.Database.Driver,
		"window", cfg.WindowDuration(),
		"admission_threshold", cfg.Throttle.AdmissionThreshold,
		"free_messages", cfg.Limits.FreeMessages,
		"llm_model", cfg.LLM.Model,
		"pid_file", pidPath,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file before re-exec
			os.Remove(pidPath)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				if _, writeErr := writePIDFile(dataDir); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
