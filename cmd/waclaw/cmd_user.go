package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/waclaw/internal/store"
	"github.com/user/waclaw/internal/types"
)

var userTurnsLimit int

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userShowCmd, userTurnsCmd)
	userTurnsCmd.Flags().IntVar(&userTurnsLimit, "limit", 20, "max turns to print")
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Inspect user usage and conversation history",
}

var userShowCmd = &cobra.Command{
	Use:   "show <wa_id>",
	Short: "Show a user's usage record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		db, err := store.Open(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		user, err := store.NewLedger(db).GetOrCreate(context.Background(), types.WaID(args[0]))
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stdout, "wa_id:         %s\n", user.WaID)
		fmt.Fprintf(os.Stdout, "message_count: %d\n", user.MessageCount)
		fmt.Fprintf(os.Stdout, "subscribed:    %v\n", user.Subscribed)
		fmt.Fprintf(os.Stdout, "created_at:    %s\n", user.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
		return nil
	},
}

var userTurnsCmd = &cobra.Command{
	Use:   "turns <wa_id>",
	Short: "Print a user's recent conversation turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		db, err := store.Open(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		turns, err := store.NewConversations(db).RecentTurns(context.Background(), types.WaID(args[0]), userTurnsLimit)
		if err != nil {
			return err
		}

		for _, turn := range turns {
			fmt.Fprintf(os.Stdout, "[%s] %s: %s\n",
				turn.CreatedAt.Format("2006-01-02 15:04:05"), turn.Role, turn.Content)
		}
		return nil
	},
}
