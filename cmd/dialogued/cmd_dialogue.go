package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/rainbowcity/dialogue/internal/store"
	"github.com/rainbowcity/dialogue/internal/types"
)

func init() {
	rootCmd.AddCommand(dialogueCmd)
	dialogueCmd.AddCommand(dialogueListCmd, dialogueMessagesCmd)
}

var dialogueCmd = &cobra.Command{
	Use:   "dialogue",
	Short: "Inspect stored dialogues",
}

// cliStores opens the configured store backend for read-only inspection.
// The in-memory backend holds nothing outside a running daemon, so only
// the redis backend is useful here.
func cliStores(ctx context.Context) (types.Stores, error) {
	cfg := loadConfig()
	if cfg.Store.Backend != "redis" {
		return types.Stores{}, fmt.Errorf("dialogue inspection needs the redis backend (configured: %s)", cfg.Store.Backend)
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Store.RedisAddr,
		DB:   cfg.Store.RedisDB,
	})
	r, err := store.NewRedis(ctx, client, cfg.Store.KeyPrefix)
	if err != nil {
		return types.Stores{}, fmt.Errorf("connect redis: %w", err)
	}
	return r.Stores(), nil
}

var dialogueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all dialogues",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		stores, err := cliStores(ctx)
		if err != nil {
			return err
		}

		dialogues, err := stores.Dialogues.List(ctx)
		if err != nil {
			return fmt.Errorf("list dialogues: %w", err)
		}
		if len(dialogues) == 0 {
			fmt.Println("No dialogues found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tTITLE\tACTIVE\tLAST ACTIVITY")
		for _, d := range dialogues {
			fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n",
				d.ID,
				d.Type,
				d.Title,
				d.IsActive,
				d.LastActivityAt.Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var dialogueMessagesCmd = &cobra.Command{
	Use:   "messages <dialogue-id>",
	Short: "Show the most recent messages of a dialogue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		stores, err := cliStores(ctx)
		if err != nil {
			return err
		}

		msgs, err := stores.Messages.ByDialogue(ctx, types.DialogueID(args[0]), 50)
		if err != nil {
			return fmt.Errorf("load messages: %w", err)
		}
		if len(msgs) == 0 {
			fmt.Println("No messages found.")
			return nil
		}

		for _, m := range msgs {
			fmt.Fprintf(os.Stdout, "[%s] %s (%s): %s\n",
				m.CreatedAt.Format("15:04:05"),
				m.SenderID,
				m.Role,
				m.Content,
			)
		}
		return nil
	},
}
