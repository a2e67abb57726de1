package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/karthikraju391/matchchat/chat"
	"github.com/karthikraju391/matchchat/client"
)

func init() {
	rootCmd.AddCommand(historyCmd)
}

var historyCmd = &cobra.Command{
	Use:   "history <targetUserId>",
	Short: "Print the stored conversation with another user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := clientConfig(cmd)
		if err != nil {
			return err
		}
		self := identity(cmd)
		if self.ID == "" {
			return chat.ErrIdentityMissing
		}
		if args[0] == self.ID {
			return chat.ErrInvalidCounterpart
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		loader := client.NewHistoryClient(cfg.Client, nil)
		records, err := loader.History(ctx, chat.NewConversationID(self.ID, args[0]), self.ID)
		if err != nil {
			return fmt.Errorf("%w: %w", chat.ErrHistoryUnavailable, err)
		}

		out := cmd.OutOrStdout()
		if len(records) == 0 {
			fmt.Fprintln(out, "(no messages yet)")
			return nil
		}
		for _, r := range records {
			fmt.Fprintln(out, formatMessage(chat.Message{
				SenderID:   r.SenderID,
				SenderName: r.SenderName,
				Body:       r.Body,
				Timestamp:  r.CreatedAt,
				Origin:     chat.OriginHistorical,
			}, self.ID))
		}
		return nil
	},
}
