package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openbrowser-ai/opensession/pkg/history"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store health and counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, store *history.Store) error {
			if err := store.Ping(ctx); err != nil {
				return fmt.Errorf("store unreachable: %w", err)
			}

			log := history.NewMessageLog(store)
			dir := history.NewDirectory(store)

			messages, err := log.Count(ctx)
			if err != nil {
				return err
			}
			sessions, err := dir.List(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("store: ok\nsessions: %d\nmessages: %d (cap %d)\n",
				len(sessions), messages, store.MaxMessages())
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
