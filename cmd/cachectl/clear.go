package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pomelo-lab/appkit/pkg/urlcache"
	"github.com/pomelo-lab/appkit/pkg/urlcache/redistore"
)

// clearCmd empties the cache store. The routine is best effort: items that fail to delete are logged and skipped,
// and the command itself only fails when the store is unreachable.
var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cache group and entry",
	Long: `Delete every cache group (flushing the URLs owned exclusively by it)
and then every remaining ungrouped entry. All caching benefit is lost
until the store is repopulated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer cancel()

		client := newRedisClient()
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("cache store unreachable at %s: %w", redisAddr, err)
		}

		store := redistore.New(ctx, client, namespace)
		urlcache.NewClearer(store).ClearCache()
		slog.Info("URL cache cleared.", "namespace", namespace)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearCmd)
}
