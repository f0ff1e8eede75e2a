package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/pomelo-lab/appkit/pkg/urlcache/redistore"
)

// statsCmd reports how many groups and entries the cache store currently holds.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache store counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
		defer cancel()

		client := newRedisClient()
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("cache store unreachable at %s: %w", redisAddr, err)
		}

		store := redistore.New(ctx, client, namespace)
		groups, entries, err := store.Stats()
		if err != nil {
			return fmt.Errorf("collect stats: %w", err)
		}
		fmt.Printf("namespace: %s\n", namespace)
		fmt.Printf("  groups:  %d\n", groups)
		fmt.Printf("  entries: %d\n", entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
