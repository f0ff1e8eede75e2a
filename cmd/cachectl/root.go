// Package main provides the cachectl CLI, the operational tool for the shared URL cache.
package main

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/pomelo-lab/appkit/pkg/config"
	"github.com/pomelo-lab/appkit/pkg/logging"
)

var (
	configFile string
	redisAddr  string
	redisDB    int
	namespace  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "cachectl",
	Short: "Administer the shared URL cache",
	Long: `cachectl administers the framework's shared URL cache.

The cache store lives in Redis; cachectl connects to it, reports its
contents and clears it group by group, entry by entry.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			if err := config.Apply(configFile); err != nil {
				return fmt.Errorf("apply config: %w", err)
			}
		}
		logging.Init()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to the YAML config file.")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis_addr", "localhost:6379", "Address of the cache Redis.")
	rootCmd.PersistentFlags().IntVar(&redisDB, "redis_db", 0, "Redis database holding the cache.")
	rootCmd.PersistentFlags().StringVar(&namespace, "namespace", "urlcache", "Key prefix of the cache store.")
}

// newRedisClient dials the cache Redis with the connection options from the persistent flags.
func newRedisClient() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		DB:           redisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
