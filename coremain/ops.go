package coremain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pmkol/sharedlru/mlog"
	"github.com/pmkol/sharedlru/pkg/lru_cache"
)

var (
	errNotFound = errors.New("not found")

	// Expiry timers live in the process that armed them, so a one shot
	// put cannot honor a ttl.
	errOneShotTTL = errors.New("ttl needs a running node, use PUT /cache/{key}?ttl= on it instead")
)

// withCache runs f against a fresh cache built from the config file.
func withCache(f func(ctx context.Context, cfg *Config, c *lru_cache.Cache) error) error {
	cfg, _, err := loadConfig(configFile)
	if err != nil {
		return err
	}
	lg, err := mlog.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	c, b, err := newCache(cfg, lg, nil)
	if err != nil {
		return err
	}
	defer b.Close()
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return f(ctx, cfg, c)
}

func newOpCmds() []*cobra.Command {
	getCmd := &cobra.Command{
		Use:          "get <key>",
		Short:        "Get a key. Exits with an error if it is absent.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, _ *Config, c *lru_cache.Cache) error {
				v, ok, err := c.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s: %w", args[0], errNotFound)
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}

	var ttl int
	putCmd := &cobra.Command{
		Use:          "put <key> <value> [--ttl seconds]",
		Short:        "Put a key without expiry.",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if ttl < 0 {
				return fmt.Errorf("invalid ttl %d", ttl)
			}
			return withCache(func(ctx context.Context, cfg *Config, c *lru_cache.Cache) error {
				if ttl > 0 || cfg.Cache.TTL > 0 {
					return errOneShotTTL
				}
				v, err := c.Put(ctx, args[0], args[1], 0)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}
	putCmd.Flags().IntVar(&ttl, "ttl", 0, "must be 0, expiry needs a running node (cache.ttl must be 0 as well)")

	delCmd := &cobra.Command{
		Use:          "del <key>",
		Short:        "Remove a key.",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, _ *Config, c *lru_cache.Cache) error {
				return c.Remove(ctx, args[0])
			})
		},
	}

	clearCmd := &cobra.Command{
		Use:          "clear",
		Short:        "Remove every key of the namespace, for all instances sharing it.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, _ *Config, c *lru_cache.Cache) error {
				return c.ClearCacheInstance(ctx)
			})
		},
	}

	return []*cobra.Command{getCmd, putCmd, delCmd, clearCmd}
}
