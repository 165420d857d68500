package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/roomsync/internal/errors"
	"github.com/vango-dev/roomsync/pkg/tokenstore"
)

func tokensCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "List or forget stored reconnection tokens",
		Long: `Manage the reconnection tokens captured by join.

Tokens outlive the process only with a Redis store (tokens.redis_addr or
ROOMSYNC_TOKENS_REDIS_ADDR).`,
	}
	cmd.AddCommand(tokensListCmd(g), tokensForgetCmd(g))
	return cmd
}

func openSharedTokens(ctx context.Context, g *globalFlags) (tokenstore.Store, error) {
	cfg, err := g.loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.Tokens.RedisAddr == "" {
		return nil, errors.New("E154").
			WithDetail("tokens.redis_addr is not set, so no tokens survive between runs").
			WithSuggestion("Set ROOMSYNC_TOKENS_REDIS_ADDR to the Redis used by join.")
	}
	return openTokenStore(ctx, cfg)
}

func tokensListCmd(g *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored tokens, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			store, err := openSharedTokens(ctx, g)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.List(ctx)
			if err != nil {
				return errors.New("E154").Wrap(err)
			}
			if entries == nil {
				entries = []tokenstore.Entry{}
			}
			return writeOutput(cmd.OutOrStdout(), format, entries)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	return cmd
}

func tokensForgetCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <room-id>",
		Short: "Delete the token stored for a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			store, err := openSharedTokens(ctx, g)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(ctx, args[0]); err != nil {
				return errors.New("E154").WithSource(args[0]).Wrap(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "forgot %s\n", args[0])
			return nil
		},
	}
}
