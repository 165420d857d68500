package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/vango-dev/roomsync/internal/config"
	"github.com/vango-dev/roomsync/internal/errors"
)

func configCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create, show or document the configuration",
	}
	cmd.AddCommand(configInitCmd(), configShowCmd(g), configEnvCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var (
		server string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a roomsync.yaml with default settings",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			path := filepath.Join(dir, config.FileName)
			if _, err := os.Stat(path); err == nil && !force {
				return errors.Newf(errors.CategoryCLI, "%s already exists", path).
					WithSuggestion("Pass --force to overwrite it.")
			}

			cfg := config.New()
			cfg.Server.URL = server
			if err := cfg.Validate(false); err != nil {
				return err
			}
			if err := cfg.SaveTo(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&server, "server", "s", "", "Game server URL to store")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	return cmd
}

func configShowCmd(g *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			masked := *cfg
			masked.Server.SessionToken = mask(masked.Server.SessionToken)
			masked.Record.SecretAccessKey = mask(masked.Record.SecretAccessKey)
			masked.Tokens.RedisPassword = mask(masked.Tokens.RedisPassword)
			return writeOutput(cmd.OutOrStdout(), format, masked)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: json or yaml")
	return cmd
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func configEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the ROOMSYNC_* environment variables",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Env())
		},
	}
}
