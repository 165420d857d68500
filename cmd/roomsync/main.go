// Command roomsync joins rooms on a state-synchronizing game server and
// inspects captured handshakes and state streams.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vango-dev/roomsync/internal/config"
	"github.com/vango-dev/roomsync/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "roomsync",
		Short: "Client for state-synchronized game rooms",
		Long: `roomsync reserves a seat through the matchmaker, joins the room over
WebSocket and keeps a decoded replica of the room state.

Settings are read from roomsync.yaml (searched upward from the working
directory), then from ROOMSYNC_* environment variables. A .env file in
the working directory is loaded first.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if g.noColor {
				errors.DisableColors()
			}
			return loadEnvFile(g.envFile)
		},
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to roomsync.yaml")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", "", "Load variables from this file (default .env when present)")
	root.PersistentFlags().BoolVar(&g.noColor, "no-color", false, "Disable colored error output")

	root.AddCommand(
		joinCmd(g),
		inspectCmd(),
		tokensCmd(g),
		configCmd(g),
		versionCmd(),
	)
	return root
}

// loadEnvFile loads path, or ./.env when path is empty and the file
// exists. Variables already set in the environment win.
func loadEnvFile(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return errors.New("E121").WithSource(path).Wrap(err)
	}
	return nil
}

// loadConfig reads the configuration named by --config, or the nearest
// roomsync.yaml.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	if g.configPath != "" {
		return config.LoadFile(g.configPath)
	}
	return config.LoadFromWorkingDir()
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel()}
	if cfg.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
