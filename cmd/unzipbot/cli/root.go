// Package cli implements the unzipbot command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/meigma/unzipbot"
	"github.com/meigma/unzipbot/cmd/unzipbot/cli/config"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "unzipbot",
	Short: "Safely extract ZIP archives and deliver their contents",
	Long: `Unzipbot validates ZIP archives against resource limits, extracts them into
per-owner sandbox directories and classifies the media inside.

Run it as a one-shot CLI (extract, inspect) or as a chat bot (serve).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default $XDG_CONFIG_HOME/unzipbot/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default $XDG_DATA_HOME/unzipbot)")
	rootCmd.PersistentFlags().String("progress", "auto", "Progress output: auto, tty or plain")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose debug logging")
	//nolint:errcheck // flags are defined above
	viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	//nolint:errcheck // flags are defined above
	viper.BindPFlag("progress", rootCmd.PersistentFlags().Lookup("progress"))

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands:"})
	rootCmd.Version = version
}

// initConfig reads the config file and UNZIPBOT_* environment variables.
func initConfig() {
	config.SetDefaults(viper.GetViper())
	viper.SetEnvPrefix("UNZIPBOT")
	viper.SetEnvKeyReplacer(config.EnvKeyReplacer())
	viper.AutomaticEnv()

	path, err := configFilePath()
	if err != nil {
		return
	}
	viper.SetConfigFile(path)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return
		}
		fmt.Fprintf(os.Stderr, "Warning: failed to read config: %v\n", err)
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// loadConfig decodes the effective configuration.
func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}

// newLogger returns a stderr logger at level, or debug with -v.
func newLogger(level slog.Level) *slog.Logger {
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// formatError converts unzipbot errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, unzipbot.ErrExtractLimits):
		return fmt.Sprintf("Error: archive rejected: %v", err)
	case errors.Is(err, unzipbot.ErrInvalidArchive):
		return "Error: invalid or corrupt archive"
	case errors.Is(err, unzipbot.ErrPathTraversal):
		return "Error: path traversal detected (security violation)"
	case errors.Is(err, unzipbot.ErrInvalidOwner):
		return "Error: invalid owner identifier"
	case errors.Is(err, unzipbot.ErrCanceled), errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
