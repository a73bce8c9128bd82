package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/termicomm/internal/app"
	"github.com/vovakirdan/termicomm/internal/config"
	"github.com/vovakirdan/termicomm/internal/log"
)

var (
	configPath string
	overrides  config.Config
)

var rootCmd = &cobra.Command{
	Use:           "termicomm-server",
	Short:         "Group chat gateway with guilds, channels, history and a voice relay",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat gateway",
	Long:  "Start the TCP control gateway, the UDP voice relay and the HTTP ops API.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (YAML); created with defaults when missing")

	f := serveCmd.Flags()
	f.StringVar(&overrides.ControlAddr, "control-addr", "", "TCP control listen address")
	f.StringVar(&overrides.VoiceAddr, "voice-addr", "", "UDP voice relay listen address")
	f.StringVar(&overrides.HTTPAddr, "http-addr", "", "HTTP ops API listen address")
	f.StringVar(&overrides.DatabasePath, "db", "", "SQLite database path")
	f.StringVar(&overrides.BlobDir, "blob-dir", "", "directory for uploaded files")
	f.StringVar(&overrides.LogLevel, "log-level", "", "log level (debug, info, warn, error, disabled)")
	f.IntVar(&overrides.MaxRecordBytes, "max-record-bytes", 0, "largest accepted control record")
	f.DurationVar(&overrides.WriteTimeout, "write-timeout", 0, "per-send write deadline; 0 disables")
	f.DurationVar(&overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful HTTP shutdown timeout")
	f.DurationVar(&overrides.Voice.IdleTimeout, "voice-idle-timeout", 0, "evict silent voice endpoints after this long; 0 disables")

	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	boot := log.NewWithWriter(os.Stderr, "info")

	cfg, path, err := config.Load(boot, configPath)
	if err != nil {
		return err
	}
	cfg.UpdateFrom(overrides)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.New(cfg.LogLevel)
	logger.Info().
		Str("config", path).
		Str("control_addr", cfg.ControlAddr).
		Str("voice_addr", cfg.VoiceAddr).
		Str("http_addr", cfg.HTTPAddr).
		Msg("starting termicomm server")

	application, err := app.New(&cfg, logger)
	if err != nil {
		return err
	}
	if err := application.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}
