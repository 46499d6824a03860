package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	tele "gopkg.in/telebot.v3"

	"github.com/meigma/unzipbot"
	"github.com/meigma/unzipbot/cmd/unzipbot/cli/config"
	"github.com/meigma/unzipbot/internal/bot"
	"github.com/meigma/unzipbot/internal/metrics"
	"github.com/meigma/unzipbot/internal/settings"
	"github.com/meigma/unzipbot/internal/store"
	"github.com/meigma/unzipbot/internal/workspace"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the chat bot",
	GroupID: "core",
	Long: `Serve runs the Telegram bot: users upload ZIP archives and receive the
extracted files back.

The bot token is read from bot.token (UNZIPBOT_BOT_TOKEN). Runtime settings
such as required channels and maintenance mode live in <data-dir>/settings.yaml
and are changed with admin commands. Users and extraction history are kept in
<data-dir>/unzipbot.bolt.

With metrics.listen set, Prometheus metrics are served on /metrics. With
prune.interval set, the extraction workspace is pruned periodically.

Examples:
  UNZIPBOT_BOT_TOKEN=123:abc unzipbot serve
  unzipbot serve --admin-id 123456789 --metrics-listen :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int64("admin-id", 0, "Chat user ID allowed to run admin commands")
	serveCmd.Flags().String("metrics-listen", "", "Address for the Prometheus /metrics endpoint")
	serveCmd.Flags().Duration("prune-interval", 0, "How often to prune the workspace (0 disables)")
	for key, flag := range map[string]string{
		"bot.admin-id":   "admin-id",
		"metrics.listen": "metrics-listen",
		"prune.interval": "prune-interval",
	} {
		//nolint:errcheck // flags are defined above
		viper.BindPFlag(key, serveCmd.Flags().Lookup(flag))
	}
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Bot.Token == "" {
		return errors.New("bot token is required (set bot.token or UNZIPBOT_BOT_TOKEN)")
	}
	limits, err := cfg.SafetyLimits()
	if err != nil {
		return err
	}
	maxSend, err := config.ParseSize(cfg.Bot.MaxSendSize)
	if err != nil {
		return fmt.Errorf("bot.max-send-size: %w", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.ExtractDir(), cfg.TempDir()} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	logger := newLogger(slog.LevelInfo)

	st, err := settings.Open(cfg.SettingsPath(), logger)
	if err != nil {
		return err
	}
	users, err := store.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer users.Close()

	ws := workspace.New(cfg.ExtractDir(), logger)
	prom := metrics.NewProm("unzipbot")

	// The file count limit is editable from chat; sizes come from config.
	limitsFunc := func() unzipbot.SafetyLimits {
		l := limits
		l.MaxFiles = st.Limits().MaxFiles
		return l
	}
	pipeline, err := unzipbot.NewPipeline(cfg.ExtractDir(),
		unzipbot.WithLimitsFunc(limitsFunc),
		unzipbot.WithMetrics(prom),
		unzipbot.WithTimeout(cfg.Extract.Timeout),
		unzipbot.WithRollback(cfg.Extract.Rollback),
		unzipbot.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	tb, err := tele.NewBot(tele.Settings{
		Token:  cfg.Bot.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Bot.PollTimeout},
		OnError: func(err error, _ tele.Context) {
			logger.Error("update failed", "error", err)
		},
	})
	if err != nil {
		return fmt.Errorf("connect bot: %w", err)
	}

	b, err := bot.New(tb, pipeline, st, users, bot.Config{
		AdminID:              cfg.Bot.AdminID,
		TempDir:              cfg.TempDir(),
		MaxSendSize:          maxSend,
		CleanupAfterDelivery: cfg.Bot.Cleanup,
	}, bot.WithLogger(logger), bot.WithMetrics(prom), bot.WithWorkspace(ws))
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(gctx, tb, tb) })
	if cfg.Metrics.Listen != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.Metrics.Listen, prom, logger) })
	}
	if cfg.Prune.Interval > 0 {
		g.Go(func() error { return runJanitor(gctx, ws, cfg, logger) })
	}
	return g.Wait()
}

// serveMetrics serves /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, prom *metrics.Prom, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prom.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics listener: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runJanitor prunes the workspace every cfg.Prune.Interval.
func runJanitor(ctx context.Context, ws *workspace.Workspace, cfg config.Config, logger *slog.Logger) error {
	opts, err := pruneOptions(cfg, false)
	if err != nil {
		return err
	}
	ticker := time.NewTicker(cfg.Prune.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		result, err := ws.Prune(ctx, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("workspace prune failed", "error", err)
			continue
		}
		if result.RequestsRemoved > 0 {
			logger.Info("workspace pruned",
				"removed", result.RequestsRemoved,
				"bytes", result.BytesRemoved,
				"remaining", result.RequestsRemaining)
		}
	}
}
