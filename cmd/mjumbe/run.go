package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/mjumbe/internal/config"
	"github.com/jkaninda/mjumbe/internal/gateway"
	"github.com/jkaninda/mjumbe/internal/manager"
	"github.com/jkaninda/mjumbe/internal/observability"
	"github.com/jkaninda/mjumbe/internal/statusapi"
)

var (
	runConfigPath string
	runListenAddr string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect the shard fleet and stream gateway events",
	RunE:  runFleet,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the config file and exit",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(goutils.Env("MJUMBE_CONFIG", runConfigPath))
		if err != nil {
			return err
		}
		fmt.Printf("config ok: %d shard(s), format=%s\n", len(cfg.Shards()), cfg.PayloadFormat())
		return nil
	},
}

func init() {
	// Register flags on both root and run so that
	// `mjumbe --config path` and `mjumbe run --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, runCmd, checkCmd} {
		cmd.Flags().StringVar(&runConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&runListenAddr, "listen", "", "override status API listen address (e.g. :8080)")
	}
}

// runFleet connects every configured shard and blocks until a signal or a
// fatal session error.
func runFleet(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(goutils.Env("MJUMBE_CONFIG", runConfigPath))
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Logging)

	// Apply CLI overrides.
	if runListenAddr != "" {
		if cfg.StatusAPI == nil {
			cfg.StatusAPI = &config.StatusAPIConfig{Enabled: true}
		}
		cfg.StatusAPI.ListenAddr = runListenAddr
	}

	obs, err := observability.New(cfg.Observability)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	}()

	fleet, err := manager.New(cfg, newEventLogger(logger), obs, logger)
	if err != nil {
		return err
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting shard fleet",
		slog.Int("shard_count", cfg.Count()),
		slog.String("format", cfg.PayloadFormat()),
		slog.String("compression", cfg.Compression),
	)
	if err := fleet.Start(ctx); err != nil {
		return err
	}

	var status *statusapi.Server
	if cfg.StatusAPI != nil && cfg.StatusAPI.Enabled {
		apiCfg := statusapi.Config{ListenAddr: cfg.StatusAPI.Addr()}
		if m := obs.MetricsOrNil(); m != nil {
			apiCfg.MetricsRegistry = m.Registry
			if cfg.Observability != nil && cfg.Observability.Metrics != nil {
				apiCfg.MetricsPath = cfg.Observability.Metrics.Path
			}
		}
		status = statusapi.NewServer(apiCfg, fleet, logger)
		go func() {
			if err := status.Start(ctx); err != nil {
				logger.Error("status api failed", slog.String("error", err.Error()))
			}
		}()
	}

	// Block until a signal arrives or every session loop dies.
	joinErr := make(chan error, 1)
	go func() { joinErr <- fleet.Join(context.Background()) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-joinErr:
		if err != nil {
			logger.Error("shard fleet died", slog.String("error", err.Error()))
			return err
		}
		logger.Info("shard fleet finished")
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if status != nil {
		_ = status.Stop(shutdownCtx)
	}
	if err := fleet.Close(shutdownCtx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// newLogger builds the process logger from config. JSON to stderr by
// default; text for local development.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// newEventLogger is the default sink: it logs each dispatched event. A real
// consumer replaces this with cache population or business logic.
func newEventLogger(logger *slog.Logger) gateway.EventSink {
	return gateway.EventSinkFunc(func(_ context.Context, ev *gateway.InboundEvent) {
		logger.Debug("gateway event",
			slog.Int("shard_id", ev.ShardID),
			slog.String("kind", ev.Kind),
			slog.Int64("seq", ev.Sequence),
		)
	})
}
