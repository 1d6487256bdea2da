package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/remind/internal/assemble"
	"github.com/nextlevelbuilder/remind/internal/channels/telegram"
	"github.com/nextlevelbuilder/remind/internal/config"
	"github.com/nextlevelbuilder/remind/internal/correlate"
	"github.com/nextlevelbuilder/remind/internal/interpret"
	"github.com/nextlevelbuilder/remind/internal/notify"
	"github.com/nextlevelbuilder/remind/internal/store"
	"github.com/nextlevelbuilder/remind/internal/telemetry"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reminder bot",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
	}

	st, err := store.OpenSQLite(config.ExpandHome(cfg.Store.Path), cfg.Reminders.Timezone)
	if err != nil {
		slog.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	oracle, err := interpret.NewOracle(cfg.OpenAI.APIKey, cfg.OpenAI.Model,
		cfg.Reminders.Timezone, cfg.OpenAI.Language)
	if err != nil {
		slog.Error("failed to create oracle", "error", err)
		os.Exit(1)
	}
	transcriber := interpret.NewTranscriber(cfg.OpenAI.APIKey, cfg.OpenAI.Language)

	asm := assemble.New(oracle, st)
	resolver := correlate.NewResolver(ctx, correlate.Config{
		LinkTimeout: cfg.LinkTimeout(),
		SoloWait:    cfg.SoloWait(),
	}, correlate.NewBuffer(), correlate.TimerDebouncer{}, asm)

	channel, err := telegram.New(cfg.Telegram.Token, resolver, asm, transcriber, oracle, st)
	if err != nil {
		slog.Error("failed to create telegram channel", "error", err)
		os.Exit(1)
	}

	notifyCfg := notify.DefaultConfig()
	notifyCfg.DueExpr = cfg.Reminders.DueCron
	notifyCfg.WeeklyExpr = cfg.Reminders.WeeklyCron
	notifyCfg.DefaultChatID = cfg.Telegram.DefaultChatID
	notifier := notify.New(st, channel, notifyCfg)

	if err := channel.Start(ctx); err != nil {
		slog.Error("failed to start telegram channel", "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return notifier.Run(gctx)
	})

	slog.Info("remind started", "version", Version)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case <-gctx.Done():
		slog.Error("background worker stopped", "error", gctx.Err())
	}

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("notifier exited", "error", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	if err := channel.Stop(stopCtx); err != nil {
		slog.Warn("telegram stop failed", "error", err)
	}
	if err := tel.Shutdown(stopCtx); err != nil {
		slog.Warn("telemetry shutdown failed", "error", err)
	}
}
