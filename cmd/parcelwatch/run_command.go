package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"parcelwatch/internal/mail"
	"parcelwatch/internal/reconcile"
	"parcelwatch/internal/tracker"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the reconciliation daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), ctx)
		},
	}
}

func runDaemon(cmdCtx context.Context, ctx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := ctx.fileLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another parcelwatch instance holds %s", cfg.LockPath())
	}
	defer lock.Unlock()

	store, err := ctx.openStore()
	if err != nil {
		return fmt.Errorf("open parcel store: %w", err)
	}
	defer store.Close()

	source, err := mail.NewGmailSource(signalCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("connect gmail: %w", err)
	}
	registry := tracker.NewRegistry(cfg, logger)
	engine := reconcile.New(cfg, store, source, registry, logger)

	if err := engine.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
