package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"parcelwatch/internal/mail"
	"parcelwatch/internal/reconcile"
	"parcelwatch/internal/render"
	"parcelwatch/internal/tracker"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run a single reconciliation cycle and show the dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
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

			report, err := engine.RunCycle(signalCtx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scanned %d messages: %d new, %d merged, %d refreshed, %d failed, %d skipped (%s)\n",
				report.MessagesScanned, report.Discovered, report.Merged,
				report.Refreshed, report.Failed, report.Skipped,
				report.Duration.Round(time.Millisecond))

			parcels, err := store.Snapshot(signalCtx, cfg.Display.MaxParcels)
			if err != nil {
				return fmt.Errorf("load parcels: %w", err)
			}
			render.Dashboard(out, parcels, time.Now())
			return nil
		},
	}
}
