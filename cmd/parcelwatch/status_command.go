package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"parcelwatch/internal/parcel"
	"parcelwatch/internal/render"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show tracked parcels",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := ctx.openStore()
			if err != nil {
				return fmt.Errorf("open parcel store: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if !watch {
				return printStatus(cmd.Context(), out, store, cfg.Display.MaxParcels)
			}

			if !isTerminal(out) {
				return fmt.Errorf("--watch requires an interactive terminal")
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			refresh := time.Duration(cfg.Display.RefreshSeconds) * time.Second
			ticker := time.NewTicker(refresh)
			defer ticker.Stop()
			for {
				fmt.Fprint(out, "\x1b[2J\x1b[H")
				if err := printStatus(signalCtx, out, store, cfg.Display.MaxParcels); err != nil {
					return err
				}
				select {
				case <-signalCtx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Refresh the dashboard until interrupted")
	return cmd
}

func printStatus(ctx context.Context, out io.Writer, store *parcel.Store, limit int) error {
	parcels, err := store.Snapshot(ctx, limit)
	if err != nil {
		return fmt.Errorf("load parcels: %w", err)
	}
	if len(parcels) == 0 {
		fmt.Fprintln(out, "No parcels tracked yet. Run `parcelwatch check` to scan your inbox.")
		return nil
	}
	render.Dashboard(out, parcels, time.Now())

	stats, err := store.Stats(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("load stats: %w", err)
	}
	render.Summary(out, stats)
	return nil
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
