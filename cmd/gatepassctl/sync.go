package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/sma-gatepass-api/internal/app"
	"github.com/noah-isme/sma-gatepass-api/internal/models"
)

const syncPollInterval = 2 * time.Second

func newSyncCommand(opts *rootOptions, load preRun) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "sync",
		Short:             "Start, inspect and cancel profile sync runs",
		PersistentPreRunE: load,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Open a new profile sync run",
		Long: "With NATS_URL set the run is handed to the server replicas and the command returns at once. " +
			"Otherwise the run executes in this process and the command waits for it to finish.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				if opts.cfg.Sync.NATSURL != "" {
					bus, err := a.PublishSyncTasks()
					if err != nil {
						return err
					}
					defer bus.Close() //nolint:errcheck
					cp, err := a.Sync.Start(ctx)
					if err != nil {
						return err
					}
					return printJSON(opts, cp)
				}

				workers, err := a.StartSyncWorkers(ctx)
				if err != nil {
					return err
				}
				defer workers.Stop()
				cp, err := a.Sync.Start(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(opts.out, "run %s started, waiting for completion\n", cp.RunID)
				return waitForRun(ctx, opts, a, cp.RunID)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status [RUN_ID]",
		Short: "Show one run, or the most recent runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				if len(args) == 0 {
					runs, err := a.Sync.Runs(ctx, 10)
					if err != nil {
						return err
					}
					return printJSON(opts, runs)
				}
				status, err := a.Sync.Status(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(opts, status)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "cancel RUN_ID",
		Short: "Cancel a running sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), opts, func(ctx context.Context, a *app.App) error {
				cp, err := a.Sync.Cancel(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(opts, cp)
			})
		},
	})

	return cmd
}

func withApp(ctx context.Context, opts *rootOptions, fn func(context.Context, *app.App) error) error {
	a, err := app.New(ctx, opts.cfg, opts.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func waitForRun(ctx context.Context, opts *rootOptions, a *app.App, runID string) error {
	ticker := time.NewTicker(syncPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		status, err := a.Sync.Status(ctx, runID)
		if err != nil {
			return err
		}
		if !status.Terminal {
			continue
		}
		if err := printJSON(opts, status); err != nil {
			return err
		}
		if status.Status == models.SyncStatusFailed {
			reason := "unknown"
			if status.FailureReason != nil {
				reason = *status.FailureReason
			}
			return fmt.Errorf("sync run %s failed: %s", runID, reason)
		}
		return nil
	}
}

func printJSON(opts *rootOptions, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(opts.out, string(raw))
	return nil
}
