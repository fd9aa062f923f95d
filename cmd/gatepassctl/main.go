// Command gatepassctl runs operator tasks against the gate pass database:
// schema migrations, profile sync runs and key hashing.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-gatepass-api/pkg/config"
	"github.com/noah-isme/sma-gatepass-api/pkg/logger"
)

type rootOptions struct {
	out    io.Writer
	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}

	cmd := &cobra.Command{
		Use:           "gatepassctl",
		Short:         "Operator tooling for the gate pass service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(out)

	// Config is only loaded by commands that touch the database.
	loadConfig := func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logr, err := logger.New(cfg, "gatepassctl")
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		opts.cfg = cfg
		opts.logger = logr
		return nil
	}

	cmd.AddCommand(newMigrateCommand(opts, loadConfig))
	cmd.AddCommand(newSyncCommand(opts, loadConfig))
	cmd.AddCommand(newHashKeyCommand(opts))
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
