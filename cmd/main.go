package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"layoutbot/internal/config"
)

// cli carries what the root command loads for its subcommands.
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	log     *slog.Logger
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("layoutbot failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{v: config.New()}

	root := &cobra.Command{
		Use:           "layoutbot",
		Short:         "Telegram bot that fixes text typed in the wrong keyboard layout (EN <-> UA)",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.BindFlags(c.v, cmd.Flags()); err != nil {
				return err
			}
			cfg, err := config.Load(c.v, c.cfgFile)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = cfg.NewLogger(os.Stderr)
			slog.SetDefault(c.log)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "YAML config file")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Long-poll Telegram, run retention and serve metrics (default)",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.runServe(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "lambda",
			Short: "Run as an AWS Lambda handling webhook and scheduled events",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.runLambda(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Run one age cleanup and one size check, then exit",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.runCleanup(cmd.Context())
			},
		},
	)
	return root
}
