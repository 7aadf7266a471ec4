package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"coinbook/internal/application/service"
	"coinbook/internal/infrastructure/config"
	"coinbook/internal/infrastructure/container"
	"coinbook/internal/infrastructure/logger"
	"coinbook/internal/interfaces/console"
)

// app is the state shared by every subcommand.
type app struct {
	configPath string
	envFile    string
	namespace  string
	nsSet      bool

	cfg  *config.Config
	c    *container.Container
	sink *console.Sink
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "coinbook",
		Short:         "Portfolio ledger for automated crypto trading strategies",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.nsSet = cmd.Flags().Changed("namespace")
			return a.open(cmd.OutOrStdout())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "configs/config.toml", "path to config file (.toml, .yaml)")
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file with secrets")
	pf.StringVarP(&a.namespace, "namespace", "n", "", "ledger namespace (overrides app.namespace)")

	root.AddCommand(
		newInitCmd(a),
		newResetCmd(a),
		newBalanceCmd(a),
		newPositionsCmd(a),
		newBuyCmd(a),
		newSellCmd(a),
		newCrawlCmd(a),
		newHistoryCmd(a),
	)

	return root
}

func (a *app) open(out io.Writer) error {
	if err := config.LoadEnv(a.envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", a.configPath, err)
	}
	logger.Setup(cfg.App.LogLevel)

	if a.nsSet {
		cfg.App.Namespace = a.namespace
	}
	a.cfg = cfg

	c, err := container.New(cfg, container.Options{})
	if err != nil {
		return err
	}
	a.c = c
	a.sink = console.NewSink(out)

	log.Debug().
		Str("config", a.configPath).
		Str("namespace", cfg.App.Namespace).
		Str("base", cfg.App.BaseCurrency).
		Str("backend", cfg.Storage.Backend).
		Msg("coinbook started")
	return nil
}

func (a *app) close() error {
	if a.c == nil {
		return nil
	}
	return a.c.Close()
}

func (a *app) engine() (*service.LedgerEngine, error) {
	return a.c.Engine()
}

func (a *app) ns() string {
	return a.cfg.App.Namespace
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}
