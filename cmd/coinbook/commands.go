package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	appcontainer "coinbook/internal/application/container"
	"coinbook/internal/application/service"
	"coinbook/internal/domain/model"
)

// fundsFlag resolves --funds, falling back to app.initial_funds.
func (a *app) fundsFlag(raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return a.cfg.InitialFunds()
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("--funds %q: %w", raw, err)
	}
	return &d, nil
}

func newInitCmd(a *app) *cobra.Command {
	var funds string
	var reset bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the funds record of a namespace if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := a.fundsFlag(funds)
			if err != nil {
				return err
			}
			e, err := a.engine()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := e.Initialize(ctx, a.ns(), service.InitOptions{InitialFunds: initial, ResetFunds: reset}); err != nil {
				return err
			}
			f, err := e.Funds().Get(ctx, a.ns())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "funds %s %s\n", f.String(), e.Base())
			return nil
		},
	}
	cmd.Flags().StringVar(&funds, "funds", "", "initial funds in base currency (default app.initial_funds)")
	cmd.Flags().BoolVar(&reset, "reset", false, "wipe the namespace before seeding funds")
	return cmd
}

func newResetCmd(a *app) *cobra.Command {
	var funds string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every position of a namespace and re-seed its funds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := a.fundsFlag(funds)
			if err != nil {
				return err
			}
			if initial == nil {
				return errors.New("reset needs --funds or app.initial_funds")
			}
			e, err := a.engine()
			if err != nil {
				return err
			}
			return e.ResetNamespace(cmd.Context(), a.ns(), *initial)
		},
	}
	cmd.Flags().StringVar(&funds, "funds", "", "funds after reset in base currency (default app.initial_funds)")
	return cmd
}

func newBalanceCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Value funds and open positions in base currency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.c.StartOracle(cmd.Context())
			e, err := a.engine()
			if err != nil {
				return err
			}
			sheet, err := e.BalanceSheet(cmd.Context(), a.ns())
			if err != nil {
				return err
			}
			return a.sink.WriteBalance(sheet)
		},
	}
}

func newPositionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "positions",
		Short: "List open positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.engine()
			if err != nil {
				return err
			}
			positions, err := e.Book().Positions(cmd.Context(), a.ns())
			if err != nil {
				return err
			}
			return a.sink.WritePositions(a.ns(), positions)
		},
	}
}

func newBuyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "buy CURRENCY AMOUNT",
		Short: "Open a position and debit its cost from funds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[1], err)
			}
			a.c.StartOracle(cmd.Context())
			e, err := a.engine()
			if err != nil {
				return err
			}
			pos, err := e.ExecuteBuy(cmd.Context(), a.ns(), model.TradeDirective{
				Currency: args[0],
				Amount:   amount,
				Extra:    model.Extra{"source": "cli"},
			})
			if err != nil {
				return err
			}
			return a.sink.WritePositions(a.ns(), []model.Position{pos})
		},
	}
}

func newSellCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sell POSITION_ID",
		Short: "Close a position and credit its proceeds to funds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a.c.StartOracle(cmd.Context())
			e, err := a.engine()
			if err != nil {
				return err
			}
			proceeds, err := e.ExecuteSell(cmd.Context(), a.ns(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sold %s for %s %s\n", args[0], proceeds.String(), e.Base())
			return nil
		},
	}
}

func newCrawlCmd(a *app) *cobra.Command {
	var loop bool
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Evaluate coins and open positions with the configured strategy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			if metricsAddr == "" {
				metricsAddr = a.cfg.Metrics.Addr
			}
			if metricsAddr != "" {
				srv := serveMetrics(metricsAddr, a.c.Metrics().Handler())
				defer shutdown(srv)
			}

			a.c.StartOracle(ctx)
			crawler, err := a.c.App().Crawler(appcontainer.CrawlOptions{
				Namespace: a.ns(),
				Symbols:   a.cfg.Symbols.List,
				Interval:  a.cfg.CrawlInterval(),
				Sink:      a.sink,
			})
			if err != nil {
				return err
			}

			log.Info().
				Str("namespace", a.ns()).
				Strs("symbols", crawler.Symbols()).
				Bool("loop", loop).
				Msg("crawl started")

			if loop {
				err = crawler.Loop(ctx)
			} else {
				_, err = crawler.Crawl(ctx)
			}
			if isCanceled(err) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&loop, "loop", false, "repeat every app.crawl_interval_sec until interrupted")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (default metrics.addr)")
	return cmd
}

func serveMetrics(addr string, h http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("metrics server listening")
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent ledger events from the SQLite journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j := a.c.Journal()
			if j == nil {
				return errors.New("history needs storage.backend = sqlite with storage.journal = true")
			}
			entries, err := j.Recent(cmd.Context(), a.ns(), limit)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetTitle("HISTORY")
			t.SetStyle(table.StyleRounded)
			t.AppendHeader(table.Row{"Time", "Type", "Side", "Currency", "Value", "Detail"})
			for _, e := range entries {
				t.AppendRow(table.Row{
					time.UnixMilli(e.Timestamp).Format("2006-01-02 15:04:05"),
					e.Type, e.Side, e.Currency, e.Value, e.Detail,
				})
			}
			t.Render()
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "number of events")
	return cmd
}
