package stream

import (
	"context"
	"fmt"
	"time"

	"coinbook/internal/application/port"
	"coinbook/internal/domain"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const DefaultMaxAge = time.Minute

// Oracle serves the latest rate seen on a websocket feed. Rates older than maxAge
// are treated as absent.
type Oracle struct {
	board  *domain.RateBoard
	maxAge time.Duration
	now    func() time.Time
}

func New(pairs []string, maxAge time.Duration) *Oracle {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Oracle{
		board:  domain.NewRateBoard(pairs),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Board exposes the underlying rate board.
func (o *Oracle) Board() *domain.RateBoard { return o.board }

// Run subscribes feed to every tracked pair and applies ticks until the feed
// closes or ctx is done.
func (o *Oracle) Run(ctx context.Context, feed port.PriceFeed) error {
	ticks, err := feed.Subscribe(ctx, o.board.Pairs())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", feed.Name(), err)
	}

	log.Info().Str("feed", feed.Name()).Strs("pairs", o.board.Pairs()).Msg("rate stream started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-ticks:
			if !ok {
				return ctx.Err()
			}
			if o.board.Update(t.Pair, t.PriceStr, t.Ts) {
				log.Debug().Str("pair", t.Pair).Str("rate", t.PriceStr).Msg("rate updated")
			}
		}
	}
}

// WaitReady blocks until every tracked pair has a rate or ctx is done.
func (o *Oracle) WaitReady(ctx context.Context) error {
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		if o.ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (o *Oracle) ready() bool {
	for _, p := range o.board.Pairs() {
		if _, ok := o.board.Get(p); !ok {
			return false
		}
	}
	return true
}

func (o *Oracle) Rate(ctx context.Context, pair string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	st, ok := o.board.Get(pair)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", port.ErrNoRate, pair)
	}
	age := o.now().Sub(time.UnixMilli(st.Ts))
	if age > o.maxAge {
		return decimal.Zero, fmt.Errorf("%w: %s stale for %s", port.ErrNoRate, pair, age.Truncate(time.Second))
	}
	return st.Value, nil
}

var _ port.PriceOracle = (*Oracle)(nil)
