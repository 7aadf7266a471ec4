package crawl

import (
	"context"
	"errors"
	"strings"
	"time"

	"coinbook/internal/application/port"
	"coinbook/internal/domain"
	"coinbook/internal/domain/model"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const DefaultInterval = 5 * time.Minute

// Quoter prices one unit of a currency in the base currency.
type Quoter interface {
	Base() string
	Pair(other string) string
	Rate(ctx context.Context, other string) (decimal.Decimal, error)
}

// Ledger is the part of the ledger engine a crawl drives.
type Ledger interface {
	RunCycle(ctx context.Context, namespace string, coins []model.CoinSummary) (*model.CycleReport, error)
	ReviewPositions(ctx context.Context, namespace string) (*model.CycleReport, error)
	BalanceSheet(ctx context.Context, namespace string) (*model.BalanceSheet, error)
}

type ServiceDeps struct {
	Ledger    Ledger
	Quoter    Quoter
	Namespace string
	Symbols   []string
	Interval  time.Duration
	Sink      port.Sink
	Now       func() time.Time
}

// Result is the outcome of one crawl.
type Result struct {
	Coins     *model.CycleReport
	Positions *model.CycleReport
	Balance   *model.BalanceSheet
}

type Service struct {
	deps ServiceDeps
}

func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Ledger == nil || deps.Quoter == nil {
		return nil, errors.New("crawl: ledger and quoter are required")
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Symbols = normalizeSymbols(deps.Symbols, deps.Quoter.Base())
	return &Service{deps: deps}, nil
}

func (s *Service) Symbols() []string {
	out := make([]string, len(s.deps.Symbols))
	copy(out, s.deps.Symbols)
	return out
}

// Summaries quotes every configured symbol. Symbols whose rate cannot be fetched
// are returned as failures instead of summaries.
func (s *Service) Summaries(ctx context.Context) ([]model.CoinSummary, []model.CycleFailure) {
	coins := make([]model.CoinSummary, 0, len(s.deps.Symbols))
	var failures []model.CycleFailure

	for _, sym := range s.deps.Symbols {
		if ctx.Err() != nil {
			break
		}
		rate, err := s.deps.Quoter.Rate(ctx, sym)
		if err != nil {
			log.Warn().Err(err).Str("coin", sym).Msg("quote failed")
			failures = append(failures, model.CycleFailure{
				Item:  sym,
				Stage: model.StageQuote,
				Kind:  domain.Kind(err),
				Err:   err,
			})
			continue
		}
		coins = append(coins, model.CoinSummary{
			Currency: sym,
			Pair:     s.deps.Quoter.Pair(sym),
			Last:     rate,
			Bid:      rate,
			Ask:      rate,
			Volume:   decimal.Zero,
			Ts:       s.deps.Now().UnixMilli(),
		})
	}
	return coins, failures
}

// Crawl runs one full pass: quote, evaluate coins, review positions, value the
// namespace. Item failures never abort; cancellation and store failures do.
func (s *Service) Crawl(ctx context.Context) (*Result, error) {
	ns := s.deps.Namespace
	res := &Result{}

	coins, quoteFailures := s.Summaries(ctx)

	report, err := s.deps.Ledger.RunCycle(ctx, ns, coins)
	if report != nil {
		report.Evaluated += len(quoteFailures)
		report.Failures = append(quoteFailures, report.Failures...)
		res.Coins = report
		s.write(func(sink port.Sink) error { return sink.WriteCycle(report) })
	}
	if err != nil {
		return res, err
	}

	review, err := s.deps.Ledger.ReviewPositions(ctx, ns)
	if review != nil {
		res.Positions = review
		s.write(func(sink port.Sink) error { return sink.WriteCycle(review) })
	}
	if err != nil {
		return res, err
	}

	sheet, err := s.deps.Ledger.BalanceSheet(ctx, ns)
	if err != nil {
		return res, err
	}
	res.Balance = sheet
	s.write(func(sink port.Sink) error { return sink.WriteBalance(sheet) })

	log.Info().
		Str("namespace", ns).
		Str("total", sheet.Total.String()).
		Str("base", sheet.Base).
		Int("positions", len(sheet.Positions)).
		Msg("crawl finished")
	return res, nil
}

// Loop crawls immediately and then on every interval until ctx is done. A failed
// crawl is logged and retried on the next tick.
func (s *Service) Loop(ctx context.Context) error {
	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Crawl(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("namespace", s.deps.Namespace).Msg("crawl failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) write(fn func(port.Sink) error) {
	if s.deps.Sink == nil {
		return
	}
	if err := fn(s.deps.Sink); err != nil {
		log.Error().Err(err).Msg("sink write failed")
	}
}

func normalizeSymbols(in []string, base string) []string {
	base = strings.ToUpper(strings.TrimSpace(base))
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, s := range in {
		u := strings.ToUpper(strings.TrimSpace(s))
		if u == "" || u == base {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
