package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"coinbook/internal/application/port"
	"coinbook/internal/domain/model"
	"coinbook/internal/infrastructure/storage"
)

var errBoom = errors.New("boom")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// mockOracle serves fixed rates keyed by pair.
type mockOracle struct {
	mu    sync.Mutex
	rates map[string]decimal.Decimal
	errs  map[string]error
	block bool
	calls int
}

func newMockOracle(rates map[string]string) *mockOracle {
	o := &mockOracle{rates: map[string]decimal.Decimal{}, errs: map[string]error{}}
	for p, r := range rates {
		o.rates[p] = dec(r)
	}
	return o
}

func (o *mockOracle) Rate(ctx context.Context, pair string) (decimal.Decimal, error) {
	o.mu.Lock()
	o.calls++
	block := o.block
	err := o.errs[pair]
	r, ok := o.rates[pair]
	o.mu.Unlock()

	if block {
		<-ctx.Done()
		return decimal.Zero, ctx.Err()
	}
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, port.ErrNoRate
	}
	return r, nil
}

func (o *mockOracle) set(pair, rate string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rates[pair] = dec(rate)
}

func (o *mockOracle) remove(pair string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.rates, pair)
}

// mockStore wraps an in-memory store and fails selected operations.
type mockStore struct {
	*storage.MemoryStore

	mu      sync.Mutex
	failOps map[string]error
	noSwap  bool
}

func newMockStore() *mockStore {
	return &mockStore{MemoryStore: storage.NewMemoryStore(), failOps: map[string]error{}}
}

func (s *mockStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOps[op] = err
}

func (s *mockStore) failure(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failOps[op]
}

func (s *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.failure("get"); err != nil {
		return nil, err
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.failure("set"); err != nil {
		return err
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func (s *mockStore) CompareAndSwap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	if err := s.failure("cas"); err != nil {
		return false, err
	}
	s.mu.Lock()
	noSwap := s.noSwap
	s.mu.Unlock()
	if noSwap {
		return false, nil
	}
	return s.MemoryStore.CompareAndSwap(ctx, key, prev, next)
}

func (s *mockStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := s.failure("keys"); err != nil {
		return nil, err
	}
	return s.MemoryStore.Keys(ctx, prefix)
}

// stepClock advances one millisecond per reading so that ids never collide.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

// mockStrategy delegates to optional funcs; nil funcs mean "no action".
type mockStrategy struct {
	coin     func(ctx context.Context, c model.CoinSummary) (*model.TradeDirective, error)
	position func(ctx context.Context, p model.Position) (*model.CloseDecision, error)
}

func (m *mockStrategy) EvaluateCoin(ctx context.Context, c model.CoinSummary) (*model.TradeDirective, error) {
	if m.coin == nil {
		return nil, nil
	}
	return m.coin(ctx, c)
}

func (m *mockStrategy) EvaluatePosition(ctx context.Context, p model.Position) (*model.CloseDecision, error) {
	if m.position == nil {
		return nil, nil
	}
	return m.position(ctx, p)
}

// mockRecorder counts recorder callbacks.
type mockRecorder struct {
	mu       sync.Mutex
	trades   []string
	failures []string
	balances int
	cycles   int
}

func (r *mockRecorder) TradeExecuted(namespace, side, currency string, baseValue decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, side+":"+currency)
}

func (r *mockRecorder) OperationFailed(namespace, op, kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, op+":"+kind)
}

func (r *mockRecorder) BalanceObserved(*model.BalanceSheet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances++
}

func (r *mockRecorder) CycleCompleted(*model.CycleReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles++
}

type testEngine struct {
	*LedgerEngine
	store    *mockStore
	oracle   *mockOracle
	strategy *mockStrategy
	rec      *mockRecorder
}

func newTestEngine(t *testing.T, overdraft OverdraftPolicy) *testEngine {
	t.Helper()
	te := &testEngine{
		store:    newMockStore(),
		oracle:   newMockOracle(map[string]string{"BTC-ETH": "0.05", "BTC-SOL": "0.002", "BTC-XRP": "0.00001"}),
		strategy: &mockStrategy{},
		rec:      &mockRecorder{},
	}
	e, err := NewLedgerEngine(EngineDeps{
		Store:        te.store,
		Oracle:       te.oracle,
		Strategy:     te.strategy,
		BaseCurrency: "BTC",
		Timeout:      time.Second,
		Overdraft:    overdraft,
		Recorder:     te.rec,
		Now:          newStepClock().Now,
	})
	require.NoError(t, err)
	te.LedgerEngine = e
	return te
}

func (te *testEngine) seed(t *testing.T, ns, funds string) {
	t.Helper()
	f := dec(funds)
	require.NoError(t, te.Initialize(context.Background(), ns, InitOptions{InitialFunds: &f}))
}

func requireDecimal(t *testing.T, want, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, want.Sub(got).Abs().LessThan(dec("0.000000001")), "want %s, got %s", want, got)
}
