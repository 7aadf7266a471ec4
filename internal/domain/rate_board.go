package domain

import (
	"strings"
	"sync"
)

// RateBoard tracks the latest rate for a fixed set of BASE-OTHER pairs.
type RateBoard struct {
	mu    sync.RWMutex
	order []string
	pairs map[string]*RateState
}

// NewRateBoard creates a board for the given pairs. Pairs are upper-cased and
// de-duplicated; updates for pairs outside this set are dropped.
func NewRateBoard(pairs []string) *RateBoard {
	order := make([]string, 0, len(pairs))
	m := make(map[string]*RateState, len(pairs))

	for _, p := range pairs {
		u := strings.ToUpper(strings.TrimSpace(p))
		if u == "" {
			continue
		}
		if _, ok := m[u]; ok {
			continue
		}
		order = append(order, u)
		m[u] = &RateState{}
	}

	return &RateBoard{order: order, pairs: m}
}

// Update stores a raw rate for pair. Returns true if the rate changed.
func (b *RateBoard) Update(pair, raw string, ts int64) bool {
	pair = strings.ToUpper(strings.TrimSpace(pair))

	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.pairs[pair]
	if st == nil {
		return false
	}
	return st.Update(raw, ts)
}

// Get returns a copy of the state of pair.
func (b *RateBoard) Get(pair string) (RateState, bool) {
	pair = strings.ToUpper(strings.TrimSpace(pair))

	b.mu.RLock()
	defer b.mu.RUnlock()

	st := b.pairs[pair]
	if st == nil || !st.HasValue {
		return RateState{}, false
	}
	return *st, true
}

// Pairs returns the ordered list of tracked pairs
func (b *RateBoard) Pairs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	result := make([]string, len(b.order))
	copy(result, b.order)
	return result
}
