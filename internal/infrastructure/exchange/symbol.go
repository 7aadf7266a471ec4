package exchange

import (
	"strings"
)

// PairConverter maps ledger pairs ("BTC-ETH", BASE first) to exchange symbols and back.
type PairConverter interface {
	// Pair2Symbol converts a ledger pair to the exchange symbol.
	// e.g. BTC-ETH -> ETHBTC
	Pair2Symbol(pair string) string

	// Symbol2Pair converts an exchange symbol back to a ledger pair. Returns "" for
	// symbols not quoted in the base currency.
	// e.g. ETHBTC -> BTC-ETH
	Symbol2Pair(symbol string) string

	// Base returns the quote currency of every symbol.
	Base() string
}

// ConcatConverter builds symbols as OTHER+BASE with an optional separator,
// the layout most spot venues use.
type ConcatConverter struct {
	base string
	sep  string
}

// NewConcatConverter creates a converter for base. sep goes between OTHER and BASE
// ("" for ETHBTC, "-" for ETH-BTC).
func NewConcatConverter(base, sep string) *ConcatConverter {
	return &ConcatConverter{
		base: strings.ToUpper(strings.TrimSpace(base)),
		sep:  sep,
	}
}

func (c *ConcatConverter) Base() string { return c.base }

// SplitPair splits "BASE-OTHER" into its two currencies.
func SplitPair(pair string) (base, other string, ok bool) {
	pair = strings.ToUpper(strings.TrimSpace(pair))
	base, other, ok = strings.Cut(pair, "-")
	if !ok || base == "" || other == "" {
		return "", "", false
	}
	return base, other, true
}

func (c *ConcatConverter) Pair2Symbol(pair string) string {
	base, other, ok := SplitPair(pair)
	if !ok || base != c.base {
		return ""
	}
	return other + c.sep + c.base
}

func (c *ConcatConverter) Symbol2Pair(symbol string) string {
	sym := strings.ToUpper(strings.TrimSpace(symbol))
	other, found := strings.CutSuffix(sym, c.sep+c.base)
	if !found || other == "" {
		return ""
	}
	return c.base + "-" + other
}
