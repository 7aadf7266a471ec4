package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"coinbook/internal/application/port"
	"coinbook/internal/domain"
)

// DefaultBaseCurrency is the reference unit of funds and valuations.
const DefaultBaseCurrency = "BTC"

// UnitConverter converts amounts between the base currency and any other currency.
// Every call performs a live oracle lookup.
type UnitConverter struct {
	oracle  port.PriceOracle
	base    string
	timeout time.Duration
}

func NewUnitConverter(oracle port.PriceOracle, base string, timeout time.Duration) *UnitConverter {
	base = normalizeCurrency(base)
	if base == "" {
		base = DefaultBaseCurrency
	}
	return &UnitConverter{oracle: oracle, base: base, timeout: timeout}
}

func normalizeCurrency(c string) string {
	return strings.ToUpper(strings.TrimSpace(c))
}

// Base returns the base currency code.
func (c *UnitConverter) Base() string { return c.base }

// Pair returns the oracle pair for other, "BASE-OTHER".
func (c *UnitConverter) Pair(other string) string {
	return c.base + "-" + normalizeCurrency(other)
}

// Rate returns the price of one unit of other in base currency.
func (c *UnitConverter) Rate(ctx context.Context, other string) (decimal.Decimal, error) {
	pair := c.Pair(other)

	ctx, cancel := withTimeout(ctx, c.timeout)
	defer cancel()

	rate, err := c.oracle.Rate(ctx, pair)
	if err != nil {
		if errors.Is(err, port.ErrNoRate) {
			return decimal.Zero, fmt.Errorf("%w: %s: %w", domain.ErrInvalidExchangeRate, pair, err)
		}
		return decimal.Zero, fmt.Errorf("%w: %s: %w", domain.ErrOracleFailure, pair, err)
	}
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s: rate %s", domain.ErrInvalidExchangeRate, pair, rate)
	}
	return rate, nil
}

// Convert converts amount from source to target. Exactly one side must be the base
// currency.
func (c *UnitConverter) Convert(ctx context.Context, amount decimal.Decimal, source, target string) (decimal.Decimal, error) {
	source, target = normalizeCurrency(source), normalizeCurrency(target)

	switch {
	case source == c.base && target != c.base && target != "":
		rate, err := c.Rate(ctx, target)
		if err != nil {
			return decimal.Zero, err
		}
		return amount.Div(rate), nil

	case target == c.base && source != c.base && source != "":
		rate, err := c.Rate(ctx, source)
		if err != nil {
			return decimal.Zero, err
		}
		return amount.Mul(rate), nil

	default:
		return decimal.Zero, fmt.Errorf("%w: %s -> %s (base %s)", domain.ErrInvalidConversion, source, target, c.base)
	}
}

// ToBase values amount of currency in base currency.
func (c *UnitConverter) ToBase(ctx context.Context, amount decimal.Decimal, currency string) (decimal.Decimal, error) {
	return c.Convert(ctx, amount, currency, c.base)
}
