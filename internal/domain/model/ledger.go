package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PositionIDLength is the number of hex characters kept from the id hash.
const PositionIDLength = 16

// TimestampLayout is the ISO-8601 layout used for position open timestamps.
const TimestampLayout = time.RFC3339Nano

// ========== Ledger records ==========

// Funds is the cash reserve of one namespace, always denominated in the base currency.
type Funds struct {
	Amount decimal.Decimal `json:"amount"`
	Unit   string          `json:"unit"`
}

// Extra is strategy supplied metadata carried on a position. The ledger never
// interprets it.
type Extra map[string]any

// Position is an open holding of a single currency. Positions are immutable once
// opened; a sell removes the whole record.
type Position struct {
	ID            string          `json:"id"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	OpenTimestamp string          `json:"open_timestamp"`
	Extra         Extra           `json:"extra,omitempty"`
}

// OpenedAt parses OpenTimestamp.
func (p Position) OpenedAt() (time.Time, error) {
	return time.Parse(TimestampLayout, p.OpenTimestamp)
}

// NewPositionID derives the opaque position id from currency and open timestamp.
func NewPositionID(currency, openTimestamp string) string {
	sum := sha256.Sum256([]byte(strings.ToUpper(currency) + "|" + openTimestamp))
	return hex.EncodeToString(sum[:])[:PositionIDLength]
}

// ValidPositionID reports whether id has the shape produced by NewPositionID.
func ValidPositionID(id string) bool {
	if len(id) != PositionIDLength {
		return false
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// ========== Strategy contract ==========

// CoinSummary is the market view of one tradable coin handed to a strategy.
type CoinSummary struct {
	Currency string          `json:"currency"`
	Pair     string          `json:"pair"` // BASE-OTHER
	Last     decimal.Decimal `json:"last"` // price of one unit in base currency
	Bid      decimal.Decimal `json:"bid"`
	Ask      decimal.Decimal `json:"ask"`
	Volume   decimal.Decimal `json:"volume"`
	Ts       int64           `json:"ts_ms"`
}

// TradeDirective is a strategy's decision to buy Amount units of Currency.
type TradeDirective struct {
	Currency string
	Amount   decimal.Decimal
	Extra    Extra
}

// CloseDecision is a strategy's verdict on an open position.
type CloseDecision struct {
	Close  bool
	Reason string
}
