package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Direction represents the rate movement direction
type Direction int

const (
	DirectionSame Direction = 0
	DirectionUp   Direction = +1
	DirectionDown Direction = -1
)

// RateState holds the latest observed rate of a single pair
type RateState struct {
	Raw       string
	Value     decimal.Decimal
	HasValue  bool
	Direction Direction
	Ts        int64
}

// Update applies a raw rate observed at ts (unix ms). Unparseable or non-positive
// values are ignored. Returns true if the stored value changed.
func (rs *RateState) Update(raw string, ts int64) bool {
	raw = strings.TrimSpace(raw)
	if raw == rs.Raw {
		if rs.HasValue {
			rs.Ts = ts
		}
		return false
	}

	v, err := decimal.NewFromString(raw)
	if err != nil || !v.IsPositive() {
		return false
	}

	rs.Raw = raw
	rs.Ts = ts
	if !rs.HasValue {
		rs.HasValue = true
		rs.Value = v
		rs.Direction = DirectionSame
		return true
	}

	switch v.Cmp(rs.Value) {
	case 1:
		rs.Direction = DirectionUp
	case -1:
		rs.Direction = DirectionDown
	default:
		rs.Direction = DirectionSame
	}
	rs.Value = v
	return true
}
