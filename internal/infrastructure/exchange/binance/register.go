package binance

import (
	"coinbook/internal/application/port"
	"coinbook/internal/infrastructure/pricefeed"
)

func init() {
	pricefeed.Register(Name, func(wsURL, base string) port.PriceFeed {
		return NewTickerFeed(wsURL, base)
	})
}
