package pricefeed

import (
	"sort"
	"strings"

	"coinbook/internal/application/port"

	"github.com/rs/zerolog/log"
)

// Factory builds a feed for an exchange.
// wsURL: websocket endpoint ("" selects the exchange default)
// base: quote currency of every subscribed pair
type Factory func(wsURL, base string) port.PriceFeed

// registry maps exchange names to their price feed factories
var registry = make(map[string]Factory)

// Register adds a factory under exchangeName. Exchange packages call it from init().
func Register(exchangeName string, factory Factory) {
	name := strings.ToUpper(strings.TrimSpace(exchangeName))
	if factory == nil {
		log.Warn().Str("exchange", name).Msg("invalid price feed factory")
		return
	}
	if _, exists := registry[name]; exists {
		log.Warn().Str("exchange", name).Msg("price feed factory already registered, overwriting")
	}
	registry[name] = factory
}

// Get returns the factory registered for exchangeName (case-insensitive).
func Get(exchangeName string) (Factory, bool) {
	factory, ok := registry[strings.ToUpper(strings.TrimSpace(exchangeName))]
	return factory, ok
}

// Names lists the registered exchanges.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
