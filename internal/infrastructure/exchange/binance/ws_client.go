package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"coinbook/internal/application/port"
	"coinbook/internal/infrastructure/exchange"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	Name         = "BINANCE"
	DefaultWSURL = "wss://stream.binance.com:9443"
)

type TickerFeed struct {
	wsURL string // e.g. wss://stream.binance.com:9443
	conv  exchange.PairConverter
}

// NewTickerFeed creates a Binance spot miniTicker feed quoting pairs of base.
func NewTickerFeed(wsURL, base string) *TickerFeed {
	wsURL = strings.TrimSpace(wsURL)
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &TickerFeed{
		wsURL: wsURL,
		conv:  exchange.NewConcatConverter(base, ""),
	}
}

func (f *TickerFeed) Name() string { return Name }

type binanceCombined struct {
	Stream string         `json:"stream"`
	Data   binanceMiniMsg `json:"data"`
}
type binanceMiniMsg struct {
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Close     string `json:"c"`
}

func (f *TickerFeed) Subscribe(ctx context.Context, pairs []string) (<-chan port.Tick, error) {
	symbols := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		sym := f.conv.Pair2Symbol(pair)
		if sym == "" {
			return nil, fmt.Errorf("pair %q is not quoted in %s", pair, f.conv.Base())
		}
		symbols = append(symbols, sym)
	}

	wsURL, err := buildCombinedURL(f.wsURL, symbols)
	if err != nil {
		return nil, err
	}

	out := make(chan port.Tick, 1024)
	go f.run(ctx, wsURL, out)
	return out, nil
}

func buildCombinedURL(base string, symbols []string) (string, error) {
	if base == "" {
		return "", errors.New("binance ws url empty")
	}
	if len(symbols) == 0 {
		return "", errors.New("symbols empty")
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		streams = append(streams, fmt.Sprintf("%s@miniTicker", s))
	}
	if len(streams) == 0 {
		return "", errors.New("no valid symbols")
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	u.Path = "/stream"
	u.RawQuery = "streams=" + strings.Join(streams, "/")
	return u.String(), nil
}

func (f *TickerFeed) decode(b []byte) (port.Tick, bool) {
	var msg binanceCombined
	if err := json.Unmarshal(b, &msg); err != nil {
		log.Error().Str("feed", f.Name()).Err(err).Msg("json unmarshal failed")
		return port.Tick{}, false
	}
	sym := strings.ToUpper(msg.Data.Symbol)
	px := strings.TrimSpace(msg.Data.Close)
	pair := f.conv.Symbol2Pair(sym)
	if pair == "" || px == "" {
		return port.Tick{}, false
	}
	ts := msg.Data.EventTime
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	return port.Tick{
		Exchange: f.Name(),
		Symbol:   sym,
		Pair:     pair,
		PriceStr: px,
		Ts:       ts,
	}, true
}

func (f *TickerFeed) run(ctx context.Context, wsURL string, out chan<- port.Tick) {
	defer close(out)

	backoff := exchange.InitialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		log.Info().Str("feed", f.Name()).Str("url", wsURL).Msg("ws connecting")
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		conn, _, err := websocket.DefaultDialer.DialContext(cctx, wsURL, nil)
		cancel()
		if err != nil {
			log.Error().Str("feed", f.Name()).Err(err).Msg("ws dial failed")
			if !exchange.Sleep(ctx, backoff) {
				return
			}
			backoff = exchange.NextBackoff(backoff)
			continue
		}

		backoff = exchange.InitialBackoff
		log.Info().Str("feed", f.Name()).Msg("ws connected")

		err = exchange.ReadWithPing(ctx, conn, func(b []byte) {
			tick, ok := f.decode(b)
			if !ok {
				return
			}
			select {
			case out <- tick:
			case <-ctx.Done():
			}
		})

		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}

		log.Warn().Str("feed", f.Name()).Err(err).Msg("ws disconnected, reconnecting")
		if !exchange.Sleep(ctx, backoff) {
			return
		}
		backoff = exchange.NextBackoff(backoff)
	}
}

var _ port.PriceFeed = (*TickerFeed)(nil)
