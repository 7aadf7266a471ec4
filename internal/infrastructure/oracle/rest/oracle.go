package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coinbook/internal/application/port"
	"coinbook/internal/infrastructure/exchange"

	"github.com/PaesslerAG/jsonpath"
	"github.com/shopspring/decimal"
)

const (
	SymbolPlaceholder = "{symbol}"

	DefaultURL  = "https://api.binance.com/api/v3/ticker/price?symbol={symbol}"
	DefaultPath = "$.price"
)

// Options configures an Oracle. Zero values select the Binance spot ticker.
type Options struct {
	// URL is the ticker endpoint; {symbol} is replaced by the exchange symbol.
	URL string
	// Path is a JSONPath selecting the price in the response body.
	Path string
	// Separator goes between OTHER and BASE in the exchange symbol.
	Separator string
	Client    *http.Client
}

// Oracle quotes rates from an HTTP ticker endpoint.
type Oracle struct {
	url    string
	path   string
	conv   exchange.PairConverter
	client *http.Client
}

// New creates an Oracle quoting pairs of base.
func New(base string, opts Options) (*Oracle, error) {
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = DefaultURL
	}
	if strings.TrimSpace(opts.Path) == "" {
		opts.Path = DefaultPath
	}
	if !strings.Contains(opts.URL, SymbolPlaceholder) {
		return nil, fmt.Errorf("rest oracle url %q has no %s placeholder", opts.URL, SymbolPlaceholder)
	}
	if _, err := jsonpath.New(opts.Path); err != nil {
		return nil, fmt.Errorf("rest oracle path %q: %w", opts.Path, err)
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Oracle{
		url:    opts.URL,
		path:   opts.Path,
		conv:   exchange.NewConcatConverter(base, opts.Separator),
		client: opts.Client,
	}, nil
}

func (o *Oracle) Rate(ctx context.Context, pair string) (decimal.Decimal, error) {
	symbol := o.conv.Pair2Symbol(pair)
	if symbol == "" {
		return decimal.Zero, fmt.Errorf("%w: %s", port.ErrNoRate, pair)
	}

	addr := strings.ReplaceAll(o.url, SymbolPlaceholder, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("read %s: %w", symbol, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound:
		// unknown symbol
		return decimal.Zero, fmt.Errorf("%w: %s (%d)", port.ErrNoRate, pair, resp.StatusCode)
	default:
		return decimal.Zero, fmt.Errorf("ticker api error: %d %s", resp.StatusCode, string(body))
	}

	return extract(body, o.path)
}

func extract(body []byte, path string) (decimal.Decimal, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var jobj any
	if err := dec.Decode(&jobj); err != nil {
		return decimal.Zero, fmt.Errorf("decode ticker: %w", err)
	}

	jval, err := jsonpath.Get(path, jobj)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: path %q: %v", port.ErrNoRate, path, err)
	}
	// filters and slices yield a list; keep the first answer
	if jlist, ok := jval.([]any); ok {
		if len(jlist) == 0 {
			return decimal.Zero, fmt.Errorf("%w: path %q matched nothing", port.ErrNoRate, path)
		}
		jval = jlist[0]
	}

	switch v := jval.(type) {
	case json.Number:
		return decimal.NewFromString(v.String())
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case nil:
		return decimal.Zero, fmt.Errorf("%w: path %q is null", port.ErrNoRate, path)
	default:
		return decimal.Zero, errors.New("ticker price is not a number")
	}
}

var _ port.PriceOracle = (*Oracle)(nil)
