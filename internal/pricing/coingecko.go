package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// DefaultCoinGeckoURL is the public API root.
const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// DefaultCoinGeckoIDs maps upper-case symbols to CoinGecko ids.
var DefaultCoinGeckoIDs = map[string]string{
	"ETH":  "ethereum",
	"WETH": "weth",
	"USDC": "usd-coin",
	"DAI":  "dai",
	"BUSD": "binance-usd",
}

// CoinGecko quotes by symbol through /simple/price.
type CoinGecko struct {
	baseURL string
	ids     map[string]string
	fetcher fetcher
}

// NewCoinGecko creates a client. extraIDs extend or override the defaults.
func NewCoinGecko(baseURL string, extraIDs map[string]string, timeout time.Duration, logger *slog.Logger) *CoinGecko {
	if baseURL == "" {
		baseURL = DefaultCoinGeckoURL
	}
	ids := make(map[string]string, len(DefaultCoinGeckoIDs)+len(extraIDs))
	for k, v := range DefaultCoinGeckoIDs {
		ids[k] = v
	}
	for k, v := range extraIDs {
		ids[strings.ToUpper(k)] = v
	}
	return &CoinGecko{
		baseURL: strings.TrimRight(baseURL, "/"),
		ids:     ids,
		fetcher: newFetcher(timeout, logger),
	}
}

// ID returns the CoinGecko id for symbol.
func (c *CoinGecko) ID(symbol string) (string, bool) {
	id, ok := c.ids[strings.ToUpper(symbol)]
	return id, ok
}

// Quote prices symbol in currency (usd, gbp, ngn, ...).
func (c *CoinGecko) Quote(ctx context.Context, symbol, currency string) (Quote, error) {
	id, ok := c.ID(symbol)
	if !ok {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrUnknownSymbol)
	}
	cur := strings.ToLower(currency)

	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", cur)
	q.Set("include_24hr_change", "true")

	var resp map[string]map[string]float64
	if err := c.fetcher.getJSON(ctx, c.baseURL+"/simple/price?"+q.Encode(), &resp); err != nil {
		return Quote{}, err
	}

	entry, ok := resp[id]
	if !ok {
		return Quote{}, fmt.Errorf("coingecko: %s missing from response: %w", id, ErrNoPrice)
	}
	price, ok := entry[cur]
	if !ok {
		return Quote{}, fmt.Errorf("coingecko: no %s price for %s: %w", cur, id, ErrNoPrice)
	}
	return Quote{
		Price:     price,
		Change24h: entry[cur+"_24h_change"],
		Source:    "coingecko",
	}, nil
}
