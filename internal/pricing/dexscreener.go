package pricing

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// DefaultDexScreenerURL is the public API root.
const DefaultDexScreenerURL = "https://api.dexscreener.com"

type dexPair struct {
	BaseToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd  string `json:"priceUsd"`
	Liquidity *struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	PriceChange map[string]float64 `json:"priceChange"`
}

// DexScreener quotes ERC20 tokens by contract address, in USD only.
type DexScreener struct {
	baseURL string
	chainID string
	fetcher fetcher
}

// NewDexScreener creates a client for a DEX Screener chain id ("ethereum").
func NewDexScreener(baseURL, chainID string, timeout time.Duration, logger *slog.Logger) *DexScreener {
	if baseURL == "" {
		baseURL = DefaultDexScreenerURL
	}
	if chainID == "" {
		chainID = "ethereum"
	}
	return &DexScreener{
		baseURL: strings.TrimRight(baseURL, "/"),
		chainID: chainID,
		fetcher: newFetcher(timeout, logger),
	}
}

// Quote returns the price of the most liquid pair whose base token is
// address.
func (d *DexScreener) Quote(ctx context.Context, address, currency string) (Quote, error) {
	if address == "" {
		return Quote{}, fmt.Errorf("dexscreener: no contract address: %w", ErrNoPrice)
	}
	if !strings.EqualFold(currency, "usd") {
		return Quote{}, fmt.Errorf("dexscreener: unsupported currency %s: %w", currency, ErrNoPrice)
	}

	var pairs []dexPair
	requestURL := fmt.Sprintf("%s/tokens/v1/%s/%s", d.baseURL, d.chainID, address)
	if err := d.fetcher.getJSON(ctx, requestURL, &pairs); err != nil {
		return Quote{}, err
	}

	var (
		best      *dexPair
		bestDepth = -1.0
	)
	for i := range pairs {
		p := &pairs[i]
		if !strings.EqualFold(p.BaseToken.Address, address) || p.PriceUsd == "" {
			continue
		}
		depth := 0.0
		if p.Liquidity != nil {
			depth = p.Liquidity.Usd
		}
		if depth > bestDepth {
			best, bestDepth = p, depth
		}
	}
	if best == nil {
		return Quote{}, fmt.Errorf("dexscreener: no pair for %s: %w", address, ErrNoPrice)
	}

	price, err := strconv.ParseFloat(best.PriceUsd, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("dexscreener: invalid price %q: %w", best.PriceUsd, err)
	}
	return Quote{Price: price, Change24h: best.PriceChange["h24"], Source: "dexscreener"}, nil
}
