package pricing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matrixise/walletfolio/internal/fallback"
)

// Service looks up a token price through CoinGecko first, then DEX Screener.
type Service struct {
	gecko    *CoinGecko
	dex      *DexScreener
	currency string
	recorder fallback.Recorder
	logger   *slog.Logger
}

// NewService creates a price service quoting in currency. dex may be nil.
func NewService(gecko *CoinGecko, dex *DexScreener, currency string, recorder fallback.Recorder, logger *slog.Logger) *Service {
	if currency == "" {
		currency = "usd"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{gecko: gecko, dex: dex, currency: currency, recorder: recorder, logger: logger}
}

// Currency returns the fiat currency prices are quoted in.
func (s *Service) Currency() string {
	return s.currency
}

// Price returns a positive quote for the token or ErrNoPrice when every
// source failed. contract may be empty for native assets.
func (s *Service) Price(ctx context.Context, symbol, contract string) (Quote, error) {
	providers := []fallback.Provider[Quote]{
		{Name: "coingecko", Fetch: func(ctx context.Context) (Quote, error) {
			return s.gecko.Quote(ctx, symbol, s.currency)
		}},
	}
	if s.dex != nil && contract != "" {
		providers = append(providers, fallback.Provider[Quote]{Name: "dexscreener", Fetch: func(ctx context.Context) (Quote, error) {
			return s.dex.Quote(ctx, contract, s.currency)
		}})
	}

	chain := fallback.New("price", Quote{}, providers,
		fallback.WithValidator(func(q Quote) bool { return q.Price > 0 }),
		fallback.WithRecorder[Quote](s.recorder),
		fallback.WithLogger[Quote](s.logger.With("symbol", symbol)))

	res := chain.Execute(ctx)
	if res.Defaulted {
		return Quote{}, fmt.Errorf("%s: %w", symbol, ErrNoPrice)
	}
	return res.Value, nil
}
