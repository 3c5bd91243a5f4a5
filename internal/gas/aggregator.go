// Package gas keeps a continuously refreshed view of ETH and Solana network
// fees.
package gas

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/matrixise/walletfolio/internal/broadcast"
	"github.com/matrixise/walletfolio/internal/fallback"
	"github.com/matrixise/walletfolio/internal/httpclient"
)

// Units.
const (
	UnitGwei = "Gwei"
	UnitSOL  = "SOL"
)

// JobName is the scheduler job that refreshes gas prices.
const JobName = "gas-price"

// DefaultInterval between refreshes.
const DefaultInterval = 30 * time.Second

var (
	// DefaultETH is used when every ETH provider fails.
	DefaultETH = EthGas{Slow: 20, Standard: 30, Fast: 40, Unit: UnitGwei}
	// DefaultSolana is used when the Solana RPC fails or reports nothing.
	DefaultSolana = SolanaGas{Price: 0.000005, Unit: UnitSOL}
)

// EthGas holds the three ETH speed tiers in Gwei.
type EthGas struct {
	Slow     float64 `json:"slow"`
	Standard float64 `json:"standard"`
	Fast     float64 `json:"fast"`
	Unit     string  `json:"unit"`
}

// SolanaGas is the average prioritization fee.
type SolanaGas struct {
	Price float64 `json:"price"`
	Unit  string  `json:"unit"`
}

// GasPrice is the published value.
type GasPrice struct {
	ETH       EthGas    `json:"eth"`
	Solana    SolanaGas `json:"solana"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config selects provider endpoints.
type Config struct {
	BlocknativeURL    string
	BlocknativeAPIKey string
	EthGasStationURL  string
	OwlracleURL       string
	Interval          time.Duration
}

// Registrar is the subset of the scheduler used to refresh periodically.
type Registrar interface {
	Every(name string, period time.Duration, runImmediately bool, fn func(context.Context) error) error
}

// Aggregator owns the published gas price.
type Aggregator struct {
	eth      *fallback.Chain[EthGas]
	solana   *fallback.Chain[SolanaGas]
	value    *broadcast.Value[GasPrice]
	interval time.Duration
	logger   *slog.Logger
	lastOK   atomic.Int64
}

// NewAggregator wires the ETH provider chain and the Solana leg.
func NewAggregator(cfg Config, client *httpclient.Client, fees FeeSource, recorder fallback.Recorder, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BlocknativeURL == "" {
		cfg.BlocknativeURL = DefaultBlocknativeURL
	}
	if cfg.EthGasStationURL == "" {
		cfg.EthGasStationURL = DefaultEthGasStationURL
	}
	if cfg.OwlracleURL == "" {
		cfg.OwlracleURL = DefaultOwlracleURL
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}

	ethChain := fallback.New("gas-eth", DefaultETH, []fallback.Provider[EthGas]{
		blocknativeProvider(client, cfg.BlocknativeURL, cfg.BlocknativeAPIKey),
		ethGasStationProvider(client, cfg.EthGasStationURL),
		owlracleProvider(client, cfg.OwlracleURL),
	}, fallback.WithRecorder[EthGas](recorder), fallback.WithLogger[EthGas](logger))

	solChain := fallback.New("gas-solana", DefaultSolana, []fallback.Provider[SolanaGas]{
		solanaProvider(fees),
	}, fallback.WithRecorder[SolanaGas](recorder), fallback.WithLogger[SolanaGas](logger))

	return &Aggregator{
		eth:    ethChain,
		solana: solChain,
		value: broadcast.NewValue(GasPrice{
			ETH:    EthGas{Unit: UnitGwei},
			Solana: SolanaGas{Unit: UnitSOL},
		}),
		interval: cfg.Interval,
		logger:   logger,
	}
}

// Refresh fetches both legs concurrently and publishes the merged value.
// Each leg falls back to its own default, so Refresh never fails.
func (a *Aggregator) Refresh(ctx context.Context) error {
	var (
		wg  conc.WaitGroup
		eth fallback.Result[EthGas]
		sol fallback.Result[SolanaGas]
	)
	wg.Go(func() { eth = a.eth.Execute(ctx) })
	wg.Go(func() { sol = a.solana.Execute(ctx) })
	wg.Wait()

	now := time.Now()
	a.value.Publish(GasPrice{ETH: eth.Value, Solana: sol.Value, UpdatedAt: now})
	a.lastOK.Store(now.UnixMilli())

	a.logger.Debug("Gas prices refreshed",
		"eth_source", eth.Source,
		"solana_source", sol.Source,
		"eth_standard", eth.Value.Standard,
		"solana_price", sol.Value.Price)
	return nil
}

// Schedule refreshes immediately and then at the configured interval.
func (a *Aggregator) Schedule(r Registrar) error {
	return r.Every(JobName, a.interval, true, a.Refresh)
}

// Current returns the latest published value.
func (a *Aggregator) Current() GasPrice {
	return a.value.Load()
}

// Subscribe returns a handle that receives the current value and every
// refresh.
func (a *Aggregator) Subscribe() *broadcast.Subscription[GasPrice] {
	return a.value.Subscribe()
}

// LastRefresh reports when the last refresh completed (zero if never).
func (a *Aggregator) LastRefresh() time.Time {
	ms := a.lastOK.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Interval returns the refresh period.
func (a *Aggregator) Interval() time.Duration {
	return a.interval
}
