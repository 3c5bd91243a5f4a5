// Package asset values the tokens held by a wallet.
package asset

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/matrixise/walletfolio/internal/blockchain"
	"github.com/matrixise/walletfolio/internal/pricing"
)

const (
	nativeSymbol   = "ETH"
	nativeName     = "Ethereum"
	nativeDecimals = 18
)

// Asset is one priced holding.
type Asset struct {
	Name            string  `json:"name"`
	Symbol          string  `json:"symbol"`
	ContractAddress string  `json:"contract_address,omitempty"`
	Network         string  `json:"network"`
	Balance         string  `json:"balance"`
	Price           float64 `json:"price"`
	Value           float64 `json:"value"`
	// Percentage is the share of the portfolio total. It is only
	// meaningful in a final snapshot.
	Percentage  float64 `json:"percentage"`
	Change      float64 `json:"change"`
	ChangeValue float64 `json:"change_value"`
	Logo        string  `json:"logo,omitempty"`
}

// Snapshot is published while a portfolio loads.
type Snapshot struct {
	Assets []Asset
	Final  bool
}

// Portfolio is the result of a complete load.
type Portfolio struct {
	Assets     []Asset `json:"assets"`
	TotalValue float64 `json:"total_value"`
	// NativeBalance is the wallet's ETH balance as a decimal string.
	NativeBalance string `json:"native_balance"`
}

// ChainReader is the wallet state the pricer needs.
type ChainReader interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenBalances(ctx context.Context, owner common.Address) ([]blockchain.TokenBalance, error)
	TokenMetadata(ctx context.Context, token common.Address) (blockchain.TokenMetadata, error)
}

// PriceSource quotes a token. It returns an error when no price is known.
type PriceSource interface {
	Price(ctx context.Context, symbol, contract string) (pricing.Quote, error)
}

// Pricer loads and values a wallet's holdings.
type Pricer struct {
	chain   ChainReader
	prices  PriceSource
	network string
	logger  *slog.Logger
}

// NewPricer creates a pricer.
func NewPricer(chain ChainReader, prices PriceSource, network string, logger *slog.Logger) *Pricer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pricer{chain: chain, prices: prices, network: network, logger: logger}
}

// Load values every non-zero holding of wallet, one token at a time, calling
// onPartial after each token and once more with the normalized result.
// Failing to list holdings aborts the load; a failing token is skipped or
// valued at zero.
func (p *Pricer) Load(ctx context.Context, wallet string, onPartial func(Snapshot)) (Portfolio, error) {
	if !common.IsHexAddress(wallet) {
		return Portfolio{}, fmt.Errorf("invalid wallet address %q", wallet)
	}
	owner := common.HexToAddress(wallet)
	publish := func(assets []Asset, final bool) {
		if onPartial != nil {
			onPartial(Snapshot{Assets: append([]Asset(nil), assets...), Final: final})
		}
	}

	var (
		assets        []Asset
		nativeBalance = "0"
	)

	// The native balance is optional: a failure here only drops ETH.
	if wei, err := p.chain.NativeBalance(ctx, owner); err != nil {
		p.logger.Warn("Native balance unavailable", "wallet", wallet, "error", err)
	} else {
		nativeBalance = decimal.NewFromBigInt(wei, -nativeDecimals).String()
		if wei.Sign() > 0 {
			assets = append(assets, p.value(ctx, Asset{
				Name:    nativeName,
				Symbol:  nativeSymbol,
				Network: p.network,
			}, wei, nativeDecimals))
			publish(assets, false)
		}
	}

	balances, err := p.chain.TokenBalances(ctx, owner)
	if err != nil {
		return Portfolio{}, fmt.Errorf("list token balances: %w", err)
	}

	for _, tb := range balances {
		if tb.Raw == nil || tb.Raw.Sign() == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Portfolio{}, err
		}

		md, err := p.chain.TokenMetadata(ctx, tb.ContractAddress)
		if err != nil {
			p.logger.Warn("Token metadata unavailable, skipping",
				"wallet", wallet,
				"token", tb.ContractAddress.Hex(),
				"error", err)
			continue
		}

		assets = append(assets, p.value(ctx, Asset{
			Name:            md.Name,
			Symbol:          md.Symbol,
			ContractAddress: tb.ContractAddress.Hex(),
			Network:         p.network,
			Logo:            md.Logo,
		}, tb.Raw, md.Decimals))
		publish(assets, false)
	}

	total := Normalize(assets)
	publish(assets, true)

	p.logger.Info("Portfolio valued",
		"wallet", wallet,
		"assets", len(assets),
		"total_value", total)

	return Portfolio{Assets: assets, TotalValue: total, NativeBalance: nativeBalance}, nil
}

// value fills balance, price and value. A failed price lookup leaves both at 0.
func (p *Pricer) value(ctx context.Context, a Asset, raw *big.Int, decimals uint8) Asset {
	balance := decimal.NewFromBigInt(raw, -int32(decimals))
	a.Balance = balance.String()

	quote, err := p.prices.Price(ctx, a.Symbol, a.ContractAddress)
	if err != nil {
		p.logger.Warn("Price lookup failed, valuing at zero", "symbol", a.Symbol, "error", err)
		return a
	}

	value := balance.Mul(decimal.NewFromFloat(quote.Price))
	a.Price = quote.Price
	a.Value = value.InexactFloat64()
	a.Change = quote.Change24h
	if quote.Change24h > -100 {
		// Absolute change over 24h derived from the current value.
		prev := value.Div(decimal.NewFromFloat(1 + quote.Change24h/100))
		a.ChangeValue = value.Sub(prev).InexactFloat64()
	}
	return a
}

// Normalize sets every asset's percentage to value/total*100 (0 when the
// total is 0) and returns the total.
func Normalize(assets []Asset) float64 {
	var total float64
	for _, a := range assets {
		total += a.Value
	}
	for i := range assets {
		if total == 0 {
			assets[i].Percentage = 0
			continue
		}
		assets[i].Percentage = assets[i].Value / total * 100
	}
	return total
}
