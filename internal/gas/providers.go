package gas

import (
	"context"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/matrixise/walletfolio/internal/fallback"
	"github.com/matrixise/walletfolio/internal/httpclient"
)

// Default provider endpoints.
const (
	DefaultBlocknativeURL   = "https://api.blocknative.com/gasprices/blockprices"
	DefaultEthGasStationURL = "https://ethgasstation.info/api/ethgasAPI.json"
	DefaultOwlracleURL      = "https://api.owlracle.info/v1/eth"
	DefaultSolanaRPCURL     = "https://api.mainnet-beta.solana.com"
)

type blocknativeResponse struct {
	BlockPrices []struct {
		EstimatedPrices []struct {
			Confidence float64 `json:"confidence"`
			Price      float64 `json:"price"`
		} `json:"estimatedPrices"`
	} `json:"blockPrices"`
}

type ethGasStationResponse struct {
	Safe    float64 `json:"safe"`
	Average float64 `json:"average"`
	Fast    float64 `json:"fast"`
}

type owlracleResponse struct {
	Speeds []struct {
		Acceptance float64 `json:"acceptance"`
		GasPrice   float64 `json:"gasPrice"`
	} `json:"speeds"`
}

func blocknativeProvider(client *httpclient.Client, url, apiKey string) fallback.Provider[EthGas] {
	return fallback.Provider[EthGas]{
		Name: "blocknative",
		Fetch: func(ctx context.Context) (EthGas, error) {
			var headers map[string]string
			if apiKey != "" {
				headers = map[string]string{"Authorization": apiKey}
			}
			var resp blocknativeResponse
			if err := client.Get(ctx, url, nil, headers, &resp); err != nil {
				return EthGas{}, err
			}
			if len(resp.BlockPrices) == 0 {
				return EthGas{}, fmt.Errorf("blocknative: no block prices: %w", fallback.ErrEmpty)
			}
			prices := resp.BlockPrices[0].EstimatedPrices
			if len(prices) < 3 {
				return EthGas{}, fmt.Errorf("blocknative: %d estimated prices: %w", len(prices), fallback.ErrEmpty)
			}
			return EthGas{
				Slow:     math.Round(prices[0].Price),
				Standard: math.Round(prices[1].Price),
				Fast:     math.Round(prices[2].Price),
				Unit:     UnitGwei,
			}, nil
		},
	}
}

// ethGasStationProvider reports in tenths of Gwei.
func ethGasStationProvider(client *httpclient.Client, url string) fallback.Provider[EthGas] {
	return fallback.Provider[EthGas]{
		Name: "ethgasstation",
		Fetch: func(ctx context.Context) (EthGas, error) {
			var resp ethGasStationResponse
			if err := client.Get(ctx, url, nil, nil, &resp); err != nil {
				return EthGas{}, err
			}
			if resp.Safe == 0 {
				return EthGas{}, fmt.Errorf("ethgasstation: missing safe price: %w", fallback.ErrEmpty)
			}
			return EthGas{
				Slow:     orDefault(math.Round(resp.Safe/10), DefaultETH.Slow),
				Standard: orDefault(math.Round(resp.Average/10), DefaultETH.Standard),
				Fast:     orDefault(math.Round(resp.Fast/10), DefaultETH.Fast),
				Unit:     UnitGwei,
			}, nil
		},
	}
}

func owlracleProvider(client *httpclient.Client, url string) fallback.Provider[EthGas] {
	return fallback.Provider[EthGas]{
		Name: "owlracle",
		Fetch: func(ctx context.Context) (EthGas, error) {
			var resp owlracleResponse
			if err := client.Get(ctx, url, nil, nil, &resp); err != nil {
				return EthGas{}, err
			}
			if resp.Speeds == nil {
				return EthGas{}, fmt.Errorf("owlracle: missing speeds: %w", fallback.ErrEmpty)
			}
			speed := func(i int, def float64) float64 {
				if i >= len(resp.Speeds) {
					return def
				}
				return math.Round(orDefault(resp.Speeds[i].GasPrice, def))
			}
			return EthGas{
				Slow:     speed(0, DefaultETH.Slow),
				Standard: speed(1, DefaultETH.Standard),
				Fast:     speed(2, DefaultETH.Fast),
				Unit:     UnitGwei,
			}, nil
		},
	}
}

// FeeSource reports recent prioritization fees. *rpc.Client satisfies it.
type FeeSource interface {
	GetRecentPrioritizationFees(ctx context.Context, accounts solana.PublicKeySlice) ([]rpc.PriorizationFeeResult, error)
}

// solanaProvider averages recent prioritization fees and scales them by
// LAMPORTS_PER_SOL. An empty sample set or a zero average is a failure so
// the chain falls back to the default fee.
func solanaProvider(src FeeSource) fallback.Provider[SolanaGas] {
	return fallback.Provider[SolanaGas]{
		Name: "solana-rpc",
		Fetch: func(ctx context.Context) (SolanaGas, error) {
			fees, err := src.GetRecentPrioritizationFees(ctx, nil)
			if err != nil {
				return SolanaGas{}, fmt.Errorf("getRecentPrioritizationFees: %w", err)
			}
			if len(fees) == 0 {
				return SolanaGas{}, fmt.Errorf("solana: no fee samples: %w", fallback.ErrEmpty)
			}

			var sum float64
			for _, f := range fees {
				sum += float64(f.PrioritizationFee)
			}
			price := sum / float64(len(fees)) / float64(solana.LAMPORTS_PER_SOL)
			if price == 0 {
				return SolanaGas{}, fmt.Errorf("solana: zero average fee: %w", fallback.ErrEmpty)
			}
			return SolanaGas{Price: price, Unit: UnitSOL}, nil
		},
	}
}

func orDefault(v, def float64) float64 {
	if v == 0 || math.IsNaN(v) {
		return def
	}
	return v
}
