package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const defaultDecimals = 18

// TokenBalance is one ERC20 holding reported by alchemy_getTokenBalances.
type TokenBalance struct {
	ContractAddress common.Address
	Raw             *big.Int
}

// TokenMetadata is the token description from alchemy_getTokenMetadata.
type TokenMetadata struct {
	Name     string
	Symbol   string
	Decimals uint8
	Logo     string
}

// Transfer is one entry from alchemy_getAssetTransfers.
type Transfer struct {
	Hash      string
	From      string
	To        string
	Value     float64
	HasValue  bool
	Asset     string
	Category  string
	BlockNum  uint64
	Timestamp time.Time
}

type tokenBalancesResult struct {
	Address       string `json:"address"`
	TokenBalances []struct {
		ContractAddress string  `json:"contractAddress"`
		TokenBalance    string  `json:"tokenBalance"`
		Error           *string `json:"error"`
	} `json:"tokenBalances"`
}

type tokenMetadataResult struct {
	Name     *string `json:"name"`
	Symbol   *string `json:"symbol"`
	Decimals *int    `json:"decimals"`
	Logo     *string `json:"logo"`
}

type assetTransfersResult struct {
	Transfers []struct {
		BlockNum string   `json:"blockNum"`
		Hash     string   `json:"hash"`
		From     string   `json:"from"`
		To       *string  `json:"to"`
		Value    *float64 `json:"value"`
		Asset    *string  `json:"asset"`
		Category string   `json:"category"`
		Metadata struct {
			BlockTimestamp string `json:"blockTimestamp"`
		} `json:"metadata"`
	} `json:"transfers"`
}

// TokenBalances lists every ERC20 balance of owner, zero balances included.
func (c *Client) TokenBalances(ctx context.Context, owner common.Address) ([]TokenBalance, error) {
	var res tokenBalancesResult
	err := c.do(ctx, func(rpcCtx context.Context, ec *ethclient.Client) error {
		return ec.Client().CallContext(rpcCtx, &res, "alchemy_getTokenBalances", owner, "erc20")
	})
	if err != nil {
		return nil, fmt.Errorf("alchemy_getTokenBalances: %w", err)
	}

	out := make([]TokenBalance, 0, len(res.TokenBalances))
	for _, tb := range res.TokenBalances {
		if tb.Error != nil {
			continue
		}
		raw, err := ParseHexQuantity(tb.TokenBalance)
		if err != nil {
			continue
		}
		out = append(out, TokenBalance{
			ContractAddress: common.HexToAddress(tb.ContractAddress),
			Raw:             raw,
		})
	}
	return out, nil
}

// TokenMetadata describes token. Missing decimals default to 18.
func (c *Client) TokenMetadata(ctx context.Context, token common.Address) (TokenMetadata, error) {
	var res tokenMetadataResult
	err := c.do(ctx, func(rpcCtx context.Context, ec *ethclient.Client) error {
		return ec.Client().CallContext(rpcCtx, &res, "alchemy_getTokenMetadata", token)
	})
	if err != nil {
		return TokenMetadata{}, fmt.Errorf("alchemy_getTokenMetadata: %w", err)
	}

	md := TokenMetadata{Decimals: defaultDecimals}
	if res.Name != nil {
		md.Name = *res.Name
	}
	if res.Symbol != nil {
		md.Symbol = *res.Symbol
	}
	if res.Decimals != nil && *res.Decimals >= 0 && *res.Decimals <= 255 {
		md.Decimals = uint8(*res.Decimals)
	}
	if res.Logo != nil {
		md.Logo = *res.Logo
	}
	return md, nil
}

// AssetTransfers returns the wallet's outgoing and incoming transfers,
// newest first, capped at limit per direction.
func (c *Client) AssetTransfers(ctx context.Context, owner common.Address, limit int) ([]Transfer, error) {
	sent, err := c.assetTransfers(ctx, "fromAddress", owner, limit)
	if err != nil {
		return nil, err
	}
	received, err := c.assetTransfers(ctx, "toAddress", owner, limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(sent)+len(received))
	var out []Transfer
	for _, t := range append(sent, received...) {
		key := t.Hash + "|" + t.From + "|" + t.To + "|" + t.Asset
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].BlockNum > out[j].BlockNum })
	return out, nil
}

func (c *Client) assetTransfers(ctx context.Context, direction string, owner common.Address, limit int) ([]Transfer, error) {
	params := map[string]any{
		"fromBlock":        "0x0",
		"toBlock":          "latest",
		direction:          owner,
		"category":         []string{"external", "erc20", "erc721", "erc1155"},
		"withMetadata":     true,
		"excludeZeroValue": true,
		"maxCount":         fmt.Sprintf("0x%x", limit),
		"order":            "desc",
	}

	var res assetTransfersResult
	err := c.do(ctx, func(rpcCtx context.Context, ec *ethclient.Client) error {
		return ec.Client().CallContext(rpcCtx, &res, "alchemy_getAssetTransfers", params)
	})
	if err != nil {
		return nil, fmt.Errorf("alchemy_getAssetTransfers: %w", err)
	}

	out := make([]Transfer, 0, len(res.Transfers))
	for _, r := range res.Transfers {
		t := Transfer{
			Hash:     r.Hash,
			From:     r.From,
			Category: r.Category,
		}
		if r.To != nil {
			t.To = *r.To
		}
		if r.Value != nil {
			t.Value = *r.Value
			t.HasValue = true
		}
		if r.Asset != nil {
			t.Asset = *r.Asset
		}
		if n, err := ParseHexQuantity(r.BlockNum); err == nil {
			t.BlockNum = n.Uint64()
		}
		if ts, err := time.Parse(time.RFC3339, r.Metadata.BlockTimestamp); err == nil {
			t.Timestamp = ts
		}
		out = append(out, t)
	}
	return out, nil
}
