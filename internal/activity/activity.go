// Package activity turns raw asset transfers into the transaction records
// shown alongside a portfolio.
package activity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/matrixise/walletfolio/internal/blockchain"
)

// Directions of a transaction relative to the wallet.
const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
	DirectionSelf     = "self"
)

const defaultLimit = 50

// Transaction is one wallet activity record.
type Transaction struct {
	Hash      string    `json:"hash"`
	Type      string    `json:"type"`
	Direction string    `json:"direction"`
	Date      time.Time `json:"date"`
	Amount    string    `json:"amount"`
	Asset     string    `json:"token,omitempty"`
	Category  string    `json:"category"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Network   string    `json:"network,omitempty"`
	Block     uint64    `json:"block"`
}

// TransferSource lists asset transfers for a wallet.
type TransferSource interface {
	AssetTransfers(ctx context.Context, owner common.Address, limit int) ([]blockchain.Transfer, error)
}

// Loader maps transfers to transactions.
type Loader struct {
	source  TransferSource
	network string
	limit   int
}

// NewLoader creates a loader. A non-positive limit uses 50 per direction.
func NewLoader(source TransferSource, network string, limit int) *Loader {
	if limit <= 0 {
		limit = defaultLimit
	}
	return &Loader{source: source, network: network, limit: limit}
}

// Load returns the wallet's transactions, newest first.
func (l *Loader) Load(ctx context.Context, wallet string) ([]Transaction, error) {
	if !common.IsHexAddress(wallet) {
		return []Transaction{}, nil
	}
	transfers, err := l.source.AssetTransfers(ctx, common.HexToAddress(wallet), l.limit)
	if err != nil {
		return nil, fmt.Errorf("load transfers: %w", err)
	}

	out := make([]Transaction, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, l.toTransaction(wallet, t))
	}
	return out, nil
}

func (l *Loader) toTransaction(wallet string, t blockchain.Transfer) Transaction {
	dir := Direction(wallet, t.From, t.To)
	tx := Transaction{
		Hash:      t.Hash,
		Type:      typeLabel(dir, t.Category),
		Direction: dir,
		Date:      t.Timestamp,
		Asset:     t.Asset,
		Category:  t.Category,
		From:      t.From,
		To:        t.To,
		Network:   l.network,
		Block:     t.BlockNum,
	}
	if t.HasValue {
		tx.Amount = strconv.FormatFloat(t.Value, 'f', -1, 64)
	}
	return tx
}

// Direction classifies a transfer relative to wallet.
func Direction(wallet, from, to string) string {
	fromSelf := strings.EqualFold(wallet, from)
	toSelf := strings.EqualFold(wallet, to)
	switch {
	case fromSelf && toSelf:
		return DirectionSelf
	case fromSelf:
		return DirectionSent
	default:
		return DirectionReceived
	}
}

func typeLabel(direction, category string) string {
	switch category {
	case "erc721", "erc1155":
		if direction == DirectionSent {
			return "NFT Sent"
		}
		return "NFT Received"
	}
	switch direction {
	case DirectionSent:
		return "Sent"
	case DirectionSelf:
		return "Self Transfer"
	default:
		return "Received"
	}
}
