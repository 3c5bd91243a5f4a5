// Package session tracks the connected wallet and the active chain.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/matrixise/walletfolio/internal/broadcast"
)

// Clearer drops a wallet's cached data.
type Clearer interface {
	Clear(ctx context.Context, wallet string) error
}

// Session holds the current wallet address ("" when disconnected) and chain
// id. Watchers subscribe instead of polling.
type Session struct {
	address *broadcast.Value[string]
	chain   *broadcast.Value[uint64]
	cache   Clearer
	logger  *slog.Logger
}

// New creates a disconnected session on chainID. cache may be nil.
func New(chainID uint64, cache Clearer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		address: broadcast.NewValue(""),
		chain:   broadcast.NewValue(chainID),
		cache:   cache,
		logger:  logger,
	}
}

// Connect makes address the current wallet.
func (s *Session) Connect(address string) error {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid wallet address %q", address)
	}
	address = strings.ToLower(common.HexToAddress(address).Hex())
	if s.address.Load() == address {
		return nil
	}
	s.address.Publish(address)
	s.logger.Info("Wallet connected", "address", address)
	return nil
}

// Disconnect forgets the current wallet and clears its cached data.
func (s *Session) Disconnect(ctx context.Context) error {
	prev := s.address.Load()
	if prev == "" {
		return nil
	}
	s.address.Publish("")
	s.logger.Info("Wallet disconnected", "address", prev)

	if s.cache == nil {
		return nil
	}
	if err := s.cache.Clear(ctx, prev); err != nil {
		return fmt.Errorf("clear cache of %s: %w", prev, err)
	}
	return nil
}

// SwitchChain changes the active chain id.
func (s *Session) SwitchChain(chainID uint64) {
	if s.chain.Load() == chainID {
		return
	}
	s.chain.Publish(chainID)
	s.logger.Info("Chain changed", "chain_id", chainID)
}

// Address returns the connected wallet, or "".
func (s *Session) Address() string {
	return s.address.Load()
}

// Connected reports whether a wallet is connected.
func (s *Session) Connected() bool {
	return s.address.Load() != ""
}

// ChainID returns the active chain id.
func (s *Session) ChainID() uint64 {
	return s.chain.Load()
}

// WatchAddress subscribes to wallet changes, starting with the current one.
func (s *Session) WatchAddress() *broadcast.Subscription[string] {
	return s.address.Subscribe()
}

// WatchChain subscribes to chain changes, starting with the current one.
func (s *Session) WatchChain() *broadcast.Subscription[uint64] {
	return s.chain.Subscribe()
}
