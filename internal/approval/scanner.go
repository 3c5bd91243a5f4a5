// Package approval finds and revokes active ERC20 allowances of a wallet.
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/matrixise/walletfolio/internal/blockchain"
)

const unknownSymbol = "UNKNOWN"

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// TokenApproval is one active allowance granted by the wallet.
type TokenApproval struct {
	TokenAddress       string `json:"token_address"`
	TokenSymbol        string `json:"token_symbol"`
	TokenName          string `json:"token_name"`
	TokenLogo          string `json:"token_logo,omitempty"`
	Spender            string `json:"spender"`
	SpenderName        string `json:"spender_name"`
	Allowance          string `json:"allowance"`
	AllowanceFormatted string `json:"allowance_formatted"`
	Network            string `json:"network"`
	Unlimited          bool   `json:"unlimited"`
	Decimals           uint8  `json:"decimals"`
}

// Chain is the on-chain capability the scanner needs.
type Chain interface {
	TokenBalances(ctx context.Context, owner common.Address) ([]blockchain.TokenBalance, error)
	TokenMetadata(ctx context.Context, token common.Address) (blockchain.TokenMetadata, error)
	Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error)
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)
	Approve(ctx context.Context, signer *bind.TransactOpts, token, spender common.Address, amount *big.Int) (*types.Transaction, error)
	WaitConfirmed(ctx context.Context, tx *types.Transaction) error
}

// PairRecorder counts allowance lookups.
type PairRecorder interface {
	ObserveApprovalPair(err error)
}

// Scanner checks held tokens against spenders and keeps the latest result
// per wallet.
type Scanner struct {
	chain    Chain
	registry *Registry
	network  string
	recorder PairRecorder
	logger   *slog.Logger

	mu        sync.Mutex
	approvals map[string][]TokenApproval
}

// NewScanner creates a scanner. registry and recorder may be nil.
func NewScanner(chain Chain, registry *Registry, network string, recorder PairRecorder, logger *slog.Logger) *Scanner {
	if registry == nil {
		registry = NewRegistry(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		chain:     chain,
		registry:  registry,
		network:   network,
		recorder:  recorder,
		logger:    logger,
		approvals: make(map[string][]TokenApproval),
	}
}

// Registry returns the spender registry used for labels.
func (s *Scanner) Registry() *Registry {
	return s.registry
}

// Scan returns every non-zero allowance from wallet's held tokens to
// spenders (the registry when nil). Tokens are processed one at a time.
// Failures on a token or a pair are logged and skipped; a failure to list
// holdings yields an empty result and keeps the previous one.
func (s *Scanner) Scan(ctx context.Context, wallet string, spenders []string) []TokenApproval {
	if !common.IsHexAddress(wallet) {
		return []TokenApproval{}
	}
	owner := common.HexToAddress(wallet)
	if spenders == nil {
		spenders = s.registry.Addresses()
	}

	balances, err := s.chain.TokenBalances(ctx, owner)
	if err != nil {
		s.logger.Error("Failed to list token balances for approvals", "wallet", wallet, "error", err)
		return []TokenApproval{}
	}

	approvals := []TokenApproval{}
	checked := make(map[string]struct{})

	for _, tb := range balances {
		if tb.Raw == nil || tb.Raw.Sign() == 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		md, err := s.chain.TokenMetadata(ctx, tb.ContractAddress)
		if err != nil {
			s.logger.Warn("Failed to process token",
				"token", tb.ContractAddress.Hex(),
				"error", err)
			continue
		}
		symbol := md.Symbol
		if symbol == "" {
			symbol = unknownSymbol
		}
		name := md.Name
		if name == "" {
			name = symbol
		}
		token := strings.ToLower(tb.ContractAddress.Hex())

		for _, spender := range spenders {
			if !common.IsHexAddress(strings.TrimSpace(spender)) {
				continue
			}
			spender = strings.ToLower(common.HexToAddress(strings.TrimSpace(spender)).Hex())
			key := token + "-" + spender
			if _, seen := checked[key]; seen {
				continue
			}
			checked[key] = struct{}{}

			allowance, err := s.chain.Allowance(ctx, tb.ContractAddress, owner, common.HexToAddress(spender))
			if s.recorder != nil {
				s.recorder.ObserveApprovalPair(err)
			}
			if err != nil {
				s.logger.Warn("Failed to check approval",
					"token", token,
					"spender", spender,
					"error", err)
				continue
			}
			if allowance == nil || allowance.Sign() <= 0 {
				continue
			}

			approvals = append(approvals, TokenApproval{
				TokenAddress:       token,
				TokenSymbol:        symbol,
				TokenName:          name,
				TokenLogo:          md.Logo,
				Spender:            spender,
				SpenderName:        s.registry.Label(spender),
				Allowance:          allowance.String(),
				AllowanceFormatted: blockchain.FormatUnits(allowance, md.Decimals),
				Network:            s.network,
				Unlimited:          allowance.Cmp(maxUint256) == 0,
				Decimals:           md.Decimals,
			})
		}
	}

	s.mu.Lock()
	s.approvals[walletKey(wallet)] = approvals
	s.mu.Unlock()

	s.logger.Info("Approval scan completed",
		"wallet", wallet,
		"pairs_checked", len(checked),
		"active", len(approvals))
	return append([]TokenApproval(nil), approvals...)
}

// Approvals returns the last scan result for wallet.
func (s *Scanner) Approvals(wallet string) []TokenApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TokenApproval{}, s.approvals[walletKey(wallet)]...)
}

func (s *Scanner) remove(wallet, token string, spenders map[string]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := walletKey(wallet)
	kept := s.approvals[key][:0:0]
	for _, a := range s.approvals[key] {
		if strings.EqualFold(a.TokenAddress, token) && spenders[a.Spender] {
			continue
		}
		kept = append(kept, a)
	}
	s.approvals[key] = kept
}

func walletKey(wallet string) string {
	return strings.ToLower(wallet)
}

// FormatAllowance renders an allowance compactly: 1.50K, 2.00M, 3.10B,
// 4.00 for values of at least one and six decimals below.
func FormatAllowance(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	if raw.Cmp(maxUint256) == 0 {
		return "Unlimited"
	}
	n, err := strconv.ParseFloat(blockchain.FormatUnits(raw, decimals), 64)
	if err != nil {
		return "0"
	}
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.2fB", n/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.2fM", n/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.2fK", n/1e3)
	case n >= 1:
		return fmt.Sprintf("%.2f", n)
	default:
		return fmt.Sprintf("%.6f", n)
	}
}

// Compact returns FormatAllowance for this approval.
func (a TokenApproval) Compact() string {
	raw, ok := new(big.Int).SetString(a.Allowance, 10)
	if !ok {
		return "0"
	}
	return FormatAllowance(raw, a.Decimals)
}
