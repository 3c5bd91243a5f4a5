package approval

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"
)

// RevokeError is returned when a revocation was rejected, failed to submit
// or reverted. Spenders lists the allowances that are still active.
type RevokeError struct {
	Token    string
	Spenders []string
	Err      error
}

func (e *RevokeError) Error() string {
	if len(e.Spenders) == 1 {
		return fmt.Sprintf("failed to revoke approval of %s for %s: %v", e.Token, e.Spenders[0], e.Err)
	}
	return fmt.Sprintf("failed to revoke %d approvals of %s: %v", len(e.Spenders), e.Token, e.Err)
}

func (e *RevokeError) Unwrap() error {
	return e.Err
}

// Revoke sets the allowance of spender on token to zero and waits for the
// transaction to be mined. On success the pair leaves the wallet's list.
func (s *Scanner) Revoke(ctx context.Context, signer *bind.TransactOpts, wallet, token, spender string) error {
	token, spender = strings.ToLower(token), strings.ToLower(spender)
	if err := checkAddresses(token, spender); err != nil {
		return &RevokeError{Token: token, Spenders: []string{spender}, Err: err}
	}

	tx, err := s.chain.Approve(ctx, signer, common.HexToAddress(token), common.HexToAddress(spender), new(big.Int))
	if err != nil {
		return &RevokeError{Token: token, Spenders: []string{spender}, Err: err}
	}
	s.logger.Info("Revoke transaction sent", "token", token, "spender", spender, "tx", tx.Hash().Hex())

	if err := s.chain.WaitConfirmed(ctx, tx); err != nil {
		return &RevokeError{Token: token, Spenders: []string{spender}, Err: err}
	}
	s.logger.Info("Approval revoked", "token", token, "spender", spender)

	s.remove(wallet, token, map[string]bool{spender: true})
	return nil
}

// RevokeAllForToken submits one revocation per spender in nonce order, then
// waits for all confirmations concurrently. Submission stops at the first
// failure: later nonces would sit behind the gap and never mine. Confirmed
// spenders leave the list even when another revocation failed.
func (s *Scanner) RevokeAllForToken(ctx context.Context, signer *bind.TransactOpts, wallet, token string, spenders []string) error {
	token = strings.ToLower(token)
	if len(spenders) == 0 {
		return nil
	}
	normalized := make([]string, len(spenders))
	for i, sp := range spenders {
		normalized[i] = strings.ToLower(sp)
	}
	if err := checkAddresses(append([]string{token}, normalized...)...); err != nil {
		return &RevokeError{Token: token, Spenders: normalized, Err: err}
	}
	if signer == nil {
		return &RevokeError{Token: token, Spenders: normalized, Err: fmt.Errorf("no signer configured")}
	}

	nonce, err := s.chain.PendingNonce(ctx, signer.From)
	if err != nil {
		return &RevokeError{Token: token, Spenders: normalized, Err: err}
	}

	var (
		txs       []*types.Transaction
		submitErr error
	)
	for i, spender := range normalized {
		opts := *signer
		opts.Nonce = new(big.Int).SetUint64(nonce + uint64(i))
		tx, err := s.chain.Approve(ctx, &opts, common.HexToAddress(token), common.HexToAddress(spender), new(big.Int))
		if err != nil {
			submitErr = fmt.Errorf("submit %s: %w", spender, err)
			break
		}
		s.logger.Info("Revoke transaction sent", "token", token, "spender", spender, "tx", tx.Hash().Hex())
		txs = append(txs, tx)
	}

	confirmed := make([]bool, len(normalized))
	var wait errgroup.Group
	for i, tx := range txs {
		wait.Go(func() error {
			if err := s.chain.WaitConfirmed(ctx, tx); err != nil {
				return fmt.Errorf("confirm %s: %w", normalized[i], err)
			}
			confirmed[i] = true
			return nil
		})
	}
	waitErr := wait.Wait()

	done := make(map[string]bool)
	var pending []string
	for i, spender := range normalized {
		if confirmed[i] {
			done[spender] = true
			continue
		}
		pending = append(pending, spender)
	}
	s.remove(wallet, token, done)

	if len(pending) > 0 {
		err := submitErr
		if err == nil {
			err = waitErr
		}
		s.logger.Warn("Revoke all finished with failures",
			"token", token,
			"revoked", len(done),
			"failed", len(pending),
			"error", err)
		return &RevokeError{Token: token, Spenders: pending, Err: err}
	}

	s.logger.Info("All approvals revoked", "token", token, "count", len(done))
	return nil
}

func checkAddresses(addrs ...string) error {
	for _, a := range addrs {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("invalid address %q", a)
		}
	}
	return nil
}
