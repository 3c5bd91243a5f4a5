package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABI = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"_owner","type":"address"},{"name":"_spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"payable":false,"stateMutability":"view","type":"function"},
	{"constant":false,"inputs":[{"name":"_spender","type":"address"},{"name":"_value","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"payable":false,"stateMutability":"nonpayable","type":"function"}
]`

func (c *Client) contract(token common.Address, ec *ethclient.Client) *bind.BoundContract {
	return bind.NewBoundContract(token, c.parsedABI, ec, ec, ec)
}

// Allowance returns how much spender may transfer from owner.
func (c *Client) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	var out []any
	err := c.do(ctx, func(rpcCtx context.Context, ec *ethclient.Client) error {
		out = nil
		return c.contract(token, ec).Call(&bind.CallOpts{Context: rpcCtx}, &out, "allowance", owner, spender)
	})
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("allowance: unexpected output type %T", out[0])
	}
	return v, nil
}

// TokenDecimals reads decimals() directly from the contract.
func (c *Client) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	var out []any
	err := c.do(ctx, func(rpcCtx context.Context, ec *ethclient.Client) error {
		out = nil
		return c.contract(token, ec).Call(&bind.CallOpts{Context: rpcCtx}, &out, "decimals")
	})
	if err != nil {
		return 0, fmt.Errorf("decimals: %w", err)
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected output type %T", out[0])
	}
	return d, nil
}

// Approve submits approve(spender, amount) signed by signer.
func (c *Client) Approve(ctx context.Context, signer *bind.TransactOpts, token, spender common.Address, amount *big.Int) (*types.Transaction, error) {
	if signer == nil {
		return nil, fmt.Errorf("approve: no signer configured")
	}
	opts := *signer
	opts.Context = ctx

	var tx *types.Transaction
	err := c.failoverClient.Do(ctx, func(ec *ethclient.Client) error {
		var err error
		tx, err = c.contract(token, ec).Transact(&opts, "approve", spender, amount)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("approve: %w", err)
	}
	return tx, nil
}

// WaitConfirmed blocks until tx is mined and fails when it reverted.
func (c *Client) WaitConfirmed(ctx context.Context, tx *types.Transaction) error {
	var receipt *types.Receipt
	err := c.failoverClient.Do(ctx, func(ec *ethclient.Client) error {
		var err error
		receipt, err = bind.WaitMined(ctx, ec, tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted", tx.Hash().Hex())
	}
	return nil
}
