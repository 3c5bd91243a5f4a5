package blockchain

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const rpcTimeout = 10 * time.Second

// Client reads wallet state from an Alchemy-compatible EVM node and submits
// allowance revocations. All calls go through the failover client.
type Client struct {
	failoverClient *FailoverClient
	parsedABI      abi.ABI
	network        string
}

// NewClient creates a blockchain client with failover support. network is the
// label attached to returned records ("ethereum", "polygon", ...).
func NewClient(rpcURLs []string, network string) (*Client, error) {
	failoverClient, err := NewFailoverClient(rpcURLs)
	if err != nil {
		return nil, err
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		failoverClient.Close()
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}

	return &Client{
		failoverClient: failoverClient,
		parsedABI:      parsedABI,
		network:        network,
	}, nil
}

// Network returns the network label of this client.
func (c *Client) Network() string {
	return c.network
}

// Close closes all RPC client connections
func (c *Client) Close() {
	c.failoverClient.Close()
}

// EndpointsHealth reports per-endpoint health.
func (c *Client) EndpointsHealth() []EndpointHealth {
	return c.failoverClient.Status()
}

// ChainID returns the chain id of the first healthy endpoint.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var id *big.Int
	err := c.do(ctx, func(rpcCtx context.Context, ec *ethclient.Client) error {
		var err error
		id, err = ec.ChainID(rpcCtx)
		return err
	})
	return id, err
}

// NativeBalance returns the wallet's balance in wei.
func (c *Client) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	var bal *big.Int
	err := c.do(ctx, func(rpcCtx context.Context, ec *ethclient.Client) error {
		var err error
		bal, err = ec.BalanceAt(rpcCtx, owner, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("eth_getBalance: %w", err)
	}
	return bal, nil
}

// PendingNonce returns the next nonce for account, pending transactions
// included.
func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.do(ctx, func(rpcCtx context.Context, ec *ethclient.Client) error {
		var err error
		nonce, err = ec.PendingNonceAt(rpcCtx, account)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("eth_getTransactionCount: %w", err)
	}
	return nonce, nil
}

// do applies the per-call timeout and failover.
func (c *Client) do(ctx context.Context, fn func(context.Context, *ethclient.Client) error) error {
	return c.failoverClient.Do(ctx, func(ec *ethclient.Client) error {
		rpcCtx, cancel := context.WithTimeout(ctx, rpcTimeout)
		defer cancel()
		return fn(rpcCtx, ec)
	})
}

// redactURL hides API keys carried in the last path segment of provider
// URLs (https://eth-mainnet.g.alchemy.com/v2/<key>).
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if last := segments[len(segments)-1]; len(last) >= 16 {
		segments[len(segments)-1] = "redacted"
		u.Path = "/" + strings.Join(segments, "/")
	}
	u.RawQuery = ""
	u.User = nil
	return u.String()
}
