package blockchain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	unhealthyDuration  = 5 * time.Minute // Cooldown before reconnecting
	healthCheckTimeout = 5 * time.Second
)

// ErrNoHealthyEndpoint is returned when every endpoint is cooling down.
var ErrNoHealthyEndpoint = errors.New("no healthy RPC endpoints available")

type endpointStatus struct {
	url           string
	client        *ethclient.Client
	healthy       bool
	lastError     error
	lastErrorTime time.Time
	mu            sync.RWMutex
}

// EndpointHealth is a point-in-time view of one endpoint, used by /health.
type EndpointHealth struct {
	URL       string `json:"url"`
	Healthy   bool   `json:"healthy"`
	LastError string `json:"last_error,omitempty"`
}

// FailoverClient manages multiple RPC endpoints with automatic failover
type FailoverClient struct {
	endpoints    []*endpointStatus
	currentIndex int
	mu           sync.RWMutex
}

// NewFailoverClient dials every endpoint; at least one must answer eth_chainId.
func NewFailoverClient(urls []string) (*FailoverClient, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("at least one RPC URL is required")
	}

	fc := &FailoverClient{endpoints: make([]*endpointStatus, 0, len(urls))}

	healthyCount := 0
	for _, url := range urls {
		client, err := dialAndVerify(url)
		fc.endpoints = append(fc.endpoints, &endpointStatus{
			url:           url,
			client:        client,
			healthy:       err == nil,
			lastError:     err,
			lastErrorTime: time.Now(),
		})

		if err == nil {
			healthyCount++
			slog.Info("Connected to RPC endpoint", "url", redactURL(url))
		} else {
			slog.Warn("Failed to connect to RPC endpoint, will retry later", "url", redactURL(url), "error", err)
		}
	}

	if healthyCount == 0 {
		return nil, ErrNoHealthyEndpoint
	}
	return fc, nil
}

func dialAndVerify(url string) (*ethclient.Client, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()
	if _, err := client.ChainID(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// GetClient returns a healthy client, reconnecting endpoints whose cooldown
// expired.
func (fc *FailoverClient) GetClient() (*ethclient.Client, string, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.pickFrom(fc.currentIndex, nil)
}

func (fc *FailoverClient) pickFrom(start int, skip map[string]bool) (*ethclient.Client, string, error) {
	for i := 0; i < len(fc.endpoints); i++ {
		idx := (start + i) % len(fc.endpoints)
		ep := fc.endpoints[idx]
		if skip[ep.url] {
			continue
		}

		ep.mu.RLock()
		healthy := ep.healthy
		client := ep.client
		canRetry := time.Since(ep.lastErrorTime) > unhealthyDuration
		ep.mu.RUnlock()

		if healthy && client != nil {
			fc.currentIndex = idx
			return client, ep.url, nil
		}

		if !healthy && canRetry {
			newClient, err := dialAndVerify(ep.url)
			if err != nil {
				ep.mu.Lock()
				ep.lastError = err
				ep.lastErrorTime = time.Now()
				ep.mu.Unlock()
				continue
			}
			ep.mu.Lock()
			ep.client = newClient
			ep.healthy = true
			ep.lastError = nil
			ep.mu.Unlock()

			fc.currentIndex = idx
			slog.Info("Reconnected to RPC endpoint", "url", redactURL(ep.url))
			return newClient, ep.url, nil
		}
	}
	return nil, "", ErrNoHealthyEndpoint
}

// Do runs fn against healthy endpoints until one succeeds. Each endpoint is
// tried at most once per call. JSON-RPC errors come from a live node and are
// returned as-is without failing over.
func (fc *FailoverClient) Do(ctx context.Context, fn func(*ethclient.Client) error) error {
	tried := make(map[string]bool, len(fc.endpoints))
	var lastErr error

	for len(tried) < len(fc.endpoints) {
		fc.mu.Lock()
		client, url, err := fc.pickFrom(fc.currentIndex, tried)
		fc.mu.Unlock()
		if err != nil {
			break
		}
		tried[url] = true

		err = fn(client)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return err
		}

		lastErr = err
		fc.MarkUnhealthy(url, err)
	}

	if lastErr != nil {
		return fmt.Errorf("all RPC endpoints failed: %w", lastErr)
	}
	return ErrNoHealthyEndpoint
}

// MarkUnhealthy marks an endpoint as unhealthy and closes its connection
func (fc *FailoverClient) MarkUnhealthy(url string, err error) {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	for _, ep := range fc.endpoints {
		if ep.url != url {
			continue
		}
		ep.mu.Lock()
		ep.healthy = false
		ep.lastError = err
		ep.lastErrorTime = time.Now()
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
		ep.mu.Unlock()

		slog.Warn("Marked RPC endpoint as unhealthy, will retry after cooldown",
			"url", redactURL(url),
			"error", err,
			"retry_after", unhealthyDuration)
		return
	}
}

// Status reports the health of every endpoint.
func (fc *FailoverClient) Status() []EndpointHealth {
	fc.mu.RLock()
	defer fc.mu.RUnlock()

	out := make([]EndpointHealth, 0, len(fc.endpoints))
	for _, ep := range fc.endpoints {
		ep.mu.RLock()
		h := EndpointHealth{URL: redactURL(ep.url), Healthy: ep.healthy}
		if ep.lastError != nil {
			h.LastError = ep.lastError.Error()
		}
		ep.mu.RUnlock()
		out = append(out, h)
	}
	return out
}

// Close closes all endpoint connections
func (fc *FailoverClient) Close() {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	for _, ep := range fc.endpoints {
		ep.mu.Lock()
		if ep.client != nil {
			ep.client.Close()
			ep.client = nil
		}
		ep.mu.Unlock()
	}
}
