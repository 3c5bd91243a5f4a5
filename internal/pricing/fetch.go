// Package pricing quotes token prices from CoinGecko (by symbol) and
// DEX Screener (by contract address).
package pricing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/valyala/fasthttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const defaultTimeout = 10 * time.Second

var (
	// ErrUnknownSymbol is returned when no CoinGecko id is mapped.
	ErrUnknownSymbol = errors.New("unknown token symbol")
	// ErrNoPrice is returned when no source could price a token.
	ErrNoPrice = errors.New("no price available")
)

// Quote is a price in the requested fiat currency.
type Quote struct {
	Price     float64 `json:"price"`
	Change24h float64 `json:"change_24h"`
	Source    string  `json:"source"`
}

type fetcher struct {
	client  *fasthttp.Client
	timeout time.Duration
	logger  *slog.Logger
}

func newFetcher(timeout time.Duration, logger *slog.Logger) fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return fetcher{
		client:  &fasthttp.Client{Name: "walletfolio"},
		timeout: timeout,
		logger:  logger,
	}
}

// getJSON honours the context deadline when there is one, otherwise the
// fetcher timeout.
func (f fetcher) getJSON(ctx context.Context, requestURL string, out any) error {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	req.SetRequestURI(requestURL)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Accept", "application/json")

	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	f.logger.Debug("Requesting price", "url", requestURL)

	var err error
	if deadline, ok := ctx.Deadline(); ok {
		err = f.client.DoDeadline(req, resp, deadline)
	} else {
		err = f.client.DoTimeout(req, resp, f.timeout)
	}
	if err != nil {
		return fmt.Errorf("failed to execute request to %s: %w", requestURL, err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("request to %s failed with status %d", requestURL, resp.StatusCode())
	}

	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("failed to unmarshal response from %s: %w", requestURL, err)
	}
	return nil
}
