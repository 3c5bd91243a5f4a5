package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usdc = "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"

func jsonServer(t *testing.T, handler func(r *http.Request) (int, string)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status, body := handler(r)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCoinGeckoQuote(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) (int, string) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "ethereum", r.URL.Query().Get("ids"))
		assert.Equal(t, "usd", r.URL.Query().Get("vs_currencies"))
		return http.StatusOK, `{"ethereum":{"usd":3120.5,"usd_24h_change":-2.5}}`
	})

	q, err := NewCoinGecko(srv.URL, nil, time.Second, nil).Quote(context.Background(), "eth", "USD")
	require.NoError(t, err)
	assert.Equal(t, Quote{Price: 3120.5, Change24h: -2.5, Source: "coingecko"}, q)
}

func TestCoinGeckoUnknownSymbol(t *testing.T) {
	_, err := NewCoinGecko("http://127.0.0.1:1", nil, time.Second, nil).Quote(context.Background(), "PEPE", "usd")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestCoinGeckoExtraIDs(t *testing.T) {
	c := NewCoinGecko("", map[string]string{"link": "chainlink"}, time.Second, nil)

	id, ok := c.ID("LINK")
	assert.True(t, ok)
	assert.Equal(t, "chainlink", id)

	id, ok = c.ID("usdc")
	assert.True(t, ok)
	assert.Equal(t, "usd-coin", id)
}

func TestDexScreenerPicksMostLiquidPair(t *testing.T) {
	srv := jsonServer(t, func(r *http.Request) (int, string) {
		assert.Equal(t, "/tokens/v1/ethereum/"+usdc, r.URL.Path)
		return http.StatusOK, `[
			{"baseToken":{"address":"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48","symbol":"USDC"},"priceUsd":"0.998","liquidity":{"usd":1000},"priceChange":{"h24":0.1}},
			{"baseToken":{"address":"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48","symbol":"USDC"},"priceUsd":"1.001","liquidity":{"usd":900000},"priceChange":{"h24":0.2}},
			{"baseToken":{"address":"0xdac17f958d2ee523a2206206994597c13d831ec7","symbol":"USDT"},"priceUsd":"5","liquidity":{"usd":99999999}}
		]`
	})

	q, err := NewDexScreener(srv.URL, "ethereum", time.Second, nil).Quote(context.Background(), usdc, "usd")
	require.NoError(t, err)
	assert.Equal(t, 1.001, q.Price)
	assert.Equal(t, 0.2, q.Change24h)
}

func TestDexScreenerRejectsNonUSD(t *testing.T) {
	_, err := NewDexScreener("http://127.0.0.1:1", "", time.Second, nil).Quote(context.Background(), usdc, "gbp")
	assert.ErrorIs(t, err, ErrNoPrice)
}

func TestServiceFallsBackToDexScreener(t *testing.T) {
	gecko := jsonServer(t, func(*http.Request) (int, string) { return http.StatusTooManyRequests, `{}` })
	dex := jsonServer(t, func(*http.Request) (int, string) {
		return http.StatusOK, `[{"baseToken":{"address":"` + usdc + `"},"priceUsd":"1.0","liquidity":{"usd":10}}]`
	})

	svc := NewService(
		NewCoinGecko(gecko.URL, nil, time.Second, nil),
		NewDexScreener(dex.URL, "ethereum", time.Second, nil),
		"usd", nil, nil)

	q, err := svc.Price(context.Background(), "USDC", usdc)
	require.NoError(t, err)
	assert.Equal(t, 1.0, q.Price)
	assert.Equal(t, "dexscreener", q.Source)
}

func TestServiceNoPrice(t *testing.T) {
	gecko := jsonServer(t, func(*http.Request) (int, string) { return http.StatusOK, `{"ethereum":{"usd":0}}` })

	svc := NewService(NewCoinGecko(gecko.URL, nil, time.Second, nil), nil, "", nil, nil)

	_, err := svc.Price(context.Background(), "ETH", "")
	assert.ErrorIs(t, err, ErrNoPrice)
	assert.Equal(t, "usd", svc.Currency())
}
