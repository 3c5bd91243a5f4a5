package nft

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixise/walletfolio/internal/httpclient"
)

const owner = "0x00000000000000000000000000000000000000aa"

func ptr(v float64) *float64 { return &v }

type endpoint struct {
	status int
	body   string
	calls  atomic.Int32
	last   atomic.Pointer[http.Request]
}

func (e *endpoint) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.calls.Add(1)
		e.last.Store(r)
		w.Header().Set("Content-Type", "application/json")
		if e.status != 0 {
			w.WriteHeader(e.status)
		}
		_, _ = w.Write([]byte(e.body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const (
	alchemyOK = `{"ownedNfts":[
		{"contract":{"address":"0xbc4c","name":"Bored Ape Yacht Club"},"id":{"tokenId":"0x1a"},"metadata":{"name":"Ape 26","image":"ipfs://QmApe"}},
		{"contract":{"address":"0xdead"},"id":{"tokenId":"7"},"metadata":{"image_url":"https://cdn.example.com/7.png"}}
	]}`
	openSeaOK = `{"nfts":[
		{"identifier":"42","contract":"0xc0ffee","collection":"Cool Cats","collection_slug":"cool-cats-nft","name":"Cat 42","image_url":"https://gateway.pinata.cloud/ipfs/QmCat","floor_price":"0.75"},
		{"identifier":"43","contract":"0xc0ffee","collection":"Cool Cats","image":"","floor_price":1.25}
	]}`
	empty = `{}`
)

func newTestAggregator(t *testing.T, alchemy, opensea *endpoint, key string) *Aggregator {
	t.Helper()
	cfg := Config{
		AlchemyURL:    alchemy.server(t).URL,
		AlchemyAPIKey: key,
		OpenSeaURL:    opensea.server(t).URL,
		OpenSeaAPIKey: "os-key",
	}
	return NewAggregator(cfg, httpclient.New(httpclient.Config{Timeout: 2 * time.Second}, nil), nil, nil)
}

func TestFetchOwnedChain(t *testing.T) {
	tests := []struct {
		name          string
		alchemy       *endpoint
		opensea       *endpoint
		key           string
		wantCount     int
		wantFirstName string
		wantOpenSea   int32
	}{
		{"alchemy succeeds", &endpoint{body: alchemyOK}, &endpoint{body: openSeaOK}, "k", 2, "Ape 26", 0},
		{"alchemy empty falls back", &endpoint{body: `{"ownedNfts":[]}`}, &endpoint{body: openSeaOK}, "k", 2, "Cat 42", 1},
		{"alchemy error falls back", &endpoint{status: http.StatusInternalServerError, body: empty}, &endpoint{body: openSeaOK}, "k", 2, "Cat 42", 1},
		{"missing key falls back", &endpoint{body: alchemyOK}, &endpoint{body: openSeaOK}, "", 2, "Cat 42", 1},
		{"both fail", &endpoint{status: http.StatusBadGateway, body: empty}, &endpoint{body: `{"nfts":[]}`}, "k", 0, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAggregator(t, tt.alchemy, tt.opensea, tt.key)

			got := a.FetchOwned(context.Background(), owner, "")

			require.NotNil(t, got)
			require.Len(t, got, tt.wantCount)
			if tt.wantCount > 0 {
				assert.Equal(t, tt.wantFirstName, got[0].Name)
			}
			assert.Equal(t, tt.wantOpenSea, tt.opensea.calls.Load())
			if tt.key == "" {
				assert.Zero(t, tt.alchemy.calls.Load())
			}
		})
	}
}

func TestFetchOwnedMapsAlchemy(t *testing.T) {
	alchemy, opensea := &endpoint{body: alchemyOK}, &endpoint{}
	a := newTestAggregator(t, alchemy, opensea, "secret")

	got := a.FetchOwned(context.Background(), owner, "ethereum")
	require.Len(t, got, 2)

	req := alchemy.last.Load()
	assert.Equal(t, "/secret/getNFTs", req.URL.Path)
	assert.Equal(t, owner, req.URL.Query().Get("owner"))
	assert.Equal(t, "true", req.URL.Query().Get("withMetadata"))
	assert.Equal(t, "100", req.URL.Query().Get("pageSize"))

	assert.Equal(t, NFT{
		ID:                 "0xbc4c-0x1a",
		TokenID:            "0x1a",
		ContractAddress:    "0xbc4c",
		Name:               "Ape 26",
		ImageURL:           "https://ipfs.io/ipfs/QmApe",
		CollectionName:     "Bored Ape Yacht Club",
		FloorPriceCurrency: "ETH",
		Network:            "ethereum",
		Owner:              owner,
	}, got[0])

	assert.Equal(t, "#7", got[1].Name)
	assert.Equal(t, UnknownCollection, got[1].CollectionName)
	assert.Equal(t, "https://cdn.example.com/7.png", got[1].ImageURL)
}

func TestFetchOwnedToleratesMalformedMetadata(t *testing.T) {
	alchemy := &endpoint{body: `{"ownedNfts":[
		{"contract":{"address":"0xbc4c"},"id":{"tokenId":"1"},"metadata":{"name":"Good","image":"https://cdn.example.com/1.png"}},
		{"contract":{"address":"0xbc4c"},"id":{"tokenId":"2"},"metadata":{"name":42,"image":{"src":"x"}}},
		{"contract":{"address":"0xbc4c"},"id":{"tokenId":3},"metadata":"not an object"},
		{"contract":{"address":12345},"id":{"tokenId":"4"}}
	]}`}
	opensea := &endpoint{status: http.StatusInternalServerError, body: empty}
	a := newTestAggregator(t, alchemy, opensea, "k")

	got := a.FetchOwned(context.Background(), owner, "ethereum")

	require.Len(t, got, 3)
	assert.Equal(t, "Good", got[0].Name)
	assert.Equal(t, "42", got[1].Name)
	assert.Equal(t, Placeholder, got[1].ImageURL)
	assert.Equal(t, "#3", got[2].Name)
	assert.Equal(t, "0xbc4c-3", got[2].ID)
	assert.Zero(t, opensea.calls.Load())
}

func TestFetchOwnedMapsOpenSea(t *testing.T) {
	opensea := &endpoint{body: openSeaOK}
	a := newTestAggregator(t, &endpoint{}, opensea, "")

	got := a.FetchOwned(context.Background(), owner, "ethereum")
	require.Len(t, got, 2)

	req := opensea.last.Load()
	assert.Equal(t, "/chain/ethereum/account/"+owner+"/nfts", req.URL.Path)
	assert.Equal(t, "os-key", req.Header.Get("X-API-KEY"))

	assert.Equal(t, "0xc0ffee-42", got[0].ID)
	assert.Equal(t, "cool-cats-nft", got[0].CollectionSlug)
	assert.Equal(t, "https://ipfs.io/ipfs/QmCat", got[0].ImageURL)
	require.NotNil(t, got[0].FloorPrice)
	assert.Equal(t, 0.75, *got[0].FloorPrice)

	assert.Equal(t, Placeholder, got[1].ImageURL)
	require.NotNil(t, got[1].FloorPrice)
	assert.Equal(t, 1.25, *got[1].FloorPrice)
}

func TestFetchOwnedInvalidAddress(t *testing.T) {
	alchemy, opensea := &endpoint{body: alchemyOK}, &endpoint{body: openSeaOK}
	a := newTestAggregator(t, alchemy, opensea, "k")

	for _, addr := range []string{"", "0x123", "vitalik.eth"} {
		assert.Empty(t, a.FetchOwned(context.Background(), addr, ""))
	}
	assert.Zero(t, alchemy.calls.Load())
	assert.Zero(t, opensea.calls.Load())
}

func TestNormalizeImageURL(t *testing.T) {
	tests := []struct {
		raw, gateway, want string
	}{
		{"ipfs://abc123", "", "https://ipfs.io/ipfs/abc123"},
		{"ipfs://ipfs/abc123", "", "https://ipfs.io/ipfs/abc123"},
		{"ipfs://abc123", "cloudflare-ipfs.com", "https://cloudflare-ipfs.com/ipfs/abc123"},
		{"", "", Placeholder},
		{"   ", "", Placeholder},
		{"https://example.com/x.png", "", "https://example.com/x.png"},
		{"https://gateway.pinata.cloud/ipfs/QmX/1.png", "", "https://ipfs.io/ipfs/QmX/1.png"},
		{"data:image/svg+xml;base64,AAAA", "", "data:image/svg+xml;base64,AAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeImageURL(tt.raw, tt.gateway))
		})
	}
}

func TestGroupByCollection(t *testing.T) {
	nfts := []NFT{
		{CollectionName: "Cool Cats", ImageURL: "cat1", FloorPrice: ptr(1)},
		{CollectionName: "Bored  Ape\tClub", ImageURL: "ape1"},
		{CollectionName: "Cool Cats", ImageURL: "cat2", FloorPrice: ptr(9)},
		{CollectionName: "Art", CollectionSlug: "art-blocks"},
	}

	got := GroupByCollection(nfts)

	require.Len(t, got, 3)
	assert.Equal(t, Collection{Name: "Cool Cats", Slug: "cool-cats", ImageURL: "cat1", Count: 2, FloorPrice: ptr(1)}, got[0])
	assert.Equal(t, "bored-ape-club", got[1].Slug)
	assert.Equal(t, 1, got[1].Count)
	assert.Nil(t, got[1].FloorPrice)
	assert.Equal(t, "art-blocks", got[2].Slug)

	assert.Empty(t, GroupByCollection(nil))
}

func TestTotalFloorValue(t *testing.T) {
	nfts := []NFT{
		{FloorPrice: ptr(0.5), FloorPriceCurrency: "ETH"},
		{FloorPrice: ptr(10), FloorPriceCurrency: "pol"},
		{FloorPrice: ptr(3), FloorPriceCurrency: "XYZ"},
		{FloorPriceCurrency: "ETH"},
	}

	total := TotalFloorValue(nfts, map[string]float64{"ETH": 3000, "POL": 0.8})
	assert.InDelta(t, 1508.0, total, 1e-9)
}

func TestSortAndFilter(t *testing.T) {
	nfts := []NFT{
		{TokenID: "2", CollectionName: "A", FloorPrice: ptr(1)},
		{TokenID: "0x10", CollectionName: "B", FloorPrice: ptr(3)},
		{TokenID: "5", CollectionName: "A"},
	}

	ids := func(list []NFT) []string {
		out := make([]string, len(list))
		for i, n := range list {
			out[i] = n.TokenID
		}
		return out
	}

	assert.Equal(t, []string{"0x10", "2", "5"}, ids(Sort(nfts, SortPriceHigh)))
	assert.Equal(t, []string{"5", "2", "0x10"}, ids(Sort(nfts, SortPriceLow)))
	assert.Equal(t, []string{"0x10", "5", "2"}, ids(Sort(nfts, SortRecent)))
	assert.Equal(t, []string{"2", "0x10", "5"}, ids(nfts), "input must not be reordered")

	assert.Equal(t, []string{"2", "5"}, ids(FilterByCollection(nfts, "A")))
	assert.Len(t, FilterByCollection(nfts, "all"), 3)
}
