package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matrixise/walletfolio/internal/activity"
	"github.com/matrixise/walletfolio/internal/asset"
	"github.com/matrixise/walletfolio/internal/nft"
	"github.com/matrixise/walletfolio/internal/storage"
)

const wallet = "0xAbCdEf0000000000000000000000000000000001"

type clock struct{ t time.Time }

func newClock() *clock { return &clock{t: time.UnixMilli(1_700_000_000_000)} }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newCache(store storage.KV, c *clock) *PortfolioCache {
	return New(store, WithClock(c.now))
}

// flakyStore fails writes, reads or both on demand.
type flakyStore struct {
	*storage.MemoryStore
	failSet bool
	failGet bool
}

func (s *flakyStore) Set(ctx context.Context, key, value string) error {
	if s.failSet {
		return errors.New("quota exceeded")
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func (s *flakyStore) Get(ctx context.Context, key string) (string, error) {
	if s.failGet {
		return "", errors.New("storage unavailable")
	}
	return s.MemoryStore.Get(ctx, key)
}

type countingRecorder map[string]int

func (r countingRecorder) ObserveCache(op, tier, result string) {
	r[op+"/"+tier+"/"+result]++
}

func TestClassify(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want Tier
	}{
		{0, TierFresh},
		{FreshWindow - time.Millisecond, TierFresh},
		{FreshWindow, TierStale},
		{MaxAge - time.Millisecond, TierStale},
		{MaxAge, TierExpired},
		{24 * time.Hour, TierExpired},
	}

	for _, tt := range tests {
		t.Run(tt.age.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.age))
		})
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "portfolio_cache_0xabcdef0000000000000000000000000000000001", Key(wallet))
}

func TestSaveThenGetMergesRecords(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newCache(storage.NewMemoryStore(), clk)

	txs := []activity.Transaction{{Hash: "0x1", Type: "Sent"}}
	c.SaveTransactions(ctx, wallet, txs)
	txStamp := clk.t.UnixMilli()

	clk.advance(time.Minute)
	assets := []asset.Asset{{Symbol: "ETH", Value: 100}}
	c.SaveAssets(ctx, wallet, assets, 100, "0.5")

	entry, ok := c.Get(ctx, wallet)
	require.True(t, ok)
	require.NotNil(t, entry.Assets)
	assert.Equal(t, assets, entry.Assets.Assets)
	assert.Equal(t, 100.0, entry.Assets.TotalValue)
	assert.Equal(t, "0.5", entry.Assets.Balance)
	assert.Equal(t, clk.t.UnixMilli(), entry.Assets.Timestamp)
	assert.Equal(t, clk.t.UnixMilli(), entry.Timestamp)

	require.NotNil(t, entry.Transactions)
	assert.Equal(t, txs, entry.Transactions.Transactions)
	assert.Equal(t, txStamp, entry.Transactions.Timestamp)
	assert.Nil(t, entry.NFTs)
}

func TestSaveNFTsDerivesCollections(t *testing.T) {
	ctx := context.Background()
	c := newCache(nil, newClock())

	nfts := []nft.NFT{{ID: "a-1", CollectionName: "Cool Cats"}, {ID: "a-2", CollectionName: "Cool Cats"}}
	entry := c.SaveNFTs(ctx, wallet, nfts, nil, 2.5)

	require.NotNil(t, entry.NFTs)
	require.Len(t, entry.NFTs.Collections, 1)
	assert.Equal(t, 2, entry.NFTs.Collections[0].Count)
	assert.Equal(t, 2.5, entry.NFTs.TotalValue)
}

func TestFreshnessTiers(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := newCache(storage.NewMemoryStore(), clk)

	assert.False(t, c.HasValidCache(ctx, wallet))
	assert.False(t, c.HasStaleCache(ctx, wallet))
	assert.Equal(t, TierAbsent, c.Tier(ctx, wallet))

	c.SaveAssets(ctx, wallet, nil, 0, "0")
	assert.True(t, c.HasValidCache(ctx, wallet))
	assert.False(t, c.HasStaleCache(ctx, wallet))

	clk.advance(FreshWindow)
	assert.False(t, c.HasValidCache(ctx, wallet))
	assert.True(t, c.HasStaleCache(ctx, wallet))

	// A second section saved later is fresh even though assets are stale.
	c.SaveTransactions(ctx, wallet, nil)
	assert.Equal(t, TierStale, c.Freshness(ctx, wallet, SectionAssets))
	assert.Equal(t, TierFresh, c.Freshness(ctx, wallet, SectionTransactions))
	assert.Equal(t, TierAbsent, c.Freshness(ctx, wallet, SectionNFTs))

	clk.advance(MaxAge)
	assert.False(t, c.HasValidCache(ctx, wallet))
	assert.False(t, c.HasStaleCache(ctx, wallet))
	assert.Equal(t, TierExpired, c.Tier(ctx, wallet))

	// Expired entries still exist until cleared.
	_, ok := c.Get(ctx, wallet)
	assert.True(t, ok)
}

func TestGetFallsThroughToDurableStore(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := storage.NewMemoryStore()

	writer := newCache(store, clk)
	writer.SaveAssets(ctx, wallet, []asset.Asset{{Symbol: "DAI"}}, 1, "0")

	// A new process only has the durable copy, even an old one.
	clk.advance(10 * time.Minute)
	rec := countingRecorder{}
	reader := New(store, WithClock(clk.now), WithRecorder(rec))

	entry, ok := reader.Get(ctx, wallet)
	require.True(t, ok)
	assert.Equal(t, "DAI", entry.Assets.Assets[0].Symbol)
	assert.Equal(t, 1, rec["get/durable/hit"])

	// Memory was repopulated: with the store gone the entry is still served.
	require.NoError(t, store.Remove(ctx, Key(wallet)))
	_, ok = reader.Get(ctx, wallet)
	assert.True(t, ok)
	assert.Equal(t, 1, rec["get/memory/hit"])
}

func TestDurableWriteFailureKeepsMemory(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(), failSet: true}
	rec := countingRecorder{}
	c := New(store, WithClock(newClock().now), WithRecorder(rec))

	sub := c.Updates()
	defer sub.Close()

	c.SaveAssets(ctx, wallet, []asset.Asset{{Symbol: "ETH"}}, 1, "1")

	entry, ok := c.Get(ctx, wallet)
	require.True(t, ok)
	assert.Equal(t, "ETH", entry.Assets.Assets[0].Symbol)
	assert.Equal(t, 1, rec["save/durable/error"])

	keys, err := store.Keys(ctx, KeyPrefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	select {
	case got := <-sub.C():
		assert.Equal(t, "0xabcdef0000000000000000000000000000000001", got)
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
}

func TestGetPrefersNewerMemoryEntry(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	c := newCache(store, clk)

	c.SaveAssets(ctx, wallet, []asset.Asset{{Symbol: "ETH"}}, 1, "1")

	// The NFT save only reaches memory.
	store.failSet = true
	clk.advance(time.Minute)
	c.SaveNFTs(ctx, wallet, []nft.NFT{{TokenID: "1", CollectionName: "Cats"}}, nil, 0)

	clk.advance(FreshWindow + time.Second)
	entry, ok := c.Get(ctx, wallet)
	require.True(t, ok)
	require.NotNil(t, entry.NFTs)
	require.NotNil(t, entry.Assets)

	// Merging onto the entry keeps both sections.
	c.SaveTransactions(ctx, wallet, nil)
	entry, ok = c.Get(ctx, wallet)
	require.True(t, ok)
	assert.NotNil(t, entry.NFTs)
	assert.NotNil(t, entry.Assets)
	assert.NotNil(t, entry.Transactions)
}

func TestDurableReadFailureServesMemory(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	store := &flakyStore{MemoryStore: storage.NewMemoryStore()}
	c := newCache(store, clk)

	c.SaveAssets(ctx, wallet, nil, 0, "0")
	clk.advance(FreshWindow + time.Second)
	store.failGet = true

	_, ok := c.Get(ctx, wallet)
	assert.True(t, ok)
}

func TestUpdatesEmitOnEverySave(t *testing.T) {
	ctx := context.Background()
	c := newCache(nil, newClock())
	sub := c.Updates()
	defer sub.Close()

	c.SaveAssets(ctx, wallet, nil, 0, "0")
	c.SaveAssets(ctx, wallet, nil, 0, "0")
	c.SaveTransactions(ctx, "0x02", nil)

	var got []string
	for range 3 {
		select {
		case w := <-sub.C():
			got = append(got, w)
		case <-time.After(time.Second):
			t.Fatal("missing update")
		}
	}
	assert.Equal(t, []string{Key(wallet)[len(KeyPrefix):], Key(wallet)[len(KeyPrefix):], "0x02"}, got)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	c := newCache(store, newClock())

	c.SaveAssets(ctx, wallet, nil, 0, "0")
	require.NoError(t, c.Clear(ctx, wallet))

	_, ok := c.Get(ctx, wallet)
	assert.False(t, ok)
	_, err := store.Get(ctx, Key(wallet))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestClearAllOnlyRemovesPrefixedKeys(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, "theme", "dark"))
	require.NoError(t, store.Set(ctx, "portfolio_settings", "{}"))

	c := newCache(store, newClock())
	c.SaveAssets(ctx, "0x01", nil, 0, "0")
	c.SaveAssets(ctx, "0x02", nil, 0, "0")

	wallets, err := c.Wallets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"0x01", "0x02"}, wallets)

	require.NoError(t, c.ClearAll(ctx))

	_, ok := c.Get(ctx, "0x01")
	assert.False(t, ok)
	keys, err := store.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"portfolio_settings", "theme"}, keys)
}

func TestEntrySurvivesSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(ctx, t.TempDir()+"/cache.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := newClock()
	floor := 1.5
	newCache(store, clk).SaveNFTs(ctx, wallet, []nft.NFT{{ID: "c-1", CollectionName: "Cats", FloorPrice: &floor}}, nil, 3)

	entry, ok := newCache(store, clk).Get(ctx, wallet)
	require.True(t, ok)
	require.NotNil(t, entry.NFTs)
	require.NotNil(t, entry.NFTs.NFTs[0].FloorPrice)
	assert.Equal(t, 1.5, *entry.NFTs.NFTs[0].FloorPrice)
	assert.Equal(t, "cats", entry.NFTs.Collections[0].Slug)
	assert.Equal(t, clk.t.UnixMilli(), entry.NFTs.Timestamp)
}
