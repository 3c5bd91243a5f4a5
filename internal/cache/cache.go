// Package cache keeps per-wallet portfolio data in a process memory tier in
// front of a durable key-value store.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	gocache "github.com/patrickmn/go-cache"

	"github.com/matrixise/walletfolio/internal/activity"
	"github.com/matrixise/walletfolio/internal/asset"
	"github.com/matrixise/walletfolio/internal/broadcast"
	"github.com/matrixise/walletfolio/internal/nft"
	"github.com/matrixise/walletfolio/internal/storage"
)

// Sections of an entry.
const (
	SectionAssets       = "assets"
	SectionTransactions = "transactions"
	SectionNFTs         = "nfts"
)

// Metric labels.
const (
	tierMemory  = "memory"
	tierDurable = "durable"
)

// AssetsRecord is the cached asset section.
type AssetsRecord struct {
	Assets     []asset.Asset `json:"assets"`
	TotalValue float64       `json:"totalValue"`
	Balance    string        `json:"balance"`
	Timestamp  int64         `json:"timestamp"`
}

// TransactionsRecord is the cached activity section.
type TransactionsRecord struct {
	Transactions []activity.Transaction `json:"transactions"`
	Timestamp    int64                  `json:"timestamp"`
}

// NFTsRecord is the cached NFT section.
type NFTsRecord struct {
	NFTs        []nft.NFT        `json:"nfts"`
	Collections []nft.Collection `json:"nftCollections"`
	TotalValue  float64          `json:"nftTotalValue"`
	Timestamp   int64            `json:"timestamp"`
}

// Entry is everything cached for one wallet. Each record carries its own
// timestamp; Timestamp is the time of the last save. Timestamps are Unix
// milliseconds.
type Entry struct {
	Assets       *AssetsRecord       `json:"assets,omitempty"`
	Transactions *TransactionsRecord `json:"transactions,omitempty"`
	NFTs         *NFTsRecord         `json:"nfts,omitempty"`
	Timestamp    int64               `json:"timestamp"`
}

// Update lists the records to merge into an entry. Nil records are left
// untouched.
type Update struct {
	Assets       *AssetsRecord
	Transactions *TransactionsRecord
	NFTs         *NFTsRecord
}

// Recorder observes cache operations. Implemented by internal/metrics.
type Recorder interface {
	ObserveCache(op, tier, result string)
}

// Option configures a PortfolioCache.
type Option func(*PortfolioCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *PortfolioCache) { c.now = now }
}

// WithRecorder attaches an operation recorder.
func WithRecorder(r Recorder) Option {
	return func(c *PortfolioCache) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *PortfolioCache) { c.logger = l }
}

// PortfolioCache is the two-tier wallet cache. The memory tier is
// authoritative for the process lifetime: it never expires and durable
// write failures never roll it back.
type PortfolioCache struct {
	memory   *gocache.Cache
	store    storage.KV
	updates  *broadcast.Feed[string]
	now      func() time.Time
	recorder Recorder
	logger   *slog.Logger

	// mu serializes read-merge-write in Save.
	mu sync.Mutex
}

// New creates a cache over store. A nil store keeps data in memory only.
func New(store storage.KV, opts ...Option) *PortfolioCache {
	c := &PortfolioCache{
		memory:  gocache.New(gocache.NoExpiration, 0),
		store:   store,
		updates: broadcast.NewFeed[string](64),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *PortfolioCache) observe(op, tier, result string) {
	if c.recorder != nil {
		c.recorder.ObserveCache(op, tier, result)
	}
}

func (c *PortfolioCache) age(ts int64) time.Duration {
	return c.now().Sub(time.UnixMilli(ts))
}

// Get returns the cached entry of wallet. A fresh memory entry is returned
// directly; otherwise the durable store is consulted. When both tiers hold
// the key the newer entry wins, so saves that failed to reach the store are
// not lost. A durable entry repopulates memory whatever its age.
func (c *PortfolioCache) Get(ctx context.Context, wallet string) (Entry, bool) {
	key := Key(wallet)

	var (
		inMemory Entry
		found    bool
	)
	if v, ok := c.memory.Get(key); ok {
		inMemory, found = v.(Entry), true
		if Classify(c.age(inMemory.Timestamp)) == TierFresh {
			c.observe("get", tierMemory, "hit")
			return inMemory, true
		}
	}

	if c.store != nil {
		entry, err := c.load(ctx, key)
		switch {
		case err == nil && found && inMemory.Timestamp >= entry.Timestamp:
			c.observe("get", tierDurable, "older")
		case err == nil:
			c.memory.Set(key, entry, gocache.NoExpiration)
			c.observe("get", tierDurable, "hit")
			return entry, true
		case errors.Is(err, storage.ErrNotFound):
			c.observe("get", tierDurable, "miss")
		default:
			c.observe("get", tierDurable, "error")
			c.logger.Warn("Failed to read cache from durable store", "key", key, "error", err)
		}
	}

	if found {
		c.observe("get", tierMemory, "hit")
		return inMemory, true
	}
	c.observe("get", tierMemory, "miss")
	return Entry{}, false
}

func (c *PortfolioCache) load(ctx context.Context, key string) (Entry, error) {
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	var entry Entry
	if err := sonic.UnmarshalString(raw, &entry); err != nil {
		return Entry{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return entry, nil
}

// Save merges u into the wallet's entry, stamping every touched record and
// the entry with the current time, then announces the wallet on Updates.
func (c *PortfolioCache) Save(ctx context.Context, wallet string, u Update) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(wallet)
	now := c.now().UnixMilli()

	entry, _ := c.Get(ctx, wallet)
	if u.Assets != nil {
		rec := *u.Assets
		rec.Timestamp = now
		entry.Assets = &rec
	}
	if u.Transactions != nil {
		rec := *u.Transactions
		rec.Timestamp = now
		entry.Transactions = &rec
	}
	if u.NFTs != nil {
		rec := *u.NFTs
		rec.Timestamp = now
		entry.NFTs = &rec
	}
	entry.Timestamp = now

	c.memory.Set(key, entry, gocache.NoExpiration)
	c.observe("save", tierMemory, "ok")

	if c.store != nil {
		if err := c.persist(ctx, key, entry); err != nil {
			c.observe("save", tierDurable, "error")
			c.logger.Warn("Failed to save cache to durable store, keeping memory copy",
				"key", key,
				"error", err)
		} else {
			c.observe("save", tierDurable, "ok")
		}
	}

	c.updates.Publish(strings.ToLower(wallet))
	return entry
}

func (c *PortfolioCache) persist(ctx context.Context, key string, entry Entry) error {
	raw, err := sonic.MarshalString(entry)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.store.Set(ctx, key, raw)
}

// SaveAssets stores the asset section.
func (c *PortfolioCache) SaveAssets(ctx context.Context, wallet string, assets []asset.Asset, totalValue float64, balance string) Entry {
	return c.Save(ctx, wallet, Update{Assets: &AssetsRecord{
		Assets:     assets,
		TotalValue: totalValue,
		Balance:    balance,
	}})
}

// SaveTransactions stores the activity section.
func (c *PortfolioCache) SaveTransactions(ctx context.Context, wallet string, txs []activity.Transaction) Entry {
	return c.Save(ctx, wallet, Update{Transactions: &TransactionsRecord{Transactions: txs}})
}

// SaveNFTs stores the NFT section. Collections are derived from nfts when
// nil.
func (c *PortfolioCache) SaveNFTs(ctx context.Context, wallet string, nfts []nft.NFT, collections []nft.Collection, totalValue float64) Entry {
	if collections == nil {
		collections = nft.GroupByCollection(nfts)
	}
	return c.Save(ctx, wallet, Update{NFTs: &NFTsRecord{
		NFTs:        nfts,
		Collections: collections,
		TotalValue:  totalValue,
	}})
}

// Tier classifies the whole entry of wallet by its last save.
func (c *PortfolioCache) Tier(ctx context.Context, wallet string) Tier {
	entry, ok := c.Get(ctx, wallet)
	if !ok {
		return TierAbsent
	}
	return Classify(c.age(entry.Timestamp))
}

// HasValidCache reports whether wallet's entry is fresh.
func (c *PortfolioCache) HasValidCache(ctx context.Context, wallet string) bool {
	return c.Tier(ctx, wallet) == TierFresh
}

// HasStaleCache reports whether wallet's entry is stale but still usable.
func (c *PortfolioCache) HasStaleCache(ctx context.Context, wallet string) bool {
	return c.Tier(ctx, wallet) == TierStale
}

// Freshness classifies one section of wallet's entry by its own timestamp.
func (c *PortfolioCache) Freshness(ctx context.Context, wallet, section string) Tier {
	entry, ok := c.Get(ctx, wallet)
	if !ok {
		return TierAbsent
	}
	return c.SectionTier(entry, section)
}

// SectionTier classifies one section of entry.
func (c *PortfolioCache) SectionTier(entry Entry, section string) Tier {
	var ts int64
	switch section {
	case SectionAssets:
		if entry.Assets == nil {
			return TierAbsent
		}
		ts = entry.Assets.Timestamp
	case SectionTransactions:
		if entry.Transactions == nil {
			return TierAbsent
		}
		ts = entry.Transactions.Timestamp
	case SectionNFTs:
		if entry.NFTs == nil {
			return TierAbsent
		}
		ts = entry.NFTs.Timestamp
	default:
		return TierAbsent
	}
	return Classify(c.age(ts))
}

// Clear removes wallet from both tiers.
func (c *PortfolioCache) Clear(ctx context.Context, wallet string) error {
	key := Key(wallet)
	c.memory.Delete(key)
	c.observe("clear", tierMemory, "ok")

	if c.store == nil {
		return nil
	}
	if err := c.store.Remove(ctx, key); err != nil {
		c.observe("clear", tierDurable, "error")
		c.logger.Warn("Failed to clear cache from durable store", "key", key, "error", err)
		return fmt.Errorf("clear %s: %w", key, err)
	}
	c.observe("clear", tierDurable, "ok")
	return nil
}

// ClearAll empties the memory tier and removes every durable key carrying
// KeyPrefix. Other keys in the store are left alone.
func (c *PortfolioCache) ClearAll(ctx context.Context) error {
	c.memory.Flush()
	c.observe("clear_all", tierMemory, "ok")

	if c.store == nil {
		return nil
	}
	keys, err := c.store.Keys(ctx, KeyPrefix)
	if err != nil {
		c.observe("clear_all", tierDurable, "error")
		return fmt.Errorf("list cache keys: %w", err)
	}

	var errs []error
	for _, key := range keys {
		if err := c.store.Remove(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", key, err))
		}
	}
	if len(errs) > 0 {
		c.observe("clear_all", tierDurable, "error")
		c.logger.Warn("Failed to clear all caches", "failed", len(errs), "total", len(keys))
		return errors.Join(errs...)
	}

	c.observe("clear_all", tierDurable, "ok")
	c.logger.Info("Cleared all portfolio caches", "keys", len(keys))
	return nil
}

// Wallets lists the wallets present in the durable store, or in memory when
// there is none.
func (c *PortfolioCache) Wallets(ctx context.Context) ([]string, error) {
	var keys []string
	if c.store != nil {
		var err error
		if keys, err = c.store.Keys(ctx, KeyPrefix); err != nil {
			return nil, fmt.Errorf("list cache keys: %w", err)
		}
	} else {
		for k := range c.memory.Items() {
			keys = append(keys, k)
		}
	}

	wallets := make([]string, 0, len(keys))
	for _, k := range keys {
		if w, ok := strings.CutPrefix(k, KeyPrefix); ok {
			wallets = append(wallets, w)
		}
	}
	sort.Strings(wallets)
	return wallets, nil
}

// Updates subscribes to the wallets announced after each save.
func (c *PortfolioCache) Updates() *broadcast.Subscription[string] {
	return c.updates.Subscribe()
}
