// Package portfolio refreshes wallet data into the cache and serves cached
// views with stale-while-revalidate semantics.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/pool"

	"github.com/matrixise/walletfolio/internal/activity"
	"github.com/matrixise/walletfolio/internal/approval"
	"github.com/matrixise/walletfolio/internal/asset"
	"github.com/matrixise/walletfolio/internal/broadcast"
	"github.com/matrixise/walletfolio/internal/cache"
	"github.com/matrixise/walletfolio/internal/nft"
	"github.com/matrixise/walletfolio/internal/pricing"
	"github.com/matrixise/walletfolio/internal/storage"
)

// JobName is the scheduler job refreshing configured wallets.
const JobName = "portfolio-refresh"

const (
	backgroundTimeout = 2 * time.Minute
	refreshWorkers    = 4
)

// AssetLoader values a wallet's holdings.
type AssetLoader interface {
	Load(ctx context.Context, wallet string, onPartial func(asset.Snapshot)) (asset.Portfolio, error)
}

// ActivityLoader lists a wallet's transactions.
type ActivityLoader interface {
	Load(ctx context.Context, wallet string) ([]activity.Transaction, error)
}

// NFTFetcher lists a wallet's NFTs. It never fails.
type NFTFetcher interface {
	FetchOwned(ctx context.Context, address, network string) []nft.NFT
}

// ApprovalScanner finds active allowances.
type ApprovalScanner interface {
	Scan(ctx context.Context, wallet string, spenders []string) []approval.TokenApproval
	Approvals(wallet string) []approval.TokenApproval
}

// PriceSource converts NFT floor prices.
type PriceSource interface {
	Price(ctx context.Context, symbol, contract string) (pricing.Quote, error)
}

// SnapshotWriter appends valued holdings to a history table.
type SnapshotWriter interface {
	InsertSnapshots(ctx context.Context, snapshots []storage.AssetSnapshot) error
}

// RefreshRecorder observes how long each section took.
type RefreshRecorder interface {
	ObserveRefresh(section string, seconds float64)
}

// Progress is published while a wallet's assets load.
type Progress struct {
	Wallet   string
	Snapshot asset.Snapshot
}

// Deps are the collaborators of a Service. Cache and Assets are required.
type Deps struct {
	Cache     *cache.PortfolioCache
	Assets    AssetLoader
	Activity  ActivityLoader
	NFTs      NFTFetcher
	Approvals ApprovalScanner
	Prices    PriceSource
	Snapshots SnapshotWriter
	Recorder  RefreshRecorder
	Network   string
	Logger    *slog.Logger
}

// Service orchestrates loads and cache write-back.
type Service struct {
	deps     Deps
	progress *broadcast.Feed[Progress]
	logger   *slog.Logger

	mu         sync.Mutex
	inflight   map[string]struct{}
	background conc.WaitGroup
}

// NewService creates a service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Network == "" {
		deps.Network = "ethereum"
	}
	return &Service{
		deps:     deps,
		progress: broadcast.NewFeed[Progress](64),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Result summarizes one refresh.
type Result struct {
	Wallet  string            `json:"wallet"`
	Skipped bool              `json:"skipped"`
	Entry   cache.Entry       `json:"entry"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Refresh reloads the sections of wallet that are not fresh, or every
// section when force is set. Sections load concurrently and each writes back
// to its own cache record; a failed section keeps its previous record. The
// approval scan runs alongside whenever anything reloads. The returned error
// joins the section failures.
func (s *Service) Refresh(ctx context.Context, wallet string, force bool) (Result, error) {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	res := Result{Wallet: wallet}

	due := s.dueSections(ctx, wallet, force)
	if len(due) == 0 {
		res.Skipped = true
		res.Entry, _ = s.deps.Cache.Get(ctx, wallet)
		s.logger.Debug("Cache fresh, skipping refresh", "wallet", wallet)
		return res, nil
	}

	var (
		mu   sync.Mutex
		errs = make(map[string]error)
	)
	fail := func(section string, err error) {
		mu.Lock()
		errs[section] = err
		mu.Unlock()
	}

	var wg conc.WaitGroup
	if due[cache.SectionAssets] {
		wg.Go(func() {
			if err := s.refreshAssets(ctx, wallet); err != nil {
				fail(cache.SectionAssets, err)
			}
		})
	}
	if due[cache.SectionTransactions] {
		wg.Go(func() {
			if err := s.refreshActivity(ctx, wallet); err != nil {
				fail(cache.SectionTransactions, err)
			}
		})
	}
	if due[cache.SectionNFTs] {
		wg.Go(func() { s.refreshNFTs(ctx, wallet) })
	}
	if s.deps.Approvals != nil {
		wg.Go(func() { s.deps.Approvals.Scan(ctx, wallet, nil) })
	}
	wg.Wait()

	res.Entry, _ = s.deps.Cache.Get(ctx, wallet)
	if len(errs) == 0 {
		return res, nil
	}

	res.Errors = make(map[string]string, len(errs))
	joined := make([]error, 0, len(errs))
	for section, err := range errs {
		res.Errors[section] = err.Error()
		joined = append(joined, fmt.Errorf("%s: %w", section, err))
	}
	return res, errors.Join(joined...)
}

// dueSections returns the configured sections to reload. Without force a
// section is due unless its own record is fresh.
func (s *Service) dueSections(ctx context.Context, wallet string, force bool) map[string]bool {
	var entry cache.Entry
	if !force {
		entry, _ = s.deps.Cache.Get(ctx, wallet)
	}
	due := make(map[string]bool, 3)
	for _, section := range s.sections() {
		if force || s.deps.Cache.SectionTier(entry, section) != cache.TierFresh {
			due[section] = true
		}
	}
	return due
}

func (s *Service) timed(section string) func() {
	start := time.Now()
	return func() {
		if s.deps.Recorder != nil {
			s.deps.Recorder.ObserveRefresh(section, time.Since(start).Seconds())
		}
	}
}

func (s *Service) refreshAssets(ctx context.Context, wallet string) error {
	defer s.timed(cache.SectionAssets)()

	p, err := s.deps.Assets.Load(ctx, wallet, func(snap asset.Snapshot) {
		s.progress.Publish(Progress{Wallet: wallet, Snapshot: snap})
	})
	if err != nil {
		s.logger.Error("Failed to load assets, keeping cached copy", "wallet", wallet, "error", err)
		return err
	}
	s.deps.Cache.SaveAssets(ctx, wallet, p.Assets, p.TotalValue, p.NativeBalance)

	if s.deps.Snapshots != nil {
		if err := s.deps.Snapshots.InsertSnapshots(ctx, toSnapshots(wallet, p.Assets, time.Now())); err != nil {
			s.logger.Warn("Failed to record asset snapshots", "wallet", wallet, "error", err)
		}
	}
	return nil
}

func (s *Service) refreshActivity(ctx context.Context, wallet string) error {
	defer s.timed(cache.SectionTransactions)()

	txs, err := s.deps.Activity.Load(ctx, wallet)
	if err != nil {
		s.logger.Error("Failed to load transactions, keeping cached copy", "wallet", wallet, "error", err)
		return err
	}
	s.deps.Cache.SaveTransactions(ctx, wallet, txs)
	return nil
}

func (s *Service) refreshNFTs(ctx context.Context, wallet string) {
	defer s.timed(cache.SectionNFTs)()

	nfts := s.deps.NFTs.FetchOwned(ctx, wallet, s.deps.Network)
	prices := map[string]float64{}
	if s.deps.Prices != nil {
		for _, symbol := range floorCurrencies(nfts) {
			q, err := s.deps.Prices.Price(ctx, symbol, "")
			if err != nil {
				s.logger.Debug("No price for floor currency", "symbol", symbol, "error", err)
				continue
			}
			prices[symbol] = q.Price
		}
	}
	s.deps.Cache.SaveNFTs(ctx, wallet, nfts, nil, nft.TotalFloorValue(nfts, prices))
}

func floorCurrencies(nfts []nft.NFT) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range nfts {
		c := strings.ToUpper(n.FloorPriceCurrency)
		if n.FloorPrice == nil || c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func toSnapshots(wallet string, assets []asset.Asset, at time.Time) []storage.AssetSnapshot {
	out := make([]storage.AssetSnapshot, 0, len(assets))
	for _, a := range assets {
		balance, err := decimal.NewFromString(a.Balance)
		if err != nil {
			balance = decimal.Zero
		}
		out = append(out, storage.AssetSnapshot{
			CapturedAt:      at,
			Wallet:          wallet,
			Symbol:          a.Symbol,
			ContractAddress: a.ContractAddress,
			Network:         a.Network,
			Balance:         balance,
			Price:           decimal.NewFromFloat(a.Price),
			Value:           decimal.NewFromFloat(a.Value),
		})
	}
	return out
}

// View is what a display layer needs for one wallet.
type View struct {
	Wallet     string                   `json:"wallet"`
	Entry      cache.Entry              `json:"entry"`
	Cached     bool                     `json:"cached"`
	Tiers      map[string]cache.Tier    `json:"tiers"`
	Refreshing bool                     `json:"refreshing"`
	Approvals  []approval.TokenApproval `json:"approvals"`
}

// Loading reports whether a section has nothing trustworthy to show.
func (v View) Loading(section string) bool {
	return !v.Tiers[section].Displayable()
}

// View returns the cached data of wallet immediately. When a section is not
// fresh a background refresh is started (one per wallet at a time) and
// Refreshing is set.
func (s *Service) View(ctx context.Context, wallet string) View {
	wallet = strings.ToLower(strings.TrimSpace(wallet))
	entry, ok := s.deps.Cache.Get(ctx, wallet)

	v := View{
		Wallet: wallet,
		Entry:  entry,
		Cached: ok,
		Tiers:  make(map[string]cache.Tier, 3),
	}
	needsRefresh := false
	for _, section := range s.sections() {
		tier := s.deps.Cache.SectionTier(entry, section)
		v.Tiers[section] = tier
		if tier.NeedsRefresh() {
			needsRefresh = true
		}
	}
	if s.deps.Approvals != nil {
		v.Approvals = s.deps.Approvals.Approvals(wallet)
	}
	if needsRefresh {
		v.Refreshing = s.refreshInBackground(ctx, wallet)
	}
	return v
}

func (s *Service) sections() []string {
	sections := []string{cache.SectionAssets}
	if s.deps.Activity != nil {
		sections = append(sections, cache.SectionTransactions)
	}
	if s.deps.NFTs != nil {
		sections = append(sections, cache.SectionNFTs)
	}
	return sections
}

// refreshInBackground reports whether a refresh is running for wallet after
// the call.
func (s *Service) refreshInBackground(ctx context.Context, wallet string) bool {
	s.mu.Lock()
	if _, running := s.inflight[wallet]; running {
		s.mu.Unlock()
		return true
	}
	s.inflight[wallet] = struct{}{}
	s.mu.Unlock()

	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
	s.background.Go(func() {
		defer cancel()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, wallet)
			s.mu.Unlock()
		}()
		if _, err := s.Refresh(bg, wallet, true); err != nil {
			s.logger.Warn("Background refresh finished with errors", "wallet", wallet, "error", err)
		}
	})
	return true
}

// RefreshAll refreshes wallets with a bounded worker pool. Fresh wallets are
// skipped.
func (s *Service) RefreshAll(ctx context.Context, wallets []string) error {
	p := pool.New().WithErrors().WithMaxGoroutines(refreshWorkers)
	for _, w := range wallets {
		p.Go(func() error {
			if _, err := s.Refresh(ctx, w, false); err != nil {
				return fmt.Errorf("%s: %w", w, err)
			}
			return nil
		})
	}
	err := p.Wait()
	s.logger.Info("Refreshed wallets", "count", len(wallets), "failed", err != nil)
	return err
}

// Progress subscribes to partial asset snapshots of every refresh.
func (s *Service) Progress() *broadcast.Subscription[Progress] {
	return s.progress.Subscribe()
}

// Wait blocks until background refreshes have finished.
func (s *Service) Wait() {
	s.background.Wait()
}
