package nft

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/matrixise/walletfolio/internal/fallback"
	"github.com/matrixise/walletfolio/internal/httpclient"
)

// Config selects provider endpoints and credentials.
type Config struct {
	AlchemyURL    string
	AlchemyAPIKey string
	OpenSeaURL    string
	OpenSeaAPIKey string
	Gateway       string
}

// Aggregator fetches owned NFTs through the provider chain.
type Aggregator struct {
	cfg      Config
	client   *httpclient.Client
	recorder fallback.Recorder
	logger   *slog.Logger
}

// NewAggregator creates an aggregator. recorder may be nil.
func NewAggregator(cfg Config, client *httpclient.Client, recorder fallback.Recorder, logger *slog.Logger) *Aggregator {
	if cfg.AlchemyURL == "" {
		cfg.AlchemyURL = DefaultAlchemyURL
	}
	if cfg.OpenSeaURL == "" {
		cfg.OpenSeaURL = DefaultOpenSeaURL
	}
	if cfg.Gateway == "" {
		cfg.Gateway = DefaultGateway
	}
	cfg.AlchemyURL = strings.TrimRight(cfg.AlchemyURL, "/")
	cfg.OpenSeaURL = strings.TrimRight(cfg.OpenSeaURL, "/")
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{cfg: cfg, client: client, recorder: recorder, logger: logger}
}

// Gateway returns the IPFS gateway host used for images.
func (a *Aggregator) Gateway() string {
	return a.cfg.Gateway
}

// FetchOwned returns the NFTs owned by address on network ("ethereum" when
// empty). It never fails: an invalid address or exhausted providers yield
// an empty list.
func (a *Aggregator) FetchOwned(ctx context.Context, address, network string) []NFT {
	if address == "" || !common.IsHexAddress(address) {
		return []NFT{}
	}
	if network == "" {
		network = "ethereum"
	}

	chain := fallback.New("nft", []NFT{}, []fallback.Provider[[]NFT]{
		alchemyProvider(a.client, a.cfg.AlchemyURL, a.cfg.AlchemyAPIKey, a.cfg.Gateway, address, network),
		openSeaProvider(a.client, a.cfg.OpenSeaURL, a.cfg.OpenSeaAPIKey, a.cfg.Gateway, address, network),
	},
		fallback.WithValidator(func(nfts []NFT) bool { return len(nfts) > 0 }),
		fallback.WithRecorder[[]NFT](a.recorder),
		fallback.WithLogger[[]NFT](a.logger.With("owner", address)))

	res := chain.Execute(ctx)
	if res.Defaulted {
		a.logger.Warn("Failed to fetch NFTs from both Alchemy and OpenSea", "owner", address)
		return []NFT{}
	}
	a.logger.Debug("NFTs fetched", "owner", address, "source", res.Source, "count", len(res.Value))
	return res.Value
}
