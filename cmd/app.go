package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go/rpc"
	jsoniter "github.com/json-iterator/go"

	"github.com/matrixise/walletfolio/internal/activity"
	"github.com/matrixise/walletfolio/internal/approval"
	"github.com/matrixise/walletfolio/internal/asset"
	"github.com/matrixise/walletfolio/internal/blockchain"
	"github.com/matrixise/walletfolio/internal/cache"
	"github.com/matrixise/walletfolio/internal/config"
	"github.com/matrixise/walletfolio/internal/gas"
	"github.com/matrixise/walletfolio/internal/httpclient"
	"github.com/matrixise/walletfolio/internal/logger"
	"github.com/matrixise/walletfolio/internal/metrics"
	"github.com/matrixise/walletfolio/internal/nft"
	"github.com/matrixise/walletfolio/internal/portfolio"
	"github.com/matrixise/walletfolio/internal/pricing"
	"github.com/matrixise/walletfolio/internal/storage"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	store     storage.KV
	chain     *blockchain.Client
	cache     *cache.PortfolioCache
	scanner   *approval.Scanner
	gas       *gas.Aggregator
	portfolio *portfolio.Service
}

func loadConfig() (*config.Config, error) {
	logger.Setup(logLevel)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		slog.Error("Configuration error", "error", err)
		return nil, err
	}
	applyLogging(cfg)
	return cfg, nil
}

// applyLogging lets the config override the --log-level flag.
func applyLogging(cfg *config.Config) {
	level := cfg.LogLevel
	if flagChanged("log-level") {
		level = logLevel
	}
	logger.Configure(logger.Options{Level: level, File: cfg.LogFile})
}

func flagChanged(name string) bool {
	f := rootCmd.PersistentFlags().Lookup(name)
	return f != nil && f.Changed
}

// newApp connects the durable store and the RPC endpoints and wires every
// service on top of them.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	m := metrics.New()

	store, err := storage.Open(ctx, storage.Config{
		Driver:        cfg.Storage.Driver,
		DSN:           cfg.Storage.DSN,
		Path:          cfg.Storage.Path,
		RedisAddr:     cfg.Storage.RedisAddr,
		RedisPassword: cfg.Storage.RedisPassword,
		RedisDB:       cfg.Storage.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Driver, err)
	}
	slog.Info("Storage ready", "driver", cfg.Storage.Driver)

	chain, err := blockchain.NewClient(cfg.RPCUrls, cfg.Network)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	if len(cfg.RPCUrls) == 1 {
		slog.Info("RPC connection established", "endpoints", 1)
	} else {
		slog.Info("RPC connection established with failover", "endpoints", len(cfg.RPCUrls))
	}

	httpc := httpclient.New(httpclient.Config{
		Timeout:   cfg.HTTPClient.Timeout,
		RateLimit: cfg.HTTPClient.RateLimit,
		UserAgent: cfg.HTTPClient.UserAgent,
	}, slog.Default())

	ids := make(map[string]string, len(cfg.Pricing.CoinGeckoIDs))
	for symbol, id := range cfg.Pricing.CoinGeckoIDs {
		ids[strings.ToUpper(symbol)] = id
	}
	prices := pricing.NewService(
		pricing.NewCoinGecko(cfg.Pricing.CoinGeckoURL, ids, cfg.Pricing.Timeout, slog.Default()),
		pricing.NewDexScreener(cfg.Pricing.DexScreenerURL, cfg.Pricing.DexScreenerChain, cfg.Pricing.Timeout, slog.Default()),
		cfg.Pricing.Currency, m, slog.Default())

	pc := cache.New(store, cache.WithRecorder(m), cache.WithLogger(slog.Default()))
	scanner := approval.NewScanner(chain, approval.NewRegistry(cfg.Approvals.Spenders), cfg.Network, m, slog.Default())

	solanaURL := cfg.Gas.SolanaRPCURL
	if solanaURL == "" {
		solanaURL = gas.DefaultSolanaRPCURL
	}
	gasAgg := gas.NewAggregator(gas.Config{
		BlocknativeURL:    cfg.Gas.BlocknativeURL,
		BlocknativeAPIKey: cfg.Gas.BlocknativeAPIKey,
		EthGasStationURL:  cfg.Gas.EthGasStationURL,
		OwlracleURL:       cfg.Gas.OwlracleURL,
		Interval:          cfg.Gas.Interval,
	}, httpc, rpc.New(solanaURL), m, slog.Default())

	deps := portfolio.Deps{
		Cache:    pc,
		Assets:   asset.NewPricer(chain, prices, cfg.Network, slog.Default()),
		Activity: activity.NewLoader(chain, cfg.Network, 0),
		NFTs: nft.NewAggregator(nft.Config{
			AlchemyURL:    cfg.NFT.AlchemyURL,
			AlchemyAPIKey: cfg.NFT.AlchemyAPIKey,
			OpenSeaURL:    cfg.NFT.OpenSeaURL,
			OpenSeaAPIKey: cfg.NFT.OpenSeaAPIKey,
			Gateway:       cfg.NFT.Gateway,
		}, httpc, m, slog.Default()),
		Approvals: scanner,
		Prices:    prices,
		Recorder:  m,
		Network:   cfg.Network,
		Logger:    slog.Default(),
	}
	if pg, ok := store.(*storage.PostgresStore); ok {
		deps.Snapshots = pg
	}

	return &app{
		cfg:       cfg,
		metrics:   m,
		store:     store,
		chain:     chain,
		cache:     pc,
		scanner:   scanner,
		gas:       gasAgg,
		portfolio: portfolio.NewService(deps),
	}, nil
}

// Close waits for background refreshes and releases connections.
func (a *app) Close() {
	a.portfolio.Wait()
	a.chain.Close()
	if err := a.store.Close(); err != nil {
		slog.Error("Failed to close storage", "error", err)
	}
}

func printJSON(v any) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
