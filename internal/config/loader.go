package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WALLETFOLIO_LOG_LEVEL.
const EnvPrefix = "WALLETFOLIO"

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	// 1. Defaults
	v.SetDefault("network", "ethereum")
	v.SetDefault("log_level", "info")
	v.SetDefault("interval", "") // daemon refreshes only gas prices
	v.SetDefault("http_port", 8080)
	v.SetDefault("run_immediately", true)
	v.SetDefault("timezone", "UTC")
	v.SetDefault("gas.interval", "30s")
	v.SetDefault("nft.ipfs_gateway", "ipfs.io")
	v.SetDefault("pricing.currency", "usd")
	v.SetDefault("pricing.dexscreener_chain", "ethereum")
	v.SetDefault("pricing.timeout", "10s")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.path", "")
	v.SetDefault("storage.redis_addr", "")
	v.SetDefault("storage.redis_password", "")
	v.SetDefault("storage.redis_db", 0)
	v.SetDefault("http_client.timeout", "10s")
	v.SetDefault("http_client.user_agent", "walletfolio")

	// 2. Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
	}

	// 3. Environment: WALLETFOLIO_STORAGE_DSN -> storage.dsn
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bare names kept for container setups.
	_ = v.BindEnv("rpc_url", EnvPrefix+"_RPC_URL", "RPC_URL")
	_ = v.BindEnv("rpc_urls", EnvPrefix+"_RPC_URLS", "RPC_URLS")
	_ = v.BindEnv("wallets", EnvPrefix+"_WALLETS", "WALLETS")
	_ = v.BindEnv("log_level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("http_port", EnvPrefix+"_HTTP_PORT", "HTTP_PORT")
	_ = v.BindEnv("storage.dsn", EnvPrefix+"_STORAGE_DSN", "DATABASE_URL")
	_ = v.BindEnv("nft.alchemy_api_key", EnvPrefix+"_NFT_ALCHEMY_API_KEY", "ALCHEMY_API_KEY")
	_ = v.BindEnv("nft.opensea_api_key", EnvPrefix+"_NFT_OPENSEA_API_KEY", "OPENSEA_API_KEY")
	_ = v.BindEnv("gas.blocknative_api_key", EnvPrefix+"_GAS_BLOCKNATIVE_API_KEY", "BLOCKNATIVE_API_KEY")

	return v
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	_, cfg, err := load(configPath)
	return cfg, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	v := newViper(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, nil, err
	}
	return v, cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Env lists arrive as one comma-separated string.
	if list := splitList(v.GetString("wallets")); list != nil {
		cfg.Wallets = list
	}
	if list := splitList(v.GetString("rpc_urls")); list != nil {
		cfg.RPCUrls = list
	}

	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("config normalization failed: %w", err)
	}

	if err := NewValidator().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func splitList(raw string) []string {
	if !strings.Contains(raw, ",") {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Watch loads the config and calls onChange with every valid revision of the
// file. Invalid revisions are logged and ignored.
func Watch(configPath string, onChange func(*Config)) (*Config, error) {
	v, cfg, err := load(configPath)
	if err != nil {
		return nil, err
	}
	if v.ConfigFileUsed() == "" {
		return cfg, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next, err := decode(v)
		if err != nil {
			slog.Warn("Ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		slog.Info("Config reloaded", "file", e.Name)
		onChange(next)
	})
	v.WatchConfig()
	return cfg, nil
}
