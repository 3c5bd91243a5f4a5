package config

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"

	"github.com/matrixise/walletfolio/internal/scheduler"
)

// Config represents the application configuration
type Config struct {
	RPCUrl         string   `mapstructure:"rpc_url" validate:"omitempty,url"`
	RPCUrls        []string `mapstructure:"rpc_urls" validate:"required,min=1,dive,url"`
	Network        string   `mapstructure:"network" validate:"required"`
	Wallets        []string `mapstructure:"wallets" validate:"omitempty,dive,eth_addr"`
	Interval       string   `mapstructure:"interval" validate:"omitempty,schedule"`
	LogLevel       string   `mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	LogFile        string   `mapstructure:"log_file"`
	HTTPPort       int      `mapstructure:"http_port" validate:"omitempty,min=1024,max=65535"`
	Timezone       string   `mapstructure:"timezone" validate:"omitempty,timezone"`
	RunImmediately *bool    `mapstructure:"run_immediately"`

	Gas        GasConfig        `mapstructure:"gas"`
	NFT        NFTConfig        `mapstructure:"nft"`
	Pricing    PricingConfig    `mapstructure:"pricing"`
	Approvals  ApprovalsConfig  `mapstructure:"approvals"`
	Storage    StorageConfig    `mapstructure:"storage"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
}

// GasConfig selects the gas price providers.
type GasConfig struct {
	Interval          time.Duration `mapstructure:"interval" validate:"omitempty,min=1s"`
	BlocknativeURL    string        `mapstructure:"blocknative_url" validate:"omitempty,url"`
	BlocknativeAPIKey string        `mapstructure:"blocknative_api_key"`
	EthGasStationURL  string        `mapstructure:"ethgasstation_url" validate:"omitempty,url"`
	OwlracleURL       string        `mapstructure:"owlracle_url" validate:"omitempty,url"`
	SolanaRPCURL      string        `mapstructure:"solana_rpc_url" validate:"omitempty,url"`
}

// NFTConfig selects the NFT providers.
type NFTConfig struct {
	AlchemyURL    string `mapstructure:"alchemy_url" validate:"omitempty,url"`
	AlchemyAPIKey string `mapstructure:"alchemy_api_key"`
	OpenSeaURL    string `mapstructure:"opensea_url" validate:"omitempty,url"`
	OpenSeaAPIKey string `mapstructure:"opensea_api_key"`
	Gateway       string `mapstructure:"ipfs_gateway" validate:"omitempty,hostname"`
}

// PricingConfig selects the price quote providers.
type PricingConfig struct {
	Currency         string            `mapstructure:"currency" validate:"required,alpha"`
	CoinGeckoURL     string            `mapstructure:"coingecko_url" validate:"omitempty,url"`
	CoinGeckoIDs     map[string]string `mapstructure:"coingecko_ids"`
	DexScreenerURL   string            `mapstructure:"dexscreener_url" validate:"omitempty,url"`
	DexScreenerChain string            `mapstructure:"dexscreener_chain"`
	Timeout          time.Duration     `mapstructure:"timeout"`
}

// ApprovalsConfig extends the known spender registry.
type ApprovalsConfig struct {
	// Spenders maps spender addresses to display names.
	Spenders map[string]string `mapstructure:"spenders" validate:"dive,keys,eth_addr,endkeys,required"`
}

// StorageConfig selects the durable cache tier.
type StorageConfig struct {
	Driver        string `mapstructure:"driver" validate:"omitempty,oneof=memory sqlite redis postgres"`
	DSN           string `mapstructure:"dsn" validate:"required_if=Driver postgres"`
	Path          string `mapstructure:"path" validate:"required_if=Driver sqlite"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"min=0"`
}

// HTTPClientConfig tunes outgoing provider requests.
type HTTPClientConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit int           `mapstructure:"rate_limit" validate:"min=0"`
	UserAgent string        `mapstructure:"user_agent"`
}

// Normalize folds rpc_url into rpc_urls and lower-cases wallets.
func (c *Config) Normalize() error {
	if len(c.RPCUrls) == 0 && c.RPCUrl != "" {
		c.RPCUrls = []string{c.RPCUrl}
	}
	c.RPCUrl = ""
	if len(c.RPCUrls) == 0 {
		return errors.New("rpc_url or rpc_urls is required")
	}

	for i, w := range c.Wallets {
		c.Wallets[i] = strings.ToLower(strings.TrimSpace(w))
	}
	return nil
}

// GetTimezone returns the configured location, UTC when unset or unknown.
func (c *Config) GetTimezone() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ShouldRunImmediately defaults to true.
func (c *Config) ShouldRunImmediately() bool {
	return c.RunImmediately == nil || *c.RunImmediately
}

// IsCronExpression reports whether interval is a cron expression.
func (c *Config) IsCronExpression() bool {
	return len(strings.Fields(c.Interval)) >= 5
}

// ethAddressValidator validates Ethereum addresses
func ethAddressValidator(fl validator.FieldLevel) bool {
	return common.IsHexAddress(fl.Field().String())
}

// scheduleValidator accepts clock-aligned durations and cron expressions.
func scheduleValidator(fl validator.FieldLevel) bool {
	return scheduler.ValidateScheduleInterval(fl.Field().String()) == nil
}

// NewValidator creates a validator with custom validation rules
func NewValidator() *validator.Validate {
	validate := validator.New()
	_ = validate.RegisterValidation("eth_addr", ethAddressValidator)
	_ = validate.RegisterValidation("schedule", scheduleValidator)
	return validate
}
