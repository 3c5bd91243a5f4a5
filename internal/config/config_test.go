package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		RPCUrls: []string{"https://rpc.example.com"},
		Network: "ethereum",
		Wallets: []string{"0x1234567890123456789012345678901234567890"},
		Pricing: PricingConfig{Currency: "usd"},
	}
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name      string
		cfg       *Config
		wantError bool
		check     func(*Config)
	}{
		{
			name: "single rpc_url converts to rpc_urls",
			cfg: &Config{
				RPCUrl:  "https://rpc1.example.com",
				RPCUrls: nil,
			},
			wantError: false,
			check: func(c *Config) {
				assert.Empty(t, c.RPCUrl)
				assert.Equal(t, []string{"https://rpc1.example.com"}, c.RPCUrls)
			},
		},
		{
			name: "rpc_urls takes precedence over rpc_url",
			cfg: &Config{
				RPCUrl:  "https://rpc1.example.com",
				RPCUrls: []string{"https://rpc2.example.com", "https://rpc3.example.com"},
			},
			wantError: false,
			check: func(c *Config) {
				assert.Empty(t, c.RPCUrl)
				assert.Equal(t, []string{"https://rpc2.example.com", "https://rpc3.example.com"}, c.RPCUrls)
			},
		},
		{
			name: "empty rpc_urls with non-empty rpc_url still converts",
			cfg: &Config{
				RPCUrl:  "https://rpc1.example.com",
				RPCUrls: []string{},
			},
			wantError: false,
			check: func(c *Config) {
				assert.Equal(t, []string{"https://rpc1.example.com"}, c.RPCUrls)
			},
		},
		{
			name:      "both empty rpc_url and rpc_urls returns error",
			cfg:       &Config{},
			wantError: true,
		},
		{
			name: "wallets are trimmed and lower-cased",
			cfg: &Config{
				RPCUrls: []string{"https://rpc1.example.com"},
				Wallets: []string{" 0xABCDEF0000000000000000000000000000000001 "},
			},
			wantError: false,
			check: func(c *Config) {
				assert.Equal(t, []string{"0xabcdef0000000000000000000000000000000001"}, c.Wallets)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Normalize()
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(tt.cfg)
			}
		})
	}
}

func TestConfigGetTimezone(t *testing.T) {
	tests := []struct {
		name     string
		timezone string
		wantName string
	}{
		{"UTC timezone", "UTC", "UTC"},
		{"named zone", "Europe/Brussels", "Europe/Brussels"},
		{"empty timezone defaults to UTC", "", "UTC"},
		{"unknown zone falls back to UTC", "Mars/Olympus", "UTC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Timezone: tt.timezone}
			assert.Equal(t, tt.wantName, cfg.GetTimezone().String())
		})
	}
}

func TestConfigShouldRunImmediately(t *testing.T) {
	trueVal := true
	falseVal := false

	tests := []struct {
		name    string
		value   *bool
		wantRun bool
	}{
		{"true when explicitly set", &trueVal, true},
		{"false when explicitly disabled", &falseVal, false},
		{"nil pointer defaults to true", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{RunImmediately: tt.value}
			assert.Equal(t, tt.wantRun, cfg.ShouldRunImmediately())
		})
	}
}

func TestConfigIsCronExpression(t *testing.T) {
	tests := []struct {
		interval string
		expected bool
	}{
		{"5m", false},
		{"*/5 * * * *", true},
		{"*/30 * * * * *", true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.interval, func(t *testing.T) {
			cfg := &Config{Interval: tt.interval}
			assert.Equal(t, tt.expected, cfg.IsCronExpression())
		})
	}
}

func TestConfigHTTPPortValidation(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name      string
		httpPort  int
		wantError bool
	}{
		{"valid port 8080", 8080, false},
		{"port too low (1023)", 1023, true},
		{"port too high (65536)", 65536, true},
		{"minimum valid port (1024)", 1024, false},
		{"maximum valid port (65535)", 65535, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.HTTPPort = tt.httpPort
			err := validator.Struct(cfg)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfigLogLevelValidation(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name      string
		logLevel  string
		wantError bool
	}{
		{"valid debug", "debug", false},
		{"valid info", "info", false},
		{"valid warn", "warn", false},
		{"valid error", "error", false},
		{"invalid level", "invalid", true},
		{"empty is valid (uses default)", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.LogLevel = tt.logLevel
			err := validator.Struct(cfg)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStorageValidation(t *testing.T) {
	validator := NewValidator()

	tests := []struct {
		name      string
		storage   StorageConfig
		wantError bool
	}{
		{"memory needs nothing", StorageConfig{Driver: "memory"}, false},
		{"empty driver is memory", StorageConfig{}, false},
		{"sqlite with path", StorageConfig{Driver: "sqlite", Path: "cache.db"}, false},
		{"sqlite without path", StorageConfig{Driver: "sqlite"}, true},
		{"redis with addr", StorageConfig{Driver: "redis", RedisAddr: "localhost:6379"}, false},
		{"redis without addr", StorageConfig{Driver: "redis"}, true},
		{"postgres without dsn", StorageConfig{Driver: "postgres"}, true},
		{"unknown driver", StorageConfig{Driver: "mongo"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Storage = tt.storage
			err := validator.Struct(cfg)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
