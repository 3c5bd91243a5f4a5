package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matrixise/walletfolio/internal/scheduler"
)

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file syntax and values without running the application.`,
	RunE:  validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	schedule := "gas only"
	if cfg.Interval != "" {
		schedule = scheduler.DescribeSchedule(cfg.Interval, cfg.GetTimezone())
	}

	slog.Info("Configuration valid",
		"network", cfg.Network,
		"rpc_endpoints", len(cfg.RPCUrls),
		"wallets", len(cfg.Wallets),
		"schedule", schedule,
		"gas_interval", cfg.Gas.Interval,
		"storage", cfg.Storage.Driver,
		"extra_spenders", len(cfg.Approvals.Spenders),
		"alchemy_key_set", cfg.NFT.AlchemyAPIKey != "",
		"log_level", cfg.LogLevel,
	)
	return nil
}
