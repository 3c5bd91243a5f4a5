package cmd

import (
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "walletfolio",
	Short: "EVM wallet portfolio tracker",
	Long: `walletfolio values the tokens and NFTs held by EVM wallets, tracks their
recent activity and active token approvals, and keeps live ETH and Solana gas
prices. Results are cached in memory with an optional durable tier (SQLite,
Redis or PostgreSQL) and served over HTTP by the daemon.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
}
