package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var portfolioCmd = &cobra.Command{
	Use:   "portfolio <address>",
	Short: "Refresh and print a wallet's portfolio",
	Long:  `Load assets, NFTs, activity and approvals for one wallet, update the cache and print the result as JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runPortfolio,
}

func init() {
	rootCmd.AddCommand(portfolioCmd)
}

// walletArg validates and normalizes an address argument.
func walletArg(raw string) (string, error) {
	if !common.IsHexAddress(raw) {
		return "", fmt.Errorf("invalid wallet address %q", raw)
	}
	return strings.ToLower(raw), nil
}

func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("Startup failed", "error", err)
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func runPortfolio(cmd *cobra.Command, args []string) error {
	wallet, err := walletArg(args[0])
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		result, refreshErr := a.portfolio.Refresh(ctx, wallet, true)
		if refreshErr != nil {
			slog.Warn("Portfolio refreshed with errors", "wallet", wallet, "error", refreshErr)
		}
		if err := printJSON(result); err != nil {
			return err
		}
		return refreshErr
	})
}
