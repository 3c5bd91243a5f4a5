package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/matrixise/walletfolio/internal/session"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear cached portfolios",
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List wallets with a cached portfolio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			wallets, err := a.cache.Wallets(ctx)
			if err != nil {
				return err
			}
			return printJSON(wallets)
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <address>",
	Short: "Disconnect a wallet and drop its cached portfolio",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wallet, err := walletArg(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			chainID, err := a.chain.ChainID(ctx)
			if err != nil {
				return err
			}
			s := session.New(chainID.Uint64(), a.cache, slog.Default())
			if err := s.Connect(wallet); err != nil {
				return err
			}
			return s.Disconnect(ctx)
		})
	},
}

var cacheClearAllCmd = &cobra.Command{
	Use:   "clear-all",
	Short: "Drop every cached portfolio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			return a.cache.ClearAll(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheClearAllCmd)
}
