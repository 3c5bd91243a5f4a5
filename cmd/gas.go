package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var gasCmd = &cobra.Command{
	Use:   "gas",
	Short: "Print current ETH and Solana gas prices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.gas.Refresh(ctx); err != nil {
				return err
			}
			return printJSON(a.gas.Current())
		})
	},
}

func init() {
	rootCmd.AddCommand(gasCmd)
}
