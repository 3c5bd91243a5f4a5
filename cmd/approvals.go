package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals <address>",
	Short: "List a wallet's active token approvals",
	Args:  cobra.ExactArgs(1),
	RunE:  runApprovals,
}

func init() {
	rootCmd.AddCommand(approvalsCmd)
}

func runApprovals(cmd *cobra.Command, args []string) error {
	wallet, err := walletArg(args[0])
	if err != nil {
		return err
	}
	return withApp(func(ctx context.Context, a *app) error {
		return printJSON(a.scanner.Scan(ctx, wallet, nil))
	})
}
