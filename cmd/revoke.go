package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/matrixise/walletfolio/internal/approval"
	"github.com/matrixise/walletfolio/internal/config"
)

var revokeAll bool

var revokeCmd = &cobra.Command{
	Use:   "revoke <address> <token> [spender...]",
	Short: "Revoke token approvals",
	Long: `Set allowances of token to zero. Signs with the key in WALLETFOLIO_PRIVATE_KEY,
which must belong to <address>. With --all every active spender of the token is
revoked concurrently.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRevoke,
}

func init() {
	rootCmd.AddCommand(revokeCmd)

	revokeCmd.Flags().BoolVar(&revokeAll, "all", false, "revoke every active spender of the token")
}

func newSigner(ctx context.Context, a *app, wallet string) (*bind.TransactOpts, error) {
	raw := strings.TrimPrefix(os.Getenv(config.EnvPrefix+"_PRIVATE_KEY"), "0x")
	if raw == "" {
		return nil, fmt.Errorf("%s_PRIVATE_KEY is required to sign", config.EnvPrefix)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	if addr := crypto.PubkeyToAddress(key.PublicKey); !strings.EqualFold(addr.Hex(), wallet) {
		return nil, fmt.Errorf("private key belongs to %s, not %s", addr.Hex(), wallet)
	}

	chainID, err := a.chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return bind.NewKeyedTransactorWithChainID(key, chainID)
}

func runRevoke(cmd *cobra.Command, args []string) error {
	wallet, err := walletArg(args[0])
	if err != nil {
		return err
	}
	token := strings.ToLower(args[1])
	spenders := args[2:]
	if !revokeAll && len(spenders) == 0 {
		return errors.New("name at least one spender or pass --all")
	}

	return withApp(func(ctx context.Context, a *app) error {
		signer, err := newSigner(ctx, a, wallet)
		if err != nil {
			return err
		}

		if revokeAll && len(spenders) == 0 {
			for _, ap := range a.scanner.Scan(ctx, wallet, nil) {
				if ap.TokenAddress == token {
					spenders = append(spenders, ap.Spender)
				}
			}
			if len(spenders) == 0 {
				slog.Info("No active approvals for token", "token", token)
				return nil
			}
		}

		if len(spenders) == 1 {
			err = a.scanner.Revoke(ctx, signer, wallet, token, spenders[0])
		} else {
			err = a.scanner.RevokeAllForToken(ctx, signer, wallet, token, spenders)
		}

		var revokeErr *approval.RevokeError
		if errors.As(err, &revokeErr) {
			slog.Error("Revocation failed", "token", revokeErr.Token, "still_active", revokeErr.Spenders, "error", revokeErr.Err)
			return err
		}
		if err != nil {
			return err
		}
		slog.Info("Approvals revoked", "token", token, "spenders", len(spenders))
		return nil
	})
}
