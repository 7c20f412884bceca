package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/infra/chain"
)

var (
	walletAddress string
	balanceToken  string
)

var balanceCmd = &cobra.Command{
	Use:   "balance <network>",
	Short: "Show the native or token balance of a wallet",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func init() {
	addWalletFlag(balanceCmd)
	balanceCmd.Flags().StringVar(&balanceToken, "token", "", "token contract, mint or asset id")
	rootCmd.AddCommand(balanceCmd)
}

func addWalletFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&walletAddress, "address", "", "wallet address (EVM defaults to the node's first account)")
}

// connect resolves the network argument and connects the --address wallet.
func connect(cmd *cobra.Command, network string) (chain.Service, *domain.WalletInfo, error) {
	n, err := domain.ParseNetwork(network)
	if err != nil {
		return nil, nil, err
	}
	svc, err := app.factory.GetService(n)
	if err != nil {
		return nil, nil, err
	}
	w, err := svc.ConnectWallet(cmd.Context(), chain.ConnectOptions{Address: walletAddress})
	if err != nil {
		return nil, nil, err
	}
	return svc, w, nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	svc, w, err := connect(cmd, args[0])
	if err != nil {
		return err
	}

	bal, err := svc.GetWalletBalance(cmd.Context(), balanceToken)
	if err != nil {
		return err
	}

	symbol := svc.Info().NativeSymbol
	if balanceToken != "" {
		symbol = balanceToken
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n%s\n",
		w.Address, bal.String(), symbol, svc.GetAddressExplorerURL(w.Address))
	return err
}
