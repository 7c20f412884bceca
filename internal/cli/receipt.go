package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vietddude/todochain/internal/core/domain"
	"github.com/vietddude/todochain/internal/monitor"
)

var (
	watchReceipt bool
	watchOpts    monitor.Options
)

var receiptCmd = &cobra.Command{
	Use:   "receipt <network> <hash>",
	Short: "Show a transaction receipt, optionally waiting for it",
	Args:  cobra.ExactArgs(2),
	RunE:  runReceipt,
}

func init() {
	f := receiptCmd.Flags()
	f.BoolVar(&watchReceipt, "watch", false, "poll until the transaction is final")
	f.IntVar(&watchOpts.MaxAttempts, "max-attempts", 0, "poll limit (0 uses the network default)")
	f.DurationVar(&watchOpts.PollingInterval, "interval", 0, "time between polls")
	f.DurationVar(&watchOpts.Timeout, "timeout", 0, "overall deadline")
	rootCmd.AddCommand(receiptCmd)
}

func runReceipt(cmd *cobra.Command, args []string) error {
	n, err := domain.ParseNetwork(args[0])
	if err != nil {
		return err
	}
	svc, err := app.factory.GetService(n)
	if err != nil {
		return err
	}
	hash := args[1]

	if !watchReceipt {
		receipt, err := svc.GetTransactionReceipt(cmd.Context(), hash)
		if err != nil {
			return err
		}
		if receipt == nil {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", hash, domain.TxStatusPending)
			return err
		}
		return printReceipt(cmd, svc.GetTransactionExplorerURL(hash), receipt)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	opts := watchOpts
	opts.OnStatusChange = func(status monitor.Status, _ *domain.TransactionReceipt) {
		slog.Info("Transaction status", "hash", hash, "status", status)
	}
	receipt, err := svc.MonitorTransaction(ctx, hash, opts)
	if err != nil {
		return err
	}
	return printReceipt(cmd, svc.GetTransactionExplorerURL(hash), receipt)
}

func printReceipt(cmd *cobra.Command, explorerURL string, r *domain.TransactionReceipt) error {
	return printJSON(cmd, struct {
		*domain.TransactionReceipt
		ExplorerURL string `json:"explorer_url"`
	}{r, explorerURL})
}
